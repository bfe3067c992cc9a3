package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"RegisterDigest/internal/domain"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "REGISTER_DIGEST_CONFIG"

	openAIKeyEnv       = "OPENAI_KEY"
	openAIBaseURLEnv   = "OPENAI_BASE_URL"
	modelEnv           = "OPENAI_MODEL"
	airtableKeyEnv     = "AIRTABLE_API_KEY"
	airtableBaseEnv    = "AIRTABLE_BASE_ID"
	databaseDSNEnv     = "DATABASE_DSN"
	sendgridKeyEnv     = "SENDGRID_API_KEY"
	smtpPasswordEnv    = "SMTP_PASSWORD"
	logLevelEnv        = "LOG_LEVEL"
	cutoffHourEnv      = "CUTOFF_HOUR_UTC"
	publicationBaseEnv = "PUBLICATION_BASE_URL"
)

// Store kinds.
const (
	StoreAirtable = "airtable"
	StorePostgres = "postgres"
	StoreFile     = "file"
)

// Email sink kinds.
const (
	EmailSendGrid = "sendgrid"
	EmailSMTP     = "smtp"
	EmailLog      = "log"
)

// Config holds high-level settings required across the application.
type Config struct {
	Publication PublicationConfig `yaml:"publication"`
	Store       StoreConfig       `yaml:"store"`
	Completion  CompletionConfig  `yaml:"completion"`
	Budget      BudgetConfig      `yaml:"budget"`
	Retry       RetryConfig       `yaml:"retry"`
	Email       EmailConfig       `yaml:"email"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// PublicationConfig points at the register API.
type PublicationConfig struct {
	BaseURL            string        `yaml:"baseUrl"`
	RequestsPerSecond  float64       `yaml:"requestsPerSecond"`
	Timeout            time.Duration `yaml:"timeout"`
	DocumentCacheSize  int           `yaml:"documentCacheSize"`
	BoilerplateMarkers []string      `yaml:"boilerplateMarkers"`
}

// StoreConfig selects and configures the subscriber store.
type StoreConfig struct {
	Kind     string         `yaml:"kind"`
	Airtable AirtableConfig `yaml:"airtable"`
	Postgres PostgresConfig `yaml:"postgres"`
	File     FileConfig     `yaml:"file"`
}

// AirtableConfig holds the tabular store credentials and table names.
type AirtableConfig struct {
	Endpoint         string `yaml:"endpoint"`
	APIKey           string `yaml:"apiKey"`
	BaseID           string `yaml:"baseId"`
	SubscribersTable string `yaml:"subscribersTable"`
	InterestsTable   string `yaml:"interestsTable"`
}

// PostgresConfig describes Postgres connection details.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// FileConfig points at a YAML roster file.
type FileConfig struct {
	Path string `yaml:"path"`
}

// CompletionConfig defines how to contact the completion service.
type CompletionConfig struct {
	BaseURL        string        `yaml:"baseUrl"`
	APIKey         string        `yaml:"apiKey"`
	Model          string        `yaml:"model"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// BudgetConfig carries the token budget policy.
type BudgetConfig struct {
	SummaryRatio       float64 `yaml:"summaryRatio"`
	MaxTokens          int     `yaml:"maxTokens"`
	ExpansionThreshold int     `yaml:"expansionThreshold"`
	ExpansionFactor    float64 `yaml:"expansionFactor"`
}

// RetryConfig carries the completion retry policy.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
	Multiplier   float64       `yaml:"multiplier"`
	// RandomizationFactor spreads each delay by +/- this fraction.
	RandomizationFactor float64 `yaml:"randomizationFactor"`
}

// EmailConfig selects and configures the email sink.
type EmailConfig struct {
	Kind          string         `yaml:"kind"`
	From          string         `yaml:"from"`
	FromName      string         `yaml:"fromName"`
	SubjectPrefix string         `yaml:"subjectPrefix"`
	Footer        string         `yaml:"footer"`
	SendGrid      SendGridConfig `yaml:"sendgrid"`
	SMTP          SMTPConfig     `yaml:"smtp"`
}

// SendGridConfig holds SendGrid credentials.
type SendGridConfig struct {
	APIKey     string `yaml:"apiKey"`
	TemplateID string `yaml:"templateId"`
}

// SMTPConfig holds SMTP relay credentials.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	CutoffHourUTC  int            `yaml:"cutoffHourUtc"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// PipelineConfig tunes subscriber fan-out.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig selects log level and format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig sets the listen address for /metrics in serve mode.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return LoadPath(os.Getenv(configPathEnv))
}

// LoadPath is Load with an explicit file path; an empty path means defaults.
func LoadPath(path string) Config {
	cfg := Default()

	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = loaded
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg
}

// LoadFile decodes a YAML file on top of the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Default(), fmt.Errorf("cannot parse %s: %w", path, err)
	}
	cfg.bindTimezone()
	return cfg, nil
}

// Validate reports configuration errors that would make a run meaningless.
func (c Config) Validate() error {
	var errs []error

	if c.Publication.BaseURL == "" {
		errs = append(errs, errors.New("publication.baseUrl is required"))
	}
	switch c.Store.Kind {
	case StoreAirtable:
		if c.Store.Airtable.APIKey == "" || c.Store.Airtable.BaseID == "" {
			errs = append(errs, errors.New("store.airtable requires apiKey and baseId"))
		}
	case StorePostgres:
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required"))
		}
	case StoreFile:
		if c.Store.File.Path == "" {
			errs = append(errs, errors.New("store.file.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}
	switch c.Email.Kind {
	case EmailSendGrid:
		if c.Email.SendGrid.APIKey == "" {
			errs = append(errs, errors.New("email.sendgrid.apiKey is required"))
		}
	case EmailSMTP:
		if c.Email.SMTP.Host == "" {
			errs = append(errs, errors.New("email.smtp.host is required"))
		}
	case EmailLog:
	default:
		errs = append(errs, fmt.Errorf("unknown email kind %q", c.Email.Kind))
	}
	if c.Completion.Model == "" {
		errs = append(errs, errors.New("completion.model is required"))
	}
	if c.Budget.MaxTokens <= 0 {
		errs = append(errs, errors.New("budget.maxTokens must be positive"))
	}
	if c.Budget.SummaryRatio <= 0 || c.Budget.SummaryRatio >= 1 {
		errs = append(errs, errors.New("budget.summaryRatio must be in (0,1)"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry.maxAttempts must be positive"))
	}
	if c.Retry.RandomizationFactor < 0 || c.Retry.RandomizationFactor > 1 {
		errs = append(errs, errors.New("retry.randomizationFactor must be within 0..1"))
	}
	if c.Scheduler.CutoffHourUTC < 0 || c.Scheduler.CutoffHourUTC > 23 {
		errs = append(errs, errors.New("scheduler.cutoffHourUtc must be within 0..23"))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(publicationBaseEnv); v != "" {
		c.Publication.BaseURL = v
	}

	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.Completion.APIKey = v
	}
	if v := os.Getenv(openAIBaseURLEnv); v != "" {
		c.Completion.BaseURL = v
	}
	if v := os.Getenv(modelEnv); v != "" {
		c.Completion.Model = v
	}

	if v := os.Getenv(airtableKeyEnv); v != "" {
		c.Store.Airtable.APIKey = v
	}
	if v := os.Getenv(airtableBaseEnv); v != "" {
		c.Store.Airtable.BaseID = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Store.Postgres.DSN = v
	}

	if v := os.Getenv(sendgridKeyEnv); v != "" {
		c.Email.SendGrid.APIKey = v
	}
	if v := os.Getenv(smtpPasswordEnv); v != "" {
		c.Email.SMTP.Password = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(cutoffHourEnv); v != "" {
		if hour, err := strconv.Atoi(v); err == nil {
			c.Scheduler.CutoffHourUTC = hour
		} else {
			log.Printf("config: ignoring %s=%q: %v", cutoffHourEnv, v, err)
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// Default returns the configuration used when no file is given.
func Default() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Publication: PublicationConfig{
			BaseURL:            "https://www.federalregister.gov/api/v1",
			RequestsPerSecond:  5,
			Timeout:            20 * time.Second,
			DocumentCacheSize:  2048,
			BoilerplateMarkers: []string{domain.DefaultBoilerplateMarker},
		},
		Store: StoreConfig{
			Kind: StoreAirtable,
			Airtable: AirtableConfig{
				Endpoint:         "https://api.airtable.com/v0",
				SubscribersTable: "Subscriber",
				InterestsTable:   "Interest",
			},
		},
		Completion: CompletionConfig{
			Model:          "gpt-4",
			RequestTimeout: 2 * time.Minute,
		},
		Budget: BudgetConfig{
			SummaryRatio:       0.3,
			MaxTokens:          8000,
			ExpansionThreshold: 5333,
			ExpansionFactor:    1.5,
		},
		Retry: RetryConfig{
			MaxAttempts:         6,
			InitialDelay:        time.Second,
			MaxDelay:            time.Minute,
			Multiplier:          2,
			RandomizationFactor: 0.5,
		},
		Email: EmailConfig{
			Kind:          EmailLog,
			From:          "apprise.summaries@gmail.com",
			FromName:      "Apprise",
			SubjectPrefix: "Apprise Daily Summary",
			Footer:        "Questions or feedback? Reply to this email. To stop receiving these summaries, reply with \"unsubscribe\".",
			SMTP:          SMTPConfig{Host: "smtp.gmail.com", Port: 587},
		},
		Scheduler: SchedulerConfig{
			CronExpression: "0 11 * * *",
			Timezone:       defaultTimezone,
			CutoffHourUTC:  11,
			location:       tz,
		},
		Pipeline: PipelineConfig{Concurrency: 1},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Metrics:  MetricsConfig{ListenAddr: ":9090"},
	}
}
