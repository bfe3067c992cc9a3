package tokenizer

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pkoukk/tiktoken-go"

	"RegisterDigest/internal/ports"
)

// Tiktoken counts tokens with the BPE encoding of a model.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

var _ ports.Tokenizer = (*Tiktoken)(nil)

// NewTiktoken loads the encoding for model. The BPE ranks are downloaded on
// first use unless TIKTOKEN_CACHE_DIR already holds them.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("load encoding for %s: %w", model, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Estimator approximates token counts at ~4 characters per token, rounding up.
type Estimator struct{}

var _ ports.Tokenizer = Estimator{}

// Count returns ceil(len(text)/4).
func (Estimator) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / 4.0))
}

// ForModel prefers the model's real encoding and falls back to Estimator.
func ForModel(model string, logger *slog.Logger) ports.Tokenizer {
	tk, err := NewTiktoken(model)
	if err != nil {
		if logger != nil {
			logger.Warn("tokenizer unavailable, estimating token counts", "model", model, "error", err)
		}
		return Estimator{}
	}
	return tk
}
