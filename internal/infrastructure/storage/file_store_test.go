package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegisterDigest/internal/domain"
)

func TestFileStoreLoadRoster(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
subscribers:
  - email: a@example.com
    subscribed: true
    interests: [Environment]
  - email: b@example.com
    subscribed: false
    interests: [Defense]
  - email: ""
    subscribed: true
interests:
  - interest: Environment
    agency: EPA
`), 0o600))

	roster, err := NewFileStore(path).LoadRoster(context.Background())

	var integrity *domain.DataIntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, "3", integrity.Row)

	require.Len(t, roster.Subscribers, 2)
	require.Len(t, roster.Active(), 1)
	assert.Equal(t, []string{"EPA"}, roster.Interests.Agencies("Environment"))
}

func TestFileStoreMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore(filepath.Join(t.TempDir(), "nope.yaml")).LoadRoster(context.Background())
	require.Error(t, err)
}
