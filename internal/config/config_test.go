package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "out/metals/costs.csv", cfg.Ledger.Path)
	assert.Equal(t, "csv", cfg.Ledger.Backend)
	assert.Equal(t, "dir", cfg.Source.Kind)
	assert.Equal(t, 20, cfg.Source.MaxPages)
	assert.Equal(t, 30*time.Second, cfg.Gmail.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Gmail.CacheTTL)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metals.yaml")
	content := `
ledger:
  path: /tmp/ledger.csv
  mirror_sqlite: true
source:
  kind: gmail
  queries:
    - "from:mint.ca"
gmail:
  access_token: from-file
  max_retries: 5
log:
  encoding: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("METALS_GMAIL_ACCESS_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/ledger.csv", cfg.Ledger.Path)
	assert.True(t, cfg.Ledger.MirrorSQLite)
	assert.Equal(t, "gmail", cfg.Source.Kind)
	assert.Equal(t, []string{"from:mint.ca"}, cfg.Source.Queries)
	assert.Equal(t, "from-env", cfg.Gmail.AccessToken)
	assert.Equal(t, 5, cfg.Gmail.MaxRetries)
	assert.Equal(t, "json", cfg.Log.Encoding)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty ledger path", func(c *Config) { c.Ledger.Path = " " }},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "excel" }},
		{"sqlite without path", func(c *Config) { c.Ledger.Backend = "sqlite"; c.Ledger.SQLitePath = "" }},
		{"gmail without token", func(c *Config) { c.Source.Kind = "gmail"; c.Gmail.AccessToken = "" }},
		{"dir without dir", func(c *Config) { c.Source.Dir = "" }},
		{"unknown source", func(c *Config) { c.Source.Kind = "imap" }},
		{"negative paging", func(c *Config) { c.Source.PageSize = -1 }},
		{"bad encoding", func(c *Config) { c.Log.Encoding = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}
