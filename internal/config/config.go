// Package config loads settings from an optional YAML file, a .env file
// and METALS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every configuration problem.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Log    LogConfig    `mapstructure:"log"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Source SourceConfig `mapstructure:"source"`
	Gmail  GmailConfig  `mapstructure:"gmail"`
	Server ServerConfig `mapstructure:"server"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type LedgerConfig struct {
	Path         string `mapstructure:"path"`
	Backend      string `mapstructure:"backend"` // csv or sqlite
	SQLitePath   string `mapstructure:"sqlite_path"`
	MirrorSQLite bool   `mapstructure:"mirror_sqlite"`
}

type SourceConfig struct {
	Kind     string   `mapstructure:"kind"` // dir or gmail
	Dir      string   `mapstructure:"dir"`
	Queries  []string `mapstructure:"queries"`
	MaxPages int      `mapstructure:"max_pages"`
	PageSize int      `mapstructure:"page_size"`
}

type GmailConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	User              string        `mapstructure:"user"`
	AccessToken       string        `mapstructure:"access_token"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads path (skipped when empty) on top of the defaults, then
// applies the environment. A .env file in the working directory is
// loaded first when present. Callers apply their overrides and then
// call Validate.
func Load(path string) (Config, error) {
	if err := loadDotenv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("METALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, nil
}

func loadDotenv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "metals-cost-ledger")
	v.SetDefault("app.env", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", true)
	v.SetDefault("log.disable_stacktrace", true)

	v.SetDefault("ledger.path", "out/metals/costs.csv")
	v.SetDefault("ledger.backend", "csv")
	v.SetDefault("ledger.sqlite_path", "out/metals/costs.db")
	v.SetDefault("ledger.mirror_sqlite", false)

	v.SetDefault("source.kind", "dir")
	v.SetDefault("source.dir", "mail")
	v.SetDefault("source.queries", []string{})
	v.SetDefault("source.max_pages", 20)
	v.SetDefault("source.page_size", 100)

	v.SetDefault("gmail.base_url", "https://gmail.googleapis.com/gmail/v1")
	v.SetDefault("gmail.user", "me")
	v.SetDefault("gmail.access_token", "")
	v.SetDefault("gmail.timeout", "30s")
	v.SetDefault("gmail.max_retries", 3)
	v.SetDefault("gmail.requests_per_second", 5.0)
	v.SetDefault("gmail.cache_ttl", "30m")

	v.SetDefault("server.addr", ":8080")
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Ledger.Path) == "":
		return fmt.Errorf("%w: ledger.path must not be empty", ErrInvalid)
	case c.Ledger.Backend != "csv" && c.Ledger.Backend != "sqlite":
		return fmt.Errorf("%w: ledger.backend %q must be csv or sqlite", ErrInvalid, c.Ledger.Backend)
	case (c.Ledger.Backend == "sqlite" || c.Ledger.MirrorSQLite) && strings.TrimSpace(c.Ledger.SQLitePath) == "":
		return fmt.Errorf("%w: ledger.sqlite_path is required for the sqlite backend", ErrInvalid)
	case c.Log.Encoding != "json" && c.Log.Encoding != "console":
		return fmt.Errorf("%w: log.encoding %q must be json or console", ErrInvalid, c.Log.Encoding)
	case c.Source.MaxPages < 0 || c.Source.PageSize < 0:
		return fmt.Errorf("%w: source paging must not be negative", ErrInvalid)
	case c.Gmail.MaxRetries < 0:
		return fmt.Errorf("%w: gmail.max_retries must not be negative", ErrInvalid)
	}

	switch c.Source.Kind {
	case "dir":
		if strings.TrimSpace(c.Source.Dir) == "" {
			return fmt.Errorf("%w: source.dir is required for the dir source", ErrInvalid)
		}
	case "gmail":
		if c.Gmail.AccessToken == "" {
			return fmt.Errorf("%w: gmail.access_token is required for the gmail source", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: source.kind %q must be dir or gmail", ErrInvalid, c.Source.Kind)
	}
	return nil
}
