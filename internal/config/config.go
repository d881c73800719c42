package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable pointing at an optional
// config file (toml, yaml or json). Environment variables win over it.
const ConfigFileEnv = "SPENDLY_CONFIG"

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

var validBackends = []string{BackendMemory, BackendSQLite}

type Config struct {
	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// DataDirectory holds seed_categories.txt and seed_accounts.txt.
	DataDirectory string

	// AMQP; an empty URL disables event publication
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	RecurringInterval time.Duration

	// Presentation
	CurrencySymbol string
	LogLevel       string
}

const (
	defaultRecurringInterval = time.Hour
)

func Load() *Config {
	v := viper.New()

	v.SetDefault("DATA_BACKEND", BackendSQLite)
	v.SetDefault("SQLITE_DB_PATH", "./data/spendly.db")
	v.SetDefault("DATA_DIRECTORY", "./data")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "spendly")
	v.SetDefault("AMQP_QUEUE", "ledger_events")
	v.SetDefault("RECURRING_INTERVAL", defaultRecurringInterval.String())
	v.SetDefault("CURRENCY_SYMBOL", "€")
	v.SetDefault("LOG_LEVEL", "info")

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("Ignoring unreadable config file", "path", path, "error", err)
			}
		}
	}

	v.AutomaticEnv()

	return &Config{
		DataBackend:       v.GetString("DATA_BACKEND"),
		SQLiteDBPath:      v.GetString("SQLITE_DB_PATH"),
		DataDirectory:     v.GetString("DATA_DIRECTORY"),
		AMQPURL:           v.GetString("AMQP_URL"),
		AMQPExchange:      v.GetString("AMQP_EXCHANGE"),
		AMQPQueue:         v.GetString("AMQP_QUEUE"),
		RecurringInterval: getDuration(v, "RECURRING_INTERVAL", defaultRecurringInterval),
		CurrencySymbol:    v.GetString("CURRENCY_SYMBOL"),
		LogLevel:          v.GetString("LOG_LEVEL"),
	}
}

// AMQPEnabled reports whether events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RecurringInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid recurring interval %v: must be at least 1 minute", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}

	if strings.TrimSpace(c.CurrencySymbol) == "" {
		errs = append(errs, "currency symbol cannot be empty")
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// getDuration accepts Go durations ("90m") or bare seconds ("3600"); anything
// else falls back to def.
func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
