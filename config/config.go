/*
Package config loads server configuration from the environment.

PURPOSE:
  One struct gathering everything cmd/server needs: listen port, store
  selection, and log level. A .env file in the working directory is loaded
  first (godotenv), then real environment variables win, then command-line
  flags win over both.

VARIABLES:
  PORT        HTTP server port                         (default 8080)
  DB_DRIVER   "sqlite" or "postgres"                   (default sqlite)
  DB_PATH     SQLite database path                     (default loans.db)
  DB_CONN     lib/pq connection string (postgres only)
  LOG_LEVEL   logrus level: debug, info, warn, error   (default info)

SEE ALSO:
  - cmd/server/main.go: flag overrides and wiring
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the resolved server configuration.
type Config struct {
	Port     int
	DBDriver string
	DBPath   string
	DBConn   string
	LogLevel logrus.Level
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// Missing .env is fine; a malformed one is not.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:     8080,
		DBDriver: DriverSQLite,
		DBPath:   "loans.db",
		DBConn:   os.Getenv("DB_CONN"),
		LogLevel: logrus.InfoLevel,
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PORT: invalid value %q", v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		if v != DriverSQLite && v != DriverPostgres {
			return nil, fmt.Errorf("DB_DRIVER: unknown driver %q", v)
		}
		cfg.DBDriver = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := logrus.ParseLevel(v)
		if err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if cfg.DBDriver == DriverPostgres && cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required when DB_DRIVER=postgres")
	}

	return cfg, nil
}
