/*
Package config loads server configuration.

SOURCES (later wins):
  1. Defaults
  2. .env file (optional, path from ENV_FILE, default ".env")
  3. Environment variables
  4. Command-line flags (-port, -db, -redis, -log-level)

KEYS:
  PORT                   HTTP port (8080)
  DB_PATH                SQLite path, ":memory:" allowed (ledger.db)
  REDIS_ADDR             Redis address; empty uses the in-process cache
  REDIS_PASSWORD, REDIS_DB
  CACHE_TTL              Snapshot TTL, Go duration (10m)
  LOG_LEVEL              debug|info|warn|error (info)
  LEGAL_CEILING_PERCENT  Annual ceiling for rate classification (15)
  GRACE_MODE             none|origination|every_restart (none)
  DEFAULT_STRATEGY       INTEREST_FIRST|PRINCIPAL_FIRST|FIFO (INTEREST_FIRST)
  POLICY_PRESETS         YAML file of policy templates loaded at startup
  STATUS_INTERVAL        Overdue status sweep interval, 0 disables (1h)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/warp/debt-ledger/interest"
	"github.com/warp/debt-ledger/logging"
)

type Config struct {
	Port          int
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	LogLevel      string

	LegalCeilingPercent decimal.Decimal
	GraceMode           interest.GraceMode
	DefaultStrategy     interest.Strategy
	PolicyPresets       string
	StatusInterval      time.Duration
}

func Default() Config {
	return Config{
		Port:                8080,
		DBPath:              "ledger.db",
		CacheTTL:            10 * time.Minute,
		LogLevel:            "info",
		LegalCeilingPercent: interest.DefaultLegalCeilingPercent,
		GraceMode:           interest.GraceNone,
		DefaultStrategy:     interest.StrategyInterestFirst,
		StatusInterval:      time.Hour,
	}
}

// Load builds the configuration from .env, the environment and args
// (typically os.Args[1:]).
func Load(args []string) (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables already set in the environment
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Default()
	if err := cfg.fromEnv(); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the interest snapshot cache")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.PolicyPresets, "presets", cfg.PolicyPresets, "YAML file of policy templates")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) fromEnv() error {
	var err error
	if v := os.Getenv("PORT"); v != "" {
		if c.Port, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if c.RedisDB, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if c.CacheTTL, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("CACHE_TTL: %w", err)
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LEGAL_CEILING_PERCENT"); v != "" {
		if c.LegalCeilingPercent, err = decimal.NewFromString(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("LEGAL_CEILING_PERCENT: %w", err)
		}
	}
	if c.GraceMode, err = interest.ParseGraceMode(os.Getenv("GRACE_MODE")); err != nil {
		return fmt.Errorf("GRACE_MODE: %w", err)
	}
	if c.DefaultStrategy, err = interest.ParseStrategy(os.Getenv("DEFAULT_STRATEGY")); err != nil {
		return fmt.Errorf("DEFAULT_STRATEGY: %w", err)
	}
	c.PolicyPresets = os.Getenv("POLICY_PRESETS")
	if v := os.Getenv("STATUS_INTERVAL"); v != "" {
		if c.StatusInterval, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("STATUS_INTERVAL: %w", err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("database path is required")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl %s is negative", c.CacheTTL)
	}
	if c.StatusInterval < 0 {
		return fmt.Errorf("status interval %s is negative", c.StatusInterval)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if !c.LegalCeilingPercent.IsPositive() {
		return fmt.Errorf("legal ceiling %s must be positive", c.LegalCeilingPercent)
	}
	return nil
}
