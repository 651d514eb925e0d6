package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds server configuration.
type Config struct {
	Port           string
	LogLevel       string
	DatabaseURL    string // empty selects lite mode (sqlite under DataDir)
	DataDir        string
	Agent          string
	InitialBalance int64
	DefaultCeiling int64
	Participation  float64
	PolicyFile     string
	ContentStore   string
	ContentBucket  string
	RedisAddr      string
	RateLimitRPM   int
	RateLimitBurst int
	OTelEnabled    bool
	OTelEndpoint   string
	ProofSeed      string
}

// LiteMode reports whether no external database is configured.
func (c *Config) LiteMode() bool { return c.DatabaseURL == "" }

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getenv("PORT", "3402"),
		LogLevel:      strings.ToUpper(getenv("LOG_LEVEL", "INFO")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DataDir:       getenv("DATA_DIR", "data"),
		Agent:         getenv("PATH402_AGENT", "default"),
		PolicyFile:    os.Getenv("PATH402_POLICY_FILE"),
		ContentStore:  getenv("PATH402_CONTENT_STORE", "memory"),
		ContentBucket: os.Getenv("PATH402_CONTENT_BUCKET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		OTelEnabled:   os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ProofSeed:     os.Getenv("PATH402_PROOF_SEED"),
	}

	var err error
	if cfg.InitialBalance, err = int64Env("PATH402_INITIAL_BALANCE", 100000); err != nil {
		return nil, err
	}
	if cfg.DefaultCeiling, err = int64Env("PATH402_DEFAULT_CEILING", 10000); err != nil {
		return nil, err
	}
	if cfg.Participation, err = floatEnv("PATH402_PARTICIPATION", 0.5); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPM, err = intEnv("RATE_LIMIT_RPM", 600); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 60); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.InitialBalance < 0:
		return fmt.Errorf("config: PATH402_INITIAL_BALANCE must be >= 0, got %d", c.InitialBalance)
	case c.DefaultCeiling < 0:
		return fmt.Errorf("config: PATH402_DEFAULT_CEILING must be >= 0, got %d", c.DefaultCeiling)
	case c.Participation <= 0 || c.Participation > 1:
		return fmt.Errorf("config: PATH402_PARTICIPATION must be in (0,1], got %v", c.Participation)
	case c.RateLimitRPM < 0 || c.RateLimitBurst < 0:
		return fmt.Errorf("config: rate limits must be >= 0")
	}
	switch c.ContentStore {
	case "memory", "fs", "s3", "gcs":
	default:
		return fmt.Errorf("config: unknown PATH402_CONTENT_STORE %q", c.ContentStore)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func int64Env(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func intEnv(key string, def int) (int, error) {
	n, err := int64Env(key, int64(def))
	return int(n), err
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}
