// Package config builds the process-wide configuration from environment
// variables. The Config struct is constructed once at startup; there is no
// ambient lookup at call sites.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full configuration surface of the ingestion core.
type Config struct {
	// DBURL is the Postgres DSN. Required.
	DBURL string

	// LLMAPIKey authenticates against the external LLM API. Required.
	LLMAPIKey string
	// LLMBaseURL overrides the LLM endpoint (proxies, compatible backends).
	LLMBaseURL string
	// LLMModelSmall handles texts under the large-model threshold.
	LLMModelSmall string
	// LLMModelLarge handles texts of 200k chars and above.
	LLMModelLarge string

	FetcherWorkers   int
	ProcessorWorkers int

	SyncInterval       time.Duration
	RetrySweepInterval time.Duration

	JobMaxAttempts int
	JobLease       time.Duration

	VendorMinDelay time.Duration
	HTTPTimeout    time.Duration
	LLMTimeout     time.Duration

	ShutdownDrain time.Duration

	HTTPPort string
	LogLevel slog.Level

	// Connection pool settings
	DBMaxConns        int
	DBMinConns        int
	DBConnMaxLifetime time.Duration
}

// Load builds a Config from the environment with defaults applied, then
// validates it.
func Load() (*Config, error) {
	syncHours, err := intEnv("SYNC_INTERVAL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	sweepHours, err := intEnv("RETRY_SWEEP_INTERVAL_HOURS", 1)
	if err != nil {
		return nil, err
	}
	leaseSecs, err := intEnv("JOB_LEASE_SECONDS", 600)
	if err != nil {
		return nil, err
	}
	minDelayMS, err := intEnv("VENDOR_MIN_DELAY_MS", 3000)
	if err != nil {
		return nil, err
	}
	httpSecs, err := intEnv("HTTP_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	llmSecs, err := intEnv("LLM_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	drainSecs, err := intEnv("SHUTDOWN_DRAIN_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	fetchers, err := intEnv("FETCHER_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	processors, err := intEnv("PROCESSOR_WORKERS", 16)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := intEnv("JOB_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	maxConns, err := intEnv("DB_MAX_CONNS", 25)
	if err != nil {
		return nil, err
	}
	minConns, err := intEnv("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, err
	}

	level, err := parseLogLevel(envOrDefault("LOG_LEVEL", "INFO"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBURL:              os.Getenv("DB_URL"),
		LLMAPIKey:          os.Getenv("LLM_API_KEY"),
		LLMBaseURL:         os.Getenv("LLM_BASE_URL"),
		LLMModelSmall:      envOrDefault("LLM_MODEL_SMALL", "gpt-4o-mini"),
		LLMModelLarge:      envOrDefault("LLM_MODEL_LARGE", "gpt-4o"),
		FetcherWorkers:     fetchers,
		ProcessorWorkers:   processors,
		SyncInterval:       time.Duration(syncHours) * time.Hour,
		RetrySweepInterval: time.Duration(sweepHours) * time.Hour,
		JobMaxAttempts:     maxAttempts,
		JobLease:           time.Duration(leaseSecs) * time.Second,
		VendorMinDelay:     time.Duration(minDelayMS) * time.Millisecond,
		HTTPTimeout:        time.Duration(httpSecs) * time.Second,
		LLMTimeout:         time.Duration(llmSecs) * time.Second,
		ShutdownDrain:      time.Duration(drainSecs) * time.Second,
		HTTPPort:           envOrDefault("HTTP_PORT", "8080"),
		LogLevel:           level,
		DBMaxConns:         maxConns,
		DBMinConns:         minConns,
		DBConnMaxLifetime:  time.Hour,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c.DBURL == "" {
		return &Error{Name: "DB_URL", Reason: "required"}
	}
	if c.LLMAPIKey == "" {
		return &Error{Name: "LLM_API_KEY", Reason: "required"}
	}
	if c.FetcherWorkers < 1 {
		return &Error{Name: "FETCHER_WORKERS", Reason: "must be at least 1"}
	}
	if c.ProcessorWorkers < 1 {
		return &Error{Name: "PROCESSOR_WORKERS", Reason: "must be at least 1"}
	}
	if c.JobMaxAttempts < 1 {
		return &Error{Name: "JOB_MAX_ATTEMPTS", Reason: "must be at least 1"}
	}
	if c.JobLease < time.Minute {
		return &Error{Name: "JOB_LEASE_SECONDS", Reason: "must be at least 60"}
	}
	if c.DBMinConns > c.DBMaxConns {
		return &Error{Name: "DB_MIN_CONNS", Reason: fmt.Sprintf("cannot exceed DB_MAX_CONNS (%d)", c.DBMaxConns)}
	}
	return nil
}

// Error reports missing or invalid configuration. Fatal at startup.
type Error struct {
	Name   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Name, e.Reason)
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intEnv(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &Error{Name: key, Reason: fmt.Sprintf("not an integer: %q", raw)}
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return 0, &Error{Name: "LOG_LEVEL", Reason: fmt.Sprintf("unknown level %q", s)}
}
