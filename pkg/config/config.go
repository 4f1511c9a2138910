// Package config holds application configuration, loaded from the
// environment with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	// Regions to analyze
	Regions []string

	// Resilience
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
	RetryMaxAttempts        int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	FetchTimeout            time.Duration
	RunTimeout              time.Duration
	MaxConcurrentRegions    int

	// Cost snapshot cache
	CostCacheTTL time.Duration

	// AI strategy
	AIEnabled   bool
	OpenAIKey   string
	OpenAIModel string

	// Analysis
	MetricsDuration  time.Duration
	DownsizeWastePct float64
	SaturationPct    float64
	IdleP99          float64
	SteadyCV         float64

	// Storage
	StorageEnabled bool
	DatabaseURL    string

	// Output
	OutputFormat string // text, json, csv
	Verbose      bool
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return &Config{
		Regions:                 getEnvList("COST_ADVISOR_REGIONS", []string{"us-east-1"}),
		BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerCooldown:         getEnvDuration("BREAKER_COOLDOWN", 60*time.Second),
		RetryMaxAttempts:        getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:          getEnvDuration("RETRY_BASE_DELAY", 1*time.Second),
		RetryMaxDelay:           getEnvDuration("RETRY_MAX_DELAY", 10*time.Second),
		FetchTimeout:            getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		RunTimeout:              getEnvDuration("RUN_TIMEOUT", 5*time.Minute),
		MaxConcurrentRegions:    getEnvInt("MAX_CONCURRENT_REGIONS", 5),
		CostCacheTTL:            getEnvDuration("COST_CACHE_TTL", 30*time.Minute),
		AIEnabled:               getEnvBool("AI_ENABLED", false),
		OpenAIKey:               getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:             getEnv("OPENAI_MODEL", ""),
		MetricsDuration:         getEnvDuration("METRICS_DURATION", 30*24*time.Hour),
		DownsizeWastePct:        getEnvFloat("DOWNSIZE_WASTE_PCT", 60),
		SaturationPct:           getEnvFloat("SATURATION_PCT", 85),
		IdleP99:                 getEnvFloat("IDLE_P99", 2.0),
		SteadyCV:                getEnvFloat("STEADY_CV", 0.2),
		StorageEnabled:          getEnvBool("STORAGE_ENABLED", false),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		OutputFormat:            getEnv("OUTPUT_FORMAT", "text"),
		Verbose:                 getEnvBool("VERBOSE", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("at least one region must be configured")
	}
	if c.BreakerFailureThreshold < 1 {
		return fmt.Errorf("breaker failure threshold must be at least 1")
	}
	if c.BreakerCooldown <= 0 {
		return fmt.Errorf("breaker cooldown must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("retry delays must be positive with max >= base")
	}
	if c.MaxConcurrentRegions < 1 {
		return fmt.Errorf("max concurrent regions must be at least 1")
	}
	if c.CostCacheTTL <= 0 {
		return fmt.Errorf("cost cache TTL must be positive")
	}
	if c.AIEnabled && c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY must be set when the AI strategy is enabled")
	}
	if c.MetricsDuration < 1*time.Hour {
		return fmt.Errorf("metrics duration must be at least 1 hour")
	}
	if c.DownsizeWastePct <= 0 || c.DownsizeWastePct > 100 {
		return fmt.Errorf("downsize waste percent must be in (0, 100]")
	}
	if c.SaturationPct <= 0 || c.SaturationPct > 100 {
		return fmt.Errorf("saturation percent must be in (0, 100]")
	}
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when storage is enabled")
	}
	switch c.OutputFormat {
	case "text", "json", "csv":
	default:
		return fmt.Errorf("unknown output format %q", c.OutputFormat)
	}
	return nil
}
