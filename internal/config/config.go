package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// HTTP Server Configuration
	HTTPPort int

	// Database Configuration
	DatabaseURL string

	// Source registry file (YAML)
	SourcesFile string

	// Polling Configuration
	PollInterval     time.Duration
	FetchTimeout     time.Duration
	CycleMaxDuration time.Duration
	FetchRetries     int
	FetchRetryDelay  time.Duration

	// InsecureSkipVerify disables TLS verification against sources that run
	// with self-signed certificates
	InsecureSkipVerify bool

	// Normalization Configuration
	DCLabelKeys   []string
	NameKeys      []string
	SeverityKeys  []string
	IgnoredLabels []string

	// Snapshot retention
	RetentionDays int

	// Reporting
	ReportTimezone string
	ReportTopN     int

	// Slack notifications (optional, disabled when token is empty)
	SlackBotToken      string
	SlackAlertsChannel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPPort = getEnvAsIntOrDefault("HTTP_PORT", 3000)

	// sqlite by default; a postgres:// URL switches drivers
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", "sqlite://dcwatch.db")

	cfg.SourcesFile = getEnvOrDefault("SOURCES_FILE", "sources.yaml")

	cfg.PollInterval = getEnvAsDurationOrDefault("POLL_INTERVAL", 60*time.Second)
	cfg.FetchTimeout = getEnvAsDurationOrDefault("FETCH_TIMEOUT", 120*time.Second)
	cfg.CycleMaxDuration = getEnvAsDurationOrDefault("CYCLE_MAX_DURATION", 5*time.Minute)
	cfg.FetchRetries = getEnvAsIntOrDefault("FETCH_RETRIES", 2)
	cfg.FetchRetryDelay = getEnvAsDurationOrDefault("FETCH_RETRY_DELAY", 5*time.Second)
	cfg.InsecureSkipVerify = getEnvAsBoolOrDefault("INSECURE_SKIP_VERIFY", false)

	cfg.DCLabelKeys = getEnvAsListOrDefault("DC_LABEL_KEYS", []string{"DC", "dc", "site"})
	cfg.NameKeys = getEnvAsListOrDefault("NAME_LABEL_KEYS", []string{"alertname", "alert_name"})
	cfg.SeverityKeys = getEnvAsListOrDefault("SEVERITY_KEYS", []string{"severity", "priority"})
	cfg.IgnoredLabels = getEnvAsListOrDefault("IGNORED_LABELS", []string{"__alert_rule_uid__", "pod", "replica", "instance_id"})

	cfg.RetentionDays = getEnvAsIntOrDefault("SNAPSHOT_RETENTION_DAYS", 90)

	cfg.ReportTimezone = getEnvOrDefault("REPORT_TZ", "UTC")
	cfg.ReportTopN = getEnvAsIntOrDefault("REPORT_TOP_N", 10)

	cfg.SlackBotToken = os.Getenv("SLACK_BOT_TOKEN")
	cfg.SlackAlertsChannel = os.Getenv("SLACK_ALERTS_CHANNEL")

	return cfg, nil
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault returns the value of an environment variable as an integer or a default value
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault returns the value of an environment variable as a boolean or a default value
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault parses a Go duration string ("90s", "2m").
// Bare integers are treated as seconds for compatibility with older deployments.
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvAsListOrDefault splits a comma-separated environment variable into a list
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
