package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults applied by LoadConfig.
const (
	DefaultTaskListTitle            = "dot_tasklist"
	DefaultSchedule                 = "@every 1h"
	DefaultRateLimitCalls           = 10
	DefaultRateLimitIntervalSeconds = 1
	DefaultConcurrency              = 1
	DefaultHTTPTimeoutSeconds       = 30
	DefaultTokenURL                 = "https://oauth2.googleapis.com/token"
)

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Try "installed" first (for desktop apps), then "web"
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}

// Config holds the configuration for the sync tool.
type Config struct {
	StorePath             string `json:"store_path,omitempty"`              // YAML file with user auth and link records (required)
	GoogleCredentialsPath string `json:"google_credentials_path,omitempty"` // App OAuth client for credentials stored without one
	TaskListTitle         string `json:"task_list_title,omitempty"`
	IncludePast           bool   `json:"include_past,omitempty"`

	Schedule    string `json:"schedule,omitempty"`    // Cron spec for the run command
	Concurrency int    `json:"concurrency,omitempty"` // Users synced in parallel

	// Remote calls allowed per interval; a negative value disables limiting
	RateLimitCalls           int `json:"rate_limit_calls,omitempty"`
	RateLimitIntervalSeconds int `json:"rate_limit_interval_seconds,omitempty"`

	HTTPTimeoutSeconds int    `json:"http_timeout_seconds,omitempty"`
	TokenURL           string `json:"token_url,omitempty"`
	MetricsAddr        string `json:"metrics_addr,omitempty"` // e.g. ":9090"; empty disables the endpoint
}

// Flags carries command-line values. Zero values mean "not set".
type Flags struct {
	StorePath             string
	GoogleCredentialsPath string
	TaskListTitle         string
	IncludePast           bool
	Schedule              string
	Concurrency           int
	MetricsAddr           string
}

// RateLimitInterval returns the limiter window.
func (c *Config) RateLimitInterval() time.Duration {
	return time.Duration(c.RateLimitIntervalSeconds) * time.Second
}

// HTTPTimeout returns the timeout applied to every outbound request.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// LoadConfigFromFile loads configuration from a JSON file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(configFile string, flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	if storePath := os.Getenv("ICSTASKS_STORE_PATH"); storePath != "" {
		config.StorePath = storePath
	}
	if googleCredentialsPath := os.Getenv("GOOGLE_CREDENTIALS_PATH"); googleCredentialsPath != "" {
		config.GoogleCredentialsPath = googleCredentialsPath
	}
	if taskListTitle := os.Getenv("TASK_LIST_TITLE"); taskListTitle != "" {
		config.TaskListTitle = taskListTitle
	}
	if includePast := os.Getenv("INCLUDE_PAST"); includePast != "" {
		includePastBool, err := strconv.ParseBool(includePast)
		if err != nil {
			return nil, fmt.Errorf("invalid INCLUDE_PAST value: %w", err)
		}
		config.IncludePast = includePastBool
	}
	if schedule := os.Getenv("SYNC_SCHEDULE"); schedule != "" {
		config.Schedule = schedule
	}
	if metricsAddr := os.Getenv("METRICS_ADDR"); metricsAddr != "" {
		config.MetricsAddr = metricsAddr
	}

	intVars := []struct {
		name  string
		field *int
	}{
		{"RATE_LIMIT_CALLS", &config.RateLimitCalls},
		{"RATE_LIMIT_INTERVAL_SECONDS", &config.RateLimitIntervalSeconds},
		{"SYNC_CONCURRENCY", &config.Concurrency},
	}
	for _, v := range intVars {
		if value := os.Getenv(v.name); value != "" {
			var err error
			if *v.field, err = parseInt(value); err != nil {
				return nil, fmt.Errorf("invalid %s value: %w", v.name, err)
			}
		}
	}

	// Step 3: Override with command-line flags (highest priority)
	if flags.StorePath != "" {
		config.StorePath = flags.StorePath
	}
	if flags.GoogleCredentialsPath != "" {
		config.GoogleCredentialsPath = flags.GoogleCredentialsPath
	}
	if flags.TaskListTitle != "" {
		config.TaskListTitle = flags.TaskListTitle
	}
	if flags.IncludePast {
		config.IncludePast = true
	}
	if flags.Schedule != "" {
		config.Schedule = flags.Schedule
	}
	if flags.Concurrency != 0 {
		config.Concurrency = flags.Concurrency
	}
	if flags.MetricsAddr != "" {
		config.MetricsAddr = flags.MetricsAddr
	}

	// Step 4: Apply defaults and validate required fields
	if config.StorePath == "" {
		return nil, fmt.Errorf("store_path must be provided via --store-path flag, ICSTASKS_STORE_PATH environment variable, or config file")
	}

	if config.TaskListTitle == "" {
		config.TaskListTitle = DefaultTaskListTitle
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.RateLimitCalls == 0 {
		config.RateLimitCalls = DefaultRateLimitCalls
	}
	if config.RateLimitIntervalSeconds == 0 {
		config.RateLimitIntervalSeconds = DefaultRateLimitIntervalSeconds
	}
	if config.HTTPTimeoutSeconds == 0 {
		config.HTTPTimeoutSeconds = DefaultHTTPTimeoutSeconds
	}
	if config.TokenURL == "" {
		config.TokenURL = DefaultTokenURL
	}

	if config.Concurrency == 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", config.Concurrency)
	}
	if config.RateLimitIntervalSeconds < 0 {
		return nil, fmt.Errorf("rate_limit_interval_seconds must be positive, got %d", config.RateLimitIntervalSeconds)
	}
	if config.HTTPTimeoutSeconds < 0 {
		return nil, fmt.Errorf("http_timeout_seconds must be positive, got %d", config.HTTPTimeoutSeconds)
	}

	return &config, nil
}

// parseInt parses a string to an integer.
func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
