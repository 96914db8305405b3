// Package config provides configuration loading for the covey CLI.
// Supports YAML files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the covey CLI.
type Config struct {
	Group         GroupConfig         `yaml:"group"`
	Coordinator   CoordinatorConfig   `yaml:"coordinator"`
	Consumer      ConsumerConfig      `yaml:"consumer"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// GroupConfig identifies the consumer group and its topic.
type GroupConfig struct {
	Name    string   `yaml:"name"`
	Topic   string   `yaml:"topic"`
	Brokers []string `yaml:"brokers"`
}

// CoordinatorConfig points at the Oxia coordinator.
type CoordinatorConfig struct {
	Endpoint         string `yaml:"endpoint"`
	Namespace        string `yaml:"namespace"`
	SessionTimeoutMs int64  `yaml:"sessionTimeoutMs"`
	RequestTimeoutMs int64  `yaml:"requestTimeoutMs"`
}

// ConsumerConfig carries the consumption knobs.
type ConsumerConfig struct {
	MaxBytes        int32 `yaml:"maxBytes"`
	MinBytes        int32 `yaml:"minBytes"`
	MaxWaitMs       int32 `yaml:"maxWaitMs"`
	ClaimTimeoutMs  int64 `yaml:"claimTimeoutMs"`
	LoopDelayMs     int64 `yaml:"loopDelayMs"`
	SocketTimeoutMs int64 `yaml:"socketTimeoutMs"`
	Trail           bool  `yaml:"trail"`
}

// ObservabilityConfig configures metrics and logging.
type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr"`
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Group: GroupConfig{
			Brokers: []string{"localhost:9092"},
		},
		Coordinator: CoordinatorConfig{
			Endpoint:         "localhost:6648",
			Namespace:        "covey",
			SessionTimeoutMs: 15000,
			RequestTimeoutMs: 30000,
		},
		Consumer: ConsumerConfig{
			MaxBytes:        1 << 20,
			MaxWaitMs:       100,
			ClaimTimeoutMs:  30000,
			LoopDelayMs:     1000,
			SocketTimeoutMs: 10000,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load returns the defaults with environment overrides applied.
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// LoadFromPath reads a YAML file over the defaults, then applies
// environment overrides.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	setString(&c.Group.Name, "COVEY_GROUP")
	setString(&c.Group.Topic, "COVEY_TOPIC")
	if v := os.Getenv("COVEY_BROKERS"); v != "" {
		c.Group.Brokers = splitCSV(v)
	}
	setString(&c.Coordinator.Endpoint, "COVEY_OXIA_ENDPOINT")
	setString(&c.Coordinator.Namespace, "COVEY_OXIA_NAMESPACE")
	setInt64(&c.Coordinator.SessionTimeoutMs, "COVEY_OXIA_SESSION_TIMEOUT_MS")
	setInt32(&c.Consumer.MaxBytes, "COVEY_MAX_BYTES")
	setInt32(&c.Consumer.MinBytes, "COVEY_MIN_BYTES")
	setInt32(&c.Consumer.MaxWaitMs, "COVEY_MAX_WAIT_MS")
	setInt64(&c.Consumer.SocketTimeoutMs, "COVEY_SOCKET_TIMEOUT_MS")
	setBool(&c.Consumer.Trail, "COVEY_TRAIL")
	setString(&c.Observability.MetricsAddr, "COVEY_METRICS_ADDR")
	setString(&c.Observability.LogLevel, "COVEY_LOG_LEVEL")
	setString(&c.Observability.LogFormat, "COVEY_LOG_FORMAT")
}

// Validate checks for required fields and consistent values.
func (c *Config) Validate() error {
	if c.Group.Name == "" {
		return fmt.Errorf("config: group.name is required")
	}
	if c.Group.Topic == "" {
		return fmt.Errorf("config: group.topic is required")
	}
	if len(c.Group.Brokers) == 0 {
		return fmt.Errorf("config: group.brokers must not be empty")
	}
	if c.Coordinator.Endpoint == "" {
		return fmt.Errorf("config: coordinator.endpoint is required")
	}
	if c.Consumer.MaxBytes <= 0 {
		return fmt.Errorf("config: consumer.maxBytes must be positive")
	}
	return nil
}

// SessionTimeout returns the coordinator session timeout as a duration.
func (c *CoordinatorConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the coordinator request timeout as a duration.
func (c *CoordinatorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
