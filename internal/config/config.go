// Package config provides application configuration management.
// Configuration is loaded once at startup and treated as immutable; the guard
// components receive it as explicit parameters, never via ambient globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxFetchTimeout     = 2 * time.Minute
	maxResponseBytesCap = 256 << 20 // 256 MiB
	maxUploadBytesCap   = 1 << 30   // 1 GiB
)

// defaultDenylist blocks well-known internal, metadata, and
// service-discovery hostnames. Deployments extend or replace it via the
// policy file; the literals here are only defaults, not policy.
var defaultDenylist = []string{
	"localhost",
	"localhost.localdomain",
	"ip6-localhost",
	"ip6-loopback",
	"metadata.google.internal",
	"metadata",
	"instance-data",
	"kubernetes.default",
	"kubernetes.default.svc",
	"kubernetes.default.svc.cluster.local",
	"consul",
	"consul.service.consul",
	"nomad.service.consul",
	"rancher-metadata",
}

// defaultExtensions is the upload allowlist: documents, spreadsheets, and
// common image formats.
var defaultExtensions = []string{
	".pdf", ".doc", ".docx", ".txt", ".md",
	".csv", ".xls", ".xlsx",
	".png", ".jpg", ".jpeg", ".gif", ".webp",
}

// Config holds all application configuration.
// Loaded from environment variables (plus an optional YAML policy file) at
// startup and never mutated afterwards, so concurrent reads need no locking.
type Config struct {
	// Server settings
	Host string
	Port int

	// Metrics
	MetricsEnabled bool
	MetricsPort    int

	// Guard limits
	ConnectTimeout   time.Duration
	FetchTimeout     time.Duration
	ResolveTimeout   time.Duration
	MaxResponseBytes int64
	MaxUploadBytes   int64

	// Policy
	PolicyPath        string   // optional YAML file overriding the lists below
	HostnameDenylist  []string // case-insensitive exact-match hostnames
	AllowedExtensions []string // lowercased extensions with leading dot

	// Logging
	LogLevel string

	// Security
	CORSAllowedOrigins []string
}

// policyFile is the on-disk YAML policy shape.
type policyFile struct {
	HostnameDenylist  []string `yaml:"hostname_denylist"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Default to localhost for security; set HOST=0.0.0.0 explicitly
		// to bind all interfaces.
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8080),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsPort:    getEnvInt("METRICS_PORT", 9090),

		ConnectTimeout:   getEnvDuration("CONNECT_TIMEOUT", 5*time.Second),
		FetchTimeout:     getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		ResolveTimeout:   getEnvDuration("RESOLVE_TIMEOUT", 5*time.Second),
		MaxResponseBytes: getEnvInt64("MAX_RESPONSE_BYTES", 5<<20),
		MaxUploadBytes:   getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),

		PolicyPath:        getEnvString("POLICY_PATH", ""),
		HostnameDenylist:  append([]string(nil), defaultDenylist...),
		AllowedExtensions: append([]string(nil), defaultExtensions...),

		LogLevel: getEnvString("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
	}
}

// LoadPolicy merges the YAML policy file at PolicyPath into the config.
// A present but unreadable or malformed policy file is a hard error: a
// deployment that thinks it has a custom denylist must not silently run
// with the defaults.
func (c *Config) LoadPolicy() error {
	if c.PolicyPath == "" {
		return nil
	}

	data, err := os.ReadFile(c.PolicyPath)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}

	var policy policyFile
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return fmt.Errorf("parse policy file %s: %w", c.PolicyPath, err)
	}

	if len(policy.HostnameDenylist) > 0 {
		c.HostnameDenylist = policy.HostnameDenylist
	}
	if len(policy.AllowedExtensions) > 0 {
		c.AllowedExtensions = policy.AllowedExtensions
	}

	log.Info().
		Str("path", c.PolicyPath).
		Int("denylist_entries", len(c.HostnameDenylist)).
		Int("allowed_extensions", len(c.AllowedExtensions)).
		Msg("Policy file loaded")
	return nil
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8080")
		c.Port = 8080
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		log.Warn().Int("port", c.MetricsPort).Msg("Invalid metrics port, using default 9090")
		c.MetricsPort = 9090
	}
	if c.MetricsEnabled && c.MetricsPort == c.Port {
		log.Warn().Int("port", c.Port).Msg("Metrics port conflicts with server port, disabling metrics")
		c.MetricsEnabled = false
	}

	if c.ConnectTimeout < 100*time.Millisecond {
		log.Warn().Dur("timeout", c.ConnectTimeout).Msg("Connect timeout too short, using 5s")
		c.ConnectTimeout = 5 * time.Second
	}
	if c.FetchTimeout < time.Second {
		log.Warn().Dur("timeout", c.FetchTimeout).Msg("Fetch timeout too short, using 10s")
		c.FetchTimeout = 10 * time.Second
	} else if c.FetchTimeout > maxFetchTimeout {
		log.Warn().
			Dur("timeout", c.FetchTimeout).
			Dur("max", maxFetchTimeout).
			Msg("Fetch timeout too long, capping to maximum")
		c.FetchTimeout = maxFetchTimeout
	}
	if c.ResolveTimeout < 100*time.Millisecond {
		log.Warn().Dur("timeout", c.ResolveTimeout).Msg("Resolve timeout too short, using 5s")
		c.ResolveTimeout = 5 * time.Second
	}
	if c.ConnectTimeout > c.FetchTimeout {
		log.Warn().
			Dur("connect", c.ConnectTimeout).
			Dur("fetch", c.FetchTimeout).
			Msg("Connect timeout exceeds fetch timeout, adjusting")
		c.ConnectTimeout = c.FetchTimeout
	}

	if c.MaxResponseBytes < 1024 {
		log.Warn().Int64("bytes", c.MaxResponseBytes).Msg("Max response size too small, using 5 MiB")
		c.MaxResponseBytes = 5 << 20
	} else if c.MaxResponseBytes > maxResponseBytesCap {
		log.Warn().
			Int64("bytes", c.MaxResponseBytes).
			Int64("max", maxResponseBytesCap).
			Msg("Max response size too large, capping to maximum")
		c.MaxResponseBytes = maxResponseBytesCap
	}
	if c.MaxUploadBytes < 1024 {
		log.Warn().Int64("bytes", c.MaxUploadBytes).Msg("Max upload size too small, using 10 MiB")
		c.MaxUploadBytes = 10 << 20
	} else if c.MaxUploadBytes > maxUploadBytesCap {
		log.Warn().
			Int64("bytes", c.MaxUploadBytes).
			Int64("max", maxUploadBytesCap).
			Msg("Max upload size too large, capping to maximum")
		c.MaxUploadBytes = maxUploadBytesCap
	}

	// Normalize policy lists once here so the validators get canonical input.
	c.HostnameDenylist = normalizeHostnames(c.HostnameDenylist)
	c.AllowedExtensions = normalizeExtensions(c.AllowedExtensions)
	if len(c.HostnameDenylist) == 0 {
		log.Warn().Msg("Hostname denylist is empty - only address classification protects internal names")
	}
	if len(c.AllowedExtensions) == 0 {
		log.Warn().Msg("Allowed extension list is empty - all uploads will be rejected")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	if len(c.CORSAllowedOrigins) == 0 {
		log.Warn().Msg("CORS_ALLOWED_ORIGINS not set - cross-origin requests will be rejected")
	}
}

func normalizeHostnames(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	seen := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int64("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
