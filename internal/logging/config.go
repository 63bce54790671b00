// Package logging builds the process-wide zap logger.
//
// Log output from a medical document service must never leak document
// content or patient identifiers, so the encoder redacts configured
// field names and value patterns before anything reaches stdout.
// Level-aware sampling bounds log volume during bulk ingestion while
// errors always pass through unsampled.
package logging

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"
)

// maxPatternLength bounds redaction pattern size.
const maxPatternLength = 200

// Config holds logging configuration.
type Config struct {
	// Level is the minimum enabled level: debug, info, warn, or error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the encoder format: "json" or "console".
	// Default: json
	Format string `koanf:"format"`

	// Caller adds the calling source location to each entry.
	Caller bool `koanf:"caller"`

	Sampling  SamplingConfig  `koanf:"sampling"`
	Redaction RedactionConfig `koanf:"redaction"`
}

// SamplingConfig bounds log volume below the error level.
type SamplingConfig struct {
	Enabled bool `koanf:"enabled"`

	// Tick is the sampling window. Default: 1s
	Tick time.Duration `koanf:"tick"`

	// Initial entries per window pass through, then one per Thereafter.
	// Defaults: 100 and 10.
	Initial    int `koanf:"initial"`
	Thereafter int `koanf:"thereafter"`
}

// RedactionConfig controls sensitive data redaction.
type RedactionConfig struct {
	Enabled bool `koanf:"enabled"`

	// Fields are field names whose values are always redacted,
	// case-insensitive.
	Fields []string `koanf:"fields"`

	// Patterns are regexps that redact any matching string value.
	Patterns []string `koanf:"patterns"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.Sampling.Tick == 0 {
		c.Sampling.Tick = time.Second
	}
	if c.Sampling.Initial == 0 {
		c.Sampling.Initial = 100
	}
	if c.Sampling.Thereafter == 0 {
		c.Sampling.Thereafter = 10
	}
	if c.Redaction.Fields == nil && c.Redaction.Patterns == nil {
		c.Redaction = DefaultRedactionConfig()
	}
}

// DefaultRedactionConfig returns the stock redaction rules: credential
// field names plus the patient identifiers most likely to slip into a
// log line.
func DefaultRedactionConfig() RedactionConfig {
	return RedactionConfig{
		Enabled: true,
		Fields: []string{
			"password", "secret", "token", "api_key", "authorization",
			"patient_name", "date_of_birth", "mrn", "ssn", "phone", "email",
		},
		Patterns: []string{
			`(?i)bearer\s+\S+`,
			`\b\d{3}-\d{2}-\d{4}\b`,
			`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		return fmt.Errorf("sampling tick must be positive when sampling is enabled")
	}
	if c.Redaction.Enabled {
		for _, pattern := range c.Redaction.Patterns {
			if len(pattern) > maxPatternLength {
				return fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLength, pattern)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", pattern, err)
			}
		}
	}
	return nil
}
