package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, time.Second, cfg.Sampling.Tick)
	assert.Equal(t, 100, cfg.Sampling.Initial)
	assert.Equal(t, 10, cfg.Sampling.Thereafter)
	assert.True(t, cfg.Redaction.Enabled)
	assert.Contains(t, cfg.Redaction.Fields, "mrn")
	require.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.Level = "verbose" }},
		{"bad format", func(c *Config) { c.Format = "xml" }},
		{"bad sampling tick", func(c *Config) { c.Sampling.Enabled = true; c.Sampling.Tick = -1 }},
		{"bad redaction pattern", func(c *Config) {
			c.Redaction.Enabled = true
			c.Redaction.Patterns = []string{"[unclosed"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{}
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func encodeWith(t *testing.T, cfg RedactionConfig, fields ...zapcore.Field) string {
	t.Helper()

	enc, err := newRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), cfg)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.InfoLevel, Message: "m"}, fields)
	require.NoError(t, err)
	return buf.String()
}

func TestRedactionByFieldName(t *testing.T) {
	out := encodeWith(t, DefaultRedactionConfig(),
		zap.String("mrn", "12345678"),
		zap.String("Authorization", "Basic abc"),
		zap.String("document_id", "doc-1"),
	)

	assert.NotContains(t, out, "12345678")
	assert.NotContains(t, out, "Basic abc")
	assert.Contains(t, out, `"mrn":"[REDACTED]"`)
	assert.Contains(t, out, `"document_id":"doc-1"`)
}

func TestRedactionByPattern(t *testing.T) {
	out := encodeWith(t, DefaultRedactionConfig(),
		zap.String("note", "SSN is 123-45-6789"),
		zap.String("contact", "patient at jane@example.com"),
		zap.String("status", "embedded"),
	)

	assert.NotContains(t, out, "123-45-6789")
	assert.NotContains(t, out, "jane@example.com")
	assert.Contains(t, out, `"note":"[REDACTED:pattern]"`)
	assert.Contains(t, out, `"status":"embedded"`)
}

func TestRedactionDisabled(t *testing.T) {
	out := encodeWith(t, RedactionConfig{Enabled: false},
		zap.String("password", "hunter2"),
	)
	assert.Contains(t, out, "hunter2")
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("authorization", "Bearer abcdef")
	assert.Equal(t, "[REDACTED:13]", f.String)
}

func TestSamplingNeverDropsErrors(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	core := newSampledCore(observed, SamplingConfig{
		Enabled:    true,
		Tick:       time.Minute,
		Initial:    1,
		Thereafter: 0,
	})
	logger := zap.New(core)

	for i := 0; i < 5; i++ {
		logger.Info("ingest progress")
		logger.Error("ingest failed")
	}

	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.InfoLevel).Len())
	assert.Equal(t, 5, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestSamplingDisabledPassesEverything(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(newSampledCore(observed, SamplingConfig{}))

	for i := 0; i < 5; i++ {
		logger.Info("ingest progress")
	}
	assert.Equal(t, 5, logs.Len())
}

func TestNewLogger(t *testing.T) {
	logger, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	logger.Debug("started")
	assert.NoError(t, Sync(logger))

	_, err = New(Config{Level: "nope"})
	assert.Error(t, err)
}
