package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "chartd", cfg.ServiceName)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{SampleRate: 1.5}
	assert.Error(t, cfg.Validate())

	cfg = Config{SampleRate: -0.1}
	assert.Error(t, cfg.Validate())

	cfg = Config{Enabled: true, SampleRate: 0.5}
	assert.Error(t, cfg.Validate())
}

func TestSetupDisabled(t *testing.T) {
	tel, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestShutdownNilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", sampler(1.0).Description())
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
