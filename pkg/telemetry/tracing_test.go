package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", Sampler(Config{SamplerType: "always"}).Description())
	assert.Equal(t, "AlwaysOffSampler", Sampler(Config{SamplerType: "never"}).Description())
	assert.Contains(t, Sampler(Config{SamplerType: "ratio", SamplerRatio: 0.5}).Description(), "TraceIDRatioBased{0.5}")
	assert.Equal(t, "AlwaysOnSampler", Sampler(Config{SamplerType: "bogus"}).Description())
}
