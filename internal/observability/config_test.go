package observability

import (
	"testing"

	"github.com/smallbiznis/registrar/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "development", AppVersion: "1.2.3"})

	assert.Equal(t, "registrar", cfg.ServiceName)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigCarriesTelemetrySettings(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:      "registrar-api",
		Environment:  "production",
		OTLPEndpoint: " collector:4318 ",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "warn",
			LogFormat:     "console",
			OtelEnabled:   true,
			OtelProtocol:  "http",
			SamplingRatio: 0.5,
		},
	})

	assert.Equal(t, "registrar-api", cfg.ServiceName)
	assert.Equal(t, "collector:4318", cfg.OtelExporterEndpoint)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}
