package observability

import (
	"strings"

	"github.com/smallbiznis/registrar/internal/config"
)

const defaultServiceName = "registrar"

// Config is the telemetry view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	tel := cfg.Telemetry
	if tel.LogLevel == "" {
		tel.LogLevel = "info"
	}
	if tel.LogFormat == "" {
		tel.LogFormat = "json"
	}
	if tel.OtelProtocol == "" {
		tel.OtelProtocol = "grpc"
	}
	if tel.SamplingRatio <= 0 || tel.SamplingRatio > 1 {
		tel.SamplingRatio = 0.1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             tel.LogLevel,
		LogFormat:            tel.LogFormat,
		OtelEnabled:          tel.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: tel.OtelProtocol,
		OtelSamplingRatio:    tel.SamplingRatio,
	}
}

// Debug enables verbose request logging for debug level or non-production
// environments.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
