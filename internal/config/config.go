package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PolicyPath string

	Dragonpay DragonpayConfig
	Bukas     BukasConfig

	SchedulerEnabled   bool
	SchedulerInterval  time.Duration
	SchedulerBatchSize int
	// SchedulerJobs limits the worker to the named jobs; empty runs all of them.
	SchedulerJobs []string
}

// TelemetryConfig carries logging and OpenTelemetry settings.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

// DragonpayConfig carries merchant credentials for the Dragonpay gateway.
type DragonpayConfig struct {
	MerchantID       string
	MerchantPassword string
	PaymentURL       string
	Currency         string
}

// BukasConfig carries credentials for the Bukas installment gateway.
type BukasConfig struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	Timeout   time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "registrar"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt64("SNOWFLAKE_NODE", 1),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OtelProtocol:  otelProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "registrar"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           int(getenvInt64("REDIS_DB", 0)),
		PolicyPath:        strings.TrimSpace(getenv("REGISTRAR_POLICY_PATH", "")),
		Dragonpay: DragonpayConfig{
			MerchantID:       strings.TrimSpace(getenv("DRAGONPAY_MERCHANT_ID", "")),
			MerchantPassword: strings.TrimSpace(getenv("DRAGONPAY_MERCHANT_PASSWORD", "")),
			PaymentURL:       getenv("DRAGONPAY_PAYMENT_URL", "https://test.dragonpay.ph/Pay.aspx"),
			Currency:         strings.ToUpper(getenv("DRAGONPAY_CURRENCY", "PHP")),
		},
		Bukas: BukasConfig{
			BaseURL:   strings.TrimRight(getenv("BUKAS_BASE_URL", "https://api.bukas.ph"), "/"),
			APIKey:    strings.TrimSpace(getenv("BUKAS_API_KEY", "")),
			SecretKey: strings.TrimSpace(getenv("BUKAS_SECRET_KEY", "")),
			Timeout:   time.Duration(getenvInt64("BUKAS_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		SchedulerEnabled:   getenvBool("SCHEDULER_ENABLED", true),
		SchedulerInterval:  time.Duration(getenvInt64("SCHEDULER_INTERVAL_SECONDS", 60)) * time.Second,
		SchedulerBatchSize: int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
		SchedulerJobs:      getenvList("SCHEDULER_JOBS"),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// otelProtocol prefers the traces-specific protocol over the shared one.
func otelProtocol() string {
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); v != "" {
		return strings.ToLower(v)
	}
	return strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
