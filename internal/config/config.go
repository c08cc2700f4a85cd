package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	TracingEnabled bool
	OTLPEndpoint   string

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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// GatewayHTTPTimeoutSec bounds every outbound gateway call.
	GatewayHTTPTimeoutSec int64

	SchedulerRunIntervalSec int64
	// SchedulerEnabledJobs is a comma-separated allowlist. Empty runs
	// every job.
	SchedulerEnabledJobs     string
	PendingPaymentRecheckMin int64

	// SeedDemoData populates a sample property, lease and rewards config on
	// startup. Local development only.
	SeedDemoData bool

	BitcoinNetwork               string
	BitcoinExplorerBaseURL       string
	BitcoinRateBaseURL           string
	BitcoinRequiredConfirmations int64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "rentfold"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		TracingEnabled: getenvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "rentfold"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME_MIN", 30)),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		SMTPHost:     getenv("SMTP_HOST", "localhost"),
		SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "billing@rentfold.local"),

		GatewayHTTPTimeoutSec: getenvInt64("GATEWAY_HTTP_TIMEOUT_SEC", 12),

		SchedulerRunIntervalSec:  getenvInt64("SCHEDULER_RUN_INTERVAL_SEC", 60),
		SchedulerEnabledJobs:     getenv("SCHEDULER_ENABLED_JOBS", ""),
		PendingPaymentRecheckMin: getenvInt64("PENDING_PAYMENT_RECHECK_MIN", 15),

		SeedDemoData: getenvBool("SEED_DEMO_DATA", false),

		BitcoinNetwork:               getenv("BITCOIN_NETWORK", "mainnet"),
		BitcoinExplorerBaseURL:       getenv("BITCOIN_EXPLORER_BASE_URL", "https://mempool.space/api"),
		BitcoinRateBaseURL:           getenv("BITCOIN_RATE_BASE_URL", "https://api.coingecko.com/api/v3"),
		BitcoinRequiredConfirmations: getenvInt64("BITCOIN_REQUIRED_CONFIRMATIONS", 1),
	}
}

// Module provides the application configuration via fx.
var Module = fx.Module("config",
	fx.Provide(Load),
)

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
