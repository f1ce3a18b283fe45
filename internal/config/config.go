package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Pipeline  PipelineConfig
	Retry     RetryConfig
	JWT       JWTConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
	LogLevel    string

	// WSAllowedOrigins restricts run subscriptions; empty admits any origin.
	WSAllowedOrigins []string
}

type DatabaseConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ConnectTimeout        time.Duration
	PoolMaxConns          int32
	PoolMinConns          int32
	PoolMaxConnLifetime   time.Duration
	PoolMaxConnIdleTime   time.Duration
	PoolHealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
	CacheTTL time.Duration
}

type NATSConfig struct {
	URL         string
	ConnTimeout time.Duration
	Subject     string
}

type PipelineConfig struct {
	SourcePath string
	StagingDir string
	Delimiter  rune
}

// RetryConfig is handed to the scheduler adapter; the pipeline itself never retries.
type RetryConfig struct {
	MaxRetries            int
	RetryDelay            time.Duration
	RetryOnRecordFailures bool
	Interval              time.Duration
}

type JWTConfig struct {
	Secret    string
	Issuer    string
	ExpiresIn time.Duration
}

type TelemetryConfig struct {
	CollectorURL string
	ServiceName  string
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

// Load reads the full configuration. DB_HOST, DB_NAME and DB_USER are required.
func Load() (Config, error) {
	return load(true)
}

// LoadOffline reads the configuration for commands that never touch the
// store; the database settings are optional.
func LoadOffline() (Config, error) {
	return load(false)
}

func load(requireStore bool) (Config, error) {
	cfg := Config{}

	var missing []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" && requireStore {
			missing = append(missing, key)
		}
		return v
	}

	cfg.App = AppConfig{
		AppName:     getEnvString("APP_NAME", "jobs-etl"),
		Environment: getEnvString("APP_ENV", "development"),
		HTTPPort:    getEnvString("HTTP_PORT", "8080"),
		LogLevel:    getEnvString("LOG_LEVEL", "info"),

		WSAllowedOrigins: getEnvList("WS_ALLOWED_ORIGINS"),
	}

	cfg.Database = DatabaseConfig{
		DBHost:     req("DB_HOST"),
		DBPort:     getEnvString("DB_PORT", "5432"),
		DBName:     req("DB_NAME"),
		DBUser:     req("DB_USER"),
		DBPassword: getEnvString("DB_PASSWORD", ""),
		DBSSLMode:  getEnvString("DB_SSL_MODE", "disable"),

		ConnectTimeout:        getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		PoolMaxConns:          int32(getEnvInt("DB_POOL_MAX_CONNS", 4)),
		PoolMinConns:          int32(getEnvInt("DB_POOL_MIN_CONNS", 0)),
		PoolMaxConnLifetime:   getEnvDuration("DB_POOL_MAX_CONN_LIFETIME", time.Hour),
		PoolMaxConnIdleTime:   getEnvDuration("DB_POOL_MAX_CONN_IDLE_TIME", 30*time.Minute),
		PoolHealthCheckPeriod: getEnvDuration("DB_POOL_HEALTH_CHECK_PERIOD", time.Minute),
	}

	cfg.Redis = RedisConfig{
		Addr:     getEnvString("REDIS_ADDR", "localhost:6379"),
		Password: getEnvString("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
		LockTTL:  getEnvDuration("REDIS_LOCK_TTL", 2*time.Hour),
		CacheTTL: getEnvDuration("REDIS_CACHE_TTL", 7*24*time.Hour),
	}

	cfg.NATS = NATSConfig{
		URL:         getEnvString("NATS_URL", ""),
		ConnTimeout: getEnvDuration("NATS_CONN_TIMEOUT", 10*time.Second),
		Subject:     getEnvString("NATS_SUBJECT", "etl.runs.finished"),
	}

	delim, err := parseDelimiter(getEnvString("ETL_SOURCE_DELIMITER", ","))
	if err != nil {
		return Config{}, err
	}
	cfg.Pipeline = PipelineConfig{
		SourcePath: getEnvString("ETL_SOURCE_PATH", "source/jobs.csv"),
		StagingDir: getEnvString("ETL_STAGING_DIR", "staging"),
		Delimiter:  delim,
	}

	cfg.Retry = RetryConfig{
		MaxRetries:            getEnvInt("ETL_MAX_RETRIES", 3),
		RetryDelay:            getEnvDuration("ETL_RETRY_DELAY", 15*time.Minute),
		RetryOnRecordFailures: getEnvBool("ETL_RETRY_ON_RECORD_FAILURES", false),
		Interval:              getEnvDuration("ETL_RUN_INTERVAL", 24*time.Hour),
	}

	cfg.JWT = JWTConfig{
		Secret:    getEnvString("JWT_SECRET", ""),
		Issuer:    getEnvString("JWT_ISSUER", "jobs-etl"),
		ExpiresIn: getEnvDuration("JWT_EXPIRES_IN", 24*time.Hour),
	}

	cfg.Telemetry = TelemetryConfig{
		CollectorURL: getEnvString("OTEL_COLLECTOR_URL", ""),
		ServiceName:  getEnvString("OTEL_SERVICE_NAME", "jobs-etl"),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	return cfg, nil
}

func parseDelimiter(raw string) (rune, error) {
	switch raw {
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(raw)
	if len(r) != 1 {
		return 0, fmt.Errorf("invalid ETL_SOURCE_DELIMITER %q: want a single character", raw)
	}
	return r[0], nil
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return duration
		}
	}
	return defaultValue
}
