package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures the runtime configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Metrics  MetricsConfig
}

// ServerConfig configures the HTTP server runtime behavior.
type ServerConfig struct {
	Addr string
	// TrustProxyHeaders honours X-Forwarded-For and X-Real-IP. Enable it only
	// behind a reverse proxy that overwrites them.
	TrustProxyHeaders bool
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	URL             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	UseMock         bool
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// AuthConfig groups session and login settings.
type AuthConfig struct {
	Session   SessionConfig
	LoginRate RateConfig
}

// SessionConfig controls the session cookie issued after login.
type SessionConfig struct {
	Lifetime     time.Duration
	CookieName   string
	CookieDomain string
	CookieSecure bool
}

// RateConfig limits login attempts per client address.
type RateConfig struct {
	PerMinute int
	Burst     int
}

// RedisConfig selects the redis-backed session store. An empty URL keeps
// sessions in process memory.
type RedisConfig struct {
	URL       string
	KeyPrefix string
}

// StorageConfig points at the S3-compatible bucket holding ingredient images.
type StorageConfig struct {
	Endpoint   string
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	PresignTTL time.Duration
}

// Enabled reports whether enough settings are present to talk to the bucket.
func (s StorageConfig) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != "" && s.AccessKey != "" && s.SecretKey != ""
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// Load inspects the environment and builds a Config value.
func Load() (Config, error) {
	cfg := Config{}

	cfg.Server = ServerConfig{
		Addr: firstNonEmpty(
			os.Getenv("SERVER_ADDR"),
			os.Getenv("ADDR"),
			":8080",
		),
		TrustProxyHeaders: parseBoolWithDefault(os.Getenv("TRUST_PROXY_HEADERS"), false),
	}

	cfg.Database = DatabaseConfig{
		URL: firstNonEmpty(
			os.Getenv("DATABASE_URL"),
			os.Getenv("DB_URL"),
			"",
		),
		MaxIdleConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_IDLE_CONNS"), 0),
		MaxOpenConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_OPEN_CONNS"), 0),
		ConnMaxLifetime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_LIFETIME"), 0),
		ConnMaxIdleTime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_IDLE_TIME"), 0),
		UseMock:         parseBoolWithDefault(os.Getenv("DATABASE_USE_MOCK"), false),
	}

	cfg.Logging = LoggingConfig{
		Level:  firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		Format: firstNonEmpty(os.Getenv("LOG_FORMAT"), "text"),
	}

	cfg.Auth = AuthConfig{
		Session: SessionConfig{
			Lifetime:     parseDurationWithDefault(os.Getenv("SESSION_LIFETIME"), 12*time.Hour),
			CookieName:   firstNonEmpty(os.Getenv("SESSION_COOKIE_NAME"), "session_id"),
			CookieDomain: strings.TrimSpace(os.Getenv("SESSION_COOKIE_DOMAIN")),
			CookieSecure: parseBoolWithDefault(os.Getenv("SESSION_COOKIE_SECURE"), true),
		},
		LoginRate: RateConfig{
			PerMinute: parseIntWithDefault(os.Getenv("LOGIN_RATE_PER_MINUTE"), 10),
			Burst:     parseIntWithDefault(os.Getenv("LOGIN_RATE_BURST"), 5),
		},
	}

	cfg.Redis = RedisConfig{
		URL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		KeyPrefix: firstNonEmpty(os.Getenv("REDIS_KEY_PREFIX"), "session:"),
	}

	cfg.Storage = StorageConfig{
		Endpoint:   strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		Region:     firstNonEmpty(os.Getenv("S3_REGION"), "us-east-1"),
		Bucket:     strings.TrimSpace(os.Getenv("S3_BUCKET")),
		AccessKey:  firstNonEmpty(os.Getenv("S3_ACCESS_KEY"), os.Getenv("MINIO_ACCESS_KEY")),
		SecretKey:  firstNonEmpty(os.Getenv("S3_SECRET_KEY"), os.Getenv("MINIO_SECRET_KEY")),
		PresignTTL: parseDurationWithDefault(os.Getenv("S3_PRESIGN_TTL"), time.Hour),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: parseBoolWithDefault(os.Getenv("METRICS_ENABLED"), true),
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, fmt.Errorf("server address must not be empty")
	}

	if !cfg.Database.UseMock && strings.TrimSpace(cfg.Database.URL) == "" {
		return Config{}, fmt.Errorf("database URL must be set unless DATABASE_USE_MOCK is enabled")
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func parseIntWithDefault(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseBoolWithDefault(value string, def bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}
