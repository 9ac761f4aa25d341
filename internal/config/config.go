package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Quota counter backends
const (
	QuotaBackendTiDB  = "tidb"
	QuotaBackendRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort string
	ServiceName string
	LogLevel    string

	// Bot behaviour
	AdminIDs       []int64
	DailyLimit     int
	ResultsPerPage int
	SelectionTTL   time.Duration

	// Quota tracking
	QuotaTimezone  string
	QuotaBackend   string
	QuotaRetention time.Duration

	// Delivery transport
	DeliveryLinkTTL time.Duration
	OutboxTTL       time.Duration

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// TiDB configuration
	TiDBHost     string
	TiDBPort     string
	TiDBUser     string
	TiDBPassword string
	TiDBDatabase string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Jaeger configuration
	TracingEnabled bool
	JaegerEndpoint string
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	adminIDs, err := parseAdminIDs(getEnv("ADMIN_IDS", ""))
	if err != nil {
		return nil, err
	}

	config := &Config{
		// Service defaults
		ServicePort: getEnv("SERVICE_PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "tagdrop-service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Bot defaults
		AdminIDs:       adminIDs,
		DailyLimit:     getEnvAsInt("DAILY_LIMIT", 10),
		ResultsPerPage: getEnvAsInt("RESULTS_PER_PAGE", 10),
		SelectionTTL:   getEnvAsDuration("SELECTION_TTL", 5*time.Minute),

		// Quota defaults
		QuotaTimezone:  getEnv("QUOTA_TIMEZONE", "UTC"),
		QuotaBackend:   strings.ToLower(getEnv("QUOTA_BACKEND", QuotaBackendTiDB)),
		QuotaRetention: getEnvAsDuration("QUOTA_RETENTION", 48*time.Hour),

		// Delivery defaults
		DeliveryLinkTTL: getEnvAsDuration("DELIVERY_LINK_TTL", time.Hour),
		OutboxTTL:       getEnvAsDuration("OUTBOX_TTL", 24*time.Hour),

		// MinIO defaults
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "tagdrop"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),

		// TiDB defaults
		TiDBHost:     getEnv("TIDB_HOST", "localhost"),
		TiDBPort:     getEnv("TIDB_PORT", "4000"),
		TiDBUser:     getEnv("TIDB_USER", "root"),
		TiDBPassword: getEnv("TIDB_PASSWORD", ""),
		TiDBDatabase: getEnv("TIDB_DATABASE", "tagdrop"),

		// Redis defaults
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Jaeger defaults
		TracingEnabled: getEnvAsBool("TRACING_ENABLED", true),
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "localhost:4318"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that would otherwise fail deep inside a request
func (c *Config) Validate() error {
	if c.DailyLimit <= 0 {
		return fmt.Errorf("DAILY_LIMIT must be positive, got %d", c.DailyLimit)
	}
	if c.ResultsPerPage <= 0 {
		return fmt.Errorf("RESULTS_PER_PAGE must be positive, got %d", c.ResultsPerPage)
	}
	if c.SelectionTTL <= 0 {
		return fmt.Errorf("SELECTION_TTL must be positive, got %s", c.SelectionTTL)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.QuotaBackend {
	case QuotaBackendTiDB, QuotaBackendRedis:
	default:
		return fmt.Errorf("QUOTA_BACKEND must be %q or %q, got %q", QuotaBackendTiDB, QuotaBackendRedis, c.QuotaBackend)
	}
	return nil
}

// Location returns the timezone used to compute quota calendar dates
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTA_TIMEZONE %q: %w", c.QuotaTimezone, err)
	}
	return loc, nil
}

// GetDSN returns the TiDB connection string. group_concat_max_len is raised
// so keyword lists of large records are not truncated.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&group_concat_max_len=1048576",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetMigrationDSN returns the DSN used by schema migrations, which need
// multi-statement support
func (c *Config) GetMigrationDSN() string {
	return c.GetDSN() + "&multiStatements=true"
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func parseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
