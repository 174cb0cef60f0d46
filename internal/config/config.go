package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	Host string
	Port string

	// Public base URL of the API
	BaseURL string

	// Database configuration
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresMaxConns int
	MigrateOnStart   bool

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Cache TTLs
	FieldsCacheTTL time.Duration

	// Rate limiting
	RateLimitRenderPerMinute int

	// Auth0 configuration
	Auth0Domain   string
	Auth0Audience string

	// Shared-secret (HS256) tokens, used when Auth0 is not configured
	JWTSecret string

	// Template document storage
	StorageBackend string
	MediaRoot      string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string

	// Rendering
	CardDPIX           int
	CardDPIY           int
	PreferredConverter string
	ConvertTimeout     time.Duration
	TempRoot           string

	// OpenSPP (ERP) integration
	ERPServerRoot      string
	ERPDatabase        string
	ERPUsername        string
	ERPAPIToken        string
	ERPQueueBatchModel string
	ERPIDQueueModel    string
	ERPFetchLimit      int

	// Batch merge worker
	MergePollInterval time.Duration
	MergeBatchSize    int
	WorkerMetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		// Server
		Host: getEnv("HOST", "0.0.0.0"),
		Port: getEnv("PORT", "8000"),

		BaseURL: getEnv("BASE_URL", "http://localhost:8000"),

		// Database
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "cardgenerator"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresMaxConns: getEnvInt("POSTGRES_MAX_CONNECTIONS", 20),
		MigrateOnStart:   getEnvBool("MIGRATE_ON_START", true),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Cache TTLs
		FieldsCacheTTL: time.Duration(getEnvInt("FIELDS_CACHE_TTL", 3600)) * time.Second,

		// Rate limiting
		RateLimitRenderPerMinute: getEnvInt("RATE_LIMIT_RENDER_PER_MINUTE", 30),

		// Auth
		Auth0Domain:   getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience: getEnv("AUTH0_AUDIENCE", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),

		// Storage
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", "fs")),
		MediaRoot:      getEnv("MEDIA_ROOT", "./media"),
		S3Bucket:       getEnv("S3_BUCKET", "cards"),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),

		// Rendering
		CardDPIX:           getEnvInt("CARD_DPI_X", 300),
		CardDPIY:           getEnvInt("CARD_DPI_Y", 300),
		PreferredConverter: getEnv("CONVERTER", ""),
		ConvertTimeout:     time.Duration(getEnvInt("CONVERT_TIMEOUT_SECONDS", 60)) * time.Second,
		TempRoot:           getEnv("RENDER_TEMP_DIR", os.TempDir()),

		// OpenSPP
		ERPServerRoot:      getEnv("OPENSPP_SERVER_ROOT", "http://localhost:8069"),
		ERPDatabase:        getEnv("OPENSPP_DB_NAME", "openspp"),
		ERPUsername:        getEnv("OPENSPP_USERNAME", "admin"),
		ERPAPIToken:        getEnv("OPENSPP_API_TOKEN", ""),
		ERPQueueBatchModel: getEnv("OPENSPP_QUEUE_BATCH_MODEL", "spp.print.queue.batch"),
		ERPIDQueueModel:    getEnv("OPENSPP_ID_QUEUE_MODEL", "spp.print.queue.id"),
		ERPFetchLimit:      getEnvInt("OPENSPP_FETCH_LIMIT", 100),

		// Worker
		MergePollInterval: getEnvDuration("MERGE_POLL_INTERVAL", 5*time.Second),
		MergeBatchSize:    getEnvInt("MERGE_BATCH_SIZE", 10),
		WorkerMetricsAddr: getEnv("WORKER_METRICS_ADDR", ":9091"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return "postgres://" + c.PostgresUser + ":" + c.PostgresPassword +
		"@" + c.PostgresHost + ":" + c.PostgresPort +
		"/" + c.PostgresDB + "?sslmode=disable"
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// Auth0Enabled reports whether Auth0 token validation is configured
func (c *Config) Auth0Enabled() bool {
	return c.Auth0Domain != "" && c.Auth0Audience != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration syntax ("30s") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
