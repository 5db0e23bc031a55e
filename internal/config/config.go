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
	DBLogLevel        string
	DBMetricsEnabled  bool

	Redis     RedisConfig
	Storage   StorageConfig
	Email     EmailConfig
	Batch     BatchConfig
	Scheduler SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type StorageConfig struct {
	Backend  string
	LocalDir string

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type BatchConfig struct {
	ValidationPolicy  string
	MaxUploadBytes    int64
	UploadsPerMinute  int
	StaleAfter        time.Duration
	ClaimLockDuration time.Duration
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
}

const (
	StorageBackendLocal = "local"
	StorageBackendS3    = "s3"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "invoicekits"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt64("NODE_ID", 1),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "invoicekits"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		DBLogLevel:        strings.ToLower(getenv("DATABASE_LOG_LEVEL", "warn")),
		DBMetricsEnabled:  getenvBool("DATABASE_METRICS_ENABLED", true),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Backend:           strings.ToLower(getenv("STORAGE_BACKEND", StorageBackendLocal)),
			LocalDir:          getenv("STORAGE_LOCAL_DIR", "./data"),
			S3Bucket:          getenv("S3_BUCKET", ""),
			S3Region:          getenv("S3_REGION", "us-east-1"),
			S3Endpoint:        strings.TrimSpace(getenv("S3_ENDPOINT", "")),
			S3AccessKeyID:     getenv("S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", ""),
			S3UsePathStyle:    getenvBool("S3_USE_PATH_STYLE", false),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "invoices@invoicekits.local"),
		},
		Batch: BatchConfig{
			ValidationPolicy:  strings.ToLower(getenv("BATCH_VALIDATION_POLICY", "reject_file")),
			MaxUploadBytes:    getenvInt64("BATCH_MAX_UPLOAD_BYTES", 5<<20),
			UploadsPerMinute:  getenvInt("BATCH_UPLOADS_PER_MINUTE", 10),
			StaleAfter:        getenvDuration("BATCH_STALE_AFTER", 30*time.Minute),
			ClaimLockDuration: getenvDuration("BATCH_CLAIM_LOCK", 15*time.Minute),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: getenvDuration("SCHEDULER_INTERVAL", time.Minute),
			BatchSize:   getenvInt("SCHEDULER_BATCH_SIZE", 50),
		},
	}

	return cfg
}

// IsProduction reports whether the service runs in production.
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
