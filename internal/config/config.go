package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 掲載ストアの実装種別
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL   string
	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	RedisURL      string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Admin
	AdminEmail string

	// Session
	SessionMaxAge int

	// Catalog
	PageSize    int
	SnapshotTTL time.Duration

	// Upload
	UploadMaxBytes int64

	// Rate Limit
	RateLimitGeneral      int
	RateLimitApplications int

	// Notification
	SiteName         string
	AWSRegion        string
	SESFromAddress   string
	SNSAdminTopicARN string

	// Sync
	SyncSources       []string
	SyncSchedule      string
	SyncTimeout       time.Duration
	SyncMaxSize       int64
	SyncMaxConcurrent int

	// Cleanup
	CleanupSchedule string

	// Server
	ServerPort        string
	WorkerMetricsPort string
	BaseURL           string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// ENV_FILE（既定 .env）が存在すれば、未設定の変数をそこから補う。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvString("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string
	require := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = require("DATABASE_URL")
	cfg.GoogleClientID = require("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = require("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = require("GOOGLE_REDIRECT_URL")
	cfg.BaseURL = require("BASE_URL")
	cfg.AdminEmail = strings.ToLower(strings.TrimSpace(require("ADMIN_EMAIL")))

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreDriverPostgres))
	cfg.MongoURI = getEnvString("MONGO_URI", "")
	cfg.MongoDatabase = getEnvString("MONGO_DATABASE", "showcase")
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.PageSize = getEnvInt("PAGE_SIZE", 10)
	cfg.SnapshotTTL = getEnvDuration("SNAPSHOT_TTL", 5*time.Minute)
	cfg.UploadMaxBytes = getEnvInt64("UPLOAD_MAX_BYTES", 5242880)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitApplications = getEnvInt("RATE_LIMIT_APPLICATIONS", 10)
	cfg.SiteName = getEnvString("SITE_NAME", "Transcend Education")
	cfg.AWSRegion = getEnvString("AWS_REGION", "")
	cfg.SESFromAddress = getEnvString("SES_FROM_ADDRESS", "")
	cfg.SNSAdminTopicARN = getEnvString("SNS_ADMIN_TOPIC_ARN", "")
	cfg.SyncSources = getEnvList("SYNC_SOURCES")
	cfg.SyncSchedule = getEnvString("SYNC_SCHEDULE", "@every 6h")
	cfg.SyncTimeout = getEnvDuration("SYNC_TIMEOUT", 15*time.Second)
	cfg.SyncMaxSize = getEnvInt64("SYNC_MAX_SIZE", 5242880)
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 4)
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "@daily")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9090")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS")
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"http://localhost:3000"}
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
	case StoreDriverMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is required when STORE_DRIVER=%s", StoreDriverMongo)
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// loadEnvFile は.envファイルの値を未設定の環境変数にのみ反映する。
// ファイルが存在しない場合は何もしない。
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
