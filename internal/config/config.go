package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストアドライバー名。
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// defaultAllowedOrigins はフロントエンド開発サーバーのオリジン。常に許可する。
var defaultAllowedOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string
	Production bool

	// Store
	StoreDriver     string
	DatabaseURL     string
	DBUser          string
	DBPass          string
	DBHost          string
	DBName          string
	FoodsCollection string
	// StoreConnectAttempts は起動時のストア接続の最大試行回数。
	StoreConnectAttempts int

	// Token
	TokenSecret       string
	TokenTTL          time.Duration
	TokenDenyListSize int

	// CORS
	CORSAllowedOrigins []string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitLogin   int

	// Dependency health
	DepHealthCheckInterval time.Duration

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StoreDriver = getEnvString("STORE_DRIVER", DriverPostgres)
	switch cfg.StoreDriver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q (want %s, %s or %s)",
			cfg.StoreDriver, DriverPostgres, DriverMongo, DriverMemory)
	}

	// Required fields
	var missing []string

	cfg.TokenSecret = os.Getenv("ACCESS_TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		missing = append(missing, "ACCESS_TOKEN_SECRET")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.DBUser = os.Getenv("DB_USER")
	cfg.DBPass = os.Getenv("DB_PASS")
	if cfg.DatabaseURL == "" && cfg.StoreDriver != DriverMemory {
		if cfg.DBUser == "" {
			missing = append(missing, "DB_USER")
		}
		if cfg.DBPass == "" {
			missing = append(missing, "DB_PASS")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("PORT", "5000")
	cfg.Production = os.Getenv("NODE_ENV") == "production"
	cfg.DBHost = getEnvString("DB_HOST", defaultHost(cfg.StoreDriver))
	cfg.DBName = getEnvString("DB_NAME", "foodBridge")
	cfg.FoodsCollection = getEnvString("FOODS_COLLECTION", "foods")
	cfg.StoreConnectAttempts = getEnvInt("STORE_CONNECT_ATTEMPTS", 6)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", time.Hour)
	cfg.TokenDenyListSize = getEnvInt("TOKEN_DENYLIST_SIZE", 10000)
	cfg.CORSAllowedOrigins = allowedOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"))
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 30)
	cfg.DepHealthCheckInterval = getEnvDuration("DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// StoreURL は接続先のDSN/URIを返す。
// DATABASE_URLが設定されていればそれを優先し、なければDB_*から組み立てる。
func (c *Config) StoreURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}

	u := &url.URL{
		User: url.UserPassword(c.DBUser, c.DBPass),
		Host: c.DBHost,
	}
	switch c.StoreDriver {
	case DriverMongo:
		u.Scheme = "mongodb"
		u.Path = "/"
		u.RawQuery = "retryWrites=true&w=majority"
	default:
		u.Scheme = "postgres"
		u.Path = "/" + c.DBName
		u.RawQuery = "sslmode=disable"
	}
	return u.String()
}

func defaultHost(driver string) string {
	if driver == DriverMongo {
		return "localhost:27017"
	}
	return "localhost:5432"
}

// allowedOrigins は開発用オリジンにカンマ区切りの追加オリジンを加えて返す。
func allowedOrigins(extra string) []string {
	origins := append([]string{}, defaultAllowedOrigins...)
	for _, o := range strings.Split(extra, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
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

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// "0"はTTLなしを表す
	if v == "0" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
