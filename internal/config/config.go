package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	// Match holds the timing knobs of the matching engine.
	Match struct {
		QueueTTL      time.Duration
		AcceptWindow  time.Duration
		SweepInterval time.Duration
		LockTTL       time.Duration
		Lookahead     int
	}

	Catalog struct {
		BaseURL  string
		CacheTTL time.Duration
		Timeout  time.Duration
	}

	Session struct {
		Secret string
		WSURL  string
	}
}

// New builds the config from the environment. A .env file in the working
// directory is loaded first if present; real env vars win over it.
func New() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "development")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "matching_service")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database (session history)
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "matching")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// Matching engine
	cfg.Match.QueueTTL = getEnvSeconds("TTL_SECS", 120)
	cfg.Match.AcceptWindow = getEnvSeconds("ACCEPT_WINDOW_SECS", 25)
	cfg.Match.SweepInterval = getEnvSeconds("SWEEPER_INTERVAL_SECS", 5)
	cfg.Match.LockTTL = getEnvSeconds("MATCH_LOCK_TTL_SECS", 30)
	cfg.Match.Lookahead = getEnvInt("MATCH_LOOKAHEAD", 10)

	// Question catalog
	cfg.Catalog.BaseURL = getEnvDefault("QUESTIONS_SVC_BASE", "http://question-service:3001")
	cfg.Catalog.CacheTTL = time.Duration(getEnvInt("QS_CACHE_TTL_MS", 5*60*1000)) * time.Millisecond
	cfg.Catalog.Timeout = getEnvSeconds("QS_TIMEOUT_SECS", 3)

	// Session bootstrap
	cfg.Session.Secret = getEnvDefault("SESSION_SECRET", "dev-session-secret")
	cfg.Session.WSURL = getEnvDefault("COLLAB_WS_URL", "ws://localhost:1234/room")

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getEnvSeconds reads a whole number of seconds; non-positive values fall back to def.
func getEnvSeconds(k string, def int) time.Duration {
	n := getEnvInt(k, def)
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
