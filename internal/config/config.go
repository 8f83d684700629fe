package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
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
		Driver     string
		DSN        string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SQLitePath string
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

	Notify struct {
		Channel          string
		Backend          string // redis | log
		DispatchInterval time.Duration
		RetryBase        time.Duration
		StaleAfter       time.Duration
		MaxAttempts      int
	}

	Abuse struct {
		File string
	}
}

func New() *Config {
	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "swipe_guard")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.SQLitePath = getEnvDefault("SQLITE_PATH", "swipe_guard.db")
	cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.DB.User = getEnvDefault("DB_USER", "root")
	cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
	cfg.DB.Name = getEnvDefault("DB_NAME", "swipe_guard")

	switch cfg.DB.Driver {
	case "postgres":
		cfg.DB.Port = getEnvDefault("DB_PORT", "5432")
		cfg.DB.DSN = getEnvDefault("POSTGRES_DSN", fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name,
		))
	case "sqlite":
		cfg.DB.DSN = cfg.DB.SQLitePath
	default:
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.DSN = getEnvDefault("MYSQL_DSN", fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		))
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	if dbInt, err := strconv.Atoi(getEnvDefault("REDIS_DB", "0")); err == nil {
		cfg.Redis.DB = dbInt
	}

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// Match notifications
	cfg.Notify.Channel = getEnvDefault("NOTIFY_CHANNEL", "matches")
	cfg.Notify.Backend = getEnvDefault("NOTIFY_BACKEND", "redis")
	cfg.Notify.DispatchInterval = getEnvPositiveDuration("NOTIFY_DISPATCH_INTERVAL", 30*time.Second)
	cfg.Notify.RetryBase = getEnvPositiveDuration("NOTIFY_RETRY_BASE", 30*time.Second)
	cfg.Notify.StaleAfter = getEnvPositiveDuration("NOTIFY_STALE_AFTER", 2*time.Minute)
	cfg.Notify.MaxAttempts = getEnvInt("NOTIFY_MAX_ATTEMPTS", 5)

	cfg.Abuse.File = getEnvDefault("ABUSE_CONFIG_FILE", "")

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(getEnvDefault(k, ""), 64); err == nil {
		return v
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

// getEnvPositiveDuration falls back to def for zero or negative values.
func getEnvPositiveDuration(k string, def time.Duration) time.Duration {
	if v := getEnvDuration(k, def); v > 0 {
		return v
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
