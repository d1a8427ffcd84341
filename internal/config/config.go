package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	DatabaseDSN        string
	Env                string
	UploadDir          string
	StaticDir          string
	CreatorTokenSecret string
	FileTTL            time.Duration
	SweepInterval      time.Duration
	MaxUploadBytes     int64
	MaxMessageChars    int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func Load() Config {
	return Config{
		Port:               getenv("APP_PORT", "8080"),
		DatabaseDSN:        getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=chatapp port=5432 sslmode=disable TimeZone=UTC"),
		Env:                getenv("APP_ENV", "dev"),
		UploadDir:          getenv("UPLOAD_DIR", "./uploads"),
		StaticDir:          getenv("STATIC_DIR", "./web"),
		CreatorTokenSecret: getenv("CREATOR_TOKEN_SECRET", "dev-secret-change-me"),
		FileTTL:            time.Duration(getenvInt("FILE_TTL_MINUTES", 30)) * time.Minute,
		SweepInterval:      time.Duration(getenvInt("SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		MaxUploadBytes:     int64(getenvInt("MAX_UPLOAD_MIB", 5)) << 20,
		MaxMessageChars:    getenvInt("MAX_MESSAGE_CHARS", 1000),
	}
}

// Validate 启动前检查配置，存储 DSN 缺失属于致命错误，进程不应降级启动。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: database dsn is required")
	}
	if cfg.UploadDir == "" {
		return errors.New("config: upload dir is required")
	}
	if cfg.FileTTL <= 0 || cfg.SweepInterval <= 0 {
		return errors.New("config: file ttl and sweep interval must be positive")
	}
	if cfg.Env != "dev" && cfg.CreatorTokenSecret == "dev-secret-change-me" {
		return errors.New("config: default creator token secret is not allowed outside dev")
	}
	return nil
}
