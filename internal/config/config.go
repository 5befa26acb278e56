package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ストレージバックエンド種別
const (
	StorageFilesystem = "filesystem"
	StorageS3         = "s3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数（とCONFIG_PATHで指定されたYAML）から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" env-required:"true"`

	// Server
	ServerPort string `yaml:"server_port" env:"SERVER_PORT" env-default:"8000"`
	BaseURL    string `yaml:"base_url"    env:"BASE_URL"    env-default:"http://localhost:8000"`

	// Bootstrap admin
	AdminUsername string `yaml:"admin_username" env:"ADMIN_USERNAME" env-default:"admin"`
	AdminPassword string `yaml:"admin_password" env:"ADMIN_PASSWORD" env-default:"adminpassword"`

	// Session
	SessionMaxAge          int           `yaml:"session_max_age"          env:"SESSION_MAX_AGE"          env-default:"86400"`
	SessionCleanupInterval time.Duration `yaml:"session_cleanup_interval" env:"SESSION_CLEANUP_INTERVAL" env-default:"1h"`

	// Credential policy
	PasswordMinLength int    `yaml:"password_min_length" env:"PASSWORD_MIN_LENGTH" env-default:"8"`
	UsernamePattern   string `yaml:"username_pattern"    env:"USERNAME_PATTERN"    env-default:"^[A-Za-z0-9_.-]{3,32}$"`

	// Cookie
	CookieSecure bool   `yaml:"-"`
	CookieDomain string `yaml:"cookie_domain" env:"COOKIE_DOMAIN"`

	// CORS / CSRF
	CORSAllowedOrigin string `yaml:"cors_allowed_origin" env:"CORS_ALLOWED_ORIGIN" env-default:"http://localhost:3000"`
	CSRFEnabled       bool   `yaml:"csrf_enabled"        env:"CSRF_ENABLED"        env-default:"false"`

	// Rate Limit（req/min）
	RateLimitGeneral int `yaml:"rate_limit_general" env:"RATE_LIMIT_GENERAL" env-default:"120"`
	RateLimitLogin   int `yaml:"rate_limit_login"   env:"RATE_LIMIT_LOGIN"   env-default:"10"`

	// Document storage
	StorageBackend string `yaml:"storage_backend"  env:"STORAGE_BACKEND"  env-default:"filesystem"`
	UploadDir      string `yaml:"upload_dir"       env:"UPLOAD_DIR"       env-default:"uploads"`
	UploadMaxBytes int64  `yaml:"upload_max_bytes" env:"UPLOAD_MAX_BYTES" env-default:"10485760"`

	S3Bucket       string `yaml:"s3_bucket"        env:"S3_BUCKET"`
	S3Region       string `yaml:"s3_region"        env:"S3_REGION"        env-default:"us-east-1"`
	S3BaseEndpoint string `yaml:"s3_base_endpoint" env:"S3_BASE_ENDPOINT"`
	S3AccessKey    string `yaml:"s3_access_key"    env:"S3_ACCESS_KEY"`
	S3SecretKey    string `yaml:"s3_secret_key"    env:"S3_SECRET_KEY"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style" env:"S3_USE_PATH_STYLE" env-default:"true"`

	// Logging
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

// Load は環境変数からConfigを読み込む。
// CONFIG_PATHが設定されている場合はYAMLを読み込んだ上で環境変数で上書きする。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は読み込んだ設定値の整合性を検証する。
func (c *Config) Validate() error {
	var problems []string

	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		problems = append(problems, "ADMIN_USERNAME and ADMIN_PASSWORD must not be empty")
	}
	if c.SessionMaxAge <= 0 {
		problems = append(problems, "SESSION_MAX_AGE must be positive")
	}
	if c.PasswordMinLength < 1 {
		problems = append(problems, "PASSWORD_MIN_LENGTH must be at least 1")
	}
	if _, err := regexp.Compile(c.UsernamePattern); err != nil {
		problems = append(problems, fmt.Sprintf("USERNAME_PATTERN is invalid: %v", err))
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitLogin <= 0 {
		problems = append(problems, "rate limits must be positive")
	}
	if c.UploadMaxBytes <= 0 {
		problems = append(problems, "UPLOAD_MAX_BYTES must be positive")
	}

	switch c.StorageBackend {
	case StorageFilesystem:
		if c.UploadDir == "" {
			problems = append(problems, "UPLOAD_DIR is required for filesystem storage")
		}
	case StorageS3:
		if c.S3Bucket == "" {
			problems = append(problems, "S3_BUCKET is required for s3 storage")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
