package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Configはアプリ全体の設定
type Config struct {
	Port  string `env:"PORT" envDefault:"8080"`
	GoEnv string `env:"GO_ENV" envDefault:"dev"` // dev/prod

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// DATABASE_URLがあれば最優先
	DatabaseURL      string `env:"DATABASE_URL"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"delivery"`
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	MigrateOnStart    bool          `env:"MIGRATE_ON_START" envDefault:"true"`

	JWTSecret                string        `env:"JWT_SECRET,required"`
	JWTAlgorithm             string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTIssuer                string        `env:"JWT_ISSUER" envDefault:"delivery-api"`
	AccessTokenExpireMinutes int           `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"30"`
	RefreshTokenTTL          time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	PasswordMinLength int    `env:"PASSWORD_MIN_LENGTH" envDefault:"6"`
	Argon2MemoryKiB   uint32 `env:"ARGON2_MEMORY_KIB" envDefault:"65536"`
	Argon2Time        uint32 `env:"ARGON2_TIME" envDefault:"1"`
	Argon2Threads     uint8  `env:"ARGON2_THREADS" envDefault:"2"`

	// 空ならログイン試行制限は無効
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	LoginMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockWindow  time.Duration `env:"LOGIN_LOCK_WINDOW" envDefault:"15m"`

	FEURL string `env:"FE_URL"` // CORS許可オリジン。空なら全許可しない
}

// Load は .env（あれば）を読んでから環境変数を解析する
func Load() (Config, error) {
	// .envは任意。無くてもエラーにしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

// Parse は与えられた環境変数だけから設定を作る（テスト用）
func Parse(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT_ALGORITHM must be one of HS256/HS384/HS512, got %q", c.JWTAlgorithm)
	}
	if c.IsProd() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in prod")
	}
	if c.AccessTokenExpireMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_TTL must be positive")
	}
	if c.PasswordMinLength < 1 || c.PasswordMinLength > 128 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be between 1 and 128")
	}
	if c.Argon2MemoryKiB < 8*uint32(max(c.Argon2Threads, 1)) || c.Argon2Time < 1 || c.Argon2Threads < 1 {
		return fmt.Errorf("invalid ARGON2_* parameters")
	}
	if c.LoginMaxAttempts < 1 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func (c Config) IsProd() bool {
	return strings.EqualFold(c.GoEnv, "prod") || strings.EqualFold(c.GoEnv, "production")
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// DSN はDATABASE_URLか、POSTGRES_*から組み立てた接続文字列を返す
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDB,
		RawQuery: "sslmode=" + url.QueryEscape(c.PostgresSSLMode),
	}
	return u.String()
}
