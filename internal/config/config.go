package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	ClamAV   ClamAVConfig   `mapstructure:"clamav"`
	Print    PrintConfig    `mapstructure:"print"`
	Editor   EditorConfig   `mapstructure:"editor"`
	Layout   LayoutConfig   `mapstructure:"layout"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
	// InternalBaseURL 是 worker 回调 API 内部接口使用的地址。
	InternalBaseURL string `mapstructure:"internal_base_url"`
	// PublicBaseURL 用于拼接对外的打印链接。
	PublicBaseURL  string `mapstructure:"public_base_url"`
	InternalSecret string `mapstructure:"internal_secret"`
	// AllowedOrigins 是逗号分隔的 WebSocket Origin 白名单，为空时只允许同源。
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// Origins splits AllowedOrigins into trimmed, non-empty entries.
func (a APIConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(a.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	PublicEndpoint  string `mapstructure:"public_endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	// BucketLookup: auto / dns / path
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// ClamAVConfig 上传文件病毒扫描。
type ClamAVConfig struct {
	Address string `mapstructure:"address"`
}

// PrintConfig 控制签名打印链接。
type PrintConfig struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

// EditorConfig 控制编辑会话快照。
type EditorConfig struct {
	// SessionStore: redis / memory
	SessionStore string        `mapstructure:"session_store"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
}

// LayoutConfig 包含模板 ID 生成与字段目录设置。
type LayoutConfig struct {
	CatalogPath   string `mapstructure:"catalog_path"`
	SnowflakeNode int64  `mapstructure:"snowflake_node"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.internal_base_url", "http://localhost:8080")
	v.SetDefault("api.public_base_url", "http://localhost:8080")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "voucherdesk")
	v.SetDefault("database.user", "voucherdesk")
	v.SetDefault("database.password", "voucherdesk")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "vouchers")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("clamav.address", "tcp://localhost:3310")
	v.SetDefault("print.token_ttl", 15*time.Minute)
	v.SetDefault("editor.session_store", "redis")
	v.SetDefault("editor.session_ttl", 12*time.Hour)
	v.SetDefault("layout.snowflake_node", 1)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                 "API_PORT",
		"api.internal_base_url":    "API_INTERNAL_BASE_URL",
		"api.public_base_url":      "API_PUBLIC_BASE_URL",
		"api.internal_secret":      "INTERNAL_API_SECRET",
		"api.allowed_origins":      "API_ALLOWED_ORIGINS",
		"database.host":            "DATABASE_HOST",
		"database.port":            "DATABASE_PORT",
		"database.name":            "POSTGRES_DB",
		"database.user":            "POSTGRES_USER",
		"database.password":        "POSTGRES_PASSWORD",
		"database.sslmode":         "DATABASE_SSLMODE",
		"redis.host":               "REDIS_HOST",
		"redis.port":               "REDIS_PORT",
		"minio.endpoint":           "MINIO_ENDPOINT",
		"minio.public_endpoint":    "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":      "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":  "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":            "MINIO_USE_SSL",
		"minio.bucket":             "MINIO_BUCKET",
		"minio.region":             "MINIO_REGION",
		"minio.bucket_lookup":      "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket": "MINIO_AUTO_CREATE_BUCKET",
		"clamav.address":           "CLAMAV_ADDRESS",
		"print.token_secret":       "PRINT_TOKEN_SECRET",
		"print.token_ttl":          "PRINT_TOKEN_TTL",
		"editor.session_store":     "EDITOR_SESSION_STORE",
		"editor.session_ttl":       "EDITOR_SESSION_TTL",
		"layout.catalog_path":      "LAYOUT_CATALOG_PATH",
		"layout.snowflake_node":    "SNOWFLAKE_NODE",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.InternalSecret == "" {
		return errors.New("internal api secret is required")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Print.TokenSecret == "" {
		return errors.New("print token secret is required")
	}
	if cfg.Print.TokenTTL <= 0 {
		return errors.New("print token ttl must be positive")
	}
	switch cfg.Editor.SessionStore {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown editor session store %q", cfg.Editor.SessionStore)
	}
	if cfg.Editor.SessionTTL <= 0 {
		return errors.New("editor session ttl must be positive")
	}
	if cfg.Layout.SnowflakeNode < 0 || cfg.Layout.SnowflakeNode > 1023 {
		return errors.New("snowflake node must be between 0 and 1023")
	}
	return nil
}
