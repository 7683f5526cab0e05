package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/shipdraft/draft-service/internal/storage"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	MinIO     storage.MinIOConfig
	Autosave  AutosaveConfig
	RateLimit RateLimitConfig
	OIDC      OIDCConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MongoDBConfig is optional: an empty URI selects the in-memory backend.
type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// RedisConfig is optional: an empty Host selects the in-memory draft store.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

type AutosaveConfig struct {
	QuietWindow time.Duration
	KeyPrefix   string
	DraftTTL    time.Duration
	LockTTL     time.Duration
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	Window  time.Duration
}

// OIDCConfig enables bearer verification when Issuer is set.
type OIDCConfig struct {
	Issuer   string
	ClientID string
	Insecure bool
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MONGODB_DATABASE", "shipdraft")
	v.SetDefault("MONGODB_COLLECTION", "shipments")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MINIO_BUCKET", "shipment-documents")
	v.SetDefault("MINIO_PUBLIC_URL", storage.DefaultPublicURL)
	v.SetDefault("AUTOSAVE_QUIET_MS", 500)
	v.SetDefault("DRAFT_KEY_PREFIX", "shipment-draft:")
	v.SetDefault("DRAFT_TTL_HOURS", 0)
	v.SetDefault("SUBMIT_LOCK_SECONDS", 30)
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:        v.GetString("MONGODB_URI"),
			Database:   v.GetString("MONGODB_DATABASE"),
			Collection: v.GetString("MONGODB_COLLECTION"),
			Timeout:    time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			PublicURL: v.GetString("MINIO_PUBLIC_URL"),
		},
		Autosave: AutosaveConfig{
			QuietWindow: time.Duration(v.GetInt("AUTOSAVE_QUIET_MS")) * time.Millisecond,
			KeyPrefix:   v.GetString("DRAFT_KEY_PREFIX"),
			DraftTTL:    time.Duration(v.GetInt("DRAFT_TTL_HOURS")) * time.Hour,
			LockTTL:     time.Duration(v.GetInt("SUBMIT_LOCK_SECONDS")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:     v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:   v.GetInt("RATE_LIMIT_BURST"),
			Window:  time.Duration(v.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		},
		OIDC: OIDCConfig{
			Issuer:   v.GetString("OIDC_ISSUER"),
			ClientID: v.GetString("OIDC_CLIENT_ID"),
			Insecure: v.GetBool("OIDC_INSECURE"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if cfg.Autosave.QuietWindow <= 0 {
		return nil, fmt.Errorf("AUTOSAVE_QUIET_MS must be positive")
	}
	if cfg.OIDC.Issuer != "" && cfg.OIDC.ClientID == "" {
		return nil, fmt.Errorf("OIDC_CLIENT_ID is required when OIDC_ISSUER is set")
	}
	return cfg, nil
}
