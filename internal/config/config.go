package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"luminatext/pkg/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultConfigPath is read when present; environment variables override it.
const DefaultConfigPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Host            string        `yaml:"host" env:"HOST" env-default:"0.0.0.0"`
		Port            string        `yaml:"port" env:"PORT" env-default:"8000"`
		Environment     string        `yaml:"environment" env:"APP_ENV" env-default:"development"`
		Debug           bool          `yaml:"debug" env:"LOG_DEBUG" env-default:"false"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
	} `yaml:"server"`

	Deepgram struct {
		APIKey          string        `yaml:"api_key" env:"DEEPGRAM_API_KEY"`
		BaseURL         string        `yaml:"base_url" env:"DEEPGRAM_BASE_URL" env-default:"https://api.deepgram.com"`
		Model           string        `yaml:"model" env:"DEEPGRAM_MODEL" env-default:"nova-2"`
		Timeout         time.Duration `yaml:"timeout" env:"DEEPGRAM_TIMEOUT" env-default:"5m"`
		BreakerFailures uint32        `yaml:"breaker_failures" env:"DEEPGRAM_BREAKER_FAILURES" env-default:"5"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown" env:"DEEPGRAM_BREAKER_COOLDOWN" env-default:"30s"`
	} `yaml:"deepgram"`

	Mongo struct {
		URI        string `yaml:"uri" env:"MONGODB_URI"`
		Database   string `yaml:"database" env:"MONGODB_DATABASE" env-default:"luminatext"`
		Collection string `yaml:"collection" env:"MONGODB_COLLECTION" env-default:"transcriptions"`
	} `yaml:"mongo"`

	Postgres struct {
		DSN            string `yaml:"dsn" env:"POSTGRES_DSN"`
		MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
	} `yaml:"postgres"`

	Upload struct {
		MaxFileSize int64  `yaml:"max_file_size" env:"MAX_FILE_SIZE" env-default:"104857600"`
		TempDir     string `yaml:"temp_dir" env:"UPLOAD_TEMP_DIR"`
	} `yaml:"upload"`

	Redis struct {
		Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
		Password string        `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
		TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"5m"`
	} `yaml:"redis"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"RABBITMQ_URL"`
	} `yaml:"rabbitmq"`

	S3 struct {
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
		Region    string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
		AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	} `yaml:"s3"`

	RateLimit struct {
		PerMinute int `yaml:"per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"0"`
	} `yaml:"rate_limit"`
}

// ProviderConfigured reports whether a transcription provider credential is set.
func (c *Config) ProviderConfigured() bool {
	return c.Deepgram.APIKey != ""
}

// StoreConfigured reports whether any document store connection is set.
func (c *Config) StoreConfigured() bool {
	return c.Mongo.URI != "" || c.Postgres.DSN != ""
}

func (c *Config) validate() error {
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.Upload.MaxFileSize)
	}
	if c.RateLimit.PerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.RateLimit.PerMinute)
	}
	return nil
}

// LoadConfig reads DefaultConfigPath when it exists and environment variables otherwise.
func LoadConfig() (*Config, error) {
	return Load(DefaultConfigPath)
}

func Load(path string) (*Config, error) {
	// Load .env file
	_ = godotenv.Load()

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Info("Config loaded successfully")
	return &cfg, nil
}
