package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"adapter-persistence-service/internal/core/domain"
)

const (
	DriverS3     = "s3"
	DriverMemory = "memory"
)

type Config struct {
	Server  ServerConfig
	Logger  LoggerConfig
	Storage StorageConfig
	Owner   OwnerConfig
	Trainer TrainerConfig
	Service ServiceConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type StorageConfig struct {
	Driver string
	S3     S3Config
}

type S3Config struct {
	Bucket          string
	Endpoint        string
	UseSSL          bool
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// OwnerConfig identifies the single user this deployment serves.
type OwnerConfig struct {
	UserID    string
	BaseModel string
}

type TrainerConfig struct {
	Command string
	Timeout time.Duration
}

type ServiceConfig struct {
	WorkDir            string
	PresignExpiry      time.Duration
	MetadataMaxRetries int
	StagingConcurrency int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("REQUEST_TIMEOUT", "5m")
	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "json")
	v.SetDefault("STORAGE_DRIVER", DriverS3)
	v.SetDefault("S3_BUCKET_NAME", "")
	v.SetDefault("S3_ENDPOINT", "s3.amazonaws.com")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("AWS_SESSION_TOKEN", "")
	v.SetDefault("USER_ID", "")
	v.SetDefault("BASE_MODEL_NAME", "meta-llama/Llama-3.2-1B-Instruct")
	v.SetDefault("TRAINER_COMMAND", "")
	v.SetDefault("TRAINER_TIMEOUT", "2h")
	v.SetDefault("WORK_DIR", os.TempDir())
	v.SetDefault("PRESIGN_EXPIRY", "15m")
	v.SetDefault("METADATA_MAX_RETRIES", 5)
	v.SetDefault("STAGING_CONCURRENCY", 4)

	// Env
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			RequestTimeout: duration(v, "REQUEST_TIMEOUT", 5*time.Minute),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("LOGGER_LEVEL"),
			Format: v.GetString("LOGGER_FORMAT"),
		},
		Storage: StorageConfig{
			Driver: v.GetString("STORAGE_DRIVER"),
			S3: S3Config{
				Bucket:          v.GetString("S3_BUCKET_NAME"),
				Endpoint:        v.GetString("S3_ENDPOINT"),
				UseSSL:          v.GetBool("S3_USE_SSL"),
				Region:          v.GetString("AWS_REGION"),
				AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    v.GetString("AWS_SESSION_TOKEN"),
			},
		},
		Owner: OwnerConfig{
			UserID:    v.GetString("USER_ID"),
			BaseModel: v.GetString("BASE_MODEL_NAME"),
		},
		Trainer: TrainerConfig{
			Command: v.GetString("TRAINER_COMMAND"),
			Timeout: duration(v, "TRAINER_TIMEOUT", 2*time.Hour),
		},
		Service: ServiceConfig{
			WorkDir:            v.GetString("WORK_DIR"),
			PresignExpiry:      duration(v, "PRESIGN_EXPIRY", 15*time.Minute),
			MetadataMaxRetries: v.GetInt("METADATA_MAX_RETRIES"),
			StagingConcurrency: v.GetInt("STAGING_CONCURRENCY"),
		},
	}

	return cfg, nil
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverS3:
		if c.Storage.S3.Bucket == "" {
			return domain.ErrMissingBucket
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", domain.ErrValidation, c.Storage.Driver)
	}
	if c.Owner.UserID == "" {
		return domain.ErrMissingOwnerID
	}
	if c.Service.MetadataMaxRetries < 1 {
		return fmt.Errorf("%w: METADATA_MAX_RETRIES must be at least 1", domain.ErrValidation)
	}
	if c.Service.StagingConcurrency < 1 {
		return fmt.Errorf("%w: STAGING_CONCURRENCY must be at least 1", domain.ErrValidation)
	}
	return nil
}

func duration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}
