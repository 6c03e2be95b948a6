package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port                    string        `validate:"required,numeric"`
	Env                     string        `validate:"required"`
	StoreDriver             string        `validate:"oneof=memory mongo postgres sqlite"`
	MongoURI                string        `validate:"required_if=StoreDriver mongo"`
	MongoDatabase           string        `validate:"required"`
	PostgresUrl             string        `validate:"required_if=StoreDriver postgres"`
	SQLitePath              string        `validate:"required_if=StoreDriver sqlite"`
	JWTSecret               string        `validate:"required_without=FirebaseCredentialsPath"`
	FirebaseCredentialsPath string
	StoreTimeout            time.Duration `validate:"gt=0"`
	MaxRetries              int           `validate:"gte=0,lte=100"`
	SubscriberBuffer        int           `validate:"gt=0"`
}

// IsProduction reports whether ENV asks for production behavior.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads envFile (when present) into the process environment, then
// resolves every setting from the environment with defaults. An empty envFile
// means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", envFile, err)
		}
		slog.Debug("no env file found, using process environment", "path", envFile)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("MONGO_DATABASE", "socialmedia")
	v.SetDefault("SQLITE_PATH", "notifier.db")
	v.SetDefault("STORE_TIMEOUT", 5*time.Second)
	v.SetDefault("NOTIFY_MAX_RETRIES", 5)
	v.SetDefault("SUBSCRIBER_BUFFER", 16)

	cfg := &Config{
		Port:                    v.GetString("PORT"),
		Env:                     v.GetString("ENV"),
		StoreDriver:             v.GetString("STORE_DRIVER"),
		MongoURI:                v.GetString("MONGO_URI"),
		MongoDatabase:           v.GetString("MONGO_DATABASE"),
		PostgresUrl:             v.GetString("POSTGRES_URL"),
		SQLitePath:              v.GetString("SQLITE_PATH"),
		JWTSecret:               v.GetString("JWT_SECRET"),
		FirebaseCredentialsPath: v.GetString("FIREBASE_CREDENTIALS_PATH"),
		StoreTimeout:            v.GetDuration("STORE_TIMEOUT"),
		MaxRetries:              v.GetInt("NOTIFY_MAX_RETRIES"),
		SubscriberBuffer:        v.GetInt("SUBSCRIBER_BUFFER"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings against each other.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
