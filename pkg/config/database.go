package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/anonto42/nano-midea/notifier/internal/repositories"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DB holds the stores selected by STORE_DRIVER and the connections behind them
type DB struct {
	Notifications repositories.NotificationRepository
	Users         repositories.UserRepository
	Postgres      *gorm.DB
	Mongo         *mongo.Client
}

// InitDB opens the configured store. Postgres additionally backs the user
// directory; every other driver uses an in-memory directory.
func InitDB(ctx context.Context, cfg *Config, logger *slog.Logger) (*DB, error) {
	db := &DB{}

	switch cfg.StoreDriver {
	case DriverMemory:
		db.Notifications = repositories.NewMemoryNotificationRepository()

	case DriverSQLite:
		repo, err := repositories.NewSQLiteNotificationRepository(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		db.Notifications = repo
		logger.Info("SQLite store ready", "path", cfg.SQLitePath)

	case DriverMongo:
		client, err := initMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		db.Mongo = client
		repo, err := repositories.NewMongoNotificationRepository(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			db.CloseDB(ctx, logger)
			return nil, fmt.Errorf("failed to prepare MongoDB collection: %w", err)
		}
		db.Notifications = repo
		logger.Info("Successfully connected to MongoDB!", "database", cfg.MongoDatabase)

	case DriverPostgres:
		pg, err := initPostgres(ctx, cfg.PostgresUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		db.Postgres = pg
		if err := pg.WithContext(ctx).AutoMigrate(&models.User{}, &models.NotificationThread{}); err != nil {
			db.CloseDB(ctx, logger)
			return nil, fmt.Errorf("failed to auto migrate models: %w", err)
		}
		db.Notifications = repositories.NewPostgresNotificationRepository(pg)
		db.Users = repositories.NewPostgresUserRepository(pg)
		logger.Info("Successfully connected to PostgreSQL!")

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if db.Users == nil {
		db.Users = repositories.NewMemoryUserRepository()
	}
	return db, nil
}

// initPostgres initializes the PostgreSQL database connection using GORM.
// TranslateError lets the repository see unique violations as gorm.ErrDuplicatedKey.
func initPostgres(ctx context.Context, connStr string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(connStr), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	// Ping the database to verify connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err = sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// initMongo initializes the MongoDB connection
func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping the primary to verify connection
	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// CloseDB closes the store and its connections
func (db *DB) CloseDB(ctx context.Context, logger *slog.Logger) {
	var errs []error
	if db.Notifications != nil {
		errs = append(errs, db.Notifications.Close(ctx))
	}

	if db.Postgres != nil {
		sqlDB, err := db.Postgres.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		errs = append(errs, err)
	}

	if db.Mongo != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		errs = append(errs, db.Mongo.Disconnect(ctx))
	}

	if err := errors.Join(errs...); err != nil {
		logger.Warn("Error closing database connections", "error", err)
		return
	}
	logger.Info("Database connections closed.")
}
