// Package postgres implements the matcher repositories on PostgreSQL with gorm.
package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options holds connection settings
type Options struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
	AutoMigrate     bool
}

// Open connects to PostgreSQL, applies pool settings and optionally migrates the schema
func Open(opts Options, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pgConfig := postgres.Config{
		DSN:                  opts.DSN,
		PreferSimpleProtocol: true,
	}

	db, err := gorm.Open(postgres.New(pgConfig), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(opts.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", domain.ErrStoreUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if opts.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	log.Info("Database connected",
		zap.Int("max_open_conns", opts.MaxOpenConns),
		zap.Bool("auto_migrate", opts.AutoMigrate))
	return db, nil
}

// Migrate creates or updates the products, videos and match_jobs tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Product{}, &domain.Video{}, &domain.MatchJob{}); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
