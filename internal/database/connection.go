// Package database provides the postgres-backed stores for clients and
// unified cost records, plus in-memory implementations for tests and
// standalone runs.
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jscharber/costlens/internal/database/models"
	"github.com/jscharber/costlens/pkg/config"
)

// Connection wraps the gorm database handle.
type Connection struct {
	db  *gorm.DB
	cfg config.DatabaseConfig
}

// NewConnection opens a postgres connection with the configured pool
// settings, optionally running migrations.
func NewConnection(cfg config.DatabaseConfig) (*Connection, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	conn := &Connection{db: db, cfg: cfg}
	if cfg.AutoMigrate {
		if err := conn.Migrate(); err != nil {
			return nil, err
		}
	}
	return conn, nil
}

// Migrate creates or updates the schema for all models.
func (c *Connection) Migrate() error {
	if err := c.db.AutoMigrate(&models.Client{}, &models.CostRecord{}); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// DB returns the underlying gorm handle.
func (c *Connection) DB() *gorm.DB {
	return c.db
}

// HealthCheck pings the database with a short timeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// Close releases the connection pool.
func (c *Connection) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
