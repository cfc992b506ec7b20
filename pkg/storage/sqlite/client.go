package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SqliteClient wraps the local instrument-master cache database.
type SqliteClient struct {
	DB *gorm.DB
}

func NewClient(path string) (*SqliteClient, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return &SqliteClient{DB: db}, nil
}

// InitializeAndMigrateInstrumentRecord opens the cache and runs AutoMigrate.
func InitializeAndMigrateInstrumentRecord(path string) (*SqliteClient, error) {
	client, err := NewClient(path)
	if err != nil {
		return nil, err
	}
	if err := client.AutoMigrateInstrumentRecord(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return client, nil
}

func (c *SqliteClient) AutoMigrateInstrumentRecord() error {
	if err := c.DB.AutoMigrate(&InstrumentRecord{}); err != nil {
		return fmt.Errorf("auto-migrate instrument table: %w", err)
	}
	return nil
}

func (c *SqliteClient) IsHealthy(ctx context.Context) bool {
	db, err := c.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (c *SqliteClient) Close() error {
	db, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
