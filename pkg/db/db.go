// Package db opens the SQLite state store. The store is a single file;
// an unopenable file is an initialization fault that aborts startup.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/trafficwarden/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var Module = fx.Module("db",
	fx.Provide(Open),
)

// Open opens (creating if needed) the SQLite database at cfg.DBPath.
func Open(cfg config.Config) (*gorm.DB, error) {
	dir := filepath.Dir(cfg.DBPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	conn, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %s: %w", cfg.DBPath, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under the dashboard + scheduler overlap.
	sqlDB.SetMaxOpenConns(1)

	return conn, nil
}
