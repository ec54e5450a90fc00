// Package migration creates the SQLite schema on startup so the agent
// is usable out of the box with an empty data directory.
package migration

import (
	"errors"

	"gorm.io/gorm"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
)

func Run(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(
		&accountdomain.Account{},
		&accountdomain.Setting{},
		&accountdomain.JournalEntry{},
	)
}
