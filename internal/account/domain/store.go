package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAccountNotFound = errors.New("account not found")
)

// Store is the durable record of accounts, observations and settings.
type Store interface {
	LoadAccounts(ctx context.Context) ([]Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)

	// UpdateObservation commits a per-account observation. observedAt
	// is epoch seconds; callers pass the previous value unchanged when
	// the refresh did not yield a usable observation.
	UpdateObservation(ctx context.Context, id int64, obs Observation) error
	UpdateKeepAlive(ctx context.Context, id int64, at int64) error

	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, values map[string]string) error

	// SyncAccounts replaces the account list with the desired specs,
	// preserving observation state for specs whose access key id
	// matches an existing row.
	SyncAccounts(ctx context.Context, desired []AccountSpec) error

	AppendJournal(ctx context.Context, kind JournalKind, message string) error
	PruneJournal(ctx context.Context, before time.Time) error
	RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error)
}
