// Package repository implements the account store over gorm/SQLite.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/trafficwarden/internal/account/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log.Named("store")}
}

var _ domain.Store = (*Store)(nil)

func (s *Store) LoadAccounts(ctx context.Context) ([]domain.Account, error) {
	var accounts []domain.Account
	if err := s.db.WithContext(ctx).Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (domain.Account, error) {
	var account domain.Account
	err := s.db.WithContext(ctx).First(&account, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, err
}

func (s *Store) UpdateObservation(ctx context.Context, id int64, obs domain.Observation) error {
	return s.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"traffic_used":    obs.TrafficUsed,
			"instance_status": obs.Status,
			"updated_at":      obs.ObservedAt,
		}).Error
}

func (s *Store) UpdateKeepAlive(ctx context.Context, id int64, at int64) error {
	return s.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		UpdateColumn("last_keep_alive_at", at).Error
}

func (s *Store) LoadSettings(ctx context.Context) (domain.Settings, error) {
	var rows []domain.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return domain.Settings{}, err
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return domain.ParseSettings(values), nil
}

func (s *Store) SaveSettings(ctx context.Context, values map[string]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			if err := tx.Exec(
				`INSERT INTO settings (key, value) VALUES (?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				key, value,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SyncAccounts replaces the account list while carrying over the
// accumulated observation state keyed by access key id, so editing an
// account's schedule or quota never resets what the monitor has
// learned about it.
func (s *Store) SyncAccounts(ctx context.Context, desired []domain.AccountSpec) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []domain.Account
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}
		carry := make(map[string]domain.Account, len(existing))
		for _, account := range existing {
			carry[account.AccessKeyID] = account
		}

		if err := tx.Exec(`DELETE FROM accounts`).Error; err != nil {
			return err
		}

		for _, spec := range desired {
			account := domain.Account{
				AccessKeyID:     spec.AccessKeyID,
				AccessKeySecret: spec.AccessKeySecret,
				RegionID:        spec.RegionID,
				InstanceID:      spec.InstanceID,
				MaxTraffic:      spec.MaxTraffic,
				ScheduleEnabled: spec.ScheduleEnabled,
				StartTime:       spec.StartTime,
				StopTime:        spec.StopTime,
				InstanceStatus:  "Unknown",
			}
			if prev, ok := carry[spec.AccessKeyID]; ok {
				account.TrafficUsed = prev.TrafficUsed
				account.InstanceStatus = prev.InstanceStatus
				account.UpdatedAt = prev.UpdatedAt
				account.LastKeepAliveAt = prev.LastKeepAliveAt
			}
			if err := tx.Create(&account).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) AppendJournal(ctx context.Context, kind domain.JournalKind, message string) error {
	entry := domain.JournalEntry{
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&entry).Error
}

func (s *Store) PruneJournal(ctx context.Context, before time.Time) error {
	return s.db.WithContext(ctx).
		Where("created_at < ?", before.Unix()).
		Delete(&domain.JournalEntry{}).Error
}

func (s *Store) RecentJournal(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []domain.JournalEntry
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
