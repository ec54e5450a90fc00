package service

import (
	"context"
	"fmt"
	"time"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
	"github.com/smallbiznis/trafficwarden/internal/monitor/domain"
)

// Snapshot returns the dashboard view of every account. Stale rows are
// refreshed under the same adaptive-interval and cache-update policy
// as a reconciliation pass, but no schedule, threshold or keep-alive
// logic runs here.
func (e *Engine) Snapshot(ctx context.Context) ([]domain.AccountStatus, error) {
	set, err := e.store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	accounts, err := e.store.LoadAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	rows := make([]domain.AccountStatus, 0, len(accounts))
	for _, account := range accounts {
		rows = append(rows, e.snapshotAccount(ctx, set, account))
	}
	return rows, nil
}

func (e *Engine) snapshotAccount(ctx context.Context, set accountdomain.Settings, account accountdomain.Account) domain.AccountStatus {
	lock := e.locks.get(account.AccessKeyID)
	lock.Lock()
	defer lock.Unlock()

	now := e.clk.Now()
	nowEpoch := now.Unix()

	lastUpdate := account.UpdatedAt
	cachedStatus := domain.ParseStatus(account.InstanceStatus)
	interval := set.APIInterval
	if cachedStatus.Transient() {
		interval = transientInterval
	}

	traffic := account.TrafficUsed
	status := cachedStatus

	if nowEpoch-lastUpdate > int64(interval/time.Second) {
		var newTraffic float64
		newTraffic, status = e.fetchObservation(ctx, account)

		observedAt := nowEpoch
		if newTraffic == domain.TrafficUnavailable {
			observedAt = lastUpdate
		} else {
			traffic = newTraffic
		}
		if status == domain.StatusUnknown {
			observedAt = lastUpdate
		}
		e.commitObservation(ctx, account.ID, traffic, status, observedAt)
	}

	usagePercent := domain.UsagePercent(traffic, account.MaxTraffic)

	displayedAt := lastUpdate
	if displayedAt <= 0 {
		displayedAt = nowEpoch
	}

	return domain.AccountStatus{
		ID:             account.ID,
		Account:        account.MaskedID(),
		FlowTotal:      account.MaxTraffic,
		FlowUsed:       domain.Round2(traffic),
		UsagePercent:   usagePercent,
		Region:         account.RegionID,
		RegionName:     domain.RegionName(account.RegionID),
		OverThreshold:  usagePercent >= set.TrafficThreshold,
		Threshold:      set.TrafficThreshold,
		InstanceStatus: status,
		LastUpdated:    time.Unix(displayedAt, 0).Format("2006-01-02 15:04:05"),
	}
}
