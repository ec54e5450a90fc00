package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
	"github.com/smallbiznis/trafficwarden/internal/clock"
	"github.com/smallbiznis/trafficwarden/internal/monitor/domain"
)

type fakeStore struct {
	accounts []accountdomain.Account
	settings accountdomain.Settings
	journal  []accountdomain.JournalEntry

	observationWrites []accountdomain.Observation
	keepAliveWrites   []int64
}

func (s *fakeStore) LoadAccounts(context.Context) ([]accountdomain.Account, error) {
	out := make([]accountdomain.Account, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

func (s *fakeStore) GetAccount(_ context.Context, id int64) (accountdomain.Account, error) {
	for _, a := range s.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return accountdomain.Account{}, accountdomain.ErrAccountNotFound
}

func (s *fakeStore) UpdateObservation(_ context.Context, id int64, obs accountdomain.Observation) error {
	s.observationWrites = append(s.observationWrites, obs)
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			s.accounts[i].TrafficUsed = obs.TrafficUsed
			s.accounts[i].InstanceStatus = obs.Status
			s.accounts[i].UpdatedAt = obs.ObservedAt
		}
	}
	return nil
}

func (s *fakeStore) UpdateKeepAlive(_ context.Context, id int64, at int64) error {
	s.keepAliveWrites = append(s.keepAliveWrites, at)
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			s.accounts[i].LastKeepAliveAt = at
		}
	}
	return nil
}

func (s *fakeStore) LoadSettings(context.Context) (accountdomain.Settings, error) {
	return s.settings, nil
}

func (s *fakeStore) SaveSettings(context.Context, map[string]string) error { return nil }
func (s *fakeStore) SyncAccounts(context.Context, []accountdomain.AccountSpec) error {
	return nil
}

func (s *fakeStore) AppendJournal(_ context.Context, kind accountdomain.JournalKind, message string) error {
	s.journal = append(s.journal, accountdomain.JournalEntry{Kind: kind, Message: message})
	return nil
}

func (s *fakeStore) PruneJournal(context.Context, time.Time) error { return nil }
func (s *fakeStore) RecentJournal(context.Context, int) ([]accountdomain.JournalEntry, error) {
	return s.journal, nil
}

type controlCall struct {
	action       domain.InstanceAction
	shutdownMode string
}

type fakeProvider struct {
	traffic    float64
	trafficErr error

	statuses    []domain.Status // consumed in order; last repeats
	statusErr   error
	statusReads int

	controls []controlCall
}

func (p *fakeProvider) TrafficUsage(context.Context, accountdomain.Account) (float64, error) {
	if p.trafficErr != nil {
		return domain.TrafficUnavailable, p.trafficErr
	}
	return p.traffic, nil
}

func (p *fakeProvider) InstanceStatus(context.Context, accountdomain.Account) (domain.Status, error) {
	p.statusReads++
	if p.statusErr != nil {
		return domain.StatusUnknown, p.statusErr
	}
	if len(p.statuses) == 0 {
		return domain.StatusUnknown, nil
	}
	status := p.statuses[0]
	if len(p.statuses) > 1 {
		p.statuses = p.statuses[1:]
	}
	return status, nil
}

func (p *fakeProvider) ControlInstance(_ context.Context, _ accountdomain.Account, action domain.InstanceAction, shutdownMode string) error {
	p.controls = append(p.controls, controlCall{action: action, shutdownMode: shutdownMode})
	return nil
}

type scheduleCall struct {
	actionType  string
	description string
}

type warningCall struct {
	traffic    float64
	percent    float64
	statusText string
	threshold  float64
}

type fakeDispatcher struct {
	schedules []scheduleCall
	warnings  []warningCall
	result    domain.DispatchResult
}

func (d *fakeDispatcher) NotifySchedule(_ context.Context, _ accountdomain.Settings, actionType string, _ accountdomain.Account, description string) domain.DispatchResult {
	d.schedules = append(d.schedules, scheduleCall{actionType: actionType, description: description})
	return d.result
}

func (d *fakeDispatcher) SendTrafficWarning(_ context.Context, _ accountdomain.Settings, _ string, traffic, percent float64, statusText string, threshold float64) domain.DispatchResult {
	d.warnings = append(d.warnings, warningCall{traffic: traffic, percent: percent, statusText: statusText, threshold: threshold})
	return d.result
}

type engineFixture struct {
	engine     *Engine
	store      *fakeStore
	provider   *fakeProvider
	dispatcher *fakeDispatcher
	clk        *clock.FakeClock
}

func defaultSettings() accountdomain.Settings {
	return accountdomain.Settings{
		TrafficThreshold: 95,
		ShutdownMode:     "KeepCharging",
		ThresholdAction:  accountdomain.ThresholdStopAndNotify,
		APIInterval:      600 * time.Second,
	}
}

// newFixture wires an engine around fakes. The clock starts at a fixed
// instant whose wall time is 10:30.
func newFixture(settings accountdomain.Settings, accounts ...accountdomain.Account) *engineFixture {
	store := &fakeStore{accounts: accounts, settings: settings}
	provider := &fakeProvider{traffic: 10, statuses: []domain.Status{domain.StatusRunning}}
	dispatcher := &fakeDispatcher{}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC))

	engine := NewEngine(zap.NewNop(), store, provider, dispatcher, clk)
	engine.statusRetryDelay = 0
	return &engineFixture{engine: engine, store: store, provider: provider, dispatcher: dispatcher, clk: clk}
}

func (f *engineFixture) epoch() int64 { return f.clk.Now().Unix() }

func baseAccount(f func(*accountdomain.Account)) accountdomain.Account {
	a := accountdomain.Account{
		ID:             1,
		AccessKeyID:    "LTAI5tExampleKey",
		RegionID:       "cn-hongkong",
		InstanceID:     "i-abc123",
		MaxTraffic:     100,
		InstanceStatus: "Running",
	}
	if f != nil {
		f(&a)
	}
	return a
}

func TestPassRefreshesStaleAccount(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(func(a *accountdomain.Account) {
		a.TrafficUsed = 5
		a.UpdatedAt = 0 // never observed
	}))
	f.provider.traffic = 42.5

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report, "无动作")
	assert.Contains(t, report, "流量:42.5%")
	assert.Contains(t, report, "已更新 [稳定态]")

	require.Len(t, f.store.observationWrites, 1)
	obs := f.store.observationWrites[0]
	assert.Equal(t, 42.5, obs.TrafficUsed)
	assert.Equal(t, "Running", obs.Status)
	assert.Equal(t, f.epoch(), obs.ObservedAt)
}

func TestPassServesFromCacheInsideInterval(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(func(a *accountdomain.Account) {
		a.TrafficUsed = 5
	}))
	f.store.accounts[0].UpdatedAt = f.epoch() - 100

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report, "缓存(500s)")
	assert.Empty(t, f.store.observationWrites)
	assert.Zero(t, f.provider.statusReads)
}

func TestTransientStatusUsesFastInterval(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(func(a *accountdomain.Account) {
		a.InstanceStatus = "Starting"
	}))
	f.store.accounts[0].UpdatedAt = f.epoch() - 100

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	// 100s old beats the 60s transient floor even though the normal
	// interval is 600s.
	assert.Contains(t, report, "已更新")
	require.Len(t, f.store.observationWrites, 1)
}

func TestFailedTrafficFetchPreservesCacheAndTimestamp(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(func(a *accountdomain.Account) {
		a.TrafficUsed = 33.3
	}))
	staleAt := f.epoch() - 700
	f.store.accounts[0].UpdatedAt = staleAt
	f.provider.trafficErr = &domain.APIError{Kind: domain.FaultServer, Op: "ListCdtInternetTraffic"}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report, "流量API异常(保留)")
	require.Len(t, f.store.observationWrites, 1)
	obs := f.store.observationWrites[0]
	assert.Equal(t, 33.3, obs.TrafficUsed)
	// A failed refresh never advances the observation timestamp, so
	// the next pass retries immediately.
	assert.Equal(t, staleAt, obs.ObservedAt)
}

func TestUnknownStatusRetriedOnceAndHoldsTimestamp(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(nil))
	staleAt := f.epoch() - 700
	f.store.accounts[0].UpdatedAt = staleAt
	f.provider.statuses = []domain.Status{domain.StatusUnknown, domain.StatusUnknown}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, f.provider.statusReads)
	assert.Contains(t, report, "(状态Unknown)")
	require.Len(t, f.store.observationWrites, 1)
	assert.Equal(t, staleAt, f.store.observationWrites[0].ObservedAt)
}

func TestUnknownStatusRecoversOnSecondRead(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(nil))
	f.store.accounts[0].UpdatedAt = f.epoch() - 700
	f.provider.statuses = []domain.Status{domain.StatusUnknown, domain.StatusRunning}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, f.provider.statusReads)
	assert.Contains(t, report, "已更新 [稳定态]")
	assert.Equal(t, f.epoch(), f.store.observationWrites[0].ObservedAt)
}

func TestBreakerStopsInstanceOverThreshold(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(nil))
	f.store.accounts[0].UpdatedAt = f.epoch() - 700
	f.provider.traffic = 96

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report, "超限关机")
	assert.Contains(t, report, "流量:96%[警告]")
	require.Len(t, f.provider.controls, 1)
	assert.Equal(t, domain.ActionStop, f.provider.controls[0].action)
	assert.Equal(t, "KeepCharging", f.provider.controls[0].shutdownMode)

	// The breaker force-writes Stopping with a fresh timestamp so the
	// fast interval takes over.
	last := f.store.observationWrites[len(f.store.observationWrites)-1]
	assert.Equal(t, "Stopping", last.Status)
	assert.Equal(t, f.epoch(), last.ObservedAt)

	require.Len(t, f.dispatcher.warnings, 1)
	w := f.dispatcher.warnings[0]
	assert.Equal(t, 96.0, w.percent)
	assert.Equal(t, "超限关机", w.statusText)
	assert.Equal(t, 95.0, w.threshold)
}

func TestBreakerSkipsCachedPass(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(func(a *accountdomain.Account) {
		a.TrafficUsed = 96
	}))
	f.store.accounts[0].UpdatedAt = f.epoch() - 100

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	// Over threshold but served from cache: flagged, never acted on.
	assert.Contains(t, report, "[警告]")
	assert.Contains(t, report, "无动作")
	assert.Empty(t, f.provider.controls)
	assert.Empty(t, f.dispatcher.warnings)
}

func TestBreakerIdempotentOnceStopped(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(nil))
	f.store.accounts[0].UpdatedAt = f.epoch() - 700
	f.provider.traffic = 96
	f.provider.statuses = []domain.Status{domain.StatusStopped}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.provider.controls)
	assert.Contains(t, report, "无动作")
	// The warning still goes out on every refreshing pass.
	require.Len(t, f.dispatcher.warnings, 1)
}

func TestThresholdNotifyOnlyNeverStops(t *testing.T) {
	set := defaultSettings()
	set.ThresholdAction = accountdomain.ThresholdNotifyOnly
	f := newFixture(set, baseAccount(nil))
	f.store.accounts[0].UpdatedAt = f.epoch() - 700
	f.provider.traffic = 100

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report, "超限告警")
	assert.Empty(t, f.provider.controls)
	require.Len(t, f.dispatcher.warnings, 1)
	assert.Equal(t, "超限告警", f.dispatcher.warnings[0].statusText)
}

func TestExactBoundaryTriggersBreaker(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(nil))
	f.store.accounts[0].UpdatedAt = f.epoch() - 700
	f.provider.traffic = 95 // exactly at the 95% threshold

	_, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, f.provider.controls, 1)
}

func TestScheduleStartFiresOnExactMinute(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(func(a *accountdomain.Account) {
		a.ScheduleEnabled = true
		a.StartTime = "10:30"
		a.StopTime = "22:00"
		a.InstanceStatus = "Stopped"
	}))
	f.store.accounts[0].UpdatedAt = f.epoch() - 10 // fresh, but schedule forces a refresh

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report, "定时启动")
	assert.Contains(t, report, "强制过渡态")
	require.Len(t, f.provider.controls, 1)
	assert.Equal(t, domain.ActionStart, f.provider.controls[0].action)

	require.Len(t, f.dispatcher.schedules, 1)
	assert.Equal(t, "定时启动", f.dispatcher.schedules[0].actionType)

	// The provisional write wins over whatever the refresh read.
	last := f.store.observationWrites[len(f.store.observationWrites)-1]
	assert.Equal(t, "Starting", last.Status)
	assert.Equal(t, f.epoch(), last.ObservedAt)
}

func TestScheduleStopUsesShutdownMode(t *testing.T) {
	set := defaultSettings()
	set.ShutdownMode = "StopCharging"
	f := newFixture(set, baseAccount(func(a *accountdomain.Account) {
		a.ScheduleEnabled = true
		a.StartTime = "08:00"
		a.StopTime = "10:30"
	}))

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report, "定时停止(StopCharging)")
	require.Len(t, f.provider.controls, 1)
	assert.Equal(t, domain.ActionStop, f.provider.controls[0].action)
	assert.Equal(t, "StopCharging", f.provider.controls[0].shutdownMode)

	last := f.store.observationWrites[len(f.store.observationWrites)-1]
	assert.Equal(t, "Stopping", last.Status)
}

func TestScheduleDisabledIgnoresTimes(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(func(a *accountdomain.Account) {
		a.ScheduleEnabled = false
		a.StartTime = "10:30"
	}))
	f.store.accounts[0].UpdatedAt = f.epoch() - 10

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report, "无动作")
	assert.Empty(t, f.provider.controls)
}

func TestKeepAliveRestartsStoppedInstanceInWindow(t *testing.T) {
	set := defaultSettings()
	set.KeepAlive = true
	f := newFixture(set, baseAccount(func(a *accountdomain.Account) {
		a.ScheduleEnabled = true
		a.StartTime = "08:00"
		a.StopTime = "22:00"
	}))
	f.store.accounts[0].UpdatedAt = f.epoch() - 700
	f.provider.statuses = []domain.Status{domain.StatusStopped}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report, "保活启动")
	require.Len(t, f.provider.controls, 1)
	assert.Equal(t, domain.ActionStart, f.provider.controls[0].action)
	require.Len(t, f.store.keepAliveWrites, 1)
	assert.Equal(t, f.epoch(), f.store.keepAliveWrites[0])

	last := f.store.observationWrites[len(f.store.observationWrites)-1]
	assert.Equal(t, "Starting", last.Status)
}

func TestKeepAliveHonorsCooldown(t *testing.T) {
	set := defaultSettings()
	set.KeepAlive = true
	f := newFixture(set, baseAccount(func(a *accountdomain.Account) {
		a.ScheduleEnabled = true
		a.StartTime = "08:00"
		a.StopTime = "22:00"
	}))
	f.store.accounts[0].UpdatedAt = f.epoch() - 700
	f.store.accounts[0].LastKeepAliveAt = f.epoch() - 900 // half the cooldown
	f.provider.statuses = []domain.Status{domain.StatusStopped}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Contains(t, report, "保活冷却:15m")
	assert.Empty(t, f.provider.controls)
	assert.Empty(t, f.store.keepAliveWrites)
}

func TestKeepAliveSkippedOutsideWindow(t *testing.T) {
	set := defaultSettings()
	set.KeepAlive = true
	f := newFixture(set, baseAccount(func(a *accountdomain.Account) {
		a.ScheduleEnabled = true
		a.StartTime = "12:00"
		a.StopTime = "22:00"
	}))
	f.store.accounts[0].UpdatedAt = f.epoch() - 700
	f.provider.statuses = []domain.Status{domain.StatusStopped}

	_, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.provider.controls)
}

func TestKeepAliveSkippedOverThreshold(t *testing.T) {
	set := defaultSettings()
	set.KeepAlive = true
	set.ThresholdAction = accountdomain.ThresholdNotifyOnly
	f := newFixture(set, baseAccount(func(a *accountdomain.Account) {
		a.ScheduleEnabled = true
		a.StartTime = "08:00"
		a.StopTime = "22:00"
	}))
	f.store.accounts[0].UpdatedAt = f.epoch() - 700
	f.provider.traffic = 99
	f.provider.statuses = []domain.Status{domain.StatusStopped}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	// Over-threshold accounts are never restarted.
	assert.NotContains(t, report, "保活启动")
	assert.Empty(t, f.provider.controls)
}

func TestFailedDispatchIsJournaled(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(nil))
	f.store.accounts[0].UpdatedAt = f.epoch() - 700
	f.provider.traffic = 96
	f.dispatcher.result = domain.DispatchResult{
		Attempted: 1,
		Errors:    []string{"Email: connection refused"},
	}

	_, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, f.store.journal)
	entry := f.store.journal[len(f.store.journal)-1]
	assert.Equal(t, accountdomain.JournalError, entry.Kind)
	assert.Contains(t, entry.Message, "Email: connection refused")
}

func TestRefreshAccountAppliesCachePolicyOnly(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(func(a *accountdomain.Account) {
		a.ScheduleEnabled = true
		a.StartTime = "10:30" // would fire in a pass
		a.TrafficUsed = 5
	}))
	staleAt := f.epoch() - 50
	f.store.accounts[0].UpdatedAt = staleAt
	f.provider.trafficErr = &domain.APIError{Kind: domain.FaultNetwork, Op: "ListCdtInternetTraffic"}

	require.NoError(t, f.engine.RefreshAccount(context.Background(), 1))

	// No schedule side effects, and the failed traffic read keeps both
	// the cached value and the old timestamp.
	assert.Empty(t, f.provider.controls)
	assert.Empty(t, f.dispatcher.schedules)
	require.Len(t, f.store.observationWrites, 1)
	assert.Equal(t, 5.0, f.store.observationWrites[0].TrafficUsed)
	assert.Equal(t, staleAt, f.store.observationWrites[0].ObservedAt)
}

func TestRefreshAccountUnknownID(t *testing.T) {
	f := newFixture(defaultSettings())
	assert.ErrorIs(t, f.engine.RefreshAccount(context.Background(), 42), accountdomain.ErrAccountNotFound)
}

func TestInWindow(t *testing.T) {
	tests := []struct {
		name                 string
		current, start, stop string
		want                 bool
	}{
		{"inside same-day window", "12:00", "08:00", "22:00", true},
		{"before same-day window", "07:59", "08:00", "22:00", false},
		{"at start", "08:00", "08:00", "22:00", true},
		{"at stop", "22:00", "08:00", "22:00", false},
		{"wraparound evening", "23:30", "22:00", "08:00", true},
		{"wraparound morning", "03:00", "22:00", "08:00", true},
		{"wraparound outside", "12:00", "22:00", "08:00", false},
		{"empty start", "12:00", "", "22:00", false},
		{"empty stop", "12:00", "08:00", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inWindow(tt.current, tt.start, tt.stop))
		})
	}
}

func TestReportLineLayout(t *testing.T) {
	f := newFixture(defaultSettings(), baseAccount(func(a *accountdomain.Account) {
		a.TrafficUsed = 12.345
	}))
	f.store.accounts[0].UpdatedAt = f.epoch() - 100

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	parts := strings.Split(report, " | ")
	require.Len(t, parts, 4)
	assert.Equal(t, "[LTAI5tExampleKey] 无动作", parts[0])
	assert.Equal(t, "流量:12.35%", parts[1])
	assert.Equal(t, "Running", parts[2])
}
