// Package service implements the reconciliation engine: one pass walks
// every account, applies schedule, refresh, threshold and keep-alive
// policy in order and commits the resulting observations.
package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
	"github.com/smallbiznis/trafficwarden/internal/clock"
	"github.com/smallbiznis/trafficwarden/internal/monitor/domain"
	"github.com/smallbiznis/trafficwarden/internal/observability/metrics"
)

const (
	// transientInterval is the refresh floor while an instance is in a
	// transitional or unknown state.
	transientInterval = 60 * time.Second
	// keepAliveCooldown bounds how often keep-alive may restart the
	// same instance.
	keepAliveCooldown = 1800 * time.Second
)

// Engine drives one reconciliation pass over all accounts.
type Engine struct {
	log        *zap.Logger
	store      accountdomain.Store
	provider   domain.Provider
	dispatcher domain.Dispatcher
	clk        clock.Clock
	locks      *accountLocks

	// statusRetryDelay is the wait before the single re-read when the
	// provider reports Unknown.
	statusRetryDelay time.Duration
}

func NewEngine(log *zap.Logger, store accountdomain.Store, provider domain.Provider, dispatcher domain.Dispatcher, clk clock.Clock) *Engine {
	return &Engine{
		log:              log.Named("monitor"),
		store:            store,
		provider:         provider,
		dispatcher:       dispatcher,
		clk:              clk,
		locks:            newAccountLocks(),
		statusRetryDelay: 500 * time.Millisecond,
	}
}

// RunPass reconciles every account once and returns the per-account
// report, one line per account in stored order.
func (e *Engine) RunPass(ctx context.Context) (string, error) {
	started := e.clk.Now()
	metrics.Monitor().IncPassRun()

	settings, err := e.store.LoadSettings(ctx)
	if err != nil {
		metrics.Monitor().IncPassError()
		return "", fmt.Errorf("load settings: %w", err)
	}
	accounts, err := e.store.LoadAccounts(ctx)
	if err != nil {
		metrics.Monitor().IncPassError()
		return "", fmt.Errorf("load accounts: %w", err)
	}

	lines := make([]string, 0, len(accounts))
	for _, account := range accounts {
		lines = append(lines, e.reconcileAccount(ctx, settings, account))
	}

	metrics.Monitor().ObservePass(e.clk.Now().Sub(started))
	return strings.Join(lines, "\n"), nil
}

// RefreshAccount fetches traffic and status for one account on demand
// and commits the observation under the normal cache-update policy. It
// applies no schedule, threshold or keep-alive logic.
func (e *Engine) RefreshAccount(ctx context.Context, id int64) error {
	account, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	lock := e.locks.get(account.AccessKeyID)
	lock.Lock()
	defer lock.Unlock()

	now := e.clk.Now().Unix()
	traffic, status := e.fetchObservation(ctx, account)

	observedAt := now
	if traffic == domain.TrafficUnavailable {
		traffic = account.TrafficUsed
		observedAt = account.UpdatedAt
	}
	if status == domain.StatusUnknown {
		observedAt = account.UpdatedAt
	}

	return e.store.UpdateObservation(ctx, account.ID, accountdomain.Observation{
		TrafficUsed: traffic,
		Status:      string(status),
		ObservedAt:  observedAt,
	})
}

func (e *Engine) reconcileAccount(ctx context.Context, set accountdomain.Settings, account accountdomain.Account) string {
	lock := e.locks.get(account.AccessKeyID)
	lock.Lock()
	defer lock.Unlock()

	now := e.clk.Now()
	nowEpoch := now.Unix()
	currentHM := now.Format("15:04")

	var actions []string
	forceRefresh := false
	statusTransformed := false

	// 1. Schedule: an exact wall-clock match fires the command, forces
	// a refresh and pushes the cache into a transitional state.
	if account.ScheduleEnabled {
		if account.StartTime != "" && currentHM == account.StartTime {
			e.controlInstance(ctx, account, domain.ActionStart, "")
			actions = append(actions, "定时启动")
			e.notifySchedule(ctx, set, "定时启动", account, "计划任务已触发，实例正在启动。")
			forceRefresh = true
			statusTransformed = true
		}
		if account.StopTime != "" && currentHM == account.StopTime {
			e.controlInstance(ctx, account, domain.ActionStop, set.ShutdownMode)
			actions = append(actions, fmt.Sprintf("定时停止(%s)", set.ShutdownMode))
			e.notifySchedule(ctx, set, "定时停止", account, "计划任务已触发，实例已停止。")
			forceRefresh = true
			statusTransformed = true
		}
	}

	// 2. Adaptive refresh: transitional or unknown cached state drags
	// the interval down to the fast floor.
	lastUpdate := account.UpdatedAt
	cachedStatus := domain.ParseStatus(account.InstanceStatus)
	interval := set.APIInterval
	if cachedStatus.Transient() || statusTransformed {
		interval = transientInterval
	}
	shouldCheck := forceRefresh || nowEpoch-lastUpdate > int64(interval/time.Second)

	var traffic float64
	var status domain.Status
	var apiLog string

	if shouldCheck {
		var newTraffic float64
		newTraffic, status = e.fetchObservation(ctx, account)

		observedAt := nowEpoch
		if newTraffic == domain.TrafficUnavailable {
			traffic = account.TrafficUsed
			apiLog = "流量API异常(保留)"
			observedAt = lastUpdate
		} else {
			traffic = newTraffic
			apiLog = "已更新"
		}

		if status == domain.StatusUnknown {
			observedAt = lastUpdate
			apiLog += "(状态Unknown)"
		} else if status.Transient() {
			apiLog += " [过渡态]"
		} else {
			apiLog += " [稳定态]"
		}

		e.commitObservation(ctx, account.ID, traffic, status, observedAt)

		outcome := metrics.CheckOutcomeRefreshed
		if observedAt == lastUpdate {
			outcome = metrics.CheckOutcomeDegraded
		}
		metrics.Monitor().IncAccountCheck(outcome)
	} else {
		traffic = account.TrafficUsed
		status = cachedStatus
		timeLeft := int64(interval/time.Second) - (nowEpoch - lastUpdate)
		apiLog = fmt.Sprintf("缓存(%ds)", timeLeft)
		metrics.Monitor().IncAccountCheck(metrics.CheckOutcomeCached)
	}

	// 3. Threshold breaker: only a pass that actually refreshed may
	// act, so a stale reading never shuts an instance down twice.
	usagePercent := domain.UsagePercent(traffic, account.MaxTraffic)
	trafficDesc := "流量:" + formatNumber(usagePercent) + "%"
	overThreshold := usagePercent >= set.TrafficThreshold

	if overThreshold {
		trafficDesc += "[警告]"
		if shouldCheck {
			if set.ThresholdAction == accountdomain.ThresholdStopAndNotify {
				if status != domain.StatusStopped {
					e.controlInstance(ctx, account, domain.ActionStop, set.ShutdownMode)
					actions = append(actions, "超限关机")
					// Persist Stopping right away so the next pass
					// stays on the fast interval.
					e.commitObservation(ctx, account.ID, traffic, domain.StatusStopping, nowEpoch)
					status = domain.StatusStopping
				}
			} else {
				actions = append(actions, "超限告警")
			}
			res := e.dispatcher.SendTrafficWarning(ctx, set, account.AccessKeyID, traffic, usagePercent, strings.Join(actions, ","), set.TrafficThreshold)
			e.recordDispatch(ctx, "流量告警", account, res)
		}
	}

	// 4. Keep-alive: restart an unexpectedly stopped instance inside
	// its scheduled window, rate limited by the cooldown.
	if set.KeepAlive && account.ScheduleEnabled && !overThreshold {
		if inWindow(currentHM, account.StartTime, account.StopTime) && status == domain.StatusStopped {
			sinceLast := nowEpoch - account.LastKeepAliveAt
			if sinceLast > int64(keepAliveCooldown/time.Second) {
				e.controlInstance(ctx, account, domain.ActionStart, "")
				actions = append(actions, "保活启动")
				e.notifySchedule(ctx, set, "保活启动", account, "检测到实例在工作时段非预期关机，已尝试自动启动。")
				if err := e.store.UpdateKeepAlive(ctx, account.ID, nowEpoch); err != nil {
					e.log.Error("keep-alive stamp failed", zap.String("account", account.MaskedID()), zap.Error(err))
				}
				e.commitObservation(ctx, account.ID, traffic, domain.StatusStarting, nowEpoch)
				status = domain.StatusStarting
			} else {
				cooldownLeft := int64(math.Ceil(float64(int64(keepAliveCooldown/time.Second)-sinceLast) / 60))
				apiLog += fmt.Sprintf(" [保活冷却:%dm]", cooldownLeft)
			}
		}
	}

	// 5. A schedule command that just fired overrides whatever the
	// refresh read with the matching transitional state.
	if statusTransformed {
		provisional := domain.StatusStopping
		for _, a := range actions {
			if a == "定时启动" {
				provisional = domain.StatusStarting
				break
			}
		}
		e.commitObservation(ctx, account.ID, traffic, provisional, nowEpoch)
		apiLog += " -> 强制过渡态"
	}

	for _, a := range actions {
		metrics.Monitor().IncAction(a)
	}

	// 6. Report line.
	actionLog := "无动作"
	if len(actions) > 0 {
		actionLog = strings.Join(actions, ", ")
	}
	return fmt.Sprintf("[%s] %s | %s | %s | %s", account.AccessKeyID, actionLog, trafficDesc, status, apiLog)
}

// fetchObservation reads traffic and status, collapsing provider
// errors to their sentinels. An Unknown status gets one delayed
// re-read before it is accepted.
func (e *Engine) fetchObservation(ctx context.Context, account accountdomain.Account) (float64, domain.Status) {
	traffic, err := e.provider.TrafficUsage(ctx, account)
	if err != nil {
		e.log.Warn("traffic fetch failed", zap.String("account", account.MaskedID()), zap.Error(err))
		traffic = domain.TrafficUnavailable
	}

	status := e.readStatus(ctx, account)
	if status == domain.StatusUnknown {
		select {
		case <-time.After(e.statusRetryDelay):
		case <-ctx.Done():
			return traffic, status
		}
		status = e.readStatus(ctx, account)
	}
	return traffic, status
}

func (e *Engine) readStatus(ctx context.Context, account accountdomain.Account) domain.Status {
	status, err := e.provider.InstanceStatus(ctx, account)
	if err != nil {
		e.log.Warn("status fetch failed", zap.String("account", account.MaskedID()), zap.Error(err))
		return domain.StatusUnknown
	}
	return status
}

func (e *Engine) commitObservation(ctx context.Context, id int64, traffic float64, status domain.Status, observedAt int64) {
	err := e.store.UpdateObservation(ctx, id, accountdomain.Observation{
		TrafficUsed: traffic,
		Status:      string(status),
		ObservedAt:  observedAt,
	})
	if err != nil {
		e.log.Error("observation write failed", zap.Int64("account_id", id), zap.Error(err))
		e.journal(ctx, accountdomain.JournalError, fmt.Sprintf("观测写入失败 (account %d): %v", id, err))
	}
}

func (e *Engine) controlInstance(ctx context.Context, account accountdomain.Account, action domain.InstanceAction, shutdownMode string) {
	if err := e.provider.ControlInstance(ctx, account, action, shutdownMode); err != nil {
		e.log.Error("instance command failed",
			zap.String("account", account.MaskedID()),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		e.journal(ctx, accountdomain.JournalError, fmt.Sprintf("[%s] %s 指令失败: %v", account.MaskedID(), action, err))
	}
}

func (e *Engine) notifySchedule(ctx context.Context, set accountdomain.Settings, actionType string, account accountdomain.Account, description string) {
	res := e.dispatcher.NotifySchedule(ctx, set, actionType, account, description)
	e.recordDispatch(ctx, actionType, account, res)
}

func (e *Engine) recordDispatch(ctx context.Context, event string, account accountdomain.Account, res domain.DispatchResult) {
	text := res.ErrorText()
	if text == "" {
		return
	}
	kind := accountdomain.JournalError
	if res.OK() {
		kind = accountdomain.JournalWarning
	}
	e.journal(ctx, kind, fmt.Sprintf("[%s] %s 通知: %s", account.MaskedID(), event, text))
}

func (e *Engine) journal(ctx context.Context, kind accountdomain.JournalKind, message string) {
	if err := e.store.AppendJournal(ctx, kind, message); err != nil {
		e.log.Error("journal append failed", zap.Error(err))
	}
}

// inWindow reports whether current falls inside [start, stop), both
// "HH:MM". A window crossing midnight wraps.
func inWindow(current, start, stop string) bool {
	if start == "" || stop == "" {
		return false
	}
	if start < stop {
		return current >= start && current < stop
	}
	return current >= start || current < stop
}

// formatNumber prints a float without trailing zeros, matching the
// report's historical formatting.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
