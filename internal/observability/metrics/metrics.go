package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics captures reconciliation pass health signals.
type MonitorMetrics struct {
	passRuns      prometheus.Counter
	passDuration  prometheus.Histogram
	passErrors    prometheus.Counter
	accountChecks *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	actions       *prometheus.CounterVec
	notifySends   *prometheus.CounterVec
}

const (
	CheckOutcomeRefreshed = "refreshed"
	CheckOutcomeCached    = "cached"
	CheckOutcomeDegraded  = "degraded"
)

var (
	monitorOnce sync.Once
	monitor     *MonitorMetrics
)

// Monitor returns the process-wide monitor metrics, registering them on
// first use.
func Monitor() *MonitorMetrics {
	monitorOnce.Do(func() {
		monitor = newMonitorMetrics(prometheus.DefaultRegisterer)
	})
	return monitor
}

func newMonitorMetrics(reg prometheus.Registerer) *MonitorMetrics {
	m := &MonitorMetrics{
		passRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficwarden_pass_runs_total",
			Help: "Reconciliation passes started.",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficwarden_pass_duration_seconds",
			Help:    "Wall time of a full reconciliation pass.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		passErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficwarden_pass_errors_total",
			Help: "Reconciliation passes that returned a top-level error.",
		}),
		accountChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficwarden_account_checks_total",
			Help: "Per-account evaluations by outcome.",
		}, []string{"outcome"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficwarden_provider_calls_total",
			Help: "Cloud provider calls by operation and result.",
		}, []string{"op", "result"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficwarden_actions_total",
			Help: "Side-effecting actions taken by the engine.",
		}, []string{"action"}),
		notifySends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficwarden_notification_sends_total",
			Help: "Notification channel attempts by outcome.",
		}, []string{"channel", "outcome"}),
	}
	for _, c := range []prometheus.Collector{
		m.passRuns, m.passDuration, m.passErrors, m.accountChecks, m.providerCalls, m.actions, m.notifySends,
	} {
		_ = reg.Register(c)
	}
	return m
}

func (m *MonitorMetrics) IncPassRun()                 { m.passRuns.Inc() }
func (m *MonitorMetrics) IncPassError()               { m.passErrors.Inc() }
func (m *MonitorMetrics) ObservePass(d time.Duration) { m.passDuration.Observe(d.Seconds()) }

func (m *MonitorMetrics) IncAccountCheck(outcome string) {
	m.accountChecks.WithLabelValues(outcome).Inc()
}

func (m *MonitorMetrics) IncProviderCall(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.providerCalls.WithLabelValues(op, result).Inc()
}

func (m *MonitorMetrics) IncAction(action string) {
	m.actions.WithLabelValues(action).Inc()
}

func (m *MonitorMetrics) IncNotifySend(channel string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.notifySends.WithLabelValues(channel, outcome).Inc()
}
