package domain

import (
	"context"
	"strings"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
)

// TrafficUnavailable is the sentinel returned in place of a traffic
// reading when the remote call failed.
const TrafficUnavailable = float64(-1)

// Provider wraps the cloud account's remote surface. Implementations
// own retry/backoff; every returned error is an *APIError.
type Provider interface {
	// TrafficUsage returns total used traffic in GB for the account's
	// credentials.
	TrafficUsage(ctx context.Context, account accountdomain.Account) (float64, error)
	// InstanceStatus returns the instance power state. A
	// success-but-empty payload resolves to StatusUnknown with a nil
	// error; hard failures return an error.
	InstanceStatus(ctx context.Context, account accountdomain.Account) (Status, error)
	// ControlInstance issues a start or stop command. shutdownMode is
	// only meaningful for stop.
	ControlInstance(ctx context.Context, account accountdomain.Account, action InstanceAction, shutdownMode string) error
}

// DispatchResult aggregates per-channel notification outcomes.
type DispatchResult struct {
	Attempted int
	Succeeded int
	Errors    []string
}

// OK reports overall success: nothing to do counts as success, and one
// delivered channel is enough.
func (r DispatchResult) OK() bool {
	return r.Attempted == 0 || r.Succeeded > 0
}

// ErrorText renders the failed channels for the journal. Empty when
// every attempted channel succeeded.
func (r DispatchResult) ErrorText() string {
	if len(r.Errors) == 0 {
		return ""
	}
	joined := strings.Join(r.Errors, " | ")
	if r.Succeeded > 0 {
		return "部分完成: " + joined
	}
	return joined
}

// Dispatcher fans a logical event out to the configured channels.
type Dispatcher interface {
	NotifySchedule(ctx context.Context, set accountdomain.Settings, actionType string, account accountdomain.Account, description string) DispatchResult
	SendTrafficWarning(ctx context.Context, set accountdomain.Settings, accountKey string, traffic, percent float64, statusText string, threshold float64) DispatchResult
}
