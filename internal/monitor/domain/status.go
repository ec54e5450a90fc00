// Package domain defines the reconciliation engine's types: the
// instance status state machine, the provider fault taxonomy and the
// contracts the engine consumes.
package domain

// Status is the closed set of instance power states. Anything the
// provider reports outside this set collapses to StatusUnknown.
type Status string

const (
	StatusUnknown  Status = "Unknown"
	StatusPending  Status = "Pending"
	StatusStarting Status = "Starting"
	StatusStopping Status = "Stopping"
	StatusRunning  Status = "Running"
	StatusStopped  Status = "Stopped"
)

// Transient reports whether the state is expected to change soon and
// therefore warrants the fast polling interval.
func (s Status) Transient() bool {
	switch s {
	case StatusStarting, StatusStopping, StatusPending, StatusUnknown:
		return true
	default:
		return false
	}
}

// ParseStatus maps a persisted or provider-reported status string onto
// the closed enum.
func ParseStatus(raw string) Status {
	switch Status(raw) {
	case StatusPending, StatusStarting, StatusStopping, StatusRunning, StatusStopped:
		return Status(raw)
	default:
		return StatusUnknown
	}
}

// InstanceAction is a power control command.
type InstanceAction string

const (
	ActionStart InstanceAction = "start"
	ActionStop  InstanceAction = "stop"
)
