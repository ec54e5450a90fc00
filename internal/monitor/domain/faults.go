package domain

import (
	"errors"
	"fmt"
)

// FaultKind classifies provider call failures for retry and reporting.
type FaultKind string

const (
	// FaultClient covers bad credentials or malformed requests. Not
	// retried unless the fault is a rate-limit signal.
	FaultClient FaultKind = "client"
	// FaultServer covers remote 5xx faults, retried to the cap.
	FaultServer FaultKind = "server"
	// FaultNetwork covers timeouts and connectivity, retried to the cap.
	FaultNetwork FaultKind = "network"
	// FaultData covers success-shaped responses missing expected
	// fields. Callers treat it as a soft failure sentinel.
	FaultData FaultKind = "data"
)

// APIError is the only error type the cloud provider client returns.
type APIError struct {
	Kind FaultKind
	Op   string
	Code string
	// RateLimited marks the client faults that are still worth
	// retrying, with doubled backoff.
	RateLimited bool
	Err         error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s fault (%s): %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s fault: %v", e.Op, e.Kind, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the retry policy may attempt the call again.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case FaultServer, FaultNetwork:
		return true
	case FaultClient:
		return e.RateLimited
	default:
		return false
	}
}

// AsAPIError unwraps err to an APIError if there is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
