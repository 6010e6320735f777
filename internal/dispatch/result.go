// Package dispatch invokes registry tools with timeouts, retries and failure classification.
package dispatch

import "time"

// Status classifies the outcome of a tool invocation
type Status int

const (
	StatusOk Status = iota
	StatusPermissionDenied
	StatusNotFound
	StatusNetworkError
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "OK"
	case StatusPermissionDenied:
		return "PERMISSION_DENIED"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNetworkError:
		return "NETWORK_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Retryable reports whether a result of this status may be retried automatically
func (s Status) Retryable() bool {
	return s == StatusNetworkError
}

// Result is the outcome of one Invoke
type Result struct {
	Status Status
	// Payload is caller-facing text: the tool output on success, a sanitized message otherwise
	Payload string
	// Remediation is a concrete corrective action for PermissionDenied
	Remediation string
	// Diagnostic is the raw failure for operators; never shown to callers
	Diagnostic string
	IncidentID string
	Attempts   int
	Duration   time.Duration
}

// OK reports whether the call succeeded
func (r Result) OK() bool {
	return r.Status == StatusOk
}
