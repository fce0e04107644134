package orchestrator

import (
	"errors"
	"fmt"
)

// ErrSnapshotAudit aborts a run whose stage statistics are internally
// inconsistent.
var ErrSnapshotAudit = errors.New("snapshot audit failed")

// ConfigError is a caller-side configuration problem detected before any
// sampling starts.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ExhaustionError aborts a run when one template keeps failing.
type ExhaustionError struct {
	TemplateID  int
	Fingerprint string
	Failures    int
	Limit       int
	Collected   int
	LastErr     error
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("sampling exhausted for template %d: %d failures (limit %d, %d samples collected): %v",
		e.TemplateID, e.Failures, e.Limit, e.Collected, e.LastErr)
}

func (e *ExhaustionError) Unwrap() error { return e.LastErr }
