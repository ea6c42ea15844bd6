// Package fault defines the error taxonomy shared by the dispatch path.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for routing and HTTP mapping decisions.
type Kind string

const (
	// Validation means client-provided data failed consistency checks. Never retried.
	Validation Kind = "VALIDATION"

	// BreakerOpen means a circuit breaker short-circuited the call.
	BreakerOpen Kind = "OPEN"

	// Transient means a timeout, network error, or 5xx. Eligible for retry.
	Transient Kind = "TRANSIENT"

	// Permanent means a non-retriable processor 4xx. Escalated to fallback.
	Permanent Kind = "PERMANENT"

	// Persistence means the ledger write failed after a successful processor call.
	Persistence Kind = "PERSISTENCE"

	// CacheDegraded means the cache is unreachable and memory fallback is in use.
	CacheDegraded Kind = "CACHE_DEGRADED"

	// Unavailable means both processors were exhausted.
	Unavailable Kind = "UNAVAILABLE"
)

// Fault is an error carrying a taxonomy kind.
type Fault struct {
	Kind Kind
	Msg  string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Msg, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Fault) Unwrap() error { return f.Err }

// New creates a Fault with no underlying cause.
func New(kind Kind, msg string) *Fault {
	return &Fault{Kind: kind, Msg: msg}
}

// Wrap creates a Fault wrapping an underlying error.
func Wrap(kind Kind, msg string, err error) *Fault {
	return &Fault{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, or Transient if err carries none.
// Transient is the safe default for unclassified failures: they stay
// retriable and escalate to the fallback processor.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return Transient
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}
