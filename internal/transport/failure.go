package transport

import (
	"errors"
	"fmt"

	"ferry/internal/services"
)

// Kind is the closed set of attempt failure categories.
type Kind int

const (
	// KindNone: no failure; the kind of a successful attempt.
	KindNone Kind = iota
	// KindBlocked: the origin answered with a bot check or auth wall.
	KindBlocked
	// KindNotFound: the item is absent for this route.
	KindNotFound
	// KindTimeout: the network call did not complete.
	KindTimeout
	// KindCorrupt: the call finished but produced no usable payload.
	KindCorrupt
	// KindUnavailable: the strategy cannot run here (no cookie file, relay
	// not configured, binary missing). Never retried, never NotFound.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBlocked:
		return "blocked"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindCorrupt:
		return "corrupt"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Transient reports whether the same strategy may be retried for this kind.
func (k Kind) Transient() bool { return k == KindTimeout || k == KindCorrupt }

// Failure is the only error type strategies return.
type Failure struct {
	Kind     Kind
	Strategy string
	Err      error
}

// Fail builds a Failure.
func Fail(kind Kind, strategy string, err error) *Failure {
	return &Failure{Kind: kind, Strategy: strategy, Err: err}
}

// Failf builds a Failure from a format string.
func Failf(kind Kind, strategy, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Strategy: strategy, Err: fmt.Errorf(format, args...)}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Strategy, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", f.Strategy, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is lets errors.Is match a Failure against the shared service markers.
func (f *Failure) Is(target error) bool {
	switch target {
	case services.ErrBlocked:
		return f.Kind == KindBlocked
	case services.ErrNotFound:
		return f.Kind == KindNotFound
	case services.ErrTimeout:
		return f.Kind == KindTimeout
	case services.ErrTransient:
		return f.Kind == KindCorrupt
	}
	return false
}

// KindOf extracts the failure kind from err. Errors that are not a
// *Failure are reported as KindCorrupt so they stay retryable.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindCorrupt
}

// Outcome is the per-attempt result recorded for reporting.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransientFailure
	OutcomePermanentFailure
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransientFailure:
		return "transient_failure"
	case OutcomePermanentFailure:
		return "permanent_failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// OutcomeFor maps a failure kind to its recorded outcome.
func OutcomeFor(kind Kind) Outcome {
	switch kind {
	case KindNone:
		return OutcomeSuccess
	case KindTimeout:
		return OutcomeTimeout
	case KindNotFound, KindUnavailable:
		return OutcomePermanentFailure
	default:
		return OutcomeTransientFailure
	}
}
