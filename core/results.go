package orchestration

import (
	"errors"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrInputGated is returned for triggers the gating policy currently
	// rejects.
	ErrInputGated = errors.New("input is not accepted right now")
	// ErrUnexpectedTrigger is returned for triggers that do not fit the
	// current phase. Nothing is mutated.
	ErrUnexpectedTrigger = errors.New("trigger does not fit the current phase")
	// ErrNothingToRetry is returned when the entry has no failed step.
	ErrNothingToRetry = errors.New("entry has no failed step to retry")
	// ErrServiceNotConfigured is reported as a service failure when a step
	// needs a client that was never configured.
	ErrServiceNotConfigured = errors.New("service client not configured")
	// ErrStepFailed is returned by calls that report a failed service step
	// to the caller directly. The cause is logged, never returned.
	ErrStepFailed = errors.New("step failed")
	// ErrAudioTooShort classifies a rejected utterance.
	ErrAudioTooShort = errors.New("audio too short")
)

type outcome int

const (
	outcomeSucceeded outcome = iota
	// outcomeInputRejected is recovered locally by re-prompting the user.
	outcomeInputRejected
	// outcomeServiceCallFailed is surfaced on the failing step's own entry.
	outcomeServiceCallFailed
	// outcomeSessionInvalidated is a stale result; it is dropped silently.
	outcomeSessionInvalidated
	// outcomeUnrecoverable forces a full reset.
	outcomeUnrecoverable
)

func (o outcome) String() string {
	switch o {
	case outcomeSucceeded:
		return "succeeded"
	case outcomeInputRejected:
		return "input_rejected"
	case outcomeServiceCallFailed:
		return "service_call_failed"
	case outcomeSessionInvalidated:
		return "session_invalidated"
	case outcomeUnrecoverable:
		return "unrecoverable"
	}
	return "unknown"
}

// stepResult is what a step executor hands back to the orchestrator.
// Executors never return raw errors past this boundary.
type stepResult[T any] struct {
	value   T
	outcome outcome
	err     error
}

func succeeded[T any](value T) stepResult[T] {
	return stepResult[T]{value: value, outcome: outcomeSucceeded}
}

func failed[T any](outcome outcome, err error) stepResult[T] {
	return stepResult[T]{outcome: outcome, err: err}
}

func (r stepResult[T]) ok() bool { return r.outcome == outcomeSucceeded }

// serviceFailure records err on span and classifies it as a failed service
// call.
func serviceFailure[T any](span trace.Span, err error) stepResult[T] {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return failed[T](outcomeServiceCallFailed, err)
}
