package events

import "github.com/koscakluka/ema-studio/core/transcript"

const (
	// KindStepStarted identifies the start of a step executor.
	KindStepStarted Kind = "step.started"
	// KindStepFailed identifies a failed step executor.
	KindStepFailed Kind = "step.failed"
	// KindStepDiscarded identifies a stale step result that was dropped.
	KindStepDiscarded Kind = "step.discarded"
)

// StepStarted marks the start of step for the entry owning CorrelationID.
// CorrelationID is zero when the step has no placeholder.
type StepStarted struct {
	Base
	Step          string
	CorrelationID transcript.CorrelationID
}

func NewStepStarted(step string, id transcript.CorrelationID) StepStarted {
	return StepStarted{Base: NewBase(KindStepStarted), Step: step, CorrelationID: id}
}

// StepFailed reports a step failure. Outcome names how the failure was
// handled, for example "service_call_failed" or "unrecoverable".
type StepFailed struct {
	Base
	Step          string
	CorrelationID transcript.CorrelationID
	Outcome       string
	Err           error
}

func NewStepFailed(step string, id transcript.CorrelationID, outcome string, err error) StepFailed {
	return StepFailed{Base: NewBase(KindStepFailed), Step: step, CorrelationID: id, Outcome: outcome, Err: err}
}

// StepDiscarded reports a step that settled after the session was reset.
type StepDiscarded struct {
	Base
	Step          string
	CorrelationID transcript.CorrelationID
}

func NewStepDiscarded(step string, id transcript.CorrelationID) StepDiscarded {
	return StepDiscarded{Base: NewBase(KindStepDiscarded), Step: step, CorrelationID: id}
}
