package events

import "github.com/koscakluka/ema-studio/core/gating"

const (
	// KindPhaseChanged identifies an orchestrator phase transition.
	KindPhaseChanged Kind = "flow.phase_changed"
	// KindInputsChanged identifies a change of accepted input kinds.
	KindInputsChanged Kind = "input.gating_changed"
)

// PhaseChanged reports a phase transition by phase name.
type PhaseChanged struct {
	Base
	From string
	To   string
}

func NewPhaseChanged(from, to string) PhaseChanged {
	return PhaseChanged{Base: NewBase(KindPhaseChanged), From: from, To: to}
}

// InputsChanged carries the newly evaluated input gating.
type InputsChanged struct {
	Base
	Inputs gating.Inputs
}

func NewInputsChanged(inputs gating.Inputs) InputsChanged {
	return InputsChanged{Base: NewBase(KindInputsChanged), Inputs: inputs}
}
