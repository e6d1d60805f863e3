// Package gating decides which kinds of user input the presentation layer
// should currently accept.
package gating

import "github.com/koscakluka/ema-studio/core/transcript"

// State is everything the policy looks at. It is rebuilt from the
// orchestrator after every mutation and never cached across a step.
type State struct {
	StepInFlight            bool
	AwaitingImage           bool
	CaptionEditing          bool
	AwaitingPreviewDecision bool
	// LastEntryChoice is the unresolved choice requested by the most recent
	// transcript entry, if any.
	LastEntryChoice transcript.Choice
}

type Inputs struct {
	Voice      bool `json:"voice"`
	FilePicker bool `json:"file_picker"`
	// Options reports whether choice buttons attached to entries are live.
	Options bool `json:"options"`
}

func Evaluate(s State) Inputs {
	if s.StepInFlight {
		return Inputs{}
	}

	lastIsOpenChoice := s.LastEntryChoice == transcript.ChoiceOutputFormat ||
		s.LastEntryChoice == transcript.ChoiceCompositionMode

	return Inputs{
		Voice: !s.AwaitingImage &&
			!s.CaptionEditing &&
			!s.AwaitingPreviewDecision &&
			!lastIsOpenChoice,
		FilePicker: s.AwaitingImage && !s.CaptionEditing,
		Options:    !s.CaptionEditing,
	}
}
