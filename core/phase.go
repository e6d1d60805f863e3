package orchestration

// Phase is the single explicit state of the conversation.
type Phase int

const (
	PhaseIdle Phase = iota
	// PhaseTranscribing covers an utterance from upload until its text is
	// known.
	PhaseTranscribing
	// PhaseResponding covers the dialogue turn that follows a transcription.
	PhaseResponding
	PhaseAwaitingFormatChoice
	PhaseAwaitingImage
	PhaseAwaitingPreviewDecision
	PhaseAwaitingCompositionChoice
	PhaseGeneratingMedia
	PhaseAwaitingCaptionDecision
	PhaseCaptionEditing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseTranscribing:
		return "Transcribing"
	case PhaseResponding:
		return "Responding"
	case PhaseAwaitingFormatChoice:
		return "AwaitingFormatChoice"
	case PhaseAwaitingImage:
		return "AwaitingImage"
	case PhaseAwaitingPreviewDecision:
		return "AwaitingPreviewDecision"
	case PhaseAwaitingCompositionChoice:
		return "AwaitingCompositionChoice"
	case PhaseGeneratingMedia:
		return "GeneratingMedia"
	case PhaseAwaitingCaptionDecision:
		return "AwaitingCaptionDecision"
	case PhaseCaptionEditing:
		return "CaptionEditing"
	}
	return "Unknown"
}

// acceptsVoice reports whether a new utterance may start from p.
func (p Phase) acceptsVoice() bool {
	switch p {
	case PhaseIdle, PhaseAwaitingFormatChoice, PhaseAwaitingCompositionChoice,
		PhaseGeneratingMedia, PhaseAwaitingCaptionDecision:
		return true
	}
	return false
}
