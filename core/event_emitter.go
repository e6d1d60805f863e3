package orchestration

import "github.com/koscakluka/ema-studio/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(opts callbackOptions) eventEmitter {
	if opts.onEvent == nil && opts.onTranscript == nil && opts.onPhase == nil &&
		opts.onInputs == nil && opts.onTranscription == nil {
		return noopEventEmitter
	}

	return func(event events.Event) {
		if opts.onEvent != nil {
			opts.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.TranscriptUpdated:
			if opts.onTranscript != nil {
				opts.onTranscript(typedEvent.Entries)
			}
		case events.PhaseChanged:
			if opts.onPhase != nil {
				opts.onPhase(phaseFromString(typedEvent.To))
			}
		case events.InputsChanged:
			if opts.onInputs != nil {
				opts.onInputs(typedEvent.Inputs)
			}
		case events.UserTranscriptFinal:
			if opts.onTranscription != nil {
				opts.onTranscription(typedEvent.Transcript)
			}
		}
	}
}

func phaseFromString(name string) Phase {
	for p := PhaseIdle; p <= PhaseCaptionEditing; p++ {
		if p.String() == name {
			return p
		}
	}
	return PhaseIdle
}
