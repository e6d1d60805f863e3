package orchestration

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/ema-studio/core/audio"
	"github.com/koscakluka/ema-studio/core/transcript"
	"github.com/koscakluka/ema-studio/internal/utils"
)

var errEmptyTranscription = errors.New("transcription is empty")

// AudioCaptured starts a conversation turn from a recorded utterance. It
// blocks until the turn, and any media generation it unlocks, settled.
func (o *Orchestrator) AudioCaptured(ctx context.Context, utterance audio.Utterance) error {
	ctx, span := tracer.Start(ctx, "audio captured")
	defer span.End()

	o.mu.Lock()
	if !o.inputsLocked().Voice {
		o.mu.Unlock()
		return ErrInputGated
	}
	if !o.phase.acceptsVoice() {
		o.mu.Unlock()
		return ErrUnexpectedTrigger
	}

	if result := o.checkUtterance(utterance); !result.ok() {
		span.SetAttributes(attribute.Bool("utterance.rejected", true))
		o.say(ctx, msgAudioTooShort)
		o.mu.Unlock()
		o.publish()
		return nil
	}

	if o.phase == PhaseAwaitingCaptionDecision {
		o.skipCaptionLocked(ctx)
	}

	userID := o.placeholder(ctx, transcript.SpeakerUser, msgLoading)
	o.setPhaseLocked(ctx, PhaseTranscribing)
	s := o.beginTurnStepLocked("transcribe", userID)
	o.mu.Unlock()

	var text string
	applied := runStep(ctx, o, s,
		func(ctx context.Context) stepResult[string] { return o.transcribe(ctx, utterance) },
		func(result stepResult[string]) {
			switch result.outcome {
			case outcomeSucceeded:
				text = result.value
				o.patchLocked(ctx, userID, transcript.Patch{Body: &text, Loading: utils.Ptr(false)})

			case outcomeInputRejected:
				o.patchLocked(ctx, userID, transcript.Patch{
					Speaker: utils.Ptr(transcript.SpeakerAssistant),
					Body:    utils.Ptr(msgNotUnderstood),
					Loading: utils.Ptr(false),
				})
				o.setPhaseLocked(ctx, PhaseIdle)

			default:
				o.patchLocked(ctx, userID, transcript.Patch{
					Speaker: utils.Ptr(transcript.SpeakerAssistant),
					Body:    utils.Ptr(msgGenericFailure),
					Loading: utils.Ptr(false),
				})
				o.failTurnLocked(ctx, result.outcome)
			}
		})
	if !applied || text == "" {
		return nil
	}

	return o.converse(ctx, text)
}

// checkUtterance rejects audio too short to contain speech. The byte
// threshold applies when the duration cannot be determined.
func (o *Orchestrator) checkUtterance(utterance audio.Utterance) stepResult[struct{}] {
	if length, ok := utterance.Length(); ok {
		if length < o.minUtterance {
			return failed[struct{}](outcomeInputRejected, ErrAudioTooShort)
		}
		return succeeded(struct{}{})
	}
	if len(utterance.Data) < minUtteranceBytes {
		return failed[struct{}](outcomeInputRejected, ErrAudioTooShort)
	}
	return succeeded(struct{}{})
}

func (o *Orchestrator) transcribe(ctx context.Context, utterance audio.Utterance) stepResult[string] {
	ctx, span := tracer.Start(ctx, "transcribe")
	defer span.End()

	span.SetAttributes(attribute.Int("utterance.bytes", len(utterance.Data)))
	text, err := o.speechToText.Transcribe(ctx, utterance, o.language)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return failed[string](outcomeServiceCallFailed, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return failed[string](outcomeInputRejected, errEmptyTranscription)
	}
	return succeeded(text)
}

// failTurnLocked handles a failed transcription or dialogue turn. An
// unrecoverable failure means there is no progress worth keeping, so the
// session resets.
func (o *Orchestrator) failTurnLocked(ctx context.Context, result outcome) {
	switch result {
	case outcomeUnrecoverable:
		logger.WarnContext(ctx, "turn failed before a session existed, resetting")
		o.resetLocked(ctx, false)
	default:
		o.setPhaseLocked(ctx, PhaseIdle)
	}
}
