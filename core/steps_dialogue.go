package orchestration

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/ema-studio/core/dialogue"
	"github.com/koscakluka/ema-studio/core/events"
	"github.com/koscakluka/ema-studio/core/transcript"
	"github.com/koscakluka/ema-studio/internal/utils"
)

// converse runs a dialogue turn for text and resolves the next phase from
// the reply.
func (o *Orchestrator) converse(ctx context.Context, text string) error {
	o.mu.Lock()
	assistantID := o.placeholder(ctx, transcript.SpeakerAssistant, msgLoading)
	o.setPhaseLocked(ctx, PhaseResponding)
	request := dialogue.Request{UserInput: text, SessionKey: o.identity.Key()}
	if !o.authenticated {
		request.GuestSessionID = o.guestSessionID
	}
	s := o.beginTurnStepLocked("dialogue", assistantID)
	o.mu.Unlock()

	generate := false
	runStep(ctx, o, s,
		func(ctx context.Context) stepResult[*dialogue.Reply] { return o.turn(ctx, request) },
		func(result stepResult[*dialogue.Reply]) {
			if !result.ok() {
				o.patchLocked(ctx, assistantID, transcript.Patch{
					Body:    utils.Ptr(msgGenericFailure),
					Loading: utils.Ptr(false),
				})
				o.failTurnLocked(ctx, result.outcome)
				return
			}
			generate = o.resolveReplyLocked(ctx, assistantID, result.value)
		})

	if generate {
		o.generate(ctx)
	}
	return nil
}

func (o *Orchestrator) turn(ctx context.Context, request dialogue.Request) stepResult[*dialogue.Reply] {
	ctx, span := tracer.Start(ctx, "dialogue turn")
	defer span.End()

	if o.services.dialogue == nil {
		err := fmt.Errorf("dialogue: %w", ErrServiceNotConfigured)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return failed[*dialogue.Reply](outcomeServiceCallFailed, err)
	}

	reply, err := o.services.dialogue.Turn(ctx, request)
	if err == nil && reply == nil {
		err = fmt.Errorf("dialogue returned no reply")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return failed[*dialogue.Reply](outcomeServiceCallFailed, err)
	}

	span.SetAttributes(
		attribute.String("reply.type", string(reply.Type)),
		attribute.Bool("reply.terminal", reply.NextQuestion == nil),
	)
	return succeeded(reply)
}

// resolveReplyLocked applies a dialogue reply to the assistant placeholder
// and picks the next phase. It reports whether media generation should
// start.
func (o *Orchestrator) resolveReplyLocked(ctx context.Context, id transcript.CorrelationID, reply *dialogue.Reply) bool {
	if o.identity.Adopt(reply.SessionKey) {
		o.queueLocked(events.NewSessionAdopted(reply.SessionKey))
	}

	if reply.IsAdvertisement() && (o.flow.OutputFormat == "" || o.flow.UploadedImage.IsEmpty()) {
		o.captureContentLocked(reply.FinalContent)
		o.flow.PendingNextQuestion = pendingMessage(reply)

		if o.flow.OutputFormat == "" {
			o.patchLocked(ctx, id, transcript.Patch{
				Body:    utils.Ptr(msgChooseFormat),
				Choice:  utils.Ptr(transcript.ChoiceOutputFormat),
				Loading: utils.Ptr(false),
			})
			o.setPhaseLocked(ctx, PhaseAwaitingFormatChoice)
			return false
		}

		o.patchLocked(ctx, id, transcript.Patch{Body: utils.Ptr(msgImageGuide), Loading: utils.Ptr(false)})
		o.setPhaseLocked(ctx, PhaseAwaitingImage)
		return false
	}

	if reply.NextQuestion != nil {
		question := strings.TrimSpace(*reply.NextQuestion)
		if question == "" {
			o.patchLocked(ctx, id, transcript.Patch{Body: utils.Ptr(msgConversationFinished), Loading: utils.Ptr(false)})
			o.resetLocked(ctx, false)
			return false
		}
		o.patchLocked(ctx, id, transcript.Patch{Body: &question, Loading: utils.Ptr(false)})
		o.setPhaseLocked(ctx, o.restingPhaseLocked())
		return false
	}

	body := reply.LastMessage
	if !reply.FinalContent.IsEmpty() {
		body = reply.FinalContent.Markdown()
	}
	o.patchLocked(ctx, id, transcript.Patch{Body: &body, Loading: utils.Ptr(false)})
	o.captureContentLocked(reply.FinalContent)

	if o.flow.ReadyToGenerate() {
		o.setPhaseLocked(ctx, PhaseGeneratingMedia)
		return true
	}
	o.setPhaseLocked(ctx, o.restingPhaseLocked())
	return false
}

// captureContentLocked keeps the generation directives of a terminal turn.
func (o *Orchestrator) captureContentLocked(content *dialogue.FinalContent) {
	if content.IsEmpty() {
		return
	}
	o.flow.Summary = content.Idea
	o.flow.CaptionText = content.Caption
	o.flow.ImagePrompt = content.ImagePrompt
	o.flow.AudioPrompt = content.AudioPrompt
}

// pendingMessage is what to show once the choice a reply asked for is
// resolved: the next question or, on a terminal turn, its content.
func pendingMessage(reply *dialogue.Reply) *string {
	if reply.NextQuestion != nil {
		if question := strings.TrimSpace(*reply.NextQuestion); question != "" {
			return &question
		}
		return nil
	}
	if !reply.FinalContent.IsEmpty() {
		return utils.Ptr(reply.FinalContent.Markdown())
	}
	if reply.LastMessage != "" {
		return utils.Ptr(reply.LastMessage)
	}
	return nil
}

// restingPhaseLocked is the phase to wait in when nothing is running: the
// composition choice while it is still open, Idle otherwise.
func (o *Orchestrator) restingPhaseLocked() Phase {
	if _, pending := o.transcript.PendingChoice(transcript.ChoiceCompositionMode); pending {
		return PhaseAwaitingCompositionChoice
	}
	return PhaseIdle
}
