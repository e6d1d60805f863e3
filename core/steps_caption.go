package orchestration

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/generation"
	"github.com/koscakluka/ema-studio/core/transcript"
	"github.com/koscakluka/ema-studio/internal/utils"
)

var ErrNotCaptionable = errors.New("entry has no captionable image")

// captionSource is the uncaptioned generated image behind a transcript
// entry, together with the style it was last captioned with.
type captionSource struct {
	image flow.Image
	style generation.CaptionStyle
}

// offerCaptionLocked asks whether to put the generated caption on the image
// shown by visualID. Without caption text there is nothing to decide.
func (o *Orchestrator) offerCaptionLocked(ctx context.Context, visualID transcript.CorrelationID, media *generation.Media) {
	if o.flow.CaptionText == "" || len(media.Data) == 0 {
		logger.InfoContext(ctx, "skipping caption offer",
			"has_caption", o.flow.CaptionText != "", "image_bytes", len(media.Data))
		o.generation.captionSettled = true
		return
	}

	o.captionSources[visualID] = captionSource{
		image: flow.Image{
			Name:        "generated_image.png",
			ContentType: media.ContentType,
			Data:        append([]byte(nil), media.Data...),
			Width:       media.Width,
			Height:      media.Height,
		},
		style: generation.DefaultCaptionStyle(o.flow.CaptionText, media.Width, media.Height),
	}

	id := o.transcript.NewCorrelationID()
	if _, err := o.transcript.Append(ctx, transcript.Entry{
		Speaker:       transcript.SpeakerAssistant,
		Body:          msgCaptionOffer,
		CorrelationID: id,
		Choice:        transcript.ChoiceCaption,
	}); err != nil {
		logger.WarnContext(ctx, "failed to offer caption insertion", "error", err)
		o.generation.captionSettled = true
		return
	}
	o.generation.captionID = id
	o.setPhaseLocked(ctx, PhaseAwaitingCaptionDecision)
}

// DeclineCaption finishes the generated image without a caption.
func (o *Orchestrator) DeclineCaption(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "decline caption")
	defer span.End()

	o.mu.Lock()
	if err := o.checkChoiceLocked(PhaseAwaitingCaptionDecision, transcript.ChoiceCaption); err != nil {
		o.mu.Unlock()
		return err
	}
	o.skipCaptionLocked(ctx)
	o.mu.Unlock()

	o.publish()
	return nil
}

// skipCaptionLocked resolves an open caption offer as declined.
func (o *Orchestrator) skipCaptionLocked(ctx context.Context) {
	o.transcript.ResolveChoice(ctx, transcript.ChoiceCaption)
	if o.generation.captionID != 0 {
		o.patchLocked(ctx, o.generation.captionID, transcript.Patch{Body: utils.Ptr(msgCaptionSkipped)})
	}
	o.settleCaptionLocked(ctx)
}

// settleCaptionLocked records the caption decision. The conversation ends
// unless a failed leg still waits for a retry.
func (o *Orchestrator) settleCaptionLocked(ctx context.Context) {
	o.generation.captionSettled = true
	o.setPhaseLocked(ctx, PhaseGeneratingMedia)
	o.completeGenerationLocked(ctx)
}

// InsertCaption opens the caption editor on the freshly generated image.
func (o *Orchestrator) InsertCaption(ctx context.Context) (*CaptionEditor, error) {
	ctx, span := tracer.Start(ctx, "insert caption")
	defer span.End()

	o.mu.Lock()
	if err := o.checkChoiceLocked(PhaseAwaitingCaptionDecision, transcript.ChoiceCaption); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	source, ok := o.captionSources[o.generation.visualID]
	if !ok {
		o.mu.Unlock()
		return nil, ErrNotCaptionable
	}

	o.transcript.ResolveChoice(ctx, transcript.ChoiceCaption)
	o.echo(ctx, msgCaptionInsert)
	editor := o.openEditorLocked(ctx, o.generation.visualID, source, false)
	o.mu.Unlock()

	o.publish()
	return editor, nil
}

// EditCaption re-opens the caption editor on an image that was generated
// earlier. Applying replaces the media of the same entry again.
func (o *Orchestrator) EditCaption(ctx context.Context, id transcript.CorrelationID) (*CaptionEditor, error) {
	ctx, span := tracer.Start(ctx, "edit caption")
	defer span.End()

	o.mu.Lock()
	if o.inFlight > 0 || !o.inputsLocked().Options {
		o.mu.Unlock()
		return nil, ErrInputGated
	}
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return nil, ErrUnexpectedTrigger
	}
	source, ok := o.captionSources[id]
	if !ok {
		o.mu.Unlock()
		return nil, ErrNotCaptionable
	}

	editor := o.openEditorLocked(ctx, id, source, true)
	o.mu.Unlock()

	o.publish()
	return editor, nil
}

func (o *Orchestrator) openEditorLocked(ctx context.Context, target transcript.CorrelationID, source captionSource, reopened bool) *CaptionEditor {
	o.closeEditorLocked()
	o.editor = newCaptionEditor(o, target, source, reopened)
	o.setPhaseLocked(ctx, PhaseCaptionEditing)
	return o.editor
}

func (o *Orchestrator) closeEditorLocked() {
	if o.editor != nil {
		o.editor.close()
		o.editor = nil
	}
}
