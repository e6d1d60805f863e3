package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-studio/core/events"
	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/generation"
	"github.com/koscakluka/ema-studio/core/transcript"
)

var ErrEditorClosed = errors.New("caption editor is closed")

// CaptionEditor edits the caption of one generated image. Every parameter
// change renders a fresh preview; Apply replaces the image of the target
// entry with the captioned result.
type CaptionEditor struct {
	o        *Orchestrator
	target   transcript.CorrelationID
	source   flow.Image
	reopened bool

	mu     sync.Mutex
	style  generation.CaptionStyle
	closed bool
}

func newCaptionEditor(o *Orchestrator, target transcript.CorrelationID, source captionSource, reopened bool) *CaptionEditor {
	return &CaptionEditor{
		o:        o,
		target:   target,
		source:   source.image,
		reopened: reopened,
		style:    source.style,
	}
}

// Target is the entry whose image the editor replaces.
func (e *CaptionEditor) Target() transcript.CorrelationID { return e.target }

func (e *CaptionEditor) Style() generation.CaptionStyle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.style
}

func (e *CaptionEditor) SetText(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("caption text is empty")
	}
	return e.update(ctx, func(style *generation.CaptionStyle) { style.Text = text })
}

func (e *CaptionEditor) SetFont(ctx context.Context, font string) ([]byte, error) {
	if font == "" {
		font = generation.DefaultFont
	}
	return e.update(ctx, func(style *generation.CaptionStyle) { style.Font = font })
}

func (e *CaptionEditor) SetAnchor(ctx context.Context, anchor generation.Anchor) ([]byte, error) {
	if !anchor.IsValid() {
		return nil, fmt.Errorf("invalid caption anchor %q", anchor)
	}
	return e.update(ctx, func(style *generation.CaptionStyle) { style.Anchor = anchor })
}

func (e *CaptionEditor) SetColor(ctx context.Context, color generation.Color) ([]byte, error) {
	return e.update(ctx, func(style *generation.CaptionStyle) { style.Color = color })
}

// Preview renders the current style without changing it.
func (e *CaptionEditor) Preview(ctx context.Context) ([]byte, error) {
	return e.update(ctx, func(*generation.CaptionStyle) {})
}

func (e *CaptionEditor) update(ctx context.Context, change func(*generation.CaptionStyle)) ([]byte, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEditorClosed
	}
	change(&e.style)
	style := e.style
	e.mu.Unlock()

	return e.preview(ctx, style)
}

func (e *CaptionEditor) preview(ctx context.Context, style generation.CaptionStyle) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "preview caption")
	defer span.End()

	captions := e.o.services.captions
	if captions == nil {
		return nil, e.failed(ctx, span, "preview caption", ErrServiceNotConfigured)
	}
	media, err := captions.PreviewCaption(ctx, style)
	if err == nil && media == nil {
		err = errors.New("caption preview returned nothing")
	}
	if err != nil {
		return nil, e.failed(ctx, span, "preview caption", err)
	}

	e.o.emitEvent(events.NewCaptionPreviewUpdated(media.Data, media.ContentType))
	return media.Data, nil
}

// Fonts lists the fonts the caption renderer offers.
func (e *CaptionEditor) Fonts(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "caption fonts")
	defer span.End()

	captions := e.o.services.captions
	if captions == nil {
		return nil, e.failed(ctx, span, "caption fonts", ErrServiceNotConfigured)
	}
	fonts, err := captions.Fonts(ctx)
	if err != nil {
		return nil, e.failed(ctx, span, "caption fonts", err)
	}
	return fonts, nil
}

// failed records a failed editor call and hides its cause from the caller.
func (e *CaptionEditor) failed(ctx context.Context, span trace.Span, name string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.WarnContext(ctx, "caption editor call failed", "step", name, "correlation_id", int64(e.target), "error", err)
	return ErrStepFailed
}

// Apply captions the source image and replaces the target entry's media.
// A failed apply is reported in the transcript, keeps the editor open and
// returns ErrStepFailed.
func (e *CaptionEditor) Apply(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "apply caption")
	defer span.End()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEditorClosed
	}
	style := e.style
	e.mu.Unlock()

	o := e.o
	o.mu.Lock()
	if o.editor != e {
		o.mu.Unlock()
		return ErrEditorClosed
	}
	if o.inFlight > 0 {
		o.mu.Unlock()
		return ErrInputGated
	}
	s := o.beginStepLocked("apply caption", e.target)
	o.mu.Unlock()

	applyFailed := false
	applied := runStep(ctx, o, s,
		func(ctx context.Context) stepResult[*generation.Media] { return o.applyCaption(ctx, style, e.source) },
		func(result stepResult[*generation.Media]) {
			if !result.ok() {
				applyFailed = true
				o.say(ctx, msgCaptionApplyFailed)
				return
			}

			o.patchLocked(ctx, e.target, transcript.Patch{Media: generatedMedia(transcript.MediaImage, result.value)})
			if source, ok := o.captionSources[e.target]; ok {
				source.style = style
				o.captionSources[e.target] = source
			}
			o.say(ctx, msgCaptionApplied)
			o.closeEditorLocked()

			if e.reopened {
				o.setPhaseLocked(ctx, PhaseIdle)
				return
			}
			o.settleCaptionLocked(ctx)
		})
	if !applied {
		return ErrEditorClosed
	}
	if applyFailed {
		return ErrStepFailed
	}
	return nil
}

func (o *Orchestrator) applyCaption(ctx context.Context, style generation.CaptionStyle, img flow.Image) stepResult[*generation.Media] {
	ctx, span := tracer.Start(ctx, "render caption")
	defer span.End()

	if o.services.captions == nil {
		return serviceFailure[*generation.Media](span, fmt.Errorf("caption apply: %w", ErrServiceNotConfigured))
	}
	media, err := o.services.captions.ApplyCaption(ctx, style, img)
	if err == nil && media == nil {
		err = errors.New("caption apply returned nothing")
	}
	if err != nil {
		return serviceFailure[*generation.Media](span, err)
	}
	return succeeded(media)
}

// Cancel closes the editor without touching the image.
func (e *CaptionEditor) Cancel(ctx context.Context) error {
	o := e.o
	o.mu.Lock()
	if o.editor != e {
		o.mu.Unlock()
		return ErrEditorClosed
	}
	if o.inFlight > 0 {
		o.mu.Unlock()
		return ErrInputGated
	}

	o.closeEditorLocked()
	if e.reopened {
		o.setPhaseLocked(ctx, PhaseIdle)
	} else {
		o.say(ctx, msgCaptionSkipped)
		o.settleCaptionLocked(ctx)
	}
	o.mu.Unlock()

	o.publish()
	return nil
}

func (e *CaptionEditor) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}
