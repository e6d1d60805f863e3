package orchestration

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/generation"
	"github.com/koscakluka/ema-studio/core/transcript"
	"github.com/koscakluka/ema-studio/internal/utils"
)

var ErrEmptyImage = errors.New("image has no data")

// ImageSelected takes the product photo chosen while an image is awaited
// and asks for a background-removed preview of it.
func (o *Orchestrator) ImageSelected(ctx context.Context, img flow.Image) error {
	ctx, span := tracer.Start(ctx, "image selected")
	defer span.End()

	if img.IsEmpty() {
		return ErrEmptyImage
	}

	o.mu.Lock()
	if !o.inputsLocked().FilePicker {
		o.mu.Unlock()
		return ErrInputGated
	}
	if o.phase != PhaseAwaitingImage {
		o.mu.Unlock()
		return ErrUnexpectedTrigger
	}

	held := img
	held.Data = append([]byte(nil), img.Data...)
	o.flow.PreviewImage = &held
	o.appendLocked(ctx, transcript.Entry{Speaker: transcript.SpeakerUser, Media: imageMedia(held)})
	id := o.placeholder(ctx, transcript.SpeakerAssistant, msgPreviewLoading)
	o.setPhaseLocked(ctx, PhaseAwaitingPreviewDecision)
	o.mu.Unlock()

	o.runPreview(ctx, id)
	return nil
}

// runPreview previews the held image into the entry owning id.
func (o *Orchestrator) runPreview(ctx context.Context, id transcript.CorrelationID) {
	o.mu.Lock()
	if o.flow.PreviewImage.IsEmpty() {
		o.mu.Unlock()
		return
	}
	img := *o.flow.PreviewImage
	s := o.beginStepLocked("preview", id)
	o.mu.Unlock()

	runStep(ctx, o, s,
		func(ctx context.Context) stepResult[*generation.Preview] { return o.preview(ctx, img) },
		func(result stepResult[*generation.Preview]) {
			if !result.ok() {
				o.markRetryLocked(ctx, id, msgPreviewFailed, stepPreview)
				return
			}

			body := msgPreviewReady
			if result.value.Message != "" {
				body = result.value.Message + "\n" + msgPreviewReady
			}
			o.patchLocked(ctx, id, transcript.Patch{
				Body:    &body,
				Media:   generatedMedia(transcript.MediaImage, &result.value.Cutout),
				Choice:  utils.Ptr(transcript.ChoicePreview),
				Loading: utils.Ptr(false),
			})
		})
}

func (o *Orchestrator) preview(ctx context.Context, img flow.Image) stepResult[*generation.Preview] {
	ctx, span := tracer.Start(ctx, "preview image")
	defer span.End()

	if o.services.previewer == nil {
		return serviceFailure[*generation.Preview](span, fmt.Errorf("image preview: %w", ErrServiceNotConfigured))
	}
	preview, err := o.services.previewer.PreviewCutout(ctx, img)
	if err == nil && preview == nil {
		err = errors.New("image preview returned nothing")
	}
	if err != nil {
		return serviceFailure[*generation.Preview](span, err)
	}
	return succeeded(preview)
}

// ConfirmPreview accepts the previewed photo and uploads the original under
// the session key.
func (o *Orchestrator) ConfirmPreview(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "confirm preview")
	defer span.End()

	o.mu.Lock()
	if err := o.checkChoiceLocked(PhaseAwaitingPreviewDecision, transcript.ChoicePreview); err != nil {
		o.mu.Unlock()
		return err
	}
	o.transcript.ResolveChoice(ctx, transcript.ChoicePreview)

	if !o.identity.IsSet() {
		logger.WarnContext(ctx, "preview confirmed without a session, resetting")
		o.say(ctx, msgRestartConversation)
		o.resetLocked(ctx, false)
		o.mu.Unlock()
		o.publish()
		return nil
	}

	o.echo(ctx, msgPreviewAccepted)
	id := o.placeholder(ctx, transcript.SpeakerAssistant, msgUploadLoading)
	o.mu.Unlock()

	o.runUpload(ctx, id)
	return nil
}

// runUpload commits the held image into the session.
func (o *Orchestrator) runUpload(ctx context.Context, id transcript.CorrelationID) {
	o.mu.Lock()
	if o.flow.PreviewImage.IsEmpty() {
		o.mu.Unlock()
		return
	}
	img := *o.flow.PreviewImage
	key := o.identity.Key()
	s := o.beginStepLocked("upload", id)
	o.mu.Unlock()

	runStep(ctx, o, s,
		func(ctx context.Context) stepResult[struct{}] { return o.upload(ctx, key, img) },
		func(result stepResult[struct{}]) {
			if !result.ok() {
				o.markRetryLocked(ctx, id, msgUploadFailed, stepUpload)
				return
			}

			o.flow.UploadedImage = o.flow.PreviewImage
			o.flow.PreviewImage = nil

			o.patchLocked(ctx, id, transcript.Patch{
				Body:    utils.Ptr(msgChooseComposition),
				Choice:  utils.Ptr(transcript.ChoiceCompositionMode),
				Loading: utils.Ptr(false),
			})
			o.setPhaseLocked(ctx, PhaseAwaitingCompositionChoice)
		})
}

func (o *Orchestrator) upload(ctx context.Context, key string, img flow.Image) stepResult[struct{}] {
	ctx, span := tracer.Start(ctx, "upload image")
	defer span.End()

	if o.services.uploader == nil {
		return serviceFailure[struct{}](span, fmt.Errorf("image upload: %w", ErrServiceNotConfigured))
	}
	span.SetAttributes(attribute.Int("image.bytes", len(img.Data)))
	if err := o.services.uploader.UploadImage(ctx, key, img); err != nil {
		return serviceFailure[struct{}](span, err)
	}
	return succeeded(struct{}{})
}

// RejectPreview discards the held photo and asks for another one.
func (o *Orchestrator) RejectPreview(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "reject preview")
	defer span.End()

	o.mu.Lock()
	if o.inFlight > 0 || !o.inputsLocked().Options {
		o.mu.Unlock()
		return ErrInputGated
	}
	if o.phase != PhaseAwaitingPreviewDecision {
		o.mu.Unlock()
		return ErrUnexpectedTrigger
	}

	o.transcript.ResolveChoice(ctx, transcript.ChoicePreview)
	for id, leg := range o.legs {
		if leg.kind == stepPreview || leg.kind == stepUpload {
			delete(o.legs, id)
			o.patchLocked(ctx, id, transcript.Patch{Retry: utils.Ptr(false)})
		}
	}
	o.flow.PreviewImage = nil
	o.say(ctx, msgImageGuide)
	o.setPhaseLocked(ctx, PhaseAwaitingImage)
	o.mu.Unlock()

	o.publish()
	return nil
}

func imageMedia(img flow.Image) *transcript.Media {
	return &transcript.Media{
		Kind:        transcript.MediaImage,
		ContentType: img.ContentType,
		Width:       img.Width,
		Height:      img.Height,
		Data:        img.Data,
	}
}

func generatedMedia(kind transcript.MediaKind, media *generation.Media) *transcript.Media {
	return &transcript.Media{
		Kind:        kind,
		URL:         media.URL,
		ContentType: media.ContentType,
		Width:       media.Width,
		Height:      media.Height,
		Data:        media.Data,
	}
}
