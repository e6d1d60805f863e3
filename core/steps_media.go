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

type stepKind int

const (
	stepPreview stepKind = iota + 1
	stepUpload
	stepVisual
	stepAudio
)

func (k stepKind) String() string {
	switch k {
	case stepPreview:
		return "preview"
	case stepUpload:
		return "upload"
	case stepVisual:
		return "visual"
	case stepAudio:
		return "audio"
	}
	return "unknown"
}

// retryableStep is a failed step waiting for the user to retry it.
type retryableStep struct {
	kind stepKind
}

// generationState tracks the legs of one media generation.
type generationState struct {
	started    bool
	visualDone bool
	audioDone  bool

	// visualID is the entry showing the generated image or video.
	visualID transcript.CorrelationID
	// captionID is the entry offering caption insertion, zero until offered.
	captionID      transcript.CorrelationID
	captionSettled bool
}

// generate runs every leg the chosen output format needs. The audio leg of
// the separate format runs after the visual leg, whatever its outcome.
func (o *Orchestrator) generate(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "generate media")
	defer span.End()

	o.mu.Lock()
	if o.generation.started || !o.flow.ReadyToGenerate() {
		o.mu.Unlock()
		return
	}
	o.generation.started = true
	token := o.epoch.Current()
	format := o.flow.OutputFormat
	span.SetAttributes(
		attribute.String("flow.output_format", string(format)),
		attribute.String("flow.composition_mode", string(o.flow.CompositionMode)),
	)
	o.setPhaseLocked(ctx, PhaseGeneratingMedia)
	visualID := o.placeholder(ctx, transcript.SpeakerAssistant, visualLoadingMessage(format))
	o.generation.visualID = visualID
	o.mu.Unlock()

	o.runVisualLeg(ctx, visualID)

	if format != flow.OutputFormatImageAndAudio {
		return
	}

	o.mu.Lock()
	if !o.epoch.IsCurrent(token) {
		o.mu.Unlock()
		return
	}
	audioID := o.placeholder(ctx, transcript.SpeakerAssistant, msgAudioLoading)
	o.mu.Unlock()

	o.runAudioLeg(ctx, audioID)
}

// runVisualLeg synthesizes the image or video into the entry owning id.
func (o *Orchestrator) runVisualLeg(ctx context.Context, id transcript.CorrelationID) {
	o.mu.Lock()
	if !o.flow.ReadyToGenerate() {
		o.mu.Unlock()
		return
	}
	format := o.flow.OutputFormat
	request := generation.SynthesisRequest{
		Format:      format,
		Mode:        o.flow.CompositionMode,
		Summary:     o.flow.Summary,
		ImagePrompt: o.flow.ImagePrompt,
		Image:       *o.flow.UploadedImage.Clone(),
	}
	if format == flow.OutputFormatVideo {
		request.AudioPrompt = o.flow.AudioPrompt
	}
	s := o.beginStepLocked("synthesize", id)
	o.mu.Unlock()

	runStep(ctx, o, s,
		func(ctx context.Context) stepResult[*generation.Media] { return o.synthesize(ctx, request) },
		func(result stepResult[*generation.Media]) {
			if !result.ok() {
				o.markRetryLocked(ctx, id, visualFailedMessage(format), stepVisual)
				return
			}

			kind := transcript.MediaImage
			if format == flow.OutputFormatVideo {
				kind = transcript.MediaVideo
			}
			o.patchLocked(ctx, id, transcript.Patch{
				Body:    utils.Ptr(visualReadyMessage(format)),
				Media:   generatedMedia(kind, result.value),
				Loading: utils.Ptr(false),
			})
			o.generation.visualDone = true

			if format == flow.OutputFormatVideo {
				o.generation.captionSettled = true
			} else {
				o.offerCaptionLocked(ctx, id, result.value)
			}
			o.completeGenerationLocked(ctx)
		})
}

func (o *Orchestrator) synthesize(ctx context.Context, request generation.SynthesisRequest) stepResult[*generation.Media] {
	ctx, span := tracer.Start(ctx, "synthesize media")
	defer span.End()

	span.SetAttributes(attribute.String("flow.output_format", string(request.Format)))
	if o.services.synthesizer == nil {
		return serviceFailure[*generation.Media](span, fmt.Errorf("media synthesis: %w", ErrServiceNotConfigured))
	}
	media, err := o.services.synthesizer.Synthesize(ctx, request)
	if err == nil && media == nil {
		err = errors.New("media synthesis returned nothing")
	}
	if err != nil {
		return serviceFailure[*generation.Media](span, err)
	}
	return succeeded(media)
}

// runAudioLeg generates the separate audio track into the entry owning id.
func (o *Orchestrator) runAudioLeg(ctx context.Context, id transcript.CorrelationID) {
	o.mu.Lock()
	request := generation.AudioRequest{Prompt: o.flow.AudioPrompt, Duration: o.audioDuration}
	s := o.beginStepLocked("generate audio", id)
	o.mu.Unlock()

	runStep(ctx, o, s,
		func(ctx context.Context) stepResult[*generation.Media] { return o.generateAudio(ctx, request) },
		func(result stepResult[*generation.Media]) {
			if !result.ok() {
				o.markRetryLocked(ctx, id, msgAudioFailed, stepAudio)
				return
			}

			o.patchLocked(ctx, id, transcript.Patch{
				Body:    utils.Ptr(msgAudioReady),
				Media:   generatedMedia(transcript.MediaAudio, result.value),
				Loading: utils.Ptr(false),
			})
			o.generation.audioDone = true
			o.completeGenerationLocked(ctx)
		})
}

func (o *Orchestrator) generateAudio(ctx context.Context, request generation.AudioRequest) stepResult[*generation.Media] {
	ctx, span := tracer.Start(ctx, "generate audio")
	defer span.End()

	if request.Prompt == "" {
		return serviceFailure[*generation.Media](span, errors.New("no audio prompt in the final content"))
	}
	if o.services.audio == nil {
		return serviceFailure[*generation.Media](span, fmt.Errorf("audio generation: %w", ErrServiceNotConfigured))
	}
	media, err := o.services.audio.GenerateAudio(ctx, request)
	if err == nil && media == nil {
		err = errors.New("audio generation returned nothing")
	}
	if err != nil {
		return serviceFailure[*generation.Media](span, err)
	}
	return succeeded(media)
}

// markRetryLocked turns the entry owning id into a retryable failure of
// kind. The phase is left unchanged.
func (o *Orchestrator) markRetryLocked(ctx context.Context, id transcript.CorrelationID, body string, kind stepKind) {
	o.legs[id] = retryableStep{kind: kind}
	o.patchLocked(ctx, id, transcript.Patch{
		Body:    &body,
		Retry:   utils.Ptr(true),
		Loading: utils.Ptr(false),
	})
}

// completeGenerationLocked finishes the conversation once every leg of the
// chosen format succeeded and the caption decision, if any, was made.
func (o *Orchestrator) completeGenerationLocked(ctx context.Context) {
	g := o.generation
	if !g.started || !g.visualDone || !g.captionSettled {
		return
	}
	if o.flow.OutputFormat == flow.OutputFormatImageAndAudio && !g.audioDone {
		return
	}
	o.finishLocked(ctx)
}

func visualLoadingMessage(format flow.OutputFormat) string {
	if format == flow.OutputFormatVideo {
		return msgVideoLoading
	}
	return msgImageLoading
}

func visualReadyMessage(format flow.OutputFormat) string {
	if format == flow.OutputFormatVideo {
		return msgVideoReady
	}
	return msgImageReady
}

func visualFailedMessage(format flow.OutputFormat) string {
	if format == flow.OutputFormatVideo {
		return msgVideoFailed
	}
	return msgImageFailed
}
