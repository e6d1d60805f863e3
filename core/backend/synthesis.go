package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/generation"
	"go.opentelemetry.io/otel/attribute"
)

// Synthesize composites the uploaded product image into a generated scene.
// Video requests also carry the audio prompt.
func (c *Client) Synthesize(ctx context.Context, request generation.SynthesisRequest) (*generation.Media, error) {
	ctx, span := tracer.Start(ctx, "synthesize media")
	defer span.End()

	span.SetAttributes(
		attribute.String("request.output_format", string(request.Format)),
		attribute.String("request.composition_mode", string(request.Mode)),
	)
	if request.Image.IsEmpty() {
		return nil, recordError(span, errors.New("synthesis requires a product image"))
	}

	preset := request.Mode.Preset()

	f := &form{}
	f.set("prompt", request.ImagePrompt)
	f.set("imageMode", string(request.Mode))
	f.set("output_format", string(request.Format))
	f.set("control_weight", strconv.FormatFloat(preset.ControlWeight, 'f', 2, 64))
	f.set("ip_adapter_scale", strconv.FormatFloat(preset.AdapterScale, 'f', 2, 64))
	if request.Summary != "" {
		f.set("summary", request.Summary)
	}
	if request.Format == flow.OutputFormatVideo && request.AudioPrompt != "" {
		f.set("bgmPrompt", request.AudioPrompt)
	}
	f.attach("file", imageName(request.Image), request.Image.ContentType, request.Image.Data)

	resp, err := c.postForm(ctx, "/diffusion/synthesize/auto/upload", f)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("failed to synthesize media: %w", err))
	}
	if len(resp.body) == 0 {
		return nil, recordError(span, errors.New("synthesis returned an empty body"))
	}
	return mediaFromBytes(resp.contentType, resp.body), nil
}

type audioRequest struct {
	Prompt      string `json:"prompt"`
	DurationSec int    `json:"duration_sec"`
}

// GenerateAudio synthesizes a standalone audio track.
func (c *Client) GenerateAudio(ctx context.Context, request generation.AudioRequest) (*generation.Media, error) {
	ctx, span := tracer.Start(ctx, "generate audio")
	defer span.End()

	duration := request.Duration
	if duration <= 0 {
		duration = generation.DefaultAudioDuration
	}
	span.SetAttributes(attribute.Int("request.duration_sec", int(duration.Seconds())))

	resp, err := c.postJSON(ctx, "/audio/generate/raw", audioRequest{
		Prompt:      request.Prompt,
		DurationSec: int(duration.Seconds()),
	})
	if err != nil {
		return nil, recordError(span, fmt.Errorf("failed to generate audio: %w", err))
	}
	if len(resp.body) == 0 {
		return nil, recordError(span, errors.New("audio generation returned an empty body"))
	}
	return &generation.Media{ContentType: resp.contentType, Data: resp.body}, nil
}
