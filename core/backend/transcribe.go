package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-studio/core/audio"
	"github.com/koscakluka/ema-studio/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
)

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the utterance to the transcription service. An empty
// string means nothing intelligible was recognized.
func (c *Client) Transcribe(ctx context.Context, utterance audio.Utterance, opts ...speechtotext.TranscriptionOption) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()

	options := speechtotext.NewTranscriptionOptions(opts...)

	data, contentType := utterance.File()
	span.SetAttributes(
		attribute.Int("request.audio_bytes", len(data)),
		attribute.String("request.content_type", contentType),
	)

	f := &form{}
	if options.Language != "" {
		f.set("language", options.Language)
	}
	f.attach("file", utterance.Filename(), contentType, data)

	resp, err := c.postForm(ctx, "/whisper/transcribe", f)
	if err != nil {
		return "", recordError(span, fmt.Errorf("failed to transcribe: %w", err))
	}

	var body transcriptionResponse
	if err := resp.decode(&body); err != nil {
		return "", recordError(span, err)
	}
	return strings.TrimSpace(body.Text), nil
}
