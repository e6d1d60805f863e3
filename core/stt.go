package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-studio/core/audio"
	"github.com/koscakluka/ema-studio/core/events"
	"github.com/koscakluka/ema-studio/core/speechtotext"
)

type speechToText struct {
	// client stores the configured speech-to-text implementation.
	client Transcriber

	emitEvent eventEmitter
}

func newSpeechToText(client Transcriber) *speechToText {
	return &speechToText{
		client:    client,
		emitEvent: noopEventEmitter,
	}
}

func (s *speechToText) set(client Transcriber) {
	if s != nil {
		s.client = client
	}
}

func (s *speechToText) Transcribe(ctx context.Context, utterance audio.Utterance, language string) (string, error) {
	if !s.isConfigured() {
		return "", fmt.Errorf("speech-to-text: %w", ErrServiceNotConfigured)
	}

	opts := []speechtotext.TranscriptionOption{
		speechtotext.WithInterimTranscriptionCallback(s.invokeInterimTranscription),
	}
	if !utterance.Encoding.IsZero() {
		opts = append(opts, speechtotext.WithEncodingInfo(utterance.Encoding))
	}
	if language != "" {
		opts = append(opts, speechtotext.WithLanguage(language))
	}

	text, err := s.client.Transcribe(ctx, utterance, opts...)
	if err != nil {
		return "", err
	}
	if text != "" {
		s.invokeTranscription(text)
	}
	return text, nil
}

func (s *speechToText) Close(ctx context.Context) error {
	if !s.isConfigured() {
		return nil
	}

	switch c := s.client.(type) {
	case interface{ Close(context.Context) error }:
		if err := c.Close(ctx); err != nil {
			return fmt.Errorf("failed to close speech-to-text client: %w", err)
		}
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close speech-to-text client: %w", err)
		}
	case interface{ Close() }:
		c.Close()
	}

	return nil
}

func (s *speechToText) SetEventEmitter(emitEvent eventEmitter) {
	if s != nil {
		if emitEvent != nil {
			s.emitEvent = emitEvent
		} else {
			s.emitEvent = noopEventEmitter
		}
	}
}

func (s *speechToText) isConfigured() bool {
	return s != nil && s.client != nil
}

func (s *speechToText) invokeInterimTranscription(transcript string) {
	s.emitEvent(events.NewUserTranscriptInterimUpdated(transcript))
}

func (s *speechToText) invokeTranscription(transcript string) {
	s.emitEvent(events.NewUserTranscriptFinal(transcript))
}
