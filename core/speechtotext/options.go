package speechtotext

import "github.com/koscakluka/ema-studio/core/audio"

type TranscriptionOptions struct {
	// InterimTranscriptionCallback receives the running transcript while a
	// streaming transcriber is still working through the utterance.
	InterimTranscriptionCallback func(transcript string)

	EncodingInfo audio.EncodingInfo
	Language     string
}

type TranscriptionOption func(*TranscriptionOptions)

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Language = language
	}
}

func NewTranscriptionOptions(opts ...TranscriptionOption) TranscriptionOptions {
	var options TranscriptionOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
