package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-studio/core/audio"
	"github.com/koscakluka/ema-studio/core/dialogue"
	"github.com/koscakluka/ema-studio/core/events"
	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/gating"
	"github.com/koscakluka/ema-studio/core/generation"
	"github.com/koscakluka/ema-studio/core/speechtotext"
	"github.com/koscakluka/ema-studio/core/transcript"
)

type OrchestratorOption func(*Orchestrator)

type Transcriber interface {
	Transcribe(ctx context.Context, utterance audio.Utterance, opts ...speechtotext.TranscriptionOption) (string, error)
}

// WithTranscriber sets the speech-to-text client used for captured
// utterances.
func WithTranscriber(client Transcriber) OrchestratorOption {
	return func(o *Orchestrator) { o.speechToText.set(client) }
}

type Dialogue interface {
	Turn(ctx context.Context, request dialogue.Request) (*dialogue.Reply, error)
}

func WithDialogue(client Dialogue) OrchestratorOption {
	return func(o *Orchestrator) { o.services.dialogue = client }
}

type ImagePreviewer interface {
	PreviewCutout(ctx context.Context, img flow.Image) (*generation.Preview, error)
}

type ImageUploader interface {
	UploadImage(ctx context.Context, sessionKey string, img flow.Image) error
}

type MediaSynthesizer interface {
	Synthesize(ctx context.Context, request generation.SynthesisRequest) (*generation.Media, error)
}

type AudioSynthesizer interface {
	GenerateAudio(ctx context.Context, request generation.AudioRequest) (*generation.Media, error)
}

type CaptionRenderer interface {
	PreviewCaption(ctx context.Context, style generation.CaptionStyle) (*generation.Media, error)
	ApplyCaption(ctx context.Context, style generation.CaptionStyle, img flow.Image) (*generation.Media, error)
	Fonts(ctx context.Context) ([]string, error)
}

func WithImagePreviewer(client ImagePreviewer) OrchestratorOption {
	return func(o *Orchestrator) { o.services.previewer = client }
}

func WithImageUploader(client ImageUploader) OrchestratorOption {
	return func(o *Orchestrator) { o.services.uploader = client }
}

func WithMediaSynthesizer(client MediaSynthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.services.synthesizer = client }
}

func WithAudioSynthesizer(client AudioSynthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.services.audio = client }
}

func WithCaptionRenderer(client CaptionRenderer) OrchestratorOption {
	return func(o *Orchestrator) { o.services.captions = client }
}

// Backend is a single client serving every service of the conversation.
type Backend interface {
	Transcriber
	Dialogue
	ImagePreviewer
	ImageUploader
	MediaSynthesizer
	AudioSynthesizer
	CaptionRenderer
}

// WithBackend wires every service to client. Later options can still
// replace individual services.
func WithBackend(client Backend) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechToText.set(client)
		o.services = services{
			dialogue:    client,
			previewer:   client,
			uploader:    client,
			synthesizer: client,
			audio:       client,
			captions:    client,
		}
	}
}

// WithTranscriptStore replaces the default in-memory transcript store, for
// example with one backed by a snapshot store.
func WithTranscriptStore(store *transcript.Store) OrchestratorOption {
	return func(o *Orchestrator) {
		if store != nil {
			o.transcript = store
		}
	}
}

// WithStepTimeout bounds every step's network call. An expired deadline is
// handled like any other service failure. Zero disables the bound.
func WithStepTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.stepTimeout = timeout }
}

// WithMinUtteranceDuration sets the shortest utterance that is sent for
// transcription.
func WithMinUtteranceDuration(duration time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.minUtterance = duration }
}

// WithAudioDuration sets the length of separately generated audio tracks.
func WithAudioDuration(duration time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.audioDuration = duration }
}

// WithTranscriptionLanguage hints the language of captured speech.
func WithTranscriptionLanguage(language string) OrchestratorOption {
	return func(o *Orchestrator) { o.language = language }
}

// WithGuestSessionID overrides the generated guest session id, for example
// to keep it stable across restarts of one tab.
func WithGuestSessionID(id string) OrchestratorOption {
	return func(o *Orchestrator) {
		if id != "" {
			o.guestSessionID = id
		}
	}
}

// WithEventHandler registers a receiver for every emitted event. Handlers
// run synchronously and must not block.
func WithEventHandler(handler func(events.Event)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onEvent = handler }
}

// WithTranscriptCallback registers a callback receiving the full transcript
// after every mutation.
func WithTranscriptCallback(callback func(entries []transcript.Entry)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onTranscript = callback }
}

func WithPhaseCallback(callback func(phase Phase)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onPhase = callback }
}

// WithInputsCallback registers a callback for input gating changes.
func WithInputsCallback(callback func(inputs gating.Inputs)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onInputs = callback }
}

// WithTranscriptionCallback registers a callback for every non-empty
// transcription of a captured utterance.
func WithTranscriptionCallback(callback func(transcript string)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onTranscription = callback }
}

type callbackOptions struct {
	onEvent         func(events.Event)
	onTranscript    func(entries []transcript.Entry)
	onPhase         func(phase Phase)
	onInputs        func(inputs gating.Inputs)
	onTranscription func(transcript string)
}

type services struct {
	dialogue    Dialogue
	previewer   ImagePreviewer
	uploader    ImageUploader
	synthesizer MediaSynthesizer
	audio       AudioSynthesizer
	captions    CaptionRenderer
}
