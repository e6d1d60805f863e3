package orchestration

import (
	"context"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-studio/core/audio"
	"github.com/koscakluka/ema-studio/core/dialogue"
	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/generation"
	"github.com/koscakluka/ema-studio/core/speechtotext"
	"github.com/koscakluka/ema-studio/core/transcript"
	"github.com/koscakluka/ema-studio/internal/utils"
)

// scriptedBackend plays back queued results and records every call.
type scriptedBackend struct {
	mu sync.Mutex

	transcripts []string
	replies     []*dialogue.Reply
	dialogueErr error
	previewErr  error
	uploadErr   error
	synthErrs   []error
	audioErrs   []error

	captionPreviewErr error
	captionApplyErr   error

	// synthStalls is the number of Synthesize calls that hang until their
	// context is done.
	synthStalls int

	// synthStarted and synthGate, when set, hold Synthesize until the test
	// closes synthGate.
	synthStarted chan struct{}
	synthGate    chan struct{}

	calls           map[string]int
	turnRequests    []dialogue.Request
	synthRequests   []generation.SynthesisRequest
	uploadedKeys    []string
	captionSources  [][]byte
	captionPreviews []generation.CaptionStyle
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{calls: map[string]int{}}
}

func (b *scriptedBackend) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *scriptedBackend) totalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.calls {
		total += n
	}
	return total
}

func pop[T any](queue *[]T) (T, bool) {
	var zero T
	if len(*queue) == 0 {
		return zero, false
	}
	next := (*queue)[0]
	*queue = (*queue)[1:]
	return next, true
}

func (b *scriptedBackend) Transcribe(_ context.Context, _ audio.Utterance, _ ...speechtotext.TranscriptionOption) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["transcribe"]++
	if text, ok := pop(&b.transcripts); ok {
		return text, nil
	}
	return "make me an ad", nil
}

func (b *scriptedBackend) Turn(_ context.Context, request dialogue.Request) (*dialogue.Reply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["dialogue"]++
	b.turnRequests = append(b.turnRequests, request)
	if b.dialogueErr != nil {
		return nil, b.dialogueErr
	}
	if reply, ok := pop(&b.replies); ok {
		return reply, nil
	}
	return &dialogue.Reply{SessionKey: "session-1", Type: dialogue.TypeChat, NextQuestion: utils.Ptr("Anything else?")}, nil
}

func (b *scriptedBackend) PreviewCutout(_ context.Context, img flow.Image) (*generation.Preview, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["preview"]++
	if b.previewErr != nil {
		return nil, b.previewErr
	}
	return &generation.Preview{
		Cutout:  generation.Media{ContentType: "image/png", Data: append([]byte("cutout:"), img.Data...)},
		Message: "Background removed.",
	}, nil
}

func (b *scriptedBackend) UploadImage(_ context.Context, sessionKey string, _ flow.Image) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["upload"]++
	b.uploadedKeys = append(b.uploadedKeys, sessionKey)
	return b.uploadErr
}

func (b *scriptedBackend) Synthesize(ctx context.Context, request generation.SynthesisRequest) (*generation.Media, error) {
	b.mu.Lock()
	b.calls["synthesize"]++
	b.synthRequests = append(b.synthRequests, request)
	started, gate := b.synthStarted, b.synthGate
	err, _ := pop(&b.synthErrs)
	stall := b.synthStalls > 0
	if stall {
		b.synthStalls--
	}
	b.mu.Unlock()

	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if request.Format == flow.OutputFormatVideo {
		return &generation.Media{ContentType: "video/mp4", Data: []byte("video")}, nil
	}
	return &generation.Media{ContentType: "image/png", Data: []byte("visual"), Width: 640, Height: 480}, nil
}

func (b *scriptedBackend) GenerateAudio(_ context.Context, _ generation.AudioRequest) (*generation.Media, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["audio"]++
	if err, _ := pop(&b.audioErrs); err != nil {
		return nil, err
	}
	return &generation.Media{ContentType: "audio/wav", Data: []byte("audio")}, nil
}

func (b *scriptedBackend) PreviewCaption(_ context.Context, style generation.CaptionStyle) (*generation.Media, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["caption_preview"]++
	b.captionPreviews = append(b.captionPreviews, style)
	if b.captionPreviewErr != nil {
		return nil, b.captionPreviewErr
	}
	return &generation.Media{ContentType: "image/png", Data: []byte("preview:" + style.Text)}, nil
}

func (b *scriptedBackend) ApplyCaption(_ context.Context, _ generation.CaptionStyle, img flow.Image) (*generation.Media, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["caption_apply"]++
	b.captionSources = append(b.captionSources, append([]byte(nil), img.Data...))
	if b.captionApplyErr != nil {
		return nil, b.captionApplyErr
	}
	n := b.calls["caption_apply"]
	return &generation.Media{
		ContentType: "image/png",
		URL:         fmt.Sprintf("https://cdn.example/captioned-%d.png", n),
		Data:        []byte(fmt.Sprintf("captioned-%d", n)),
	}, nil
}

func (b *scriptedBackend) Fonts(context.Context) ([]string, error) {
	return []string{generation.DefaultFont, "serif"}, nil
}

func speech() audio.Utterance {
	return audio.Utterance{Data: make([]byte, audio.DefaultSampleRate*2), Encoding: audio.GetDefaultEncodingInfo()}
}

func coffeeImage() flow.Image {
	return flow.Image{Name: "coffee.png", ContentType: "image/png", Data: []byte("coffee-png")}
}

func openingReply() *dialogue.Reply {
	return &dialogue.Reply{
		SessionKey:   "session-1",
		Type:         dialogue.TypeAdvertisement,
		NextQuestion: utils.Ptr("What mood should the ad have?"),
	}
}

func terminalReply(caption string) *dialogue.Reply {
	return &dialogue.Reply{
		SessionKey: "session-1",
		Type:       dialogue.TypeAdvertisement,
		FinalContent: &dialogue.FinalContent{
			Idea:        "Morning rush at the corner cafe",
			Caption:     caption,
			Hashtags:    []string{"coffee", "#morning"},
			ImagePrompt: "latte on a wooden table, soft light",
			AudioPrompt: "warm acoustic guitar",
		},
	}
}

func findEntry(entries []transcript.Entry, match func(transcript.Entry) bool) (transcript.Entry, bool) {
	for _, entry := range entries {
		if match(entry) {
			return entry, true
		}
	}
	return transcript.Entry{}, false
}

func withBody(body string) func(transcript.Entry) bool {
	return func(entry transcript.Entry) bool { return entry.Body == body }
}
