package miniaudio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-studio/core/audio"
)

// Recorder captures push-to-talk utterances from the default microphone.
type Recorder struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	captureClient

	mu        sync.Mutex
	buffer    bytes.Buffer
	startedAt time.Time
	recording bool
}

func NewRecorder() (*Recorder, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	recorder := &Recorder{audioContext: audioCtx}
	if err := recorder.captureClient.Init(audioCtx, audio.GetDefaultEncodingInfo()); err != nil {
		recorder.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return recorder, nil
}

// StartRecording discards any previous buffer and starts capturing.
func (r *Recorder) StartRecording(_ context.Context) error {
	r.mu.Lock()
	r.buffer.Reset()
	r.startedAt = time.Now()
	r.recording = true
	r.mu.Unlock()

	return r.captureClient.Start(func(frame []byte) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.recording {
			r.buffer.Write(frame)
		}
	})
}

// StopRecording stops capturing and returns everything recorded since
// StartRecording.
func (r *Recorder) StopRecording() (audio.Utterance, error) {
	if err := r.captureClient.Stop(); err != nil {
		return audio.Utterance{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return audio.Utterance{}, fmt.Errorf("recorder is not recording")
	}
	r.recording = false

	data := make([]byte, r.buffer.Len())
	copy(data, r.buffer.Bytes())
	return audio.Utterance{
		Data:     data,
		Encoding: r.captureClient.encoding,
		Duration: time.Since(r.startedAt),
	}, nil
}

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) Close() {
	_ = r.captureClient.Uninit()
	_ = r.audioContext.Uninit()
	r.audioContext.Free()
}
