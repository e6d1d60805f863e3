package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/yaml.v3"

	orchestration "github.com/koscakluka/ema-studio/core"
	"github.com/koscakluka/ema-studio/core/audio/miniaudio"
	"github.com/koscakluka/ema-studio/core/backend"
	"github.com/koscakluka/ema-studio/core/dialogue"
	"github.com/koscakluka/ema-studio/core/events"
	"github.com/koscakluka/ema-studio/core/llms/groq"
	"github.com/koscakluka/ema-studio/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-studio/core/transcript"
	"github.com/koscakluka/ema-studio/core/transcript/redisstore"
	"github.com/koscakluka/ema-studio/core/transcript/sqlitestore"
	"github.com/koscakluka/ema-studio/internal/config"
)

// studio owns the orchestrator and everything wired into it.
type studio struct {
	orchestrator *orchestration.Orchestrator
	backend      *backend.Client
	recorder     *miniaudio.Recorder
	snapshotKey  string

	closers []func() error
}

// eventMsg carries an orchestrator event into the bubbletea loop.
type eventMsg struct{ event events.Event }

func newStudio(ctx context.Context, cfg *config.Config, updates chan<- tea.Msg) (*studio, error) {
	s := &studio{}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	s.backend = backend.NewClient(cfg.Backend.URL,
		backend.WithHTTPClient(httpClient),
		backend.WithAccessToken(cfg.Backend.AccessToken),
	)

	opts := []orchestration.OrchestratorOption{
		orchestration.WithBackend(s.backend),
		orchestration.WithStepTimeout(cfg.Session.StepTimeout),
		orchestration.WithMinUtteranceDuration(cfg.Session.MinUtterance),
		orchestration.WithAudioDuration(cfg.Session.AudioDuration),
		orchestration.WithTranscriptionLanguage(cfg.Speech.Language),
		orchestration.WithEventHandler(func(event events.Event) {
			select {
			case updates <- eventMsg{event: event}:
			case <-ctx.Done():
			}
		}),
	}

	if cfg.Speech.Transcriber == config.TranscriberDeepgram {
		dgOpts := []deepgram.ClientOption{deepgram.WithAPIKey(cfg.Speech.Deepgram.APIKey)}
		if cfg.Speech.Deepgram.Model != "" {
			dgOpts = append(dgOpts, deepgram.WithModel(cfg.Speech.Deepgram.Model))
		}
		transcriber, err := deepgram.NewTranscriptionClient(dgOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepgram transcriber: %w", err)
		}
		opts = append(opts, orchestration.WithTranscriber(transcriber))
	}

	if cfg.Dialogue.Provider == config.DialogueGroq {
		groqOpts := []groq.ClientOption{
			groq.WithAPIKey(cfg.Dialogue.Groq.APIKey),
			groq.WithHTTPClient(httpClient),
		}
		if cfg.Dialogue.Groq.BaseURL != "" {
			groqOpts = append(groqOpts, groq.WithBaseURL(cfg.Dialogue.Groq.BaseURL))
		}
		if cfg.Dialogue.Groq.Model != "" {
			groqOpts = append(groqOpts, groq.WithModel(cfg.Dialogue.Groq.Model))
		}
		client, err := groq.NewClient(groqOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create groq client: %w", err)
		}
		opts = append(opts, orchestration.WithDialogue(dialogue.NewService(client)))
	}

	snapshots, err := s.openSnapshots(ctx, cfg.Snapshots)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	if snapshots != nil {
		s.snapshotKey = cfg.Snapshots.Key
		if s.snapshotKey == "" {
			s.snapshotKey = uuid.NewString()
		}
		opts = append(opts, orchestration.WithTranscriptStore(
			transcript.NewStore(transcript.WithSnapshotStore(snapshots, s.snapshotKey)),
		))
	}

	s.orchestrator = orchestration.NewOrchestrator(opts...)
	if cfg.Backend.AccessToken != "" {
		s.orchestrator.SetAuthenticated(ctx, true)
	}
	return s, nil
}

func (s *studio) openSnapshots(ctx context.Context, cfg config.Snapshots) (transcript.SnapshotStore, error) {
	switch cfg.Store {
	case config.SnapshotsMemory:
		return transcript.NewMemorySnapshotStore(), nil
	case config.SnapshotsSQLite:
		dsn := cfg.SQLiteDSN
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			var err error
			if dsn, err = sqlitestore.DSNForFile(dsn); err != nil {
				return nil, err
			}
		}
		store, err := sqlitestore.New(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite snapshot store: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	case config.SnapshotsRedis:
		store, err := redisstore.Dial(ctx, cfg.RedisAddr, redisstore.WithTTL(cfg.TTL))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	}
	return nil, nil
}

func (s *studio) openMicrophone() error {
	recorder, err := miniaudio.NewRecorder()
	if err != nil {
		return err
	}
	s.recorder = recorder
	s.closers = append(s.closers, func() error {
		recorder.Close()
		return nil
	})
	return nil
}

// login stores token for backend calls and switches the transcript to
// persisted mode.
func (s *studio) login(ctx context.Context, token string) {
	s.backend.SetAccessToken(token)
	s.orchestrator.SetAuthenticated(ctx, true)
}

func (s *studio) logout(ctx context.Context) {
	s.backend.SetAccessToken("")
	s.orchestrator.SetAuthenticated(ctx, false)
}

func (s *studio) Close(ctx context.Context) {
	if s.orchestrator != nil {
		s.orchestrator.Close(ctx)
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
	s.closers = nil
}

func describeConfig(cfg *config.Config) (string, error) {
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return string(out), nil
}
