package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/ema-studio/core/audio"
	"github.com/koscakluka/ema-studio/core/speechtotext"
)

// Transcribe streams the utterance, asks Deepgram to flush, and returns the
// concatenated final transcript once the server closes the stream.
func (c *TranscriptionClient) Transcribe(ctx context.Context, utterance audio.Utterance, opts ...speechtotext.TranscriptionOption) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()

	options := speechtotext.NewTranscriptionOptions(opts...)
	if options.EncodingInfo.IsZero() {
		options.EncodingInfo = utterance.Encoding
	}

	connOptions := connectionOptions{
		model:          c.model,
		language:       c.language,
		interimResults: options.InterimTranscriptionCallback != nil,
	}
	if options.Language != "" {
		connOptions.language = options.Language
	}
	if !options.EncodingInfo.IsZero() {
		encoding, err := convertEncoding(options.EncodingInfo)
		if err != nil {
			return "", fmt.Errorf("invalid encoding: %w", err)
		}
		connOptions.sampleRate = encoding.SampleRate
		connOptions.encoding = encoding.Format.Name()
	}

	conn, err := c.connectWebsocket(ctx, connOptions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	stopOnCancel := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopOnCancel()

	acc := &transcriptAccumulator{onInterim: options.InterimTranscriptionCallback}
	readDone := make(chan error, 1)
	go func() { readDone <- readMessages(conn, acc) }()

	if err := c.sendUtterance(conn, utterance.Data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if err := <-readDone; err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to read transcription: %w", err)
	}

	transcript := acc.transcript()
	span.SetAttributes(attribute.Int("transcript.length", len(transcript)))
	return transcript, nil
}

type connectionOptions struct {
	model      string
	language   string
	sampleRate int
	encoding   string

	interimResults bool
}

func (c *TranscriptionClient) connectWebsocket(ctx context.Context, options connectionOptions) (*websocket.Conn, error) {
	listenURL, err := url.Parse(c.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}

	queryParams := listenURL.Query()
	if options.encoding != "" {
		queryParams.Set("encoding", options.encoding)
		queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
		queryParams.Set("channels", "1")
	}
	queryParams.Set("model", options.model)
	queryParams.Set("language", options.language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("punctuate", "true")
	if options.interimResults {
		queryParams.Set("interim_results", "true")
	}
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

// sendUtterance writes the audio in chunks and asks the server to flush
// and close the stream.
func (c *TranscriptionClient) sendUtterance(conn *websocket.Conn, data []byte) error {
	for start := 0; start < len(data); start += c.chunkSize {
		end := min(start+c.chunkSize, len(data))
		if err := conn.WriteMessage(websocket.BinaryMessage, data[start:end]); err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

// readMessages feeds every text message to acc until the server closes the
// connection. A normal closure is not an error.
func readMessages(conn *websocket.Conn, acc *transcriptAccumulator) error {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		if err := acc.process(msg); err != nil {
			return err
		}
	}
}

var errDeepgram = errors.New("deepgram reported an error")

// transcriptAccumulator collects the final segments of one utterance.
type transcriptAccumulator struct {
	mu        sync.Mutex
	finals    []string
	onInterim func(transcript string)
}

func (a *transcriptAccumulator) process(msg []byte) error {
	var parsedMsg struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return nil
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram results", "error", err)
			return nil
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return nil
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if transcript == "" {
			return nil
		}

		a.mu.Lock()
		if msgResp.IsFinal {
			a.finals = append(a.finals, transcript)
			a.mu.Unlock()
			return nil
		}
		running := strings.Join(append(append([]string(nil), a.finals...), transcript), " ")
		a.mu.Unlock()
		if a.onInterim != nil {
			a.onInterim(running)
		}

	case "Error":
		return fmt.Errorf("%w: %s", errDeepgram, parsedMsg.Description)
	}
	return nil
}

func (a *transcriptAccumulator) transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.finals, " ")
}
