package deepgram

import (
	"errors"
	"os"

	"github.com/gorilla/websocket"
)

const (
	DefaultListenURL = "wss://api.deepgram.com/v1/listen"
	DefaultModel     = "nova-3"
	DefaultLanguage  = "en-US"
)

var ErrMissingAPIKey = errors.New("deepgram api key not found")

// TranscriptionClient transcribes whole utterances over Deepgram's
// streaming endpoint. Each call opens its own websocket.
type TranscriptionClient struct {
	apiKey    string
	listenURL string
	model     string
	language  string
	chunkSize int
	dialer    *websocket.Dialer
}

type ClientOption func(*TranscriptionClient)

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *TranscriptionClient) { c.apiKey = apiKey }
}

func WithListenURL(listenURL string) ClientOption {
	return func(c *TranscriptionClient) { c.listenURL = listenURL }
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

// WithLanguage sets the default language. A language passed with a single
// transcription takes precedence.
func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) { c.language = language }
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *TranscriptionClient) { c.dialer = dialer }
}

func NewTranscriptionClient(opts ...ClientOption) (*TranscriptionClient, error) {
	c := &TranscriptionClient{
		listenURL: DefaultListenURL,
		model:     DefaultModel,
		language:  DefaultLanguage,
		chunkSize: 8192,
		dialer:    websocket.DefaultDialer,
	}
	if apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY"); ok {
		c.apiKey = apiKey
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return c, nil
}
