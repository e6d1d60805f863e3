package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/koscakluka/ema-studio/core/llms"
	"github.com/koscakluka/ema-studio/core/llms/groq"
)

const (
	DefaultMaxHistory = 40
	DefaultSessionTTL = time.Hour
)

const systemPrompt = `You are an advertising copywriter helping a small business owner create one social media ad.
Ask short clarifying questions, one at a time, until you know the product, the audience and the mood.
Set "type" to "ad" as soon as the user wants an advertisement, otherwise "chat".
While questions remain, set "done" to false and put the question in "next_question".
If the user wants to stop, set "done" to false and leave "next_question" empty.
Once you know enough, set "done" to true and fill "final_content": a one sentence idea, a short caption,
three to five hashtags, an English image prompt describing the scene around the product, and an English
background music prompt. Put a short closing remark in "last_message".`

// completion is the schema the model answers with.
type completion struct {
	Type         string       `json:"type" jsonschema:"enum=chat,enum=ad"`
	Done         bool         `json:"done"`
	NextQuestion string       `json:"next_question"`
	FinalContent FinalContent `json:"final_content"`
	LastMessage  string       `json:"last_message"`
}

type session struct {
	history []llms.Message
	touched time.Time
}

// Service is an in-process dialogue service that keeps one conversation
// history per session key.
type Service struct {
	client *groq.Client

	mu         sync.Mutex
	sessions   map[string]*session
	maxHistory int
	sessionTTL time.Duration
	now        func() time.Time
}

type ServiceOption func(*Service)

// WithMaxHistory bounds the number of messages replayed with every turn.
func WithMaxHistory(n int) ServiceOption {
	return func(s *Service) { s.maxHistory = n }
}

// WithSessionTTL sets how long an idle session is kept.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.sessionTTL = ttl }
}

func NewService(client *groq.Client, opts ...ServiceOption) *Service {
	s := &Service{
		client:     client,
		sessions:   map[string]*session{},
		maxHistory: DefaultMaxHistory,
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Turn answers one user input. An unknown or empty session key starts a new
// session; a terminal turn ends it.
func (s *Service) Turn(ctx context.Context, request Request) (*Reply, error) {
	ctx, span := tracer.Start(ctx, "dialogue turn")
	defer span.End()

	key, history := s.session(request.SessionKey)
	span.SetAttributes(
		attribute.String("dialogue.session_key", key),
		attribute.Int("dialogue.history", len(history)),
		attribute.Bool("dialogue.guest", request.GuestSessionID != ""),
	)

	answer, err := groq.PromptJSONSchema[completion](ctx, s.client, request.UserInput,
		llms.WithSystemPrompt(systemPrompt),
		llms.WithMessages(history...),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to complete dialogue turn: %w", err)
	}

	reply := answer.reply(key)
	if reply.NextQuestion == nil || *reply.NextQuestion == "" {
		s.end(key)
		return reply, nil
	}

	encoded, err := json.Marshal(answer)
	if err != nil {
		logger.WarnContext(ctx, "failed to encode dialogue answer", "error", err)
		encoded = []byte(*reply.NextQuestion)
	}
	s.record(key, llms.UserMessage(request.UserInput), llms.AssistantMessage(string(encoded)))
	return reply, nil
}

func (c completion) reply(key string) *Reply {
	reply := &Reply{SessionKey: key, Type: TypeChat, LastMessage: strings.TrimSpace(c.LastMessage)}
	if Type(c.Type) == TypeAdvertisement {
		reply.Type = TypeAdvertisement
	}

	if !c.Done {
		question := strings.TrimSpace(c.NextQuestion)
		reply.NextQuestion = &question
		return reply
	}
	if content := c.FinalContent; !content.IsEmpty() {
		reply.FinalContent = &content
	}
	return reply
}

// session returns the key and history of the session, starting a new one
// for unknown keys. Idle sessions are pruned on the way.
func (s *Service) session(key string) (string, []llms.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, sess := range s.sessions {
		if now.Sub(sess.touched) > s.sessionTTL {
			delete(s.sessions, k)
		}
	}

	sess, ok := s.sessions[key]
	if key == "" || !ok {
		key = uuid.NewString()
		sess = &session{}
		s.sessions[key] = sess
	}
	sess.touched = now
	return key, append([]llms.Message(nil), sess.history...)
}

func (s *Service) record(key string, messages ...llms.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return
	}
	sess.history = append(sess.history, messages...)
	if s.maxHistory > 0 && len(sess.history) > s.maxHistory {
		sess.history = sess.history[len(sess.history)-s.maxHistory:]
	}
}

func (s *Service) end(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Sessions reports the number of open sessions.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
