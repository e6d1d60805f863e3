// Package orchestration drives an advertisement-creation conversation: it
// turns captured speech into dialogue turns, collects the user's choices,
// runs media generation and caption insertion, and keeps a single linear
// transcript plus input gating for the presentation layer.
//
// Every trigger is a blocking call. The orchestrator lock is never held
// across a network call; a step captures the session epoch before its call
// and applies its result only if no reset happened in the meantime.
package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/koscakluka/ema-studio/core/events"
	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/gating"
	"github.com/koscakluka/ema-studio/core/generation"
	"github.com/koscakluka/ema-studio/core/transcript"
)

const (
	// DefaultMinUtteranceDuration is the shortest recording sent for
	// transcription.
	DefaultMinUtteranceDuration = 600 * time.Millisecond
	// minUtteranceBytes rejects containerized audio whose duration is
	// unknown.
	minUtteranceBytes = 10000
)

type Orchestrator struct {
	mu sync.Mutex

	phase    Phase
	flow     flow.Context
	inFlight int
	// legs holds the failed steps that can be retried, keyed by the entry
	// that shows the failure.
	legs map[transcript.CorrelationID]retryableStep
	// captionSources survive flow resets so a captioned image can be
	// re-opened later.
	captionSources map[transcript.CorrelationID]captionSource
	editor         *CaptionEditor
	generation     generationState

	// queued events are emitted by the next publish, outside the lock.
	queued    []events.Event
	published struct {
		phase  Phase
		inputs gating.Inputs
	}

	transcript *transcript.Store
	identity   flow.Identity
	epoch      flow.Epoch

	authenticated  bool
	guestSessionID string

	speechToText speechToText
	services     services
	retries      singleflight.Group

	callbacks callbackOptions
	emitEvent eventEmitter

	stepTimeout   time.Duration
	minUtterance  time.Duration
	audioDuration time.Duration
	language      string

	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		legs:           map[transcript.CorrelationID]retryableStep{},
		captionSources: map[transcript.CorrelationID]captionSource{},
		transcript:     transcript.NewStore(),
		guestSessionID: uuid.NewString(),
		speechToText:   *newSpeechToText(nil),
		emitEvent:      noopEventEmitter,
		minUtterance:   DefaultMinUtteranceDuration,
		audioDuration:  generation.DefaultAudioDuration,
	}

	for _, opt := range opts {
		opt(o)
	}

	o.emitEvent = newCallbackEventEmitter(o.callbacks)
	o.speechToText.SetEventEmitter(o.emitEvent)
	o.published.inputs = o.Inputs()
	o.authenticated = o.transcript.IsAuthenticated()

	return o
}

func (o *Orchestrator) Close(ctx context.Context) {
	o.closeOnce.Do(func() {
		if err := o.speechToText.Close(ctx); err != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	})
}

func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Flow returns a copy of the ephemeral flow context.
func (o *Orchestrator) Flow() flow.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flow.Clone()
}

func (o *Orchestrator) SessionKey() string { return o.identity.Key() }

func (o *Orchestrator) GuestSessionID() string { return o.guestSessionID }

func (o *Orchestrator) Transcript() []transcript.Entry { return o.transcript.Entries() }

// Inputs evaluates the gating policy against the current state.
func (o *Orchestrator) Inputs() gating.Inputs {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inputsLocked()
}

func (o *Orchestrator) inputsLocked() gating.Inputs {
	state := gating.State{
		StepInFlight:            o.inFlight > 0,
		AwaitingImage:           o.phase == PhaseAwaitingImage,
		CaptionEditing:          o.phase == PhaseCaptionEditing,
		AwaitingPreviewDecision: o.phase == PhaseAwaitingPreviewDecision,
	}
	if last, ok := o.transcript.Last(); ok {
		state.LastEntryChoice = last.Choice
	}
	return gating.Evaluate(state)
}

// publish emits the transcript and any phase or gating change. It must be
// called without holding the lock, after every mutation.
func (o *Orchestrator) publish() {
	o.mu.Lock()
	previousPhase, phase := o.published.phase, o.phase
	previousInputs, inputs := o.published.inputs, o.inputsLocked()
	o.published.phase, o.published.inputs = phase, inputs
	queued := o.queued
	o.queued = nil
	o.mu.Unlock()

	for _, event := range queued {
		o.emitEvent(event)
	}
	o.emitEvent(events.NewTranscriptUpdated(o.transcript.Entries()))
	if previousPhase != phase {
		o.emitEvent(events.NewPhaseChanged(previousPhase.String(), phase.String()))
	}
	if previousInputs != inputs {
		o.emitEvent(events.NewInputsChanged(inputs))
	}
}

func (o *Orchestrator) queueLocked(event events.Event) {
	o.queued = append(o.queued, event)
}

func (o *Orchestrator) setPhaseLocked(ctx context.Context, phase Phase) {
	if o.phase != phase {
		logger.DebugContext(ctx, "phase changed", "from", o.phase.String(), "to", phase.String())
	}
	o.phase = phase
}

// Reset performs a full session reset: the session key, flow context and
// failed steps are dropped and every step still in flight becomes stale.
// The transcript is kept.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.mu.Lock()
	o.resetLocked(ctx, false)
	o.mu.Unlock()

	o.publish()
}

// StartOver resets the session and clears the transcript.
func (o *Orchestrator) StartOver(ctx context.Context) {
	o.mu.Lock()
	o.resetLocked(ctx, true)
	o.transcript.Reset(ctx)
	o.mu.Unlock()

	o.publish()
}

// SetAuthenticated records a login or logout. Logging in restores the
// persisted transcript; logging out ends the session and clears the
// transcript from memory. Both reset the flow.
func (o *Orchestrator) SetAuthenticated(ctx context.Context, authenticated bool) {
	o.mu.Lock()
	if o.authenticated == authenticated {
		o.mu.Unlock()
		return
	}
	o.authenticated = authenticated
	o.resetLocked(ctx, true)
	o.transcript.SetAuthenticated(ctx, authenticated)
	o.mu.Unlock()

	o.publish()
}

// openChoices are the choice markers a reset closes. None of them can be
// answered once the flow context is gone.
var openChoices = []transcript.Choice{
	transcript.ChoiceOutputFormat,
	transcript.ChoiceCompositionMode,
	transcript.ChoicePreview,
	transcript.ChoiceCaption,
}

// resetLocked ends the session. dropTranscript also forgets the caption
// sources, since the entries they belong to are going away.
func (o *Orchestrator) resetLocked(ctx context.Context, dropTranscript bool) {
	o.identity.Clear()
	o.flow = flow.Context{}
	o.inFlight = 0
	o.legs = map[transcript.CorrelationID]retryableStep{}
	o.generation = generationState{}
	o.closeEditorLocked()
	if dropTranscript {
		o.captionSources = map[transcript.CorrelationID]captionSource{}
	}
	for _, choice := range openChoices {
		o.transcript.ResolveChoice(ctx, choice)
	}
	if cancelled := o.transcript.CancelLoading(ctx, msgStepCancelled); cancelled > 0 {
		logger.DebugContext(ctx, "cancelled loading entries", "count", cancelled)
	}
	o.setPhaseLocked(ctx, PhaseIdle)

	epoch := o.epoch.Advance()
	logger.InfoContext(ctx, "session reset", "epoch", uint64(epoch))
	o.queueLocked(events.NewSessionReset(uint64(epoch), dropTranscript))
}

// finishLocked closes a completed conversation.
func (o *Orchestrator) finishLocked(ctx context.Context) {
	o.say(ctx, msgConversationFinished)
	o.resetLocked(ctx, false)
}

// step tracks one network call of a step executor.
type step struct {
	name  string
	id    transcript.CorrelationID
	token flow.EpochToken
	// turn steps escalate a failure to unrecoverable while no session key
	// exists.
	turn bool
}

func (o *Orchestrator) beginStepLocked(name string, id transcript.CorrelationID) step {
	o.inFlight++
	o.queueLocked(events.NewStepStarted(name, id))
	return step{name: name, id: id, token: o.epoch.Current()}
}

func (o *Orchestrator) beginTurnStepLocked(name string, id transcript.CorrelationID) step {
	s := o.beginStepLocked(name, id)
	s.turn = true
	return s
}

// stepContext derives the context of a step's network call.
func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stepTimeout > 0 {
		return context.WithTimeout(ctx, o.stepTimeout)
	}
	return context.WithCancel(ctx)
}

// settleLocked is called with the lock held after a step's call returned
// with result. It returns the outcome the step settles with: a stale step
// is invalidated whatever its call returned, and a failed turn without a
// session key is unrecoverable.
func (o *Orchestrator) settleLocked(s step, result outcome) outcome {
	if !o.epoch.IsCurrent(s.token) {
		return outcomeSessionInvalidated
	}
	if o.inFlight > 0 {
		o.inFlight--
	}
	if result == outcomeServiceCallFailed && s.turn && !o.identity.IsSet() {
		return outcomeUnrecoverable
	}
	return result
}

func (o *Orchestrator) reportFailureLocked(ctx context.Context, s step, result outcome, err error) {
	logger.WarnContext(ctx, "step failed", "step", s.name, "outcome", result.String(), "error", err)
	o.queueLocked(events.NewStepFailed(s.name, s.id, result.String(), err))
}

// runStep performs call without the lock and hands its result to apply
// with the lock held, unless the session was reset in the meantime. The
// lock must not be held by the caller. It reports whether apply ran.
func runStep[T any](ctx context.Context, o *Orchestrator, s step, call func(context.Context) stepResult[T], apply func(stepResult[T])) bool {
	o.publish()

	stepCtx, cancel := o.stepContext(ctx)
	result := call(stepCtx)
	cancel()

	o.mu.Lock()
	result.outcome = o.settleLocked(s, result.outcome)
	switch result.outcome {
	case outcomeSucceeded:
	case outcomeSessionInvalidated:
		o.mu.Unlock()
		logger.DebugContext(ctx, "discarding stale step result",
			"step", s.name, "outcome", result.outcome.String(), "correlation_id", int64(s.id))
		o.emitEvent(events.NewStepDiscarded(s.name, s.id))
		return false
	default:
		o.reportFailureLocked(ctx, s, result.outcome, result.err)
	}
	apply(result)
	o.mu.Unlock()

	o.publish()
	return true
}

// patchLocked updates the entry owning id.
func (o *Orchestrator) patchLocked(ctx context.Context, id transcript.CorrelationID, patch transcript.Patch) {
	if !o.transcript.Update(ctx, id, patch) {
		logger.DebugContext(ctx, "no entry to update", "correlation_id", int64(id))
	}
}

// appendLocked appends an entry, logging the rare rejection instead of
// surfacing it: a rejected entry always means a duplicate pending choice.
func (o *Orchestrator) appendLocked(ctx context.Context, entry transcript.Entry) {
	if _, err := o.transcript.Append(ctx, entry); err != nil {
		logger.WarnContext(ctx, "transcript entry rejected", "error", err)
	}
}

func (o *Orchestrator) say(ctx context.Context, body string) {
	o.appendLocked(ctx, transcript.Entry{Speaker: transcript.SpeakerAssistant, Body: body})
}

func (o *Orchestrator) echo(ctx context.Context, body string) {
	o.appendLocked(ctx, transcript.Entry{Speaker: transcript.SpeakerUser, Body: body})
}

// placeholder appends a loading entry and returns its correlation id.
func (o *Orchestrator) placeholder(ctx context.Context, speaker transcript.Speaker, body string) transcript.CorrelationID {
	id := o.transcript.NewCorrelationID()
	o.appendLocked(ctx, transcript.Entry{Speaker: speaker, Body: body, CorrelationID: id, Loading: true})
	return id
}
