package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-studio/core/audio"
	"github.com/koscakluka/ema-studio/core/dialogue"
	"github.com/koscakluka/ema-studio/core/events"
	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/generation"
	"github.com/koscakluka/ema-studio/core/transcript"
	"github.com/koscakluka/ema-studio/internal/utils"
)

func expectPhase(t *testing.T, o *Orchestrator, want Phase) {
	t.Helper()
	if got := o.Phase(); got != want {
		t.Fatalf("expected phase %s, got %s", want, got)
	}
}

func mustSucceed(t *testing.T, err error, action string) {
	t.Helper()
	if err != nil {
		t.Fatalf("expected %s to succeed, got %v", action, err)
	}
}

// driveToComposition walks a session from the first utterance until the
// composition mode is chosen. The generation prompts are not known yet.
func driveToComposition(t *testing.T, ctx context.Context, o *Orchestrator, b *scriptedBackend, format flow.OutputFormat) {
	t.Helper()

	b.replies = append(b.replies, openingReply())
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "first utterance")
	expectPhase(t, o, PhaseAwaitingFormatChoice)

	mustSucceed(t, o.SelectOutputFormat(ctx, format), "format choice")
	expectPhase(t, o, PhaseAwaitingImage)

	mustSucceed(t, o.ImageSelected(ctx, coffeeImage()), "image selection")
	expectPhase(t, o, PhaseAwaitingPreviewDecision)

	mustSucceed(t, o.ConfirmPreview(ctx), "preview confirmation")
	expectPhase(t, o, PhaseAwaitingCompositionChoice)

	mustSucceed(t, o.SelectCompositionMode(ctx, flow.CompositionBalanced), "composition choice")
	expectPhase(t, o, PhaseIdle)
}

func TestShortAudioIsRejectedWithoutServiceCalls(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	o := NewOrchestrator(WithBackend(b))

	short := audio.Utterance{Data: make([]byte, 3200), Encoding: audio.GetDefaultEncodingInfo()}
	mustSucceed(t, o.AudioCaptured(ctx, short), "short utterance")

	if calls := b.totalCalls(); calls != 0 {
		t.Fatalf("expected no service calls, got %d", calls)
	}
	entries := o.Transcript()
	if len(entries) != 1 || entries[0].Body != msgAudioTooShort {
		t.Fatalf("expected exactly one rejection message, got %+v", entries)
	}
	expectPhase(t, o, PhaseIdle)
}

func TestShortContainerAudioFallsBackToByteThreshold(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	o := NewOrchestrator(WithBackend(b))

	mustSucceed(t, o.AudioCaptured(ctx, audio.Utterance{Data: make([]byte, 500), ContentType: "audio/webm"}), "short webm")
	if b.count("transcribe") != 0 {
		t.Fatalf("expected short webm to be rejected before transcription")
	}
}

func TestEmptyTranscriptionAsksToRepeat(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.transcripts = []string{"   "}
	o := NewOrchestrator(WithBackend(b))

	mustSucceed(t, o.AudioCaptured(ctx, speech()), "utterance")

	if b.count("dialogue") != 0 {
		t.Fatalf("expected no dialogue turn for an empty transcription")
	}
	if _, ok := findEntry(o.Transcript(), withBody(msgNotUnderstood)); !ok {
		t.Fatalf("expected a request to repeat, got %+v", o.Transcript())
	}
	expectPhase(t, o, PhaseIdle)
}

func TestAdvertisementTurnWithoutFormatAsksForFormat(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.replies = []*dialogue.Reply{terminalReply("Wake up to flavor")}
	o := NewOrchestrator(WithBackend(b))

	mustSucceed(t, o.AudioCaptured(ctx, speech()), "utterance")

	expectPhase(t, o, PhaseAwaitingFormatChoice)
	entry, ok := o.transcript.PendingChoice(transcript.ChoiceOutputFormat)
	if !ok || entry.Body != msgChooseFormat {
		t.Fatalf("expected an open format choice, got %+v", o.Transcript())
	}
	if inputs := o.Inputs(); inputs.Voice || inputs.FilePicker || !inputs.Options {
		t.Fatalf("expected only options to be enabled, got %+v", inputs)
	}
	if o.SessionKey() != "session-1" {
		t.Fatalf("expected session key to be adopted, got %q", o.SessionKey())
	}
	if b.turnRequests[0].GuestSessionID != o.GuestSessionID() {
		t.Fatalf("expected guest session id on unauthenticated turn")
	}
}

func TestFirstTurnFailureResetsSession(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.dialogueErr = errors.New("backend unavailable")

	var mu sync.Mutex
	var resets int
	o := NewOrchestrator(WithBackend(b), WithEventHandler(func(event events.Event) {
		if _, ok := event.(events.SessionReset); ok {
			mu.Lock()
			resets++
			mu.Unlock()
		}
	}))

	mustSucceed(t, o.AudioCaptured(ctx, speech()), "utterance")

	if _, ok := findEntry(o.Transcript(), withBody(msgGenericFailure)); !ok {
		t.Fatalf("expected a generic apology, got %+v", o.Transcript())
	}
	mu.Lock()
	defer mu.Unlock()
	if resets != 1 {
		t.Fatalf("expected one session reset, got %d", resets)
	}
	expectPhase(t, o, PhaseIdle)
}

// failureRecorder collects the StepFailed events of an orchestrator.
type failureRecorder struct {
	mu       sync.Mutex
	failures []events.StepFailed
}

func (r *failureRecorder) handle(event events.Event) {
	if failure, ok := event.(events.StepFailed); ok {
		r.mu.Lock()
		r.failures = append(r.failures, failure)
		r.mu.Unlock()
	}
}

func (r *failureRecorder) outcomes(step string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var outcomes []string
	for _, failure := range r.failures {
		if failure.Step == step {
			outcomes = append(outcomes, failure.Outcome)
		}
	}
	return outcomes
}

func TestTurnFailureOutcomes(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.dialogueErr = errors.New("backend unavailable")
	recorder := &failureRecorder{}
	o := NewOrchestrator(WithBackend(b), WithEventHandler(recorder.handle))

	mustSucceed(t, o.AudioCaptured(ctx, speech()), "first utterance")
	if got := recorder.outcomes("dialogue"); len(got) != 1 || got[0] != "unrecoverable" {
		t.Fatalf("expected the first turn failure to be unrecoverable, got %v", got)
	}

	b.mu.Lock()
	b.dialogueErr = nil
	b.replies = append(b.replies, &dialogue.Reply{SessionKey: "session-1", Type: dialogue.TypeChat, NextQuestion: utils.Ptr("Tell me more.")})
	b.mu.Unlock()
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "second utterance")

	b.mu.Lock()
	b.dialogueErr = errors.New("backend unavailable")
	b.mu.Unlock()
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "third utterance")

	got := recorder.outcomes("dialogue")
	if len(got) != 2 || got[1] != "service_call_failed" {
		t.Fatalf("expected a recoverable failure once a session exists, got %v", got)
	}
	if o.SessionKey() != "session-1" {
		t.Fatalf("expected the session to survive a later turn failure, got %q", o.SessionKey())
	}
	expectPhase(t, o, PhaseIdle)
}

func TestResetClosesOpenChoices(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.replies = []*dialogue.Reply{openingReply()}
	o := NewOrchestrator(WithBackend(b))

	mustSucceed(t, o.AudioCaptured(ctx, speech()), "first utterance")
	expectPhase(t, o, PhaseAwaitingFormatChoice)

	o.Reset(ctx)

	if _, pending := o.transcript.PendingChoice(transcript.ChoiceOutputFormat); pending {
		t.Fatalf("expected the format choice to be closed by the reset")
	}
	if inputs := o.Inputs(); !inputs.Voice || inputs.FilePicker || !inputs.Options {
		t.Fatalf("expected voice and options after a reset, got %+v", inputs)
	}
	if err := o.SelectOutputFormat(ctx, flow.OutputFormatImage); !errors.Is(err, ErrUnexpectedTrigger) {
		t.Fatalf("expected the closed choice to be refused, got %v", err)
	}

	b.replies = append(b.replies, openingReply())
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "utterance after reset")
	expectPhase(t, o, PhaseAwaitingFormatChoice)
	mustSucceed(t, o.SelectOutputFormat(ctx, flow.OutputFormatImage), "format choice after reset")
	expectPhase(t, o, PhaseAwaitingImage)
}

func TestReloginDoesNotRestoreOpenChoices(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.replies = []*dialogue.Reply{openingReply()}
	store := transcript.NewStore(transcript.WithSnapshotStore(transcript.NewMemorySnapshotStore(), "tab-1"))
	o := NewOrchestrator(WithBackend(b), WithTranscriptStore(store))

	o.SetAuthenticated(ctx, true)
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "first utterance")
	expectPhase(t, o, PhaseAwaitingFormatChoice)

	o.SetAuthenticated(ctx, false)
	o.SetAuthenticated(ctx, true)

	if len(o.Transcript()) == 0 {
		t.Fatalf("expected the transcript to be restored on login")
	}
	for _, entry := range o.Transcript() {
		if entry.Choice != transcript.ChoiceNone || entry.Loading {
			t.Fatalf("expected restored entries without open choices, got %+v", entry)
		}
	}
	expectPhase(t, o, PhaseIdle)
	if inputs := o.Inputs(); !inputs.Voice {
		t.Fatalf("expected voice input after login, got %+v", inputs)
	}

	b.replies = append(b.replies, openingReply())
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "utterance after login")
	expectPhase(t, o, PhaseAwaitingFormatChoice)
}

func TestStepTimeoutIsRetryable(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.synthStalls = 1
	recorder := &failureRecorder{}
	o := NewOrchestrator(WithBackend(b), WithStepTimeout(50*time.Millisecond), WithEventHandler(recorder.handle))

	driveToComposition(t, ctx, o, b, flow.OutputFormatImage)
	b.replies = append(b.replies, terminalReply(""))

	done := make(chan error, 1)
	go func() { done <- o.AudioCaptured(ctx, speech()) }()
	select {
	case err := <-done:
		mustSucceed(t, err, "terminal utterance")
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the step deadline")
	}

	failed, ok := findEntry(o.Transcript(), func(e transcript.Entry) bool { return e.Retry })
	if !ok || failed.Body != msgImageFailed || failed.Loading {
		t.Fatalf("expected a retryable image failure, got %+v", o.Transcript())
	}
	if got := recorder.outcomes("synthesize"); len(got) != 1 || got[0] != "service_call_failed" {
		t.Fatalf("expected one failed synthesis, got %v", got)
	}
	expectPhase(t, o, PhaseGeneratingMedia)

	mustSucceed(t, o.Retry(ctx, failed.CorrelationID), "retry")

	entry, _ := o.transcript.Get(failed.CorrelationID)
	if entry.Retry || entry.Body != msgImageReady || entry.Media == nil {
		t.Fatalf("expected the same entry to carry the image, got %+v", entry)
	}
	if _, ok := findEntry(o.Transcript(), withBody(msgConversationFinished)); !ok {
		t.Fatalf("expected the conversation to finish after the retry")
	}
	expectPhase(t, o, PhaseIdle)
}

func TestVideoLegFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.synthErrs = []error{errors.New("video model overloaded")}
	o := NewOrchestrator(WithBackend(b))

	driveToComposition(t, ctx, o, b, flow.OutputFormatVideo)
	b.replies = append(b.replies, terminalReply("Wake up to flavor"))
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "terminal utterance")

	failed, ok := findEntry(o.Transcript(), func(e transcript.Entry) bool { return e.Retry })
	if !ok || failed.Body != msgVideoFailed {
		t.Fatalf("expected a retryable video failure, got %+v", o.Transcript())
	}
	if o.SessionKey() == "" {
		t.Fatalf("expected the session to wait for the retry")
	}

	mustSucceed(t, o.Retry(ctx, failed.CorrelationID), "retry")

	entry, _ := o.transcript.Get(failed.CorrelationID)
	if entry.Retry || entry.Media == nil || entry.Media.Kind != transcript.MediaVideo {
		t.Fatalf("expected the same entry to carry the video, got %+v", entry)
	}
	if b.count("synthesize") != 2 {
		t.Fatalf("expected two synthesis calls, got %d", b.count("synthesize"))
	}
	if o.SessionKey() != "" {
		t.Fatalf("expected the finished session to be reset")
	}
	expectPhase(t, o, PhaseIdle)
}

func TestUploadFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.replies = []*dialogue.Reply{openingReply()}
	b.uploadErr = errors.New("bucket unavailable")
	o := NewOrchestrator(WithBackend(b))

	mustSucceed(t, o.AudioCaptured(ctx, speech()), "utterance")
	mustSucceed(t, o.SelectOutputFormat(ctx, flow.OutputFormatImage), "format")
	mustSucceed(t, o.ImageSelected(ctx, coffeeImage()), "image")
	mustSucceed(t, o.ConfirmPreview(ctx), "confirm")

	failed, ok := findEntry(o.Transcript(), func(e transcript.Entry) bool { return e.Retry })
	if !ok || failed.Body != msgUploadFailed {
		t.Fatalf("expected a retryable upload failure, got %+v", o.Transcript())
	}
	if o.Flow().UploadedImage != nil {
		t.Fatalf("expected no uploaded image after a failed upload")
	}

	b.mu.Lock()
	b.uploadErr = nil
	b.mu.Unlock()
	mustSucceed(t, o.Retry(ctx, failed.CorrelationID), "retry")

	entry, _ := o.transcript.Get(failed.CorrelationID)
	if entry.Retry || entry.Choice != transcript.ChoiceCompositionMode {
		t.Fatalf("expected the same entry to ask for the composition, got %+v", entry)
	}
	if o.Flow().UploadedImage == nil {
		t.Fatalf("expected the image to be uploaded after the retry")
	}
	if len(b.uploadedKeys) != 2 || b.uploadedKeys[1] != "session-1" {
		t.Fatalf("expected a second upload under the session key, got %v", b.uploadedKeys)
	}
	expectPhase(t, o, PhaseAwaitingCompositionChoice)
}

func TestCaptionEditorFailuresStayInsideTheEditor(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	o := NewOrchestrator(WithBackend(b))

	driveToComposition(t, ctx, o, b, flow.OutputFormatImage)
	b.replies = append(b.replies, terminalReply("Wake up to flavor"))
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "terminal utterance")

	editor, err := o.InsertCaption(ctx)
	mustSucceed(t, err, "insert caption")

	b.mu.Lock()
	b.captionPreviewErr = errors.New("renderer: font cache corrupt")
	b.captionApplyErr = errors.New("renderer: font cache corrupt")
	b.mu.Unlock()

	if _, err := editor.SetText(ctx, "Fresh every morning"); !errors.Is(err, ErrStepFailed) || strings.Contains(err.Error(), "renderer") {
		t.Fatalf("expected a failed preview without its cause, got %v", err)
	}
	if err := editor.Apply(ctx); !errors.Is(err, ErrStepFailed) || strings.Contains(err.Error(), "renderer") {
		t.Fatalf("expected a failed apply without its cause, got %v", err)
	}
	if _, ok := findEntry(o.Transcript(), withBody(msgCaptionApplyFailed)); !ok {
		t.Fatalf("expected the failed apply in the transcript, got %+v", o.Transcript())
	}
	expectPhase(t, o, PhaseCaptionEditing)

	b.mu.Lock()
	b.captionPreviewErr = nil
	b.captionApplyErr = nil
	b.mu.Unlock()
	mustSucceed(t, editor.Apply(ctx), "apply")

	if _, ok := findEntry(o.Transcript(), withBody(msgCaptionApplied)); !ok {
		t.Fatalf("expected the caption to be applied on the second attempt")
	}
	expectPhase(t, o, PhaseIdle)
}

func TestGatedAndUnexpectedTriggers(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	o := NewOrchestrator(WithBackend(b))

	if err := o.ImageSelected(ctx, coffeeImage()); !errors.Is(err, ErrInputGated) {
		t.Fatalf("expected file input to be gated while idle, got %v", err)
	}
	if err := o.SelectCompositionMode(ctx, flow.CompositionRigid); !errors.Is(err, ErrUnexpectedTrigger) {
		t.Fatalf("expected unexpected trigger, got %v", err)
	}
	if err := o.Retry(ctx, 99); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("expected nothing to retry, got %v", err)
	}

	b.replies = []*dialogue.Reply{openingReply()}
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "utterance")
	mustSucceed(t, o.SelectOutputFormat(ctx, flow.OutputFormatImage), "format")

	if err := o.AudioCaptured(ctx, speech()); !errors.Is(err, ErrInputGated) {
		t.Fatalf("expected voice to be gated while awaiting an image, got %v", err)
	}
	if err := o.SelectOutputFormat(ctx, flow.OutputFormatVideo); !errors.Is(err, ErrUnexpectedTrigger) {
		t.Fatalf("expected a second format choice to be rejected, got %v", err)
	}
	if got := o.Flow().OutputFormat; got != flow.OutputFormatImage {
		t.Fatalf("expected format to stay image, got %q", got)
	}
}

func TestRejectPreviewAsksForAnotherImage(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.replies = []*dialogue.Reply{openingReply()}
	o := NewOrchestrator(WithBackend(b))

	mustSucceed(t, o.AudioCaptured(ctx, speech()), "utterance")
	mustSucceed(t, o.SelectOutputFormat(ctx, flow.OutputFormatImage), "format")
	mustSucceed(t, o.ImageSelected(ctx, coffeeImage()), "image")
	mustSucceed(t, o.RejectPreview(ctx), "reject preview")

	expectPhase(t, o, PhaseAwaitingImage)
	if o.Flow().PreviewImage != nil {
		t.Fatalf("expected the held image to be discarded")
	}
	if b.count("upload") != 0 {
		t.Fatalf("expected no upload after rejecting the preview")
	}
	if _, pending := o.transcript.PendingChoice(transcript.ChoicePreview); pending {
		t.Fatalf("expected the preview choice to be resolved")
	}
}

func TestPreviewFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.replies = []*dialogue.Reply{openingReply()}
	b.previewErr = errors.New("segmentation down")
	o := NewOrchestrator(WithBackend(b))

	mustSucceed(t, o.AudioCaptured(ctx, speech()), "utterance")
	mustSucceed(t, o.SelectOutputFormat(ctx, flow.OutputFormatImage), "format")
	mustSucceed(t, o.ImageSelected(ctx, coffeeImage()), "image")

	failed, ok := findEntry(o.Transcript(), func(e transcript.Entry) bool { return e.Retry })
	if !ok || failed.Body != msgPreviewFailed {
		t.Fatalf("expected a retryable preview failure, got %+v", o.Transcript())
	}
	expectPhase(t, o, PhaseAwaitingPreviewDecision)

	b.mu.Lock()
	b.previewErr = nil
	b.mu.Unlock()
	mustSucceed(t, o.Retry(ctx, failed.CorrelationID), "retry")

	entry, _ := o.transcript.Get(failed.CorrelationID)
	if entry.Retry || entry.Choice != transcript.ChoicePreview || entry.Media == nil {
		t.Fatalf("expected the same entry to carry the preview, got %+v", entry)
	}
	if b.count("preview") != 2 {
		t.Fatalf("expected two preview calls, got %d", b.count("preview"))
	}
}

func TestSeparateFormatRetriesOnlyTheFailedAudioLeg(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.audioErrs = []error{errors.New("audio model overloaded")}
	o := NewOrchestrator(WithBackend(b))

	driveToComposition(t, ctx, o, b, flow.OutputFormatImageAndAudio)
	b.replies = append(b.replies, terminalReply(""))
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "terminal utterance")

	if b.count("synthesize") != 1 || b.count("audio") != 1 {
		t.Fatalf("expected one call per leg, got synthesize=%d audio=%d", b.count("synthesize"), b.count("audio"))
	}
	expectPhase(t, o, PhaseGeneratingMedia)

	visual, ok := findEntry(o.Transcript(), withBody(msgImageReady))
	if !ok || visual.Media == nil {
		t.Fatalf("expected the image leg to have succeeded, got %+v", o.Transcript())
	}
	failed, ok := findEntry(o.Transcript(), func(e transcript.Entry) bool { return e.Retry })
	if !ok || failed.Body != msgAudioFailed {
		t.Fatalf("expected a retryable audio failure, got %+v", o.Transcript())
	}

	mustSucceed(t, o.Retry(ctx, failed.CorrelationID), "retry")

	if b.count("synthesize") != 1 {
		t.Fatalf("expected retry not to re-run the image leg, got %d calls", b.count("synthesize"))
	}
	if b.count("audio") != 2 {
		t.Fatalf("expected the audio leg to run again, got %d calls", b.count("audio"))
	}

	after, _ := o.transcript.Get(visual.CorrelationID)
	if after.Body != visual.Body || string(after.Media.Data) != string(visual.Media.Data) {
		t.Fatalf("expected the image entry to stay unchanged, got %+v", after)
	}
	audioEntry, _ := o.transcript.Get(failed.CorrelationID)
	if audioEntry.Retry || audioEntry.Media == nil || audioEntry.Media.Kind != transcript.MediaAudio {
		t.Fatalf("expected the audio entry to carry the track, got %+v", audioEntry)
	}
	if o.SessionKey() != "" {
		t.Fatalf("expected the finished session to be reset")
	}
	expectPhase(t, o, PhaseIdle)
}

func TestRetryAfterResetRestartsConversation(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.audioErrs = []error{errors.New("audio model overloaded")}
	o := NewOrchestrator(WithBackend(b))

	driveToComposition(t, ctx, o, b, flow.OutputFormatImageAndAudio)
	b.replies = append(b.replies, terminalReply(""))
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "terminal utterance")

	failed, ok := findEntry(o.Transcript(), func(e transcript.Entry) bool { return e.Retry })
	if !ok {
		t.Fatalf("expected a failed audio leg")
	}

	o.Reset(ctx)
	mustSucceed(t, o.Retry(ctx, failed.CorrelationID), "retry")

	entry, _ := o.transcript.Get(failed.CorrelationID)
	if entry.Body != msgRestartConversation || entry.Retry {
		t.Fatalf("expected the entry to become an apology, got %+v", entry)
	}
	if b.count("audio") != 1 {
		t.Fatalf("expected no further audio call, got %d", b.count("audio"))
	}
}

func TestCaptionApplyAndReapplyReplaceTheSameEntry(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	o := NewOrchestrator(WithBackend(b))

	driveToComposition(t, ctx, o, b, flow.OutputFormatImage)
	b.replies = append(b.replies, terminalReply("Wake up to flavor"))
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "terminal utterance")
	expectPhase(t, o, PhaseAwaitingCaptionDecision)

	visual, ok := findEntry(o.Transcript(), withBody(msgImageReady))
	if !ok {
		t.Fatalf("expected a generated image entry, got %+v", o.Transcript())
	}

	editor, err := o.InsertCaption(ctx)
	mustSucceed(t, err, "insert caption")
	expectPhase(t, o, PhaseCaptionEditing)
	if editor.Style().Text != "Wake up to flavor" || editor.Style().Width != 640 {
		t.Fatalf("expected the default style of the generated image, got %+v", editor.Style())
	}

	preview, err := editor.SetAnchor(ctx, generation.AnchorTop)
	mustSucceed(t, err, "anchor change")
	if string(preview) != "preview:Wake up to flavor" {
		t.Fatalf("unexpected preview %q", preview)
	}
	mustSucceed(t, editor.Apply(ctx), "apply")

	first, _ := o.transcript.Get(visual.CorrelationID)
	if first.Media == nil || first.Media.URL != "https://cdn.example/captioned-1.png" {
		t.Fatalf("expected the captioned image on the original entry, got %+v", first.Media)
	}
	expectPhase(t, o, PhaseIdle)
	if o.SessionKey() != "" {
		t.Fatalf("expected the session to be finished")
	}

	editor, err = o.EditCaption(ctx, visual.CorrelationID)
	mustSucceed(t, err, "reopen caption")
	if editor.Style().Anchor != generation.AnchorTop {
		t.Fatalf("expected the reopened editor to keep the applied style, got %+v", editor.Style())
	}
	mustSucceed(t, editor.Apply(ctx), "re-apply")

	second, _ := o.transcript.Get(visual.CorrelationID)
	if second.Media.URL != "https://cdn.example/captioned-2.png" {
		t.Fatalf("expected a new captioned image, got %q", second.Media.URL)
	}

	captioned := 0
	for _, entry := range o.Transcript() {
		if entry.Media != nil && strings.Contains(entry.Media.URL, "captioned") {
			captioned++
		}
	}
	if captioned != 1 {
		t.Fatalf("expected the image entry to be replaced, not duplicated, got %d captioned entries", captioned)
	}
	for i, source := range b.captionSources {
		if string(source) != "visual" {
			t.Fatalf("expected apply %d to caption the uncaptioned image, got %q", i, source)
		}
	}
	expectPhase(t, o, PhaseIdle)
}

func TestDeclineCaptionFinishesSession(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	o := NewOrchestrator(WithBackend(b))

	driveToComposition(t, ctx, o, b, flow.OutputFormatImage)
	b.replies = append(b.replies, terminalReply("Wake up to flavor"))
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "terminal utterance")
	mustSucceed(t, o.DeclineCaption(ctx), "decline")

	if _, ok := findEntry(o.Transcript(), withBody(msgCaptionSkipped)); !ok {
		t.Fatalf("expected the caption offer to be marked skipped")
	}
	if _, ok := findEntry(o.Transcript(), withBody(msgConversationFinished)); !ok {
		t.Fatalf("expected a closing message")
	}
	if b.count("caption_apply") != 0 {
		t.Fatalf("expected no caption to be applied")
	}
	expectPhase(t, o, PhaseIdle)
}

func TestResetDuringGenerationDiscardsResult(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	o := NewOrchestrator(WithBackend(b))

	driveToComposition(t, ctx, o, b, flow.OutputFormatVideo)
	b.mu.Lock()
	b.replies = append(b.replies, terminalReply(""))
	b.synthStarted = make(chan struct{}, 1)
	b.synthGate = make(chan struct{})
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- o.AudioCaptured(ctx, speech()) }()

	select {
	case <-b.synthStarted:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for synthesis to start")
	}
	if inputs := o.Inputs(); inputs.Voice || inputs.Options {
		t.Fatalf("expected every input to be gated while generating, got %+v", inputs)
	}

	o.Reset(ctx)
	close(b.synthGate)

	select {
	case err := <-done:
		mustSucceed(t, err, "terminal utterance")
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the stale step to settle")
	}

	for _, entry := range o.Transcript() {
		if entry.Media != nil && entry.Media.Kind == transcript.MediaVideo {
			t.Fatalf("expected no trace of the stale video, got %+v", entry)
		}
		if entry.Retry {
			t.Fatalf("expected no retry marker from the stale step, got %+v", entry)
		}
		if entry.Loading {
			t.Fatalf("expected no entry to keep loading after the reset, got %+v", entry)
		}
	}
	if _, ok := findEntry(o.Transcript(), withBody(msgStepCancelled)); !ok {
		t.Fatalf("expected the video placeholder to read as cancelled, got %+v", o.Transcript())
	}
	current := o.Flow()
	if current.OutputFormat != "" || current.CompositionMode != "" || current.ImagePrompt != "" || current.UploadedImage != nil {
		t.Fatalf("expected an empty flow context, got %+v", current)
	}
	expectPhase(t, o, PhaseIdle)
}

func TestCoffeeShopReelEndToEnd(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.transcripts = []string{"I run a coffee shop, make me a reel"}
	b.replies = []*dialogue.Reply{{
		SessionKey:   "session-1",
		Type:         dialogue.TypeAdvertisement,
		NextQuestion: utils.Ptr("Who are your customers?"),
	}}

	var phases []Phase
	var mu sync.Mutex
	o := NewOrchestrator(WithBackend(b), WithPhaseCallback(func(phase Phase) {
		mu.Lock()
		phases = append(phases, phase)
		mu.Unlock()
	}))

	mustSucceed(t, o.AudioCaptured(ctx, speech()), "first utterance")
	expectPhase(t, o, PhaseAwaitingFormatChoice)

	mustSucceed(t, o.SelectOutputFormat(ctx, flow.OutputFormatVideo), "video format")
	expectPhase(t, o, PhaseAwaitingImage)

	mustSucceed(t, o.ImageSelected(ctx, coffeeImage()), "coffee.png")
	expectPhase(t, o, PhaseAwaitingPreviewDecision)

	mustSucceed(t, o.ConfirmPreview(ctx), "use this")
	expectPhase(t, o, PhaseAwaitingCompositionChoice)
	if len(b.uploadedKeys) != 1 || b.uploadedKeys[0] != "session-1" {
		t.Fatalf("expected the upload under the session key, got %v", b.uploadedKeys)
	}

	mustSucceed(t, o.SelectCompositionMode(ctx, flow.CompositionBalanced), "balanced")
	expectPhase(t, o, PhaseIdle)
	if b.count("synthesize") != 0 {
		t.Fatalf("expected generation to wait for the prompts")
	}
	if _, ok := findEntry(o.Transcript(), withBody("Who are your customers?")); !ok {
		t.Fatalf("expected the held question to be shown after the choice")
	}

	b.replies = append(b.replies, terminalReply("Wake up to flavor"))
	mustSucceed(t, o.AudioCaptured(ctx, speech()), "terminal utterance")

	if b.count("synthesize") != 1 || b.count("audio") != 0 {
		t.Fatalf("expected one combined synthesis call, got synthesize=%d audio=%d", b.count("synthesize"), b.count("audio"))
	}
	request := b.synthRequests[0]
	if request.Format != flow.OutputFormatVideo || request.Mode != flow.CompositionBalanced ||
		request.AudioPrompt == "" || string(request.Image.Data) != "coffee-png" {
		t.Fatalf("unexpected synthesis request %+v", request)
	}

	video, ok := findEntry(o.Transcript(), func(e transcript.Entry) bool {
		return e.Media != nil && e.Media.Kind == transcript.MediaVideo
	})
	if !ok || video.Body != msgVideoReady {
		t.Fatalf("expected a video entry, got %+v", o.Transcript())
	}
	if _, pending := o.transcript.PendingChoice(transcript.ChoiceCaption); pending {
		t.Fatalf("expected no caption offer for video")
	}
	if o.SessionKey() != "" || o.Flow().OutputFormat != "" {
		t.Fatalf("expected a full reset after the video")
	}
	expectPhase(t, o, PhaseIdle)

	mu.Lock()
	defer mu.Unlock()
	if len(phases) == 0 || phases[len(phases)-1] != PhaseIdle {
		t.Fatalf("expected phase callbacks ending in idle, got %v", phases)
	}
}

func TestStartOverClearsTranscript(t *testing.T) {
	ctx := context.Background()
	b := newScriptedBackend()
	b.replies = []*dialogue.Reply{openingReply()}
	o := NewOrchestrator(WithBackend(b))

	mustSucceed(t, o.AudioCaptured(ctx, speech()), "utterance")
	o.StartOver(ctx)

	if len(o.Transcript()) != 0 {
		t.Fatalf("expected an empty transcript, got %+v", o.Transcript())
	}
	if o.SessionKey() != "" {
		t.Fatalf("expected the session key to be cleared")
	}
	expectPhase(t, o, PhaseIdle)
}
