package events

import (
	"errors"
	"testing"

	"github.com/koscakluka/ema-studio/core/gating"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "user transcript interim updated", event: NewUserTranscriptInterimUpdated("te"), expected: KindUserTranscriptInterimUpdated},
		{name: "user transcript final", event: NewUserTranscriptFinal("text"), expected: KindUserTranscriptFinal},
		{name: "transcript updated", event: NewTranscriptUpdated(nil), expected: KindTranscriptUpdated},
		{name: "phase changed", event: NewPhaseChanged("Idle", "Transcribing"), expected: KindPhaseChanged},
		{name: "inputs changed", event: NewInputsChanged(gating.Inputs{Voice: true}), expected: KindInputsChanged},
		{name: "session adopted", event: NewSessionAdopted("key"), expected: KindSessionAdopted},
		{name: "session reset", event: NewSessionReset(2, false), expected: KindSessionReset},
		{name: "step started", event: NewStepStarted("transcribe", 1), expected: KindStepStarted},
		{name: "step failed", event: NewStepFailed("transcribe", 1, "service_call_failed", errors.New("boom")), expected: KindStepFailed},
		{name: "step discarded", event: NewStepDiscarded("dialogue", 0), expected: KindStepDiscarded},
		{name: "caption preview updated", event: NewCaptionPreviewUpdated([]byte{1}, "image/png"), expected: KindCaptionPreviewUpdated},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected %q to carry a timestamp", testCase.expected)
			}
		})
	}
}

func TestStepKindsAreDistinct(t *testing.T) {
	seen := map[Kind]bool{}
	for _, kind := range []Kind{KindStepStarted, KindStepFailed, KindStepDiscarded} {
		if seen[kind] {
			t.Fatalf("expected step kinds to differ, %q repeated", kind)
		}
		seen[kind] = true
	}
}
