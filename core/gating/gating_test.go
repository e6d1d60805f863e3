package gating

import (
	"testing"

	"github.com/koscakluka/ema-studio/core/transcript"
)

func TestEvaluate(t *testing.T) {
	testCases := []struct {
		name     string
		state    State
		expected Inputs
	}{
		{
			name:     "idle accepts voice",
			state:    State{},
			expected: Inputs{Voice: true, Options: true},
		},
		{
			name:     "step in flight blocks everything",
			state:    State{StepInFlight: true, AwaitingImage: true},
			expected: Inputs{},
		},
		{
			name:     "awaiting image only accepts files",
			state:    State{AwaitingImage: true},
			expected: Inputs{FilePicker: true, Options: true},
		},
		{
			name:     "preview decision blocks voice",
			state:    State{AwaitingPreviewDecision: true, LastEntryChoice: transcript.ChoicePreview},
			expected: Inputs{Options: true},
		},
		{
			name:     "caption editing blocks voice and options",
			state:    State{CaptionEditing: true},
			expected: Inputs{},
		},
		{
			name:     "unresolved format choice blocks voice",
			state:    State{LastEntryChoice: transcript.ChoiceOutputFormat},
			expected: Inputs{Options: true},
		},
		{
			name:     "unresolved composition choice blocks voice",
			state:    State{LastEntryChoice: transcript.ChoiceCompositionMode},
			expected: Inputs{Options: true},
		},
		{
			name:     "pending caption decision keeps voice open",
			state:    State{LastEntryChoice: transcript.ChoiceCaption},
			expected: Inputs{Voice: true, Options: true},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := Evaluate(testCase.state); got != testCase.expected {
				t.Fatalf("expected %+v, got %+v", testCase.expected, got)
			}
		})
	}
}
