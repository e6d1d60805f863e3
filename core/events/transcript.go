package events

import "github.com/koscakluka/ema-studio/core/transcript"

const KindTranscriptUpdated Kind = "transcript.updated"

// TranscriptUpdated carries the transcript as it stands after a mutation.
type TranscriptUpdated struct {
	Base
	Entries []transcript.Entry
}

func NewTranscriptUpdated(entries []transcript.Entry) TranscriptUpdated {
	return TranscriptUpdated{Base: NewBase(KindTranscriptUpdated), Entries: entries}
}
