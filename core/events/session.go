package events

const (
	KindSessionAdopted Kind = "session.adopted"
	KindSessionReset   Kind = "session.reset"
)

type SessionAdopted struct {
	Base
	Key string
}

func NewSessionAdopted(key string) SessionAdopted {
	return SessionAdopted{Base: NewBase(KindSessionAdopted), Key: key}
}

// SessionReset marks a full reset. Epoch is the epoch that is current after
// the reset; TranscriptCleared reports whether the transcript was reset too.
type SessionReset struct {
	Base
	Epoch             uint64
	TranscriptCleared bool
}

func NewSessionReset(epoch uint64, transcriptCleared bool) SessionReset {
	return SessionReset{Base: NewBase(KindSessionReset), Epoch: epoch, TranscriptCleared: transcriptCleared}
}
