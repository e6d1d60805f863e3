package transcript

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// Media references a piece of generated or uploaded media. Data is kept in
// memory only; snapshots never carry it.
type Media struct {
	Kind        MediaKind `json:"kind"`
	URL         string    `json:"url,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Data        []byte    `json:"-"`
}

// Choice is the category of user choice an entry is currently requesting.
type Choice string

const (
	ChoiceNone            Choice = ""
	ChoiceOutputFormat    Choice = "output_format"
	ChoiceCompositionMode Choice = "composition_mode"
	ChoiceCaption         Choice = "caption"
	ChoicePreview         Choice = "preview"
)

// CorrelationID ties a placeholder entry to the step that finalizes it.
// Zero means the entry is not addressable.
type CorrelationID int64

// Handle identifies an entry independently of its position.
type Handle int64

// Entry is one chat bubble.
type Entry struct {
	Handle        Handle        `json:"handle"`
	Speaker       Speaker       `json:"speaker"`
	Body          string        `json:"body,omitempty"`
	Media         *Media        `json:"media,omitempty"`
	CorrelationID CorrelationID `json:"correlation_id,omitempty"`
	Choice        Choice        `json:"choice,omitempty"`
	Retry         bool          `json:"retry,omitempty"`
	Loading       bool          `json:"loading,omitempty"`
}

// Patch is a partial update of an entry. Nil fields are left untouched.
type Patch struct {
	Speaker    *Speaker
	Body       *string
	Media      *Media
	ClearMedia bool
	Choice     *Choice
	Retry      *bool
	Loading    *bool
}

func (p Patch) apply(e *Entry) {
	if p.Speaker != nil {
		e.Speaker = *p.Speaker
	}
	if p.Body != nil {
		e.Body = *p.Body
	}
	if p.ClearMedia {
		e.Media = nil
	}
	if p.Media != nil {
		media := *p.Media
		e.Media = &media
	}
	if p.Choice != nil {
		e.Choice = *p.Choice
	}
	if p.Retry != nil {
		e.Retry = *p.Retry
	}
	if p.Loading != nil {
		e.Loading = *p.Loading
	}
}
