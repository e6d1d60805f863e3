// Package generation holds the request and result types exchanged with the
// media generation, image preview and caption rendering services.
package generation

import (
	"time"

	"github.com/koscakluka/ema-studio/core/flow"
)

// DefaultAudioDuration is the length of a separately generated audio track.
const DefaultAudioDuration = 20 * time.Second

// Media is a generated or rendered asset. Services return either the bytes,
// a URL, or both.
type Media struct {
	ContentType string
	Data        []byte
	URL         string
	Width       int
	Height      int
}

// Preview is the background-removed cut-out of a product photo.
type Preview struct {
	Cutout  Media
	Message string
}

type SynthesisRequest struct {
	Format      flow.OutputFormat
	Mode        flow.CompositionMode
	Summary     string
	ImagePrompt string
	// AudioPrompt is only sent for video, where audio is synthesized together
	// with the clip.
	AudioPrompt string
	Image       flow.Image
}

type AudioRequest struct {
	Prompt   string
	Duration time.Duration
}

type Anchor string

const (
	AnchorTop    Anchor = "top"
	AnchorMiddle Anchor = "middle"
	AnchorBottom Anchor = "bottom"
)

func (a Anchor) IsValid() bool {
	switch a {
	case AnchorTop, AnchorMiddle, AnchorBottom:
		return true
	}
	return false
}

type Color struct {
	R, G, B uint8
}

var White = Color{R: 255, G: 255, B: 255}

const (
	DefaultFont          = "default"
	DefaultCaptionWidth  = 500
	DefaultCaptionHeight = 500
)

// CaptionStyle is everything the caption renderer needs besides the source
// image.
type CaptionStyle struct {
	Text   string
	Font   string
	Anchor Anchor
	Color  Color
	Width  int
	Height int
}

// DefaultCaptionStyle returns the style a caption editor opens with.
func DefaultCaptionStyle(text string, width, height int) CaptionStyle {
	if width <= 0 {
		width = DefaultCaptionWidth
	}
	if height <= 0 {
		height = DefaultCaptionHeight
	}
	return CaptionStyle{
		Text:   text,
		Font:   DefaultFont,
		Anchor: AnchorBottom,
		Color:  White,
		Width:  width,
		Height: height,
	}
}
