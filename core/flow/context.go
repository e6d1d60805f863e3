// Package flow holds the per-session scratch state of an advertisement
// creation conversation: the choices the user made, the product image and
// the generation directives captured from the dialogue service.
//
// Nothing in this package is persisted. A full reset replaces the Context
// with its zero value.
package flow

import (
	"errors"
	"fmt"
)

var ErrAlreadySet = errors.New("value already set for this session")

type OutputFormat string

const (
	OutputFormatVideo         OutputFormat = "video"
	OutputFormatImage         OutputFormat = "image"
	OutputFormatImageAndAudio OutputFormat = "separate"
)

func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatVideo, OutputFormatImage, OutputFormatImageAndAudio:
		return true
	}
	return false
}

type CompositionMode string

const (
	CompositionRigid    CompositionMode = "rigid"
	CompositionBalanced CompositionMode = "balanced"
	CompositionCreative CompositionMode = "creative"
)

func (m CompositionMode) IsValid() bool {
	switch m {
	case CompositionRigid, CompositionBalanced, CompositionCreative:
		return true
	}
	return false
}

// Image is a user supplied or generated image file.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

func (i *Image) IsEmpty() bool { return i == nil || len(i.Data) == 0 }

// Context is the ephemeral flow state of one session.
type Context struct {
	// PendingNextQuestion is shown once the current choice is resolved.
	PendingNextQuestion *string

	OutputFormat    OutputFormat
	CompositionMode CompositionMode

	// PreviewImage is the file held while the user decides on the cut-out
	// preview. It becomes UploadedImage once the upload commits.
	PreviewImage  *Image
	UploadedImage *Image

	Summary     string
	ImagePrompt string
	AudioPrompt string
	CaptionText string
}

func (c *Context) SetOutputFormat(format OutputFormat) error {
	if !format.IsValid() {
		return fmt.Errorf("invalid output format %q", format)
	}
	if c.OutputFormat != "" {
		return fmt.Errorf("output format: %w", ErrAlreadySet)
	}
	c.OutputFormat = format
	return nil
}

func (c *Context) SetCompositionMode(mode CompositionMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("invalid composition mode %q", mode)
	}
	if c.CompositionMode != "" {
		return fmt.Errorf("composition mode: %w", ErrAlreadySet)
	}
	c.CompositionMode = mode
	return nil
}

// TakePendingNextQuestion returns and clears the queued question.
func (c *Context) TakePendingNextQuestion() (string, bool) {
	if c.PendingNextQuestion == nil {
		return "", false
	}
	question := *c.PendingNextQuestion
	c.PendingNextQuestion = nil
	return question, true
}

// PromptsKnown reports whether the terminal dialogue turn has delivered the
// generation directives.
func (c Context) PromptsKnown() bool { return c.ImagePrompt != "" }

// ReadyToGenerate reports whether every input of media generation is known.
func (c Context) ReadyToGenerate() bool {
	return c.OutputFormat != "" &&
		c.CompositionMode != "" &&
		c.PromptsKnown() &&
		!c.UploadedImage.IsEmpty()
}

// Clone returns a copy whose pointers do not alias the receiver's.
func (c Context) Clone() Context {
	clone := c
	if c.PendingNextQuestion != nil {
		question := *c.PendingNextQuestion
		clone.PendingNextQuestion = &question
	}
	clone.PreviewImage = c.PreviewImage.Clone()
	clone.UploadedImage = c.UploadedImage.Clone()
	return clone
}

// Clone returns a deep copy of i, or nil.
func (i *Image) Clone() *Image {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Data = append([]byte(nil), i.Data...)
	return &clone
}
