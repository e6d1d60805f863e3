// Package dialogue describes one turn with the content generation service
// and provides an in-process implementation of that service on top of a
// structured LLM completion.
package dialogue

import (
	"fmt"
	"strings"
)

// Type discriminates free-form conversation from advertisement producing
// conversation.
type Type string

const (
	TypeChat          Type = "chat"
	TypeAdvertisement Type = "ad"
)

type Request struct {
	UserInput  string `json:"user_input"`
	SessionKey string `json:"session_key,omitempty"`
	// GuestSessionID identifies an unauthenticated caller.
	GuestSessionID string `json:"guest_session_id,omitempty"`
}

type FinalContent struct {
	Idea        string   `json:"idea"`
	Caption     string   `json:"caption"`
	Hashtags    []string `json:"hashtags"`
	ImagePrompt string   `json:"image_prompt"`
	AudioPrompt string   `json:"bgm_prompt"`
}

// IsEmpty reports whether the payload carries nothing worth rendering.
func (c *FinalContent) IsEmpty() bool {
	return c == nil || (c.Idea == "" && c.Caption == "" && len(c.Hashtags) == 0 &&
		c.ImagePrompt == "" && c.AudioPrompt == "")
}

// Markdown renders the content as a single transcript body.
func (c *FinalContent) Markdown() string {
	hashtags := "(no hashtags)"
	if len(c.Hashtags) > 0 {
		tags := make([]string, 0, len(c.Hashtags))
		for _, tag := range c.Hashtags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if !strings.HasPrefix(tag, "#") {
				tag = "#" + tag
			}
			tags = append(tags, tag)
		}
		if len(tags) > 0 {
			hashtags = strings.Join(tags, " ")
		}
	}

	return fmt.Sprintf("**Idea**\n%s\n\n**Caption**\n%s\n\n**Hashtags**\n%s\n\n**Image prompt**\n%s",
		c.Idea, c.Caption, hashtags, c.ImagePrompt)
}

// Reply is the service's answer to one turn.
type Reply struct {
	SessionKey string `json:"session_key"`
	Type       Type   `json:"type"`
	// NextQuestion is nil on a terminal turn. A non-nil empty question ends
	// the conversation.
	NextQuestion *string       `json:"next_question"`
	FinalContent *FinalContent `json:"final_content"`
	// LastMessage is shown on a terminal turn that carries no content.
	LastMessage string `json:"last_ment,omitempty"`
}

func (r *Reply) IsAdvertisement() bool { return r != nil && r.Type == TypeAdvertisement }
