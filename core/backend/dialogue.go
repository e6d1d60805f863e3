package backend

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-studio/core/dialogue"
	"go.opentelemetry.io/otel/attribute"
)

// Turn sends one user utterance to the dialogue service.
func (c *Client) Turn(ctx context.Context, request dialogue.Request) (*dialogue.Reply, error) {
	ctx, span := tracer.Start(ctx, "dialogue turn")
	defer span.End()

	if c.token() != "" {
		request.GuestSessionID = ""
	}
	span.SetAttributes(
		attribute.Bool("request.guest", request.GuestSessionID != ""),
		attribute.Bool("request.has_session_key", request.SessionKey != ""),
	)

	resp, err := c.postJSON(ctx, "/gpt/dialogue", request)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("failed to run dialogue turn: %w", err))
	}

	var reply dialogue.Reply
	if err := resp.decode(&reply); err != nil {
		return nil, recordError(span, err)
	}
	span.SetAttributes(attribute.String("response.type", string(reply.Type)))
	return &reply, nil
}
