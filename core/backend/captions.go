package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/generation"
	"go.opentelemetry.io/otel/attribute"
)

func captionForm(style generation.CaptionStyle) *form {
	f := &form{}
	f.set("text", style.Text)
	f.set("font_mode", style.Font)
	f.set("mode", string(style.Anchor))
	f.set("width", strconv.Itoa(style.Width))
	f.set("height", strconv.Itoa(style.Height))
	f.set("color_r", strconv.Itoa(int(style.Color.R)))
	f.set("color_g", strconv.Itoa(int(style.Color.G)))
	f.set("color_b", strconv.Itoa(int(style.Color.B)))
	return f
}

// PreviewCaption renders the caption alone, for live preview.
func (c *Client) PreviewCaption(ctx context.Context, style generation.CaptionStyle) (*generation.Media, error) {
	ctx, span := tracer.Start(ctx, "preview caption")
	defer span.End()

	span.SetAttributes(attribute.String("request.font", style.Font), attribute.String("request.anchor", string(style.Anchor)))
	resp, err := c.postForm(ctx, "/text/preview", captionForm(style))
	if err != nil {
		return nil, recordError(span, fmt.Errorf("failed to preview caption: %w", err))
	}
	return mediaFromBytes(resp.contentType, resp.body), nil
}

// ApplyCaption burns the caption into img.
func (c *Client) ApplyCaption(ctx context.Context, style generation.CaptionStyle, img flow.Image) (*generation.Media, error) {
	ctx, span := tracer.Start(ctx, "apply caption")
	defer span.End()

	if img.IsEmpty() {
		return nil, recordError(span, errors.New("caption requires a source image"))
	}

	f := captionForm(style)
	f.attach("image_file", imageName(img), img.ContentType, img.Data)
	resp, err := c.postForm(ctx, "/text/apply", f)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("failed to apply caption: %w", err))
	}
	if len(resp.body) == 0 {
		return nil, recordError(span, errors.New("caption apply returned an empty body"))
	}
	return mediaFromBytes(resp.contentType, resp.body), nil
}

type fontsResponse struct {
	Fonts []string `json:"fonts"`
}

// Fonts lists the caption fonts. The list is fetched once and cached;
// concurrent callers share one request.
func (c *Client) Fonts(ctx context.Context) ([]string, error) {
	c.fontsMu.Lock()
	cached := c.fonts
	c.fontsMu.Unlock()
	if cached != nil {
		return slices.Clone(cached), nil
	}

	fonts, err, _ := c.fontsGroup.Do("fonts", func() (any, error) {
		ctx, span := tracer.Start(ctx, "list caption fonts")
		defer span.End()

		resp, err := c.get(ctx, "/text/fonts")
		if err != nil {
			return nil, recordError(span, fmt.Errorf("failed to list fonts: %w", err))
		}
		var body fontsResponse
		if err := resp.decode(&body); err != nil {
			return nil, recordError(span, err)
		}
		if body.Fonts == nil {
			body.Fonts = []string{}
		}

		c.fontsMu.Lock()
		c.fonts = body.Fonts
		c.fontsMu.Unlock()
		return body.Fonts, nil
	})
	if err != nil {
		logger.WarnContext(ctx, "font list unavailable", "error", err)
		return nil, err
	}
	return slices.Clone(fonts.([]string)), nil
}
