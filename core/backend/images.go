package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/generation"
	"go.opentelemetry.io/otel/attribute"
)

type previewResponse struct {
	CutoutImage string `json:"cutout_image"`
	Message     string `json:"message"`
}

// PreviewCutout asks the segmentation service for a background-removed
// preview of the product photo.
func (c *Client) PreviewCutout(ctx context.Context, img flow.Image) (*generation.Preview, error) {
	ctx, span := tracer.Start(ctx, "preview cutout")
	defer span.End()

	span.SetAttributes(attribute.Int("request.image_bytes", len(img.Data)))

	f := &form{}
	f.attach("file", imageName(img), img.ContentType, img.Data)
	resp, err := c.postForm(ctx, "/segmentation/preview", f)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("failed to preview cutout: %w", err))
	}

	var body previewResponse
	if err := resp.decode(&body); err != nil {
		return nil, recordError(span, err)
	}
	if body.CutoutImage == "" {
		return nil, recordError(span, errors.New("preview response carries no cutout image"))
	}

	cutout, err := mediaFromReference(body.CutoutImage)
	if err != nil {
		return nil, recordError(span, err)
	}
	return &generation.Preview{Cutout: *cutout, Message: body.Message}, nil
}

// UploadImage commits the product photo to the dialogue session.
func (c *Client) UploadImage(ctx context.Context, sessionKey string, img flow.Image) error {
	ctx, span := tracer.Start(ctx, "upload product image")
	defer span.End()

	f := &form{}
	f.set("session_key", sessionKey)
	f.attach("product_image", imageName(img), img.ContentType, img.Data)
	if _, err := c.postForm(ctx, "/gpt/dialogue/upload-image", f); err != nil {
		return recordError(span, fmt.Errorf("failed to upload product image: %w", err))
	}
	return nil
}

func imageName(img flow.Image) string {
	if img.Name != "" {
		return img.Name
	}
	return "image.png"
}

// mediaFromReference accepts either a data URL or a plain URL.
func mediaFromReference(ref string) (*generation.Media, error) {
	if !strings.HasPrefix(ref, "data:") {
		return &generation.Media{URL: ref}, nil
	}

	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data url")
	}
	contentType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("unsupported data url encoding %q", header)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data url: %w", err)
	}
	return mediaFromBytes(contentType, data), nil
}

// mediaFromBytes fills in the image dimensions when data decodes as an
// image.
func mediaFromBytes(contentType string, data []byte) *generation.Media {
	media := &generation.Media{ContentType: contentType, Data: data}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		media.Width, media.Height = cfg.Width, cfg.Height
	}
	return media
}
