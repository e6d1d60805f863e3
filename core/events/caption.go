package events

// KindCaptionPreviewUpdated identifies a freshly rendered caption preview.
const KindCaptionPreviewUpdated Kind = "caption.preview_updated"

// CaptionPreviewUpdated carries the rendered caption preview image.
type CaptionPreviewUpdated struct {
	Base
	Image       []byte
	ContentType string
}

func NewCaptionPreviewUpdated(image []byte, contentType string) CaptionPreviewUpdated {
	return CaptionPreviewUpdated{Base: NewBase(KindCaptionPreviewUpdated), Image: image, ContentType: contentType}
}
