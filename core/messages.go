package orchestration

import (
	"fmt"

	"github.com/koscakluka/ema-studio/core/flow"
)

// Transcript copy. Entries only ever show these strings, never raw service
// errors.
const (
	msgLoading              = "..."
	msgAudioTooShort        = "That recording was too short. Please say it again."
	msgNotUnderstood        = "I couldn't make that out. Could you say it once more?"
	msgGenericFailure       = "Something went wrong. Please try again!"
	msgRestartConversation  = "Sorry, let's start the conversation over."
	msgChooseFormat         = "What kind of ad would you like?"
	msgImageGuide           = "Please send a photo of your product. A single product on a plain background works best."
	msgPreviewLoading       = "Removing the background..."
	msgPreviewReady         = "Here is the cut-out. Use this photo or pick another one?"
	msgPreviewFailed        = "Background removal failed. Please try again."
	msgPreviewAccepted      = "Use this photo."
	msgUploadLoading        = "Uploading your photo..."
	msgUploadFailed         = "Uploading the photo failed. Please try again."
	msgChooseComposition    = "How should your product be composed into the scene?"
	msgVideoLoading         = "Generating your video..."
	msgVideoReady           = "Your video is ready!"
	msgVideoFailed          = "Video generation failed. Please try again."
	msgImageLoading         = "Generating your image..."
	msgImageReady           = "Your image is ready!"
	msgImageFailed          = "Image generation failed. Please try again."
	msgAudioLoading         = "Generating music..."
	msgAudioReady           = "Your music is ready!"
	msgAudioFailed          = "Music generation failed. Please try again."
	msgCaptionOffer         = "Shall I put the generated caption on the image?"
	msgCaptionInsert        = "Add the caption, please."
	msgCaptionApplied       = "Caption added!"
	msgCaptionSkipped       = "Done without a caption."
	msgStepCancelled        = "Cancelled."
	msgCaptionApplyFailed   = "Adding the caption failed. Please try again."
	msgConversationFinished = "This conversation is finished. Start a new ad whenever you like!"
)

func formatChoiceEcho(format flow.OutputFormat) string {
	switch format {
	case flow.OutputFormatVideo:
		return "Make it a video (reel)!"
	case flow.OutputFormatImage:
		return "Just an image, please!"
	case flow.OutputFormatImageAndAudio:
		return "An image and music, separately!"
	}
	return string(format)
}

func compositionChoiceEcho(mode flow.CompositionMode) string {
	return fmt.Sprintf("Use %s mode.", mode)
}
