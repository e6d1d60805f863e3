package orchestration

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/koscakluka/ema-studio/core/transcript"
	"github.com/koscakluka/ema-studio/internal/utils"
)

// Retry re-runs the failed step shown by the entry owning id. Only that
// step runs again; entries of sibling steps stay as they are. Concurrent
// retries of one entry collapse into a single run.
func (o *Orchestrator) Retry(ctx context.Context, id transcript.CorrelationID) error {
	_, err, _ := o.retries.Do(strconv.FormatInt(int64(id), 10), func() (any, error) {
		return nil, o.retry(ctx, id)
	})
	return err
}

func (o *Orchestrator) retry(ctx context.Context, id transcript.CorrelationID) error {
	ctx, span := tracer.Start(ctx, "retry")
	defer span.End()
	span.SetAttributes(attribute.Int64("correlation_id", int64(id)))

	o.mu.Lock()
	if o.inFlight > 0 || !o.inputsLocked().Options {
		o.mu.Unlock()
		return ErrInputGated
	}

	leg, ok := o.legs[id]
	if !ok {
		entry, found := o.transcript.Get(id)
		if !found || !entry.Retry || o.flow.OutputFormat != "" {
			o.mu.Unlock()
			return ErrNothingToRetry
		}

		// The failed step belonged to a session that no longer exists.
		logger.InfoContext(ctx, "retry without session context, restarting", "correlation_id", int64(id))
		o.patchLocked(ctx, id, transcript.Patch{
			Body:       utils.Ptr(msgRestartConversation),
			ClearMedia: true,
			Choice:     utils.Ptr(transcript.ChoiceNone),
			Retry:      utils.Ptr(false),
			Loading:    utils.Ptr(false),
		})
		o.resetLocked(ctx, false)
		o.mu.Unlock()
		o.publish()
		return nil
	}

	span.SetAttributes(attribute.String("retry.step", leg.kind.String()))
	delete(o.legs, id)
	o.patchLocked(ctx, id, transcript.Patch{
		Body:    utils.Ptr(o.loadingMessageLocked(leg.kind)),
		Retry:   utils.Ptr(false),
		Loading: utils.Ptr(true),
	})
	o.mu.Unlock()

	switch leg.kind {
	case stepPreview:
		o.runPreview(ctx, id)
	case stepUpload:
		o.runUpload(ctx, id)
	case stepVisual:
		o.runVisualLeg(ctx, id)
	case stepAudio:
		o.runAudioLeg(ctx, id)
	}
	return nil
}

func (o *Orchestrator) loadingMessageLocked(kind stepKind) string {
	switch kind {
	case stepPreview:
		return msgPreviewLoading
	case stepUpload:
		return msgUploadLoading
	case stepVisual:
		return visualLoadingMessage(o.flow.OutputFormat)
	case stepAudio:
		return msgAudioLoading
	}
	return msgLoading
}
