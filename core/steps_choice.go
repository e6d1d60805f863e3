package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/transcript"
)

// SelectOutputFormat resolves the open format choice.
func (o *Orchestrator) SelectOutputFormat(ctx context.Context, format flow.OutputFormat) error {
	ctx, span := tracer.Start(ctx, "select output format")
	defer span.End()

	o.mu.Lock()
	if err := o.checkChoiceLocked(PhaseAwaitingFormatChoice, transcript.ChoiceOutputFormat); err != nil {
		o.mu.Unlock()
		return err
	}
	if err := o.flow.SetOutputFormat(format); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("failed to select output format: %w", err)
	}

	o.transcript.ResolveChoice(ctx, transcript.ChoiceOutputFormat)
	o.echo(ctx, formatChoiceEcho(format))

	if o.flow.UploadedImage.IsEmpty() {
		o.say(ctx, msgImageGuide)
		o.setPhaseLocked(ctx, PhaseAwaitingImage)
		o.mu.Unlock()
		o.publish()
		return nil
	}

	generate := o.continueAfterChoiceLocked(ctx)
	o.mu.Unlock()
	o.publish()

	if generate {
		o.generate(ctx)
	}
	return nil
}

// SelectCompositionMode resolves the open composition choice. Generation
// starts right away when the terminal dialogue turn already happened.
func (o *Orchestrator) SelectCompositionMode(ctx context.Context, mode flow.CompositionMode) error {
	ctx, span := tracer.Start(ctx, "select composition mode")
	defer span.End()

	o.mu.Lock()
	if err := o.checkChoiceLocked(PhaseAwaitingCompositionChoice, transcript.ChoiceCompositionMode); err != nil {
		o.mu.Unlock()
		return err
	}
	if err := o.flow.SetCompositionMode(mode); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("failed to select composition mode: %w", err)
	}

	o.transcript.ResolveChoice(ctx, transcript.ChoiceCompositionMode)
	o.echo(ctx, compositionChoiceEcho(mode))

	generate := o.continueAfterChoiceLocked(ctx)
	o.mu.Unlock()
	o.publish()

	if generate {
		o.generate(ctx)
	}
	return nil
}

// checkChoiceLocked validates an option tap against gating, phase and the
// open choice.
func (o *Orchestrator) checkChoiceLocked(phase Phase, choice transcript.Choice) error {
	if o.inFlight > 0 || !o.inputsLocked().Options {
		return ErrInputGated
	}
	if o.phase != phase {
		return ErrUnexpectedTrigger
	}
	if _, pending := o.transcript.PendingChoice(choice); !pending {
		return ErrUnexpectedTrigger
	}
	return nil
}

// continueAfterChoiceLocked shows the queued message and picks the next
// phase. It reports whether media generation should start.
func (o *Orchestrator) continueAfterChoiceLocked(ctx context.Context) bool {
	if message, ok := o.flow.TakePendingNextQuestion(); ok && message != "" {
		o.say(ctx, message)
	}

	if o.flow.ReadyToGenerate() {
		o.setPhaseLocked(ctx, PhaseGeneratingMedia)
		return true
	}
	o.setPhaseLocked(ctx, o.restingPhaseLocked())
	return false
}
