// Package events defines the typed events the orchestrator emits to the
// presentation layer.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - transcript.*
//   - flow.*
//   - input.*
//   - session.*
//   - step.*
//   - caption.*
//
// Events carry copies. Mutating an event payload never affects orchestrator
// state.
//
// user_input events
//
//   - UserTranscriptInterimUpdated (user_input.transcript_interim_updated):
//     running transcript of a streaming transcriber.
//   - UserTranscriptFinal (user_input.transcript_final): text transcribed
//     from a captured utterance.
//
// transcript events
//
//   - TranscriptUpdated (transcript.updated): full transcript snapshot after
//     a mutation.
//
// flow events
//
//   - PhaseChanged (flow.phase_changed): orchestrator phase transition.
//
// input events
//
//   - InputsChanged (input.gating_changed): accepted input kinds changed.
//
// session events
//
//   - SessionAdopted (session.adopted): the dialogue service issued a new
//     session key.
//   - SessionReset (session.reset): full reset; continuations started
//     before it are discarded.
//
// step events
//
//   - StepStarted (step.started): a step executor began its network call.
//   - StepFailed (step.failed): a step executor failed; the owning entry is
//     retry-marked or the session was reset.
//   - StepDiscarded (step.discarded): a step settled after a reset and its
//     result was dropped.
//
// caption events
//
//   - CaptionPreviewUpdated (caption.preview_updated): a new live caption
//     preview was rendered.
package events
