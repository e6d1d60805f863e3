package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/koscakluka/ema-studio/core"
	"github.com/koscakluka/ema-studio/core/events"
	"github.com/koscakluka/ema-studio/core/gating"
	"github.com/koscakluka/ema-studio/core/transcript"
)

// resultMsg reports the outcome of a trigger that ran in the background.
type resultMsg struct {
	info   string
	err    error
	editor *orchestration.CaptionEditor
	// closeEditor drops the editor once it was applied or cancelled.
	closeEditor bool
}

type model struct {
	ctx     context.Context
	studio  *studio
	updates <-chan tea.Msg

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	entries   []transcript.Entry
	phase     string
	inputs    gating.Inputs
	interim   string
	status    string
	editor    *orchestration.CaptionEditor
	recording bool
	preview   string

	width, height int
}

func newModel(ctx context.Context, s *studio, updates <-chan tea.Msg) model {
	input := textinput.New()
	input.Placeholder = "/help for commands, ctrl+r to talk"
	input.Prompt = "› "
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		ctx:      ctx,
		studio:   s,
		updates:  updates,
		input:    input,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		entries:  s.orchestrator.Transcript(),
		phase:    s.orchestrator.Phase().String(),
		inputs:   s.orchestrator.Inputs(),
	}
}

func waitForUpdate(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-updates }
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForUpdate(m.updates))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = msg.Width - 4
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-5, 3)
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+r":
			cmds = append(cmds, m.toggleRecording())
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(line) != "" {
				cmds = append(cmds, m.run(line))
			}
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}

	case eventMsg:
		m.handleEvent(msg.event)
		cmds = append(cmds, waitForUpdate(m.updates))

	case resultMsg:
		m.status = msg.info
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
		}
		if msg.editor != nil {
			m.editor = msg.editor
		}
		if msg.closeEditor || errors.Is(msg.err, orchestration.ErrEditorClosed) {
			m.editor = nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		m.refresh()

	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleEvent(event events.Event) {
	switch e := event.(type) {
	case events.TranscriptUpdated:
		m.entries = e.Entries
		m.refresh()
		m.viewport.GotoBottom()
	case events.PhaseChanged:
		m.phase = e.To
	case events.InputsChanged:
		m.inputs = e.Inputs
	case events.UserTranscriptInterimUpdated:
		m.interim = e.Transcript
	case events.UserTranscriptFinal:
		m.interim = ""
	case events.StepFailed:
		m.status = fmt.Sprintf("%s failed: %v", e.Step, e.Err)
	case events.SessionReset:
		m.editor = nil
		m.preview = ""
	case events.CaptionPreviewUpdated:
		path, err := writePreview(e.Image, e.ContentType)
		if err != nil {
			m.status = "error: " + err.Error()
			return
		}
		m.preview = path
	}
}

func (m *model) toggleRecording() tea.Cmd {
	recorder := m.studio.recorder
	if recorder == nil {
		m.status = "no microphone, start without --no-mic"
		return nil
	}
	if !m.recording {
		if !m.inputs.Voice {
			m.status = "voice input is not available right now"
			return nil
		}
		if err := recorder.StartRecording(m.ctx); err != nil {
			m.status = "error: " + err.Error()
			return nil
		}
		m.recording = true
		m.status = "recording, ctrl+r to send"
		return nil
	}

	m.recording = false
	utterance, err := recorder.StopRecording()
	if err != nil {
		m.status = "error: " + err.Error()
		return nil
	}
	m.status = ""
	o := m.studio.orchestrator
	return m.background(func(ctx context.Context) resultMsg {
		return resultMsg{err: o.AudioCaptured(ctx, utterance)}
	})
}

func (m model) background(call func(ctx context.Context) resultMsg) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg { return call(ctx) }
}

func (m *model) run(line string) tea.Cmd {
	cmd, err := parseCommand(line)
	if err != nil {
		m.status = err.Error()
		return nil
	}

	o := m.studio.orchestrator
	editor := m.editor
	done := func(err error) resultMsg { return resultMsg{err: err} }

	switch cmd.name {
	case cmdHelp:
		m.status = helpText
		return nil
	case cmdQuit:
		return tea.Quit
	case cmdFormat:
		format, err := parseOutputFormat(cmd.args)
		if err != nil {
			m.status = err.Error()
			return nil
		}
		return m.background(func(ctx context.Context) resultMsg { return done(o.SelectOutputFormat(ctx, format)) })
	case cmdImage:
		img, err := loadImage(cmd.args)
		if err != nil {
			m.status = err.Error()
			return nil
		}
		return m.background(func(ctx context.Context) resultMsg { return done(o.ImageSelected(ctx, img)) })
	case cmdUse:
		return m.background(func(ctx context.Context) resultMsg { return done(o.ConfirmPreview(ctx)) })
	case cmdAgain:
		return m.background(func(ctx context.Context) resultMsg { return done(o.RejectPreview(ctx)) })
	case cmdMode:
		mode, err := parseCompositionMode(cmd.args)
		if err != nil {
			m.status = err.Error()
			return nil
		}
		return m.background(func(ctx context.Context) resultMsg { return done(o.SelectCompositionMode(ctx, mode)) })
	case cmdCaption:
		return m.background(func(ctx context.Context) resultMsg {
			e, err := o.InsertCaption(ctx)
			if err != nil {
				return done(err)
			}
			return openedEditor(ctx, e)
		})
	case cmdSkip:
		return m.background(func(ctx context.Context) resultMsg { return done(o.DeclineCaption(ctx)) })
	case cmdEdit:
		id, err := parseCorrelationID(cmd.args)
		if err != nil {
			m.status = err.Error()
			return nil
		}
		return m.background(func(ctx context.Context) resultMsg {
			e, err := o.EditCaption(ctx, id)
			if err != nil {
				return done(err)
			}
			return openedEditor(ctx, e)
		})
	case cmdRetry:
		id, err := parseCorrelationID(cmd.args)
		if err != nil {
			m.status = err.Error()
			return nil
		}
		return m.background(func(ctx context.Context) resultMsg { return done(o.Retry(ctx, id)) })
	case cmdSave:
		m.status = m.save(cmd.args)
		return nil
	case cmdReset:
		return m.background(func(ctx context.Context) resultMsg { o.Reset(ctx); return resultMsg{info: "session reset"} })
	case cmdStartOver:
		return m.background(func(ctx context.Context) resultMsg { o.StartOver(ctx); return resultMsg{} })
	case cmdLogin:
		if cmd.args == "" {
			m.status = "usage: /login <token>"
			return nil
		}
		s := m.studio
		return m.background(func(ctx context.Context) resultMsg { s.login(ctx, cmd.args); return resultMsg{info: "logged in"} })
	case cmdLogout:
		s := m.studio
		return m.background(func(ctx context.Context) resultMsg { s.logout(ctx); return resultMsg{info: "logged out"} })
	}

	if editor == nil {
		m.status = "no caption editor is open, use /caption or /edit <id>"
		return nil
	}
	return m.runEditor(editor, cmd)
}

func (m *model) runEditor(editor *orchestration.CaptionEditor, cmd command) tea.Cmd {
	previewed := func(_ []byte, err error) resultMsg {
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{info: "preview updated"}
	}

	switch cmd.name {
	case cmdText:
		return m.background(func(ctx context.Context) resultMsg { return previewed(editor.SetText(ctx, cmd.args)) })
	case cmdFont:
		return m.background(func(ctx context.Context) resultMsg { return previewed(editor.SetFont(ctx, cmd.args)) })
	case cmdAnchor:
		anchor, err := parseAnchor(cmd.args)
		if err != nil {
			m.status = err.Error()
			return nil
		}
		return m.background(func(ctx context.Context) resultMsg { return previewed(editor.SetAnchor(ctx, anchor)) })
	case cmdColor:
		color, err := parseColor(cmd.args)
		if err != nil {
			m.status = err.Error()
			return nil
		}
		return m.background(func(ctx context.Context) resultMsg { return previewed(editor.SetColor(ctx, color)) })
	case cmdFonts:
		return m.background(func(ctx context.Context) resultMsg {
			fonts, err := editor.Fonts(ctx)
			if err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{info: "fonts: " + strings.Join(fonts, ", ")}
		})
	case cmdApply:
		return m.background(func(ctx context.Context) resultMsg {
			if err := editor.Apply(ctx); err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{info: "caption applied", closeEditor: true}
		})
	case cmdCancel:
		return m.background(func(ctx context.Context) resultMsg {
			return resultMsg{err: editor.Cancel(ctx), closeEditor: true}
		})
	}
	return nil
}

func openedEditor(ctx context.Context, editor *orchestration.CaptionEditor) resultMsg {
	msg := resultMsg{editor: editor, info: "caption editor open, /apply when done"}
	if _, err := editor.Preview(ctx); err != nil {
		msg.info = "caption editor open, preview failed: " + err.Error()
	}
	return msg
}

// save writes the media of entry id to path.
func (m *model) save(args string) string {
	idArg, path, ok := strings.Cut(args, " ")
	if !ok {
		return "usage: /save <id> <path>"
	}
	id, err := parseCorrelationID(idArg)
	if err != nil {
		return err.Error()
	}
	for _, entry := range m.entries {
		if entry.CorrelationID != id || entry.Media == nil {
			continue
		}
		if len(entry.Media.Data) == 0 {
			return "media is only available at " + entry.Media.URL
		}
		if err := os.WriteFile(strings.TrimSpace(path), entry.Media.Data, 0o644); err != nil {
			return "error: " + err.Error()
		}
		return "saved " + path
	}
	return fmt.Sprintf("entry %d has no media", id)
}

func writePreview(data []byte, contentType string) (string, error) {
	ext := ".png"
	if strings.Contains(contentType, "jpeg") {
		ext = ".jpg"
	}
	path := filepath.Join(os.TempDir(), "ema-caption-preview"+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write caption preview: %w", err)
	}
	return path, nil
}
