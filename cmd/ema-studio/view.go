package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/koscakluka/ema-studio/core/transcript"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	phaseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	onStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	recStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	userBubble = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	assistantBubble = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("170")).
			Padding(0, 1)
	hintStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214"))
)

const minBubbleWidth = 20

var choiceHints = map[transcript.Choice]string{
	transcript.ChoiceOutputFormat:    "/format video | image | separate",
	transcript.ChoiceCompositionMode: "/mode rigid | balanced | creative",
	transcript.ChoiceCaption:         "/caption or /skip",
	transcript.ChoicePreview:         "/use or /again",
}

func (m model) View() string {
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("ema studio"), " ",
		phaseStyle.Render(m.phase), " ",
		m.renderInputs(),
	)

	status := m.status
	if m.interim != "" {
		status = "… " + m.interim
	}
	if m.editor != nil && m.preview != "" {
		status = strings.TrimSpace(status + "  preview: " + m.preview)
	}

	return strings.Join([]string{
		header,
		m.viewport.View(),
		statusStyle.Render(status),
		m.input.View(),
	}, "\n")
}

func (m model) renderInputs() string {
	flag := func(name string, on bool) string {
		if on {
			return onStyle.Render(name)
		}
		return offStyle.Render(name)
	}
	parts := []string{
		flag("voice", m.inputs.Voice),
		flag("image", m.inputs.FilePicker),
		flag("options", m.inputs.Options),
	}
	if m.recording {
		parts = append(parts, recStyle.Render("● rec"))
	}
	return strings.Join(parts, " ")
}

// refresh re-renders the transcript into the viewport.
func (m *model) refresh() {
	width := m.viewport.Width
	var b strings.Builder
	for i, entry := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderEntry(entry, width))
	}
	m.viewport.SetContent(b.String())
}

func (m model) renderEntry(entry transcript.Entry, width int) string {
	bubbleWidth := max(width*3/4, minBubbleWidth)

	var lines []string
	if entry.CorrelationID != 0 {
		lines = append(lines, phaseStyle.Render(fmt.Sprintf("#%d", entry.CorrelationID)))
	}
	body := entry.Body
	if entry.Loading {
		body = strings.TrimSpace(body + " " + m.spinner.View())
	}
	if body != "" {
		lines = append(lines, wordwrap.String(body, bubbleWidth-4))
	}
	if entry.Media != nil {
		lines = append(lines, renderMedia(entry.Media))
	}
	if hint, ok := choiceHints[entry.Choice]; ok {
		lines = append(lines, hintStyle.Render(hint))
	}
	if entry.Retry {
		lines = append(lines, hintStyle.Render(fmt.Sprintf("/retry %d", entry.CorrelationID)))
	}

	content := strings.Join(lines, "\n")
	if entry.Speaker == transcript.SpeakerUser {
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, userBubble.MaxWidth(bubbleWidth).Render(content))
	}
	return assistantBubble.MaxWidth(bubbleWidth).Render(content)
}

func renderMedia(media *transcript.Media) string {
	var parts []string
	parts = append(parts, "["+string(media.Kind))
	if media.Width > 0 && media.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", media.Width, media.Height))
	}
	switch {
	case media.URL != "":
		parts = append(parts, media.URL)
	case len(media.Data) > 0:
		parts = append(parts, fmt.Sprintf("%d bytes, /save to keep", len(media.Data)))
	}
	return strings.Join(parts, " ") + "]"
}
