// Package tui is an interactive terminal for talking to the classifier and the
// chat responder.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/parrot/internal/chat"
	"github.com/kalambet/parrot/internal/classifier"
)

// Bot is the TUI-facing subset of the assistant service.
type Bot interface {
	Predict(text string) classifier.Prediction
	Respond(query string) chat.Response
}

// Mode selects which engine answers the input.
type Mode int

const (
	ModeChat Mode = iota
	ModePredict
)

func (m Mode) String() string {
	if m == ModePredict {
		return "predict"
	}
	return "chat"
}

// ParseMode maps "chat" or "predict" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chat":
		return ModeChat, nil
	case "predict", "classify":
		return ModePredict, nil
	}
	return ModeChat, fmt.Errorf("unknown mode %q (want chat or predict)", s)
}

type line struct {
	speaker string
	text    string
	style   lipgloss.Style
}

// Model is the Bubble Tea model for the REPL.
type Model struct {
	bot      Bot
	mode     Mode
	input    textinput.Model
	viewport viewport.Model
	lines    []line
	status   string
	ready    bool
}

// New creates a REPL model starting in mode.
func New(bot Bot, mode Mode) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Напишите сообщение и нажмите Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{bot: bot, mode: mode, input: ti, viewport: vp, status: "Tab switches mode, Ctrl+C quits."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.Type {
		case tea.KeyTab:
			if m.mode == ModeChat {
				m.mode = ModePredict
			} else {
				m.mode = ModeChat
			}
			m.status = "Mode: " + m.mode.String()
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.submit(text)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit(text string) {
	m.lines = append(m.lines, line{speaker: "вы", text: text, style: userStyle})
	switch m.mode {
	case ModePredict:
		p := m.bot.Predict(text)
		style := botStyle
		if p.Kind != classifier.KindLabel {
			style = warnStyle
		}
		m.lines = append(m.lines, line{speaker: "класс", text: p.String(), style: style})
		m.status = "prediction: " + p.Kind.String()
	default:
		r := m.bot.Respond(text)
		style := botStyle
		if r.Kind == chat.KindFallback {
			style = warnStyle
		}
		m.lines = append(m.lines, line{speaker: "бот", text: r.Answer, style: style})
		if r.Kind == chat.KindExact {
			m.status = "response: exact"
		} else {
			m.status = fmt.Sprintf("response: %s  distance=%.3f", r.Kind, r.Distance)
		}
	}
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("parrot") + "  " + modeStyle.Render("["+m.mode.String()+"]")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.lines) == 0 {
		return "Пока пусто."
	}
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.style.Render(l.speaker + ": "))
		b.WriteString(l.text)
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle        = lipgloss.NewStyle().Bold(true)
	modeStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)
