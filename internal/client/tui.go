package client

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/muurk/tlsecho/internal/ui"
)

// maxTranscript caps the lines kept for display.
const maxTranscript = 200

// Messages for async operations
type echoMsg struct {
	sent   string
	echoed string
	rtt    time.Duration
}

type exchangeErrMsg struct {
	err error
}

// keyMap defines key bindings for the client screen
type keyMap struct {
	Send key.Binding
	Prev key.Binding
	Next key.Binding
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Prev, k.Next, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Send, k.Prev, k.Next, k.Quit}}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Prev: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "previous"),
		),
		Next: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "next"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("esc", "quit"),
		),
	}
}

type transcriptLine struct {
	text  string
	style lipgloss.Style
}

// model is the Bubble Tea model for an interactive session.
type model struct {
	session  *Session
	exchange func(string) (string, error)

	input textinput.Model
	help  help.Model
	keys  keyMap

	transcript []transcriptLine
	history    []string
	cursor     int // index into history; len(history) means a fresh line

	pending bool
	err     error
	width   int
	height  int
}

func newModel(s *Session) model {
	ti := textinput.New()
	ti.Placeholder = "type a line, quit to exit"
	ti.Prompt = ui.PromptStyle.Render("> ")
	ti.CharLimit = 4096
	ti.Focus()

	return model{
		session:  s,
		exchange: s.Exchange,
		input:    ti,
		help:     help.New(),
		keys:     defaultKeyMap(),
		width:    ui.GetTerminalWidth(),
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case echoMsg:
		m.pending = false
		m.appendLine("→ "+msg.sent, ui.SentStyle)
		m.appendLine(fmt.Sprintf("← %s  (%s)", msg.echoed, msg.rtt.Round(time.Microsecond)), ui.EchoStyle)
		return m, nil

	case exchangeErrMsg:
		m.pending = false
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			return m.send()
		case key.Matches(msg, m.keys.Prev):
			m.recall(-1)
			return m, nil
		case key.Matches(msg, m.keys.Next):
			m.recall(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) send() (tea.Model, tea.Cmd) {
	if m.pending {
		return m, nil
	}
	line := m.input.Value()
	if isQuit(line) {
		return m, tea.Quit
	}

	if line != "" && (len(m.history) == 0 || m.history[len(m.history)-1] != line) {
		m.history = append(m.history, line)
	}
	m.cursor = len(m.history)
	m.input.Reset()
	m.pending = true

	exchange := m.exchange
	return m, func() tea.Msg {
		start := time.Now()
		echoed, err := exchange(line)
		if err != nil {
			return exchangeErrMsg{err: err}
		}
		return echoMsg{sent: line, echoed: echoed, rtt: time.Since(start)}
	}
}

// recall moves through input history.
func (m *model) recall(delta int) {
	if len(m.history) == 0 {
		return
	}
	m.cursor = max(0, min(len(m.history), m.cursor+delta))
	if m.cursor == len(m.history) {
		m.input.SetValue("")
	} else {
		m.input.SetValue(m.history[m.cursor])
	}
	m.input.CursorEnd()
}

func (m *model) appendLine(text string, style lipgloss.Style) {
	m.transcript = append(m.transcript, transcriptLine{text: text, style: style})
	if over := len(m.transcript) - maxTranscript; over > 0 {
		m.transcript = m.transcript[over:]
	}
}

func (m model) View() string {
	var b strings.Builder

	mode := "plain TCP"
	if m.session != nil && m.session.Secure() {
		mode = "TLS"
	}
	title := ui.TitleStyle.Render("TLSECHO CLIENT")
	if m.session != nil {
		title += ui.SubtitleStyle.Render(fmt.Sprintf("%s • %s • %s sent", m.session.Remote(), mode, humanize.IBytes(uint64(m.session.Sent()))))
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(ui.RenderHorizontalDivider(max(1, m.width-2), "─"))
	b.WriteString("\n")

	lines := m.transcript
	if visible := m.height - 6; visible > 0 && len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	for _, l := range lines {
		b.WriteString(l.style.Render(l.text))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	if m.pending {
		b.WriteString(ui.HelpStyle.Render("  waiting for echo..."))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// RunTUI runs the interactive client until the user quits, the connection
// fails or ctx is cancelled.
func RunTUI(ctx context.Context, s *Session, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(newModel(s),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("client UI failed: %w", err)
	}
	if m, ok := final.(model); ok && m.err != nil {
		return m.err
	}
	return nil
}
