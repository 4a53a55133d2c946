// Package console is a local terminal chat over the same conversation
// engine the Telegram bot uses.
package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/vacancybot/internal/chat"
)

const inputHeight = 4

var (
	transcriptBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))
)

// Handler processes one chat input.
type Handler interface {
	Handle(ctx context.Context, in chat.Input, r chat.Responder) error
}

type entryKind int

const (
	entryUser entryKind = iota
	entryBot
	entryError
)

type entry struct {
	kind entryKind
	text string
	html bool
}

// Messages the responder posts back into the program.
type (
	replyMsg  struct{ reply chat.Reply }
	statusMsg struct{ text string }
	doneMsg   struct{ err error }
)

// sender forwards messages into the running program. It is shared by
// pointer so copies of the model post to the same program.
type sender struct {
	send func(tea.Msg)
}

type responder struct {
	out *sender
}

var _ chat.Responder = responder{}

func (r responder) Send(_ context.Context, reply chat.Reply) error {
	r.out.send(replyMsg{reply: reply})
	return nil
}

func (r responder) Status(_ context.Context, text string) error {
	r.out.send(statusMsg{text: text})
	return nil
}

func (r responder) ClearStatus(context.Context) error {
	r.out.send(statusMsg{})
	return nil
}

type consoleModel struct {
	handler   Handler
	userID    string
	firstName string
	out       *sender

	transcript viewport.Model
	input      textarea.Model
	spinner    spinner.Model

	entries []entry
	buttons []chat.Button
	status  string
	busy    bool

	width  int
	height int
	ready  bool
}

func newModel(handler Handler, userID, firstName string, out *sender) consoleModel {
	ta := textarea.New()
	ta.Placeholder = "Текст вакансии, ссылка или /команда"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Focus()

	return consoleModel{
		handler:   handler,
		userID:    userID,
		firstName: firstName,
		out:       out,
		input:     ta,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		busy:      true,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.submit(chat.Input{Command: "start"}))
}

// submit runs one input through the engine off the UI goroutine.
func (m consoleModel) submit(in chat.Input) tea.Cmd {
	in.UserID = m.userID
	in.FirstName = m.firstName
	handler, out := m.handler, m.out
	return func() tea.Msg {
		err := handler.Handle(context.Background(), in, responder{out: out})
		return doneMsg{err: err}
	}
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case replyMsg:
		m.entries = append(m.entries, entry{kind: entryBot, text: msg.reply.Text, html: msg.reply.HTML})
		m.buttons = nil
		for _, row := range msg.reply.Buttons {
			m.buttons = append(m.buttons, row...)
		}
		m.refreshTranscript()
		return m, nil

	case statusMsg:
		m.status = msg.text
		return m, nil

	case doneMsg:
		m.busy = false
		m.status = ""
		if msg.err != nil {
			m.entries = append(m.entries, entry{kind: entryError, text: msg.err.Error()})
			m.refreshTranscript()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m consoleModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	case "enter":
		return m.send()
	}

	if n, ok := buttonKey(msg.String()); ok {
		if m.busy || n > len(m.buttons) {
			return m, nil
		}
		b := m.buttons[n-1]
		return m.dispatch(entry{kind: entryUser, text: "[" + b.Label + "]"}, chat.Input{Action: b.Action})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m consoleModel) send() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if m.busy || text == "" {
		return m, nil
	}
	m.input.Reset()

	if text == "/quit" || text == "/exit" {
		return m, tea.Quit
	}

	in := chat.Input{Text: text}
	if name, rest, ok := chat.ParseCommand(text); ok {
		in = chat.Input{Command: name, Text: rest}
	}
	return m.dispatch(entry{kind: entryUser, text: text}, in)
}

func (m consoleModel) dispatch(e entry, in chat.Input) (tea.Model, tea.Cmd) {
	m.entries = append(m.entries, e)
	m.buttons = nil
	m.busy = true
	m.refreshTranscript()
	return m, m.submit(in)
}

// buttonKey maps alt+1..alt+9 to a button number.
func buttonKey(k string) (int, bool) {
	if len(k) != 5 || !strings.HasPrefix(k, "alt+") {
		return 0, false
	}
	d := k[4]
	if d < '1' || d > '9' {
		return 0, false
	}
	return int(d - '0'), true
}

func (m *consoleModel) recalcLayout() {
	// Borders take two lines per box; one line for the status bar.
	transcriptHeight := max(m.height-inputHeight-5, 3)
	width := max(m.width-2, 20)

	if !m.ready {
		m.transcript = viewport.New(width, transcriptHeight)
		m.ready = true
	} else {
		m.transcript.Width = width
		m.transcript.Height = transcriptHeight
	}
	m.input.SetWidth(width)
	m.refreshTranscript()
}

func (m *consoleModel) refreshTranscript() {
	if !m.ready {
		return
	}
	m.transcript.SetContent(renderTranscript(m.entries, m.buttons, m.transcript.Width))
	m.transcript.GotoBottom()
}

func renderTranscript(entries []entry, buttons []chat.Button, width int) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.kind {
		case entryUser:
			b.WriteString(userStyle.Width(width).Render("› " + e.text))
		case entryError:
			b.WriteString(errorStyle.Render("⚠ " + e.text))
		default:
			text := e.text
			if e.html {
				text = renderHTML(text)
			}
			b.WriteString(lipgloss.NewStyle().Width(width).Render(text))
		}
	}
	if len(buttons) > 0 {
		b.WriteString("\n\n")
		for i, btn := range buttons {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(buttonStyle.Render(fmt.Sprintf("[alt+%d] %s", i+1, btn.Label)))
		}
	}
	return b.String()
}

func (m consoleModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	transcript := transcriptBorderStyle.Render(m.transcript.View())
	input := inputBorderStyle.Render(m.input.View())

	statusText := " enter send  alt+enter newline  alt+N button  pgup/pgdn scroll  esc quit"
	if m.busy {
		label := m.status
		if label == "" {
			label = "…"
		}
		statusText = " " + m.spinner.View() + " " + label
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return transcript + "\n" + input + "\n" + statusBar
}

// Run starts the console chat for userID and blocks until the user quits.
func Run(handler Handler, userID, firstName string) error {
	out := &sender{}
	p := tea.NewProgram(newModel(handler, userID, firstName, out), tea.WithAltScreen())
	out.send = p.Send
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run console: %w", err)
	}
	return nil
}
