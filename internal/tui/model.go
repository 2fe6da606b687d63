// Package tui renders a connection window's prompt surface and turns the
// operator's keystrokes into actions on the window.
package tui

import (
	"strings"

	"github.com/acolita/devremote/internal/recovery"
	"github.com/acolita/devremote/internal/status"
	"github.com/acolita/devremote/internal/window"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// --- Messages ---

type attachMsg struct {
	window *window.Window
}

type viewMsg struct {
	windowID string
	view     status.View
}

type closedMsg struct {
	windowID string
}

type submittedMsg struct {
	delivered bool
}

// Attach returns the message that points the model at w. Send it with
// (*tea.Program).Send whenever a new attempt opens a window.
func Attach(w *window.Window) tea.Msg {
	return attachMsg{window: w}
}

// --- Commands ---

// waitForView blocks on the window's next snapshot.
func waitForView(w *window.Window) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-w.Views()
		if !ok {
			return closedMsg{windowID: w.ID()}
		}
		return viewMsg{windowID: w.ID(), view: v}
	}
}

// submitReply answers the prompt with the given id. A prompt that was
// replaced in the meantime is left alone.
func submitReply(w *window.Window, promptID uint64, text string) tea.Cmd {
	return func() tea.Msg {
		delivered := false
		err := w.Update(func(s *status.Sink) {
			if s.View().PromptID != promptID {
				return
			}
			s.SetInput(text)
			delivered = s.SubmitCurrentReply()
		})
		return submittedMsg{delivered: delivered && err == nil}
	}
}

func removeWindow(w *window.Window) tea.Cmd {
	return func() tea.Msg {
		w.Remove()
		return nil
	}
}

// Options configures the model.
type Options struct {
	// OnRetry starts a new attempt. It is offered after a failure and must
	// not block.
	OnRetry func()
}

// Model is the bubbletea model of the prompt surface.
type Model struct {
	window   *window.Window
	view     status.View
	input    textinput.Model
	spinner  spinner.Model
	promptID uint64
	focusSeq uint64
	onRetry  func()
	advisor  *recovery.Analyzer

	closed   bool
	quitting bool
}

// New creates a model with no window attached.
func New(opts Options) Model {
	input := textinput.New()
	input.CharLimit = 1024
	input.Width = 48

	return Model{
		input:   input,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		onRetry: opts.OnRetry,
		advisor: recovery.NewAnalyzer(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case attachMsg:
		m.window = msg.window
		m.view = status.View{Host: msg.window.Host()}
		m.promptID = 0
		m.focusSeq = 0
		m.closed = false
		m.input.Reset()
		m.input.Blur()
		return m, waitForView(msg.window)

	case viewMsg:
		if m.window == nil || msg.windowID != m.window.ID() {
			return m, nil
		}
		return m.applyView(msg.view)

	case closedMsg:
		if m.window == nil || msg.windowID != m.window.ID() {
			return m, nil
		}
		m.closed = true
		if m.view.Err == "" || m.onRetry == nil {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		if msg.Width > 8 {
			m.input.Width = msg.Width - 8
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) applyView(v status.View) (tea.Model, tea.Cmd) {
	m.view = v

	var cmds []tea.Cmd
	if v.PromptID != m.promptID {
		m.promptID = v.PromptID
		m.input.Reset()
		if v.Masked {
			m.input.EchoMode = textinput.EchoPassword
		} else {
			m.input.EchoMode = textinput.EchoNormal
		}
	}
	if v.FocusSeq != m.focusSeq {
		m.focusSeq = v.FocusSeq
		cmds = append(cmds, m.input.Focus())
	}
	if !v.HasPrompt() {
		m.input.Blur()
	}

	if v.Connected {
		m.quitting = true
		return m, tea.Quit
	}

	cmds = append(cmds, waitForView(m.window))
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quitting = true
		if m.window != nil && !m.closed {
			return m, tea.Sequence(removeWindow(m.window), tea.Quit)
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.window == nil || m.closed || !m.view.HasPrompt() {
			return m, nil
		}
		text := m.input.Value()
		m.input.Reset()
		return m, submitReply(m.window, m.promptID, text)
	}

	if m.closed {
		switch msg.String() {
		case "r":
			if m.onRetry != nil {
				retry := m.onRetry
				m.closed = false
				return m, func() tea.Msg {
					retry()
					return nil
				}
			}
		case "q":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	if !m.view.HasPrompt() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting && m.view.Err == "" {
		return ""
	}

	var b strings.Builder
	if m.view.Host != "" {
		b.WriteString(hostStyle.Render(m.view.Host))
		b.WriteString("\n\n")
	}

	switch {
	case m.view.Err != "":
		b.WriteString(errorStyle.Render("Error: " + m.view.Err))
		b.WriteString("\n")
		if hint := m.advisor.Hint(m.view.Err); hint != "" {
			b.WriteString(statusStyle.Render(hint))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.closed && m.onRetry != nil {
			b.WriteString(hintStyle.Render("r retry • esc quit"))
		}
	case m.view.HasPrompt():
		b.WriteString(promptStyle.Render(strings.TrimRight(m.view.Prompt, " ")))
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("enter submit • esc cancel"))
	case m.view.Status != "":
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(statusStyle.Render(m.view.Status))
	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(statusStyle.Render("starting"))
	}
	b.WriteString("\n")
	return b.String()
}

// Prompting reports whether a prompt is waiting for the operator.
func (m Model) Prompting() bool {
	return m.view.HasPrompt()
}
