package tui

import (
	"errors"
	"strings"
	"testing"

	"github.com/acolita/devremote/internal/prompt"
	"github.com/acolita/devremote/internal/status"
	"github.com/acolita/devremote/internal/window"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

func attached(t *testing.T, w *window.Window, opts Options) Model {
	t.Helper()
	m, cmd := update(t, New(opts), Attach(w))
	if cmd == nil {
		t.Fatal("Attach returned no command")
	}
	m, _ = update(t, m, cmd())
	return m
}

func TestModelTypesAndSubmitsReply(t *testing.T) {
	w := window.Open("devbox")
	defer w.Remove()
	waiter := issue(t, w, "Password: ")

	m := attached(t, w, Options{})
	if !m.Prompting() {
		t.Fatal("Prompting() = false after a prompt was set")
	}
	if m.input.EchoMode != textinput.EchoPassword {
		t.Errorf("EchoMode = %v, want EchoPassword", m.input.EchoMode)
	}
	if !m.input.Focused() {
		t.Error("input not focused")
	}
	if !strings.Contains(m.View(), "Password:") {
		t.Errorf("View() = %q, want the prompt", m.View())
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hunter2")})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("Enter returned no command")
	}
	if msg, ok := cmd().(submittedMsg); !ok || !msg.delivered {
		t.Errorf("submit result = %#v, want delivered", msg)
	}

	got, err := waitFor(t, waiter)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got != "hunter2" {
		t.Errorf("answer = %q, want hunter2", got)
	}
	if m.input.Value() != "" {
		t.Errorf("input = %q after submit, want empty", m.input.Value())
	}
}

func TestModelConfirmationIsNotMasked(t *testing.T) {
	w := window.Open("devbox")
	defer w.Remove()
	issue(t, w, "Are you sure you want to continue connecting (yes/no)? ")

	m := attached(t, w, Options{})
	if m.input.EchoMode != textinput.EchoNormal {
		t.Errorf("EchoMode = %v, want EchoNormal", m.input.EchoMode)
	}
}

func TestModelSkipsReplacedPrompt(t *testing.T) {
	w := window.Open("devbox")
	defer w.Remove()
	first := issue(t, w, "Password: ")

	m := attached(t, w, Options{})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("stale")})
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	second := issue(t, w, "Verification code: ")
	if msg := cmd().(submittedMsg); msg.delivered {
		t.Error("reply delivered to a replaced prompt")
	}
	if _, err := waitFor(t, first); !errors.Is(err, prompt.ErrAbandoned) {
		t.Errorf("first prompt error = %v, want ErrAbandoned", err)
	}

	var pending bool
	w.Update(func(s *status.Sink) { pending = s.HasPrompt() })
	if !pending {
		t.Error("second prompt was consumed by the stale reply")
	}
	w.Remove()
	if _, err := waitFor(t, second); !errors.Is(err, prompt.ErrAbandoned) {
		t.Errorf("second prompt error = %v, want ErrAbandoned", err)
	}
}

func TestModelIgnoresOtherWindows(t *testing.T) {
	w := window.Open("devbox")
	defer w.Remove()
	m := attached(t, w, Options{})

	m, cmd := update(t, m, viewMsg{windowID: "win_other", view: status.View{Err: "boom"}})
	if cmd != nil || m.view.Err != "" {
		t.Errorf("view from another window was applied: %+v", m.view)
	}
	m, cmd = update(t, m, closedMsg{windowID: "win_other"})
	if cmd != nil || m.closed {
		t.Error("close of another window was applied")
	}
}

func TestModelEscapeDismisses(t *testing.T) {
	w := window.Open("devbox")
	defer w.Remove()
	waiter := issue(t, w, "Password: ")

	m := attached(t, w, Options{})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("Esc returned no command")
	}
	if !m.quitting {
		t.Error("model not quitting after Esc")
	}
	if m.View() != "" {
		t.Errorf("View() = %q while quitting", m.View())
	}

	removeWindow(w)()
	if _, err := waitFor(t, waiter); !errors.Is(err, prompt.ErrAbandoned) {
		t.Errorf("Wait() error = %v, want ErrAbandoned", err)
	}
}

func TestModelQuitsOnConnected(t *testing.T) {
	w := window.Open("devbox")
	defer w.Remove()
	m := attached(t, w, Options{})

	if err := w.ReplaceRoot(stubProject{}); err != nil {
		t.Fatal(err)
	}
	_, cmd := update(t, m, viewMsg{windowID: w.ID(), view: drain(t, w)})
	if cmd == nil {
		t.Fatal("no command after connect")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("model did not quit after connect")
	}
}

func TestModelOffersRetryAfterFailure(t *testing.T) {
	w := window.Open("devbox")
	m := attached(t, w, Options{OnRetry: func() {}})

	retried := false
	m.onRetry = func() { retried = true }

	w.Update(func(s *status.Sink) { s.SetError(errors.New("connect to devbox: connection refused")) })
	w.Remove()

	m, _ = update(t, m, viewMsg{windowID: w.ID(), view: drain(t, w)})
	m, cmd := update(t, m, closedMsg{windowID: w.ID()})
	if cmd != nil {
		t.Fatal("model quit although a retry is possible")
	}
	if !strings.Contains(m.View(), "Error: connect to devbox: connection refused") {
		t.Errorf("View() = %q, want the error", m.View())
	}
	if !strings.Contains(m.View(), "sshd") {
		t.Errorf("View() = %q, want a recovery hint", m.View())
	}
	if !strings.Contains(m.View(), "r retry") {
		t.Errorf("View() = %q, want the retry hint", m.View())
	}

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("r returned no command")
	}
	cmd()
	if !retried {
		t.Error("OnRetry not called")
	}
	if m.closed {
		t.Error("model still closed after retry")
	}
}

func TestModelQuitsOnCleanClose(t *testing.T) {
	w := window.Open("devbox")
	m := attached(t, w, Options{OnRetry: func() {}})
	w.Remove()

	m, _ = update(t, m, viewMsg{windowID: w.ID(), view: drain(t, w)})
	_, cmd := update(t, m, closedMsg{windowID: w.ID()})
	if cmd == nil {
		t.Fatal("no command after close")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("model did not quit after a clean close")
	}
}
