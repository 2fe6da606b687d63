package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/acolita/devremote/internal/prompt"
	"github.com/acolita/devremote/internal/status"
	"github.com/acolita/devremote/internal/window"
	"github.com/charmbracelet/huh"
)

func runPlain(t *testing.T, p *Plain, w *window.Window) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Run(ctx, w)
}

func TestPlainAnswersPromptsUntilConnected(t *testing.T) {
	w := window.Open("devbox")
	defer w.Remove()

	var out syncBuffer
	var asked []Question
	p := NewPlain(WithOutput(&out), WithAsker(func(q Question) (string, error) {
		asked = append(asked, q)
		if q.Confirm {
			return "yes", nil
		}
		return "hunter2", nil
	}))

	answers := make(chan []string, 1)
	go func() {
		var got []string
		for _, text := range []string{"Are you sure you want to continue connecting (yes/no)? ", "Password: "} {
			waiter, responder := prompt.Issue(text)
			if w.Update(func(s *status.Sink) { s.SetPrompt(text, responder) }) != nil {
				break
			}
			answer, err := waitFor(t, waiter)
			if err != nil {
				break
			}
			got = append(got, answer)
		}
		w.Update(func(s *status.Sink) { s.SetStatus("uploading server") })
		w.ReplaceRoot(stubProject{})
		answers <- got
	}()

	if err := runPlain(t, p, w); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := <-answers
	if len(got) != 2 || got[0] != "yes" || got[1] != "hunter2" {
		t.Errorf("answers = %q, want [yes hunter2]", got)
	}
	if len(asked) != 2 {
		t.Fatalf("asked %d questions, want 2", len(asked))
	}
	if !asked[0].Confirm || asked[0].Masked {
		t.Errorf("host key question = %+v, want unmasked confirmation", asked[0])
	}
	if !asked[1].Masked || asked[1].Confirm {
		t.Errorf("password question = %+v, want masked input", asked[1])
	}
	if !strings.Contains(out.String(), "Connected to devbox") {
		t.Errorf("output = %q, want connect notice", out.String())
	}
}

func TestPlainAbortRemovesWindow(t *testing.T) {
	w := window.Open("devbox")
	defer w.Remove()

	p := NewPlain(WithOutput(&syncBuffer{}), WithAsker(func(Question) (string, error) {
		return "", huh.ErrUserAborted
	}))
	waiter := issue(t, w, "Password: ")

	if err := runPlain(t, p, w); err != nil {
		t.Fatalf("Run() error = %v, want nil on abort", err)
	}
	select {
	case <-w.Done():
	default:
		t.Error("window not removed after abort")
	}
	if _, err := waitFor(t, waiter); !errors.Is(err, prompt.ErrAbandoned) {
		t.Errorf("Wait() error = %v, want ErrAbandoned", err)
	}
}

func TestPlainAskFailure(t *testing.T) {
	w := window.Open("devbox")
	defer w.Remove()

	broken := errors.New("no tty")
	p := NewPlain(WithOutput(&syncBuffer{}), WithAsker(func(Question) (string, error) {
		return "", broken
	}))
	issue(t, w, "Password: ")

	if err := runPlain(t, p, w); !errors.Is(err, broken) {
		t.Errorf("Run() error = %v, want %v", err, broken)
	}
}

func TestPlainReportsFailure(t *testing.T) {
	w := window.Open("devbox")

	var out syncBuffer
	p := NewPlain(WithOutput(&out), WithAsker(func(Question) (string, error) {
		t.Error("asked without a prompt")
		return "", nil
	}))

	go func() {
		w.Update(func(s *status.Sink) { s.SetError(errors.New("connect to devbox: connection refused")) })
		w.Remove()
	}()

	if err := runPlain(t, p, w); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := strings.Count(out.String(), "Error: connect to devbox: connection refused"); n != 1 {
		t.Errorf("error printed %d times, want once; output = %q", n, out.String())
	}
	if !strings.Contains(out.String(), "sshd") {
		t.Errorf("output = %q, want a recovery hint", out.String())
	}
}

func TestPlainCancelRemovesWindow(t *testing.T) {
	w := window.Open("devbox")
	defer w.Remove()
	waiter := issue(t, w, "Password: ")

	p := NewPlain(WithOutput(&syncBuffer{}), WithAsker(func(Question) (string, error) {
		t.Error("asked after cancel")
		return "", nil
	}))
	// Consume the prompt view so only cancellation is pending.
	drain(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx, w); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if _, err := waitFor(t, waiter); !errors.Is(err, prompt.ErrAbandoned) {
		t.Errorf("Wait() error = %v, want ErrAbandoned", err)
	}
}
