package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/acolita/devremote/internal/recovery"
	"github.com/acolita/devremote/internal/status"
	"github.com/acolita/devremote/internal/window"
	"github.com/briandowns/spinner"
	"github.com/charmbracelet/huh"
	"github.com/fatih/color"
)

// Question is what the plain surface asks the operator.
type Question struct {
	Title   string
	Masked  bool
	Confirm bool
}

// AskFunc reads one answer from the operator.
type AskFunc func(q Question) (string, error)

// PlainOption configures a Plain surface.
type PlainOption func(*Plain)

// WithOutput sets where status and errors are written. Defaults to stderr.
func WithOutput(w io.Writer) PlainOption {
	return func(p *Plain) {
		p.out = w
	}
}

// WithAsker replaces the interactive huh prompt.
func WithAsker(ask AskFunc) PlainOption {
	return func(p *Plain) {
		p.ask = ask
	}
}

// WithPlainLogger sets the logger.
func WithPlainLogger(logger *slog.Logger) PlainOption {
	return func(p *Plain) {
		p.logger = logger
	}
}

// Plain is a line-oriented surface for terminals where the full-screen
// model is unwanted. Prompts are asked one at a time with huh.
type Plain struct {
	out     io.Writer
	ask     AskFunc
	logger  *slog.Logger
	spinner *spinner.Spinner
	advisor *recovery.Analyzer
	red     func(format string, a ...interface{}) string
	green   func(format string, a ...interface{}) string
}

// NewPlain creates a plain surface.
func NewPlain(opts ...PlainOption) *Plain {
	p := &Plain{
		out:     os.Stderr,
		ask:     askHuh,
		logger:  slog.Default(),
		advisor: recovery.NewAnalyzer(),
		red:     color.New(color.FgRed).SprintfFunc(),
		green:   color.New(color.FgGreen).SprintfFunc(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.spinner = spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(p.out))
	return p
}

// Run drives w until it connects, closes or ctx is done. Cancelling ctx
// removes the window, which abandons any pending prompt.
func (p *Plain) Run(ctx context.Context, w *window.Window) error {
	defer p.spinner.Stop()

	var (
		promptID   uint64
		lastStatus string
		lastErr    string
	)
	views := w.Views()
	for {
		select {
		case <-ctx.Done():
			w.Remove()
			return ctx.Err()
		case v, ok := <-views:
			if !ok {
				return nil
			}

			if v.Err != "" && v.Err != lastErr {
				lastErr = v.Err
				p.spinner.Stop()
				fmt.Fprintln(p.out, p.red("Error: %s", v.Err))
				if hint := p.advisor.Hint(v.Err); hint != "" {
					fmt.Fprintln(p.out, "  "+hint)
				}
			}
			if v.Connected {
				p.spinner.Stop()
				fmt.Fprintln(p.out, p.green("Connected to %s", v.Host))
				return nil
			}
			if v.Closed {
				return nil
			}

			if v.HasPrompt() {
				if v.PromptID == promptID {
					continue
				}
				promptID = v.PromptID
				p.spinner.Stop()
				lastStatus = ""

				answer, err := p.ask(Question{Title: v.Prompt, Masked: v.Masked, Confirm: v.Confirmation})
				if err != nil {
					w.Remove()
					if errors.Is(err, huh.ErrUserAborted) {
						return nil
					}
					return fmt.Errorf("read answer: %w", err)
				}
				p.submit(w, promptID, answer)
				continue
			}

			if v.Status != lastStatus {
				lastStatus = v.Status
				if v.Status == "" {
					p.spinner.Stop()
					continue
				}
				p.spinner.Suffix = " " + v.Status
				p.spinner.Start()
			}
		}
	}
}

func (p *Plain) submit(w *window.Window, promptID uint64, answer string) {
	err := w.Update(func(s *status.Sink) {
		if s.View().PromptID != promptID {
			p.logger.Debug("prompt replaced before the answer arrived")
			return
		}
		s.SetInput(answer)
		s.SubmitCurrentReply()
	})
	if err != nil {
		p.logger.Debug("window closed before the answer arrived", "error", err)
	}
}

func askHuh(q Question) (string, error) {
	if q.Confirm {
		var yes bool
		err := huh.NewConfirm().
			Title(q.Title).
			Affirmative("yes").
			Negative("no").
			Value(&yes).
			Run()
		if err != nil {
			return "", err
		}
		if yes {
			return "yes", nil
		}
		return "no", nil
	}

	var answer string
	input := huh.NewInput().
		Title(q.Title).
		Value(&answer)
	if q.Masked {
		input = input.EchoMode(huh.EchoModePassword)
	}
	if err := input.Run(); err != nil {
		return "", err
	}
	return answer, nil
}
