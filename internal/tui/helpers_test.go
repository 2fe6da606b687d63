package tui

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/acolita/devremote/internal/prompt"
	"github.com/acolita/devremote/internal/ssh"
	"github.com/acolita/devremote/internal/status"
	"github.com/acolita/devremote/internal/window"
	"github.com/acolita/devremote/internal/workspace"
)

type stubProject struct{}

func (stubProject) Host() string                     { return "devbox" }
func (stubProject) Session() *ssh.Session            { return &ssh.Session{} }
func (stubProject) Worktrees() []*workspace.Worktree { return nil }
func (stubProject) Close() error                     { return nil }

func (stubProject) FindOrCreateWorktree(ctx context.Context, requested string) (*workspace.Worktree, error) {
	return &workspace.Worktree{Root: requested, Path: requested}, nil
}

// syncBuffer is shared between the surface and the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// issue sets a new prompt on w and returns its waiting end.
func issue(t *testing.T, w *window.Window, text string) *prompt.Waiter {
	t.Helper()
	waiter, responder := prompt.Issue(text)
	if err := w.Update(func(s *status.Sink) { s.SetPrompt(text, responder) }); err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	return waiter
}

// drain returns the latest unread view of w.
func drain(t *testing.T, w *window.Window) status.View {
	t.Helper()
	select {
	case v := <-w.Views():
		return v
	case <-time.After(time.Second):
		t.Fatal("no view published")
		return status.View{}
	}
}

func waitFor(t *testing.T, waiter *prompt.Waiter) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return waiter.Wait(ctx)
}
