package bootstrap

import (
	"context"
	"errors"
	"sync"

	"github.com/acolita/devremote/internal/ssh"
	"github.com/acolita/devremote/internal/status"
	"github.com/acolita/devremote/internal/window"
	"github.com/acolita/devremote/internal/workspace"
)

// operator plays the person at the prompt surface: it answers every new
// prompt it sees with the next answer and reports the prompts it saw once
// the window is removed.
func operator(w *window.Window, answers ...string) <-chan []string {
	seen := make(chan []string, 1)
	go func() {
		var prompts []string
		var last uint64
		for v := range w.Views() {
			if !v.HasPrompt() || v.PromptID == last {
				continue
			}
			last = v.PromptID
			prompts = append(prompts, v.Prompt)
			if len(answers) == 0 {
				continue
			}
			answer := answers[0]
			answers = answers[1:]
			w.Update(func(s *status.Sink) {
				s.SetInput(answer)
				s.SubmitCurrentReply()
			})
		}
		seen <- prompts
	}()
	return seen
}

// dismisser removes the window as soon as a prompt shows up.
func dismisser(w *window.Window) {
	go func() {
		for v := range w.Views() {
			if v.HasPrompt() {
				w.Remove()
				return
			}
		}
	}()
}

// recordingSurface applies updates to a sink and remembers every status
// line it showed.
type recordingSurface struct {
	mu       sync.Mutex
	sink     *status.Sink
	statuses []string
	closed   bool
}

func newRecordingSurface() *recordingSurface {
	return &recordingSurface{sink: status.New("devbox")}
}

func (r *recordingSurface) Update(fn func(*status.Sink)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return window.ErrClosed
	}
	fn(r.sink)
	r.statuses = append(r.statuses, r.sink.View().Status)
	return nil
}

func (r *recordingSurface) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recordingSurface) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

type transportFunc func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error)

func (f transportFunc) Connect(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
	return f(ctx, opts, d)
}

// fakeProject is a project whose worktree lookups succeed unless the path
// is listed in missing.
type fakeProject struct {
	mu        sync.Mutex
	session   *ssh.Session
	missing   map[string]bool
	worktrees []*workspace.Worktree
	closed    bool
	closeErr  error
}

func (p *fakeProject) Host() string          { return p.session.Host() }
func (p *fakeProject) Session() *ssh.Session { return p.session }

func (p *fakeProject) FindOrCreateWorktree(ctx context.Context, requested string) (*workspace.Worktree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.missing[requested] {
		return nil, errors.New("no such file or directory")
	}
	wt := &workspace.Worktree{ID: len(p.worktrees) + 1, Root: requested, Path: requested}
	p.worktrees = append(p.worktrees, wt)
	return wt, nil
}

func (p *fakeProject) Worktrees() []*workspace.Worktree {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*workspace.Worktree(nil), p.worktrees...)
}

func (p *fakeProject) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *fakeProject) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeOpener struct {
	project *fakeProject
	err     error
}

func (o *fakeOpener) OpenRemote(ctx context.Context, session *ssh.Session) (workspace.Project, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.project.session = session
	return o.project, nil
}
