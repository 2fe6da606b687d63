// Package window provides the single-threaded context that owns the
// operator-facing state of a connection attempt.
//
// All reads and writes of a window's status.Sink happen on the window's own
// goroutine. Other goroutines post closures with Update and observe the
// result through Views.
package window

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/acolita/devremote/internal/adapters/realrand"
	"github.com/acolita/devremote/internal/ports"
	"github.com/acolita/devremote/internal/status"
	"github.com/acolita/devremote/internal/workspace"
)

// ErrClosed is returned by Update after the window was removed.
var ErrClosed = errors.New("window closed")

// Window is one project window. Until a project is installed with
// ReplaceRoot, its root is the connection prompt surface.
type Window struct {
	id   string
	host string
	sink *status.Sink

	ops       chan *op
	views     chan status.View
	removeReq chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	root workspace.Project

	logger   *slog.Logger
	random   ports.Random
	onRemove func(*Window)
}

type op struct {
	fn   func(*status.Sink)
	done chan struct{}
}

// Option configures a Window.
type Option func(*Window)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Window) {
		w.logger = logger
	}
}

// WithSinkOptions passes options to the window's status.Sink.
func WithSinkOptions(opts ...status.Option) Option {
	return func(w *Window) {
		w.sink = status.New(w.host, opts...)
	}
}

// WithRandom sets the source of window IDs.
func WithRandom(r ports.Random) Option {
	return func(w *Window) {
		w.random = r
	}
}

func withRemoveHook(fn func(*Window)) Option {
	return func(w *Window) {
		w.onRemove = fn
	}
}

// Open creates a window for host and starts its owning goroutine.
func Open(host string, opts ...Option) *Window {
	w := &Window{
		host:      host,
		ops:       make(chan *op),
		views:     make(chan status.View, 1),
		removeReq: make(chan struct{}),
		done:      make(chan struct{}),
		logger:    slog.Default(),
		random:    realrand.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.id = newID(w.random)
	if w.sink == nil {
		w.sink = status.New(host, status.WithLogger(w.logger))
	}

	w.publish(w.sink.View())
	go w.loop()
	return w
}

func (w *Window) loop() {
	for {
		select {
		case o := <-w.ops:
			o.fn(w.sink)
			close(o.done)
			w.publish(w.view())
		case <-w.removeReq:
			w.sink.Dismiss()
			v := w.view()
			v.Closed = true
			w.publish(v)
			close(w.views)
			close(w.done)
			return
		}
	}
}

func (w *Window) view() status.View {
	v := w.sink.View()
	v.Connected = w.Root() != nil
	return v
}

// publish replaces any unread view with v. Only the owning goroutine sends
// on views, so the send after draining never blocks.
func (w *Window) publish(v status.View) {
	select {
	case <-w.views:
	default:
	}
	w.views <- v
}

// ID returns the window identifier.
func (w *Window) ID() string {
	return w.id
}

// Host returns the host the window was opened for.
func (w *Window) Host() string {
	return w.host
}

// Update runs fn on the window's goroutine and waits for it to finish.
// fn must not call back into the window.
func (w *Window) Update(fn func(*status.Sink)) error {
	o := &op{fn: fn, done: make(chan struct{})}
	select {
	case w.ops <- o:
	case <-w.done:
		return ErrClosed
	}
	<-o.done
	return nil
}

// Views delivers a snapshot after every change. Unread snapshots are
// replaced by newer ones. The channel is closed after the final snapshot
// of a removed window, which has Closed set.
func (w *Window) Views() <-chan status.View {
	return w.views
}

// Remove tears the window down. Any pending prompt is abandoned.
// It is safe to call more than once and from any goroutine except the
// window's own.
func (w *Window) Remove() {
	w.closeOnce.Do(func() {
		close(w.removeReq)
		<-w.done
		w.logger.Debug("window removed", "host", w.host, "window", w.id)
		if w.onRemove != nil {
			w.onRemove(w)
		}
	})
	<-w.done
}

// Done is closed once the window is removed.
func (w *Window) Done() <-chan struct{} {
	return w.done
}

// ReplaceRoot swaps the prompt surface for the connected project.
func (w *Window) ReplaceRoot(project workspace.Project) error {
	return w.Update(func(s *status.Sink) {
		w.mu.Lock()
		w.root = project
		w.mu.Unlock()
		s.Dismiss()
		s.SetStatus("")
	})
}

// Root returns the installed project, or nil while the prompt surface is
// still the root.
func (w *Window) Root() workspace.Project {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root
}
