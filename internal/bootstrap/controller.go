package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/acolita/devremote/internal/prompt"
	"github.com/acolita/devremote/internal/security"
	"github.com/acolita/devremote/internal/ssh"
	"github.com/acolita/devremote/internal/status"
	"github.com/acolita/devremote/internal/window"
	"github.com/acolita/devremote/internal/workspace"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// State is the lifecycle state of a connection attempt.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateHandshaking
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Windows opens the window that hosts an attempt's prompt surface.
type Windows interface {
	Open(host string) *window.Window
}

// Transport establishes an SSH session, calling back into d for prompts,
// status and the server binary.
type Transport interface {
	Connect(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error)
}

// Options configures a Controller.
type Options struct {
	Windows   Windows
	Transport Transport
	Resolver  BinaryResolver
	Projects  workspace.Opener
	Logger    *slog.Logger

	// Classifier is the prompt classifier the surface uses. Defaults to
	// the built-in patterns.
	Classifier *prompt.Classifier
}

// Result is a successful attempt.
type Result struct {
	Attempt string
	Session *ssh.Session
	Project workspace.Project
	Window  *window.Window
}

// Controller runs connection attempts for one connection request. Attempts
// run one at a time; a new attempt may start after the previous one ended.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	attempt     string
	current     *window.Window
	subscribers []func(attempt string, state State)
}

// NewController creates a controller.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Projects == nil {
		opts.Projects = &workspace.RemoteOpener{Logger: logger}
	}
	return &Controller{
		opts:   opts,
		logger: logger,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Window returns the window of the current or last attempt.
func (c *Controller) Window() *window.Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Subscribe registers fn to be called on every state transition. fn runs on
// the goroutine that drives the attempt and must not block.
func (c *Controller) Subscribe(fn func(attempt string, state State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	attempt := c.attempt
	subscribers := append([]func(string, State){}, c.subscribers...)
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(attempt, state)
	}
}

// Dismiss removes the current attempt's window. A pending prompt is
// abandoned and a running Open returns ErrDismissed.
func (c *Controller) Dismiss() {
	if w := c.Window(); w != nil {
		w.Remove()
	}
}

type handshakeResult struct {
	session *ssh.Session
	err     error
}

// Open runs one connection attempt to opts and opens paths on the remote
// host. opts.Password, if set, answers the first password prompt.
func (c *Controller) Open(ctx context.Context, opts ssh.ConnectionOptions, paths []string) (*Result, error) {
	attempt := uuid.NewString()
	c.mu.Lock()
	if c.state == StateOpening || c.state == StateHandshaking {
		c.mu.Unlock()
		return nil, ErrAttemptInProgress
	}
	c.attempt = attempt
	c.state = StateOpening
	c.mu.Unlock()

	logger := c.logger.With("host", opts.Host, "attempt", attempt)
	logger.Info("opening connection", "paths", paths)

	c.setState(StateOpening)
	w := c.opts.Windows.Open(opts.String())
	c.mu.Lock()
	c.current = w
	c.mu.Unlock()

	credential := security.NewCredential([]byte(opts.Password))
	defer credential.Wipe()
	opts.Password = ""

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	delegate := NewDelegate(w, c.opts.Resolver, opts.Channel, credential, logger,
		WithPromptClassifier(c.opts.Classifier))

	c.setState(StateHandshaking)
	results := make(chan handshakeResult, 1)
	go func() {
		session, err := c.opts.Transport.Connect(ctx, opts, delegate)
		results <- handshakeResult{session: session, err: err}
	}()

	var session *ssh.Session
	select {
	case r := <-results:
		// Removing the window abandons the pending prompt before Done is
		// closed, so the handshake can finish first.
		if errors.Is(r.err, prompt.ErrAbandoned) {
			select {
			case <-w.Done():
			case <-ctx.Done():
			}
		}
		if isClosed(w.Done()) {
			closeLate(r, logger)
			return nil, c.dismissed(logger)
		}
		if r.err != nil {
			return nil, c.fail(w, logger, &HandshakeError{Host: opts.Host, Err: r.err})
		}
		session = r.session
	case <-w.Done():
		cancel()
		go discardLate(results, logger)
		return nil, c.dismissed(logger)
	case <-ctx.Done():
		go discardLate(results, logger)
		return nil, c.fail(w, logger, &HandshakeError{Host: opts.Host, Err: ctx.Err()})
	}

	project, err := c.openProject(ctx, session, paths)
	if err != nil {
		return nil, c.fail(w, logger, err)
	}

	if err := w.ReplaceRoot(project); err != nil {
		if cerr := project.Close(); cerr != nil {
			logger.Warn("close project", "error", cerr)
		}
		return nil, c.dismissed(logger)
	}

	logger.Info("connected",
		"platform", session.Platform().String(),
		"server", session.ServerPath(),
		"worktrees", len(project.Worktrees()))
	c.setState(StateConnected)
	return &Result{
		Attempt: attempt,
		Session: session,
		Project: project,
		Window:  w,
	}, nil
}

// openProject hands session to the workspace layer and opens every
// requested path. On failure everything opened so far is closed.
func (c *Controller) openProject(ctx context.Context, session *ssh.Session, paths []string) (workspace.Project, error) {
	project, err := c.opts.Projects.OpenRemote(ctx, session)
	if err != nil {
		var result error = &WorktreeError{Err: err}
		if cerr := session.Close(); cerr != nil {
			result = multierror.Append(result, fmt.Errorf("close session: %w", cerr))
		}
		return nil, result
	}

	for _, p := range paths {
		if _, err := project.FindOrCreateWorktree(ctx, p); err != nil {
			var result error = &WorktreeError{Path: p, Err: err}
			if cerr := project.Close(); cerr != nil {
				result = multierror.Append(result, fmt.Errorf("close project: %w", cerr))
			}
			return nil, result
		}
	}
	return project, nil
}

// fail records err on the surface, removes the window and moves to Failed.
func (c *Controller) fail(w *window.Window, logger *slog.Logger, err error) error {
	if uerr := w.Update(func(s *status.Sink) {
		s.SetError(err)
	}); uerr != nil && !errors.Is(uerr, window.ErrClosed) {
		logger.Warn("record error", "error", uerr)
	}
	w.Remove()

	logger.Error("connection failed", "error", err)
	c.setState(StateFailed)
	return err
}

func (c *Controller) dismissed(logger *slog.Logger) error {
	logger.Info("connection dismissed")
	c.setState(StateFailed)
	return ErrDismissed
}

func isClosed(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// discardLate waits for a handshake whose attempt was abandoned and closes
// the session it may still produce.
func discardLate(results <-chan handshakeResult, logger *slog.Logger) {
	closeLate(<-results, logger)
}

func closeLate(r handshakeResult, logger *slog.Logger) {
	if r.session == nil {
		return
	}
	if err := r.session.Close(); err != nil {
		logger.Warn("close late session", "error", err)
		return
	}
	logger.Info("closed late session")
}
