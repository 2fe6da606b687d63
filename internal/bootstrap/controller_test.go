package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acolita/devremote/internal/prompt"
	"github.com/acolita/devremote/internal/resolver"
	"github.com/acolita/devremote/internal/ssh"
	"github.com/acolita/devremote/internal/status"
	"github.com/acolita/devremote/internal/testing/fakes/fakefs"
	"github.com/acolita/devremote/internal/testing/fakes/fakereleases"
	"github.com/acolita/devremote/internal/testing/fakes/fakesshdialer"
	"github.com/acolita/devremote/internal/testing/mockssh"
	"github.com/acolita/devremote/internal/window"
	"github.com/hashicorp/go-version"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/ssh/knownhosts"
)

const serverScript = "#!/bin/sh\necho devremote-server 1.2.3\n"

// remoteEnv is an in-process SSH server with a transport pointed at it.
type remoteEnv struct {
	server    *mockssh.Server
	transport *ssh.Transport
	releases  *fakereleases.Client
}

func newRemoteEnv(t *testing.T, opts ...mockssh.Option) *remoteEnv {
	t.Helper()

	opts = append([]mockssh.Option{
		mockssh.WithWorkDir(t.TempDir()),
		mockssh.WithCommand("uname -sm", "Linux x86_64\n", 0),
	}, opts...)
	server, err := mockssh.New(opts...)
	if err != nil {
		t.Fatalf("mockssh.New() error = %v", err)
	}
	t.Cleanup(func() { server.Close() })

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(server.Addr())}, server.PublicKey())
	if err := os.WriteFile(knownHosts, []byte(line+"\n"), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}

	fs := fakefs.New()
	fs.SetEnv("USER", "test")

	return &remoteEnv{
		server: server,
		transport: ssh.NewTransport(ssh.TransportOptions{
			KnownHostsPath: knownHosts,
			Dialer:         fakesshdialer.Redirect(server.Addr()),
			FS:             fs,
		}),
		releases: fakereleases.New(writeArtifact(t)),
	}
}

func (e *remoteEnv) resolver() *resolver.Resolver {
	return resolver.New(resolver.Options{
		AppVersion: version.Must(version.NewVersion("1.2.3")),
		Releases:   e.releases,
	})
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devremote-server.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	defer f.Close()
	zw := gzip.NewWriter(f)
	zw.Write([]byte(serverScript))
	if err := zw.Close(); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

// lastView drains a removed window and returns its final snapshot.
func lastView(w *window.Window) status.View {
	var last status.View
	for v := range w.Views() {
		last = v
	}
	return last
}

func TestOpenPasswordThenOneTimeCode(t *testing.T) {
	env := newRemoteEnv(t,
		mockssh.WithUser("alice", "secret1"),
		mockssh.WithOneTimeCode("alice", "123456"),
	)

	manager := window.NewManager(nil)
	var seen <-chan []string
	manager.OnOpen(func(w *window.Window) {
		seen = operator(w, "123456")
	})

	c := NewController(Options{
		Windows:   manager,
		Transport: env.transport,
		Resolver:  env.resolver(),
	})

	result, err := c.Open(context.Background(), ssh.ConnectionOptions{
		Host:     "devbox",
		User:     "alice",
		Password: "secret1",
	}, []string{"~"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer result.Project.Close()

	if c.State() != StateConnected {
		t.Errorf("State() = %v, want connected", c.State())
	}
	if result.Attempt == "" {
		t.Error("Attempt is empty")
	}
	if !result.Session.IsConnected() {
		t.Error("session is not connected")
	}
	if result.Window.Root() != result.Project {
		t.Error("window root is not the project")
	}

	var hasPrompt bool
	result.Window.Update(func(s *status.Sink) {
		hasPrompt = s.HasPrompt()
	})
	if hasPrompt {
		t.Error("prompt surface still holds a prompt after connecting")
	}

	worktrees := result.Project.Worktrees()
	if len(worktrees) != 1 || worktrees[0].Root != env.server.WorkDir() {
		t.Errorf("worktrees = %+v, want remote home %s", worktrees, env.server.WorkDir())
	}

	installed := filepath.Join(env.server.WorkDir(), ".local", "devremote-server-stable")
	if data, err := os.ReadFile(installed); err != nil || string(data) != serverScript {
		t.Errorf("installed server = %q, %v", data, err)
	}

	result.Window.Remove()
	prompts := <-seen
	if len(prompts) != 1 || prompts[0] != "Verification code: " {
		t.Errorf("operator saw %q, want only the verification code prompt", prompts)
	}
}

// recordingTransport reports the error its wrapped transport returned.
type recordingTransport struct {
	Transport
	errs chan error
}

func (r *recordingTransport) Connect(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
	session, err := r.Transport.Connect(ctx, opts, d)
	r.errs <- err
	return session, err
}

func TestOpenDismissedWhilePrompting(t *testing.T) {
	env := newRemoteEnv(t, mockssh.WithUser("alice", "secret1"))

	manager := window.NewManager(nil)
	manager.OnOpen(dismisser)

	transport := &recordingTransport{Transport: env.transport, errs: make(chan error, 1)}
	c := NewController(Options{
		Windows:   manager,
		Transport: transport,
		Resolver:  env.resolver(),
	})

	_, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox", User: "alice"}, nil)
	if !errors.Is(err, ErrDismissed) {
		t.Fatalf("Open() error = %v, want ErrDismissed", err)
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %v, want failed", c.State())
	}
	if manager.Count() != 0 {
		t.Errorf("open windows = %d, want 0", manager.Count())
	}

	select {
	case err := <-transport.errs:
		if !errors.Is(err, prompt.ErrAbandoned) {
			t.Errorf("handshake error = %v, want ErrAbandoned", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handshake did not observe the dismissal")
	}
	if calls := env.releases.Calls(); len(calls) != 0 {
		t.Errorf("release lookups = %d, want none", len(calls))
	}
}

func TestOpenDismissalWinsOverAbandonedHandshake(t *testing.T) {
	// The handshake returns as soon as its prompt is abandoned, racing the
	// window teardown that abandoned it.
	transport := transportFunc(func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
		_, err := d.AskPassword(ctx, "Password: ")
		return nil, err
	})

	for i := 0; i < 200; i++ {
		manager := window.NewManager(nil)
		manager.OnOpen(dismisser)
		c := NewController(Options{
			Windows:   manager,
			Transport: transport,
			Projects:  &fakeOpener{project: &fakeProject{}},
		})

		_, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox"}, nil)
		if !errors.Is(err, ErrDismissed) {
			t.Fatalf("attempt %d: Open() error = %v, want ErrDismissed", i, err)
		}
		if c.State() != StateFailed {
			t.Fatalf("attempt %d: State() = %v, want failed", i, c.State())
		}
	}
}

func TestOpenCredentialAnswersFirstPromptOnly(t *testing.T) {
	manager := window.NewManager(nil)
	var seen <-chan []string
	manager.OnOpen(func(w *window.Window) {
		seen = operator(w, "typed")
	})

	var passwordSeen string
	var answers []string
	transport := transportFunc(func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
		passwordSeen = opts.Password
		for i := 0; i < 2; i++ {
			answer, err := d.AskPassword(ctx, "Password: ")
			if err != nil {
				return nil, err
			}
			answers = append(answers, answer)
		}
		return &ssh.Session{}, nil
	})

	c := NewController(Options{
		Windows:   manager,
		Transport: transport,
		Projects:  &fakeOpener{project: &fakeProject{}},
	})
	result, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox", Password: "secret1"}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if passwordSeen != "" {
		t.Errorf("transport saw password %q, want it withheld", passwordSeen)
	}
	if len(answers) != 2 || answers[0] != "secret1" || answers[1] != "typed" {
		t.Errorf("answers = %q, want supplied password then operator input", answers)
	}

	result.Window.Remove()
	if prompts := <-seen; len(prompts) != 1 {
		t.Errorf("operator saw %q, want one prompt", prompts)
	}
}

func TestOpenHandshakeFailure(t *testing.T) {
	buildErr := &resolver.BuildError{Command: "go build", Stderr: "syntax error", Err: errors.New("exit status 1")}
	manager := window.NewManager(nil)
	c := NewController(Options{
		Windows: manager,
		Transport: transportFunc(func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
			d.SetStatus(resolver.StatusBuilding)
			return nil, buildErr
		}),
	})

	_, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox"}, nil)

	var handshakeErr *HandshakeError
	if !errors.As(err, &handshakeErr) {
		t.Fatalf("Open() error = %v, want *HandshakeError", err)
	}
	if handshakeErr.Host != "devbox" {
		t.Errorf("Host = %q", handshakeErr.Host)
	}
	var target *resolver.BuildError
	if !errors.As(err, &target) {
		t.Errorf("Open() error = %v, want it to wrap *resolver.BuildError", err)
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %v, want failed", c.State())
	}
	if manager.Count() != 0 {
		t.Errorf("open windows = %d, want 0", manager.Count())
	}

	final := lastView(c.Window())
	if !final.Closed {
		t.Error("final view is not closed")
	}
	if !strings.Contains(final.Err, "syntax error") {
		t.Errorf("final error = %q, want the build failure", final.Err)
	}
}

func TestOpenWorktreeFailureIsFatal(t *testing.T) {
	project := &fakeProject{missing: map[string]bool{"/nope": true}}
	manager := window.NewManager(nil)
	c := NewController(Options{
		Windows: manager,
		Transport: transportFunc(func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
			return &ssh.Session{}, nil
		}),
		Projects: &fakeOpener{project: project},
	})

	_, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox"}, []string{"/srv", "/nope", "/later"})

	var worktreeErr *WorktreeError
	if !errors.As(err, &worktreeErr) {
		t.Fatalf("Open() error = %v, want *WorktreeError", err)
	}
	if worktreeErr.Path != "/nope" {
		t.Errorf("Path = %q, want /nope", worktreeErr.Path)
	}
	if !project.isClosed() {
		t.Error("project was not closed")
	}
	if got := len(project.Worktrees()); got != 1 {
		t.Errorf("worktrees = %d, want 1 (stopped at the failure)", got)
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %v, want failed", c.State())
	}
	if manager.Count() != 0 {
		t.Errorf("open windows = %d, want 0", manager.Count())
	}
}

func TestOpenWorktreeFailureReportsCloseError(t *testing.T) {
	project := &fakeProject{
		missing:  map[string]bool{"/nope": true},
		closeErr: errors.New("connection reset"),
	}
	c := NewController(Options{
		Windows: window.NewManager(nil),
		Transport: transportFunc(func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
			return &ssh.Session{}, nil
		}),
		Projects: &fakeOpener{project: project},
	})

	_, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox"}, []string{"/nope"})

	var worktreeErr *WorktreeError
	if !errors.As(err, &worktreeErr) {
		t.Fatalf("Open() error = %v, want *WorktreeError", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Open() error = %q, want the close failure included", err)
	}
}

func TestOpenProjectFailure(t *testing.T) {
	c := NewController(Options{
		Windows: window.NewManager(nil),
		Transport: transportFunc(func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
			return &ssh.Session{}, nil
		}),
		Projects: &fakeOpener{err: errors.New("sftp subsystem unavailable")},
	})

	_, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox"}, nil)
	var worktreeErr *WorktreeError
	if !errors.As(err, &worktreeErr) {
		t.Fatalf("Open() error = %v, want *WorktreeError", err)
	}
	if worktreeErr.Path != "" {
		t.Errorf("Path = %q, want empty", worktreeErr.Path)
	}
}

func TestOpenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewController(Options{
		Windows: window.NewManager(nil),
		Transport: transportFunc(func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})

	_, err := c.Open(ctx, ssh.ConnectionOptions{Host: "devbox"}, nil)
	var handshakeErr *HandshakeError
	if !errors.As(err, &handshakeErr) {
		t.Fatalf("Open() error = %v, want *HandshakeError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Open() error = %v, want context.Canceled", err)
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %v, want failed", c.State())
	}
}

func TestDismissCancelsHandshake(t *testing.T) {
	handshakeDone := make(chan error, 1)
	c := NewController(Options{
		Windows: window.NewManager(nil),
		Transport: transportFunc(func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
			<-ctx.Done()
			handshakeDone <- ctx.Err()
			return nil, ctx.Err()
		}),
	})
	c.Subscribe(func(attempt string, state State) {
		if state == StateHandshaking {
			go c.Dismiss()
		}
	})

	_, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox"}, nil)
	if !errors.Is(err, ErrDismissed) {
		t.Fatalf("Open() error = %v, want ErrDismissed", err)
	}

	select {
	case err := <-handshakeDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("handshake context error = %v, want canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handshake context was not canceled")
	}
}

func TestStateTransitions(t *testing.T) {
	c := NewController(Options{
		Windows: window.NewManager(nil),
		Transport: transportFunc(func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
			return &ssh.Session{}, nil
		}),
		Projects: &fakeOpener{project: &fakeProject{}},
	})
	if c.State() != StateIdle {
		t.Errorf("initial State() = %v, want idle", c.State())
	}

	var mu sync.Mutex
	var states []State
	attempts := map[string]bool{}
	c.Subscribe(func(attempt string, state State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, state)
		attempts[attempt] = true
	})

	result, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox"}, []string{"/srv"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer result.Window.Remove()

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateOpening, StateHandshaking, StateConnected}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, states[i], want[i])
		}
	}
	if len(attempts) != 1 || !attempts[result.Attempt] {
		t.Errorf("attempt ids = %v, want only %s", attempts, result.Attempt)
	}
}

func TestOpenWhileInProgress(t *testing.T) {
	unblock := make(chan struct{})
	handshaking := make(chan struct{})
	c := NewController(Options{
		Windows: window.NewManager(nil),
		Transport: transportFunc(func(ctx context.Context, opts ssh.ConnectionOptions, d ssh.Delegate) (*ssh.Session, error) {
			close(handshaking)
			<-unblock
			return nil, errors.New("connection refused")
		}),
	})

	first := make(chan error, 1)
	go func() {
		_, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox"}, nil)
		first <- err
	}()
	<-handshaking

	if _, err := c.Open(context.Background(), ssh.ConnectionOptions{Host: "devbox"}, nil); !errors.Is(err, ErrAttemptInProgress) {
		t.Errorf("second Open() error = %v, want ErrAttemptInProgress", err)
	}

	close(unblock)
	var handshakeErr *HandshakeError
	if err := <-first; !errors.As(err, &handshakeErr) {
		t.Errorf("first Open() error = %v, want *HandshakeError", err)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:        "idle",
		StateOpening:     "opening",
		StateHandshaking: "handshaking",
		StateConnected:   "connected",
		StateFailed:      "failed",
		State(42):        "state(42)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
