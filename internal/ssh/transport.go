package ssh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/acolita/devremote/internal/adapters/realclock"
	"github.com/acolita/devremote/internal/adapters/realfs"
	"github.com/acolita/devremote/internal/adapters/realsshdialer"
	"github.com/acolita/devremote/internal/ports"
	"github.com/acolita/devremote/internal/release"
	"github.com/hashicorp/go-version"
	"golang.org/x/crypto/ssh"
)

// TransportOptions configures the SSH transport.
type TransportOptions struct {
	KnownHostsPath    string // Defaults to ~/.ssh/known_hosts
	SSHConfigPath     string // Defaults to ~/.ssh/config
	UseSSHConfig      bool
	UseAgent          bool
	AgentSocket       string
	ConnectTimeout    time.Duration
	KeepaliveInterval time.Duration

	Clock  ports.Clock
	Dialer ports.SSHDialer
	FS     ports.FileSystem
	Logger *slog.Logger
}

// DefaultTransportOptions returns default transport options.
func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		UseSSHConfig:      true,
		UseAgent:          true,
		ConnectTimeout:    30 * time.Second,
		KeepaliveInterval: 30 * time.Second,
	}
}

// Transport performs the SSH handshake for a connection attempt.
type Transport struct {
	opts TransportOptions
}

// NewTransport creates a transport. Unset dependencies use the real
// implementations.
func NewTransport(opts TransportOptions) *Transport {
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}
	if opts.Dialer == nil {
		opts.Dialer = realsshdialer.New()
	}
	if opts.FS == nil {
		opts.FS = realfs.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.KnownHostsPath == "" {
		opts.KnownHostsPath = "~/.ssh/known_hosts"
	}
	opts.KnownHostsPath = expandPath(opts.KnownHostsPath, opts.FS)
	return &Transport{opts: opts}
}

// Connect authenticates to the host, detects the remote platform, and
// installs the server binary the delegate resolves. Every prompt and status
// update goes through d. On error no session exists.
func (t *Transport) Connect(ctx context.Context, opts ConnectionOptions, d Delegate) (*Session, error) {
	logger := t.opts.Logger.With("host", opts.Host)
	started := t.opts.Clock.Now()

	dialHost := opts.Host
	var identityFiles []string
	if t.opts.UseSSHConfig {
		hc := ResolveHostConfig(t.opts.FS, t.opts.SSHConfigPath, opts.Host)
		opts, dialHost = hc.apply(opts)
		identityFiles = hc.IdentityFiles
	}
	if opts.User == "" {
		opts.User = t.opts.FS.Getenv("USER")
	}
	if opts.User == "" {
		return nil, fmt.Errorf("no user for %s", opts.Host)
	}

	keyPaths := identityFiles
	if opts.KeyPath != "" {
		keyPaths = []string{opts.KeyPath}
	}

	addr := ConnectionOptions{Host: dialHost, Port: opts.Port}.Address()

	auth := &authenticator{ctx: ctx, delegate: d, fs: t.opts.FS, logger: logger}
	defer auth.close()

	verifier := &hostKeyVerifier{path: t.opts.KnownHostsPath, auth: auth, logger: logger}

	config := &ssh.ClientConfig{
		User: opts.User,
		Auth: auth.methods(AuthConfig{
			User:        opts.User,
			Host:        opts.Host,
			KeyPaths:    keyPaths,
			UseAgent:    t.opts.UseAgent,
			AgentSocket: t.opts.AgentSocket,
		}),
		HostKeyCallback: verifier.callback,
		Timeout:         t.opts.ConnectTimeout,
	}

	d.SetStatus(fmt.Sprintf("connecting to %s", opts.String()))
	logger.Info("connecting", "addr", addr, "user", opts.User)

	conn, err := t.opts.Dialer.Dial("tcp", addr, config)
	if err != nil {
		if abortErr := auth.aborted(); abortErr != nil {
			return nil, fmt.Errorf("authenticate %s: %w", addr, abortErr)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	session := newSession(conn, opts.Host, t.opts.KeepaliveInterval, t.opts.Clock, logger)
	if err := t.bootstrap(ctx, session, opts, d); err != nil {
		session.Close()
		return nil, err
	}

	d.SetStatus("")
	logger.Info("connected",
		"platform", session.platform.String(),
		"server", session.serverPath,
		"version", versionString(session.serverVersion),
		"elapsed", t.opts.Clock.Now().Sub(started),
	)
	return session, nil
}

func versionString(v *version.Version) string {
	if v == nil {
		return ""
	}
	return v.Original()
}

func (t *Transport) bootstrap(ctx context.Context, session *Session, opts ConnectionOptions, d Delegate) error {
	platform, err := t.remotePlatform(ctx, session, opts, d)
	if err != nil {
		return err
	}
	session.platform = platform

	binary, err := d.ResolveServerBinary(ctx, platform)
	if err != nil {
		return err
	}

	remotePath, err := d.RemoteServerBinaryPath()
	if err != nil {
		return fmt.Errorf("remote server path: %w", err)
	}

	if err := session.installServer(ctx, d, binary, remotePath); err != nil {
		return err
	}
	session.serverPath = remotePath
	session.serverVersion = binary.Version
	return nil
}

func (t *Transport) remotePlatform(ctx context.Context, session *Session, opts ConnectionOptions, d Delegate) (release.Platform, error) {
	if opts.Platform != nil {
		return *opts.Platform, nil
	}

	d.SetStatus("detecting remote platform")
	out, err := session.Run(ctx, "uname -sm")
	if err != nil {
		return release.Platform{}, fmt.Errorf("detect remote platform: %w", err)
	}
	platform, err := release.ParseUname(string(out))
	if err != nil {
		return release.Platform{}, fmt.Errorf("detect remote platform: %w", err)
	}
	return platform, nil
}
