package ssh

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/acolita/devremote/internal/ports"
	"github.com/acolita/devremote/internal/release"
	"github.com/acolita/devremote/internal/sftp"
	"github.com/hashicorp/go-version"
	"golang.org/x/crypto/ssh"
)

// Session is an established connection to a remote host with the server
// binary installed. It is the handle the workspace layer takes ownership of.
//
// The zero value is a closed session.
type Session struct {
	conn *ssh.Client
	host string
	mu   sync.Mutex

	platform      release.Platform
	serverPath    string
	serverVersion *version.Version

	// Keepalive settings
	keepaliveInterval time.Duration
	keepaliveStop     chan struct{}
	keepaliveFailures int

	// SFTP client (lazy initialized)
	sftpClient *sftp.Client

	clock  ports.Clock
	logger *slog.Logger
}

func newSession(conn *ssh.Client, host string, keepalive time.Duration, clk ports.Clock, logger *slog.Logger) *Session {
	s := &Session{
		conn:              conn,
		host:              host,
		keepaliveInterval: keepalive,
		clock:             clk,
		logger:            logger,
	}

	if keepalive > 0 {
		s.keepaliveStop = make(chan struct{})
		// Copy the channel reference so the goroutine never reads the struct field.
		go s.keepalive(s.keepaliveStop)
	}
	return s
}

// keepalive sends periodic keepalive requests to prevent connection timeout.
func (s *Session) keepalive(stop <-chan struct{}) {
	ticker := s.clock.NewTicker(s.keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			// Failures are only counted; the next operation detects a dead connection.
			if _, _, err := conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				s.mu.Lock()
				s.keepaliveFailures++
				s.mu.Unlock()
				s.logger.Debug("keepalive failed", "host", s.host, "error", err)
			}
		}
	}
}

// Run executes command on the remote host and returns its standard output.
// A non-zero exit is an error carrying the command's standard error.
func (s *Session) Run(ctx context.Context, command string) ([]byte, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	sess, err := conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(command)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		sess.Close()
		return nil, ctx.Err()
	}

	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("run %q: %w: %s", command, err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("run %q: %w", command, err)
	}
	return stdout.Bytes(), nil
}

// SFTPClient returns an SFTP client for file transfers.
// The SFTP client is lazily initialized and reuses the SSH connection.
func (s *Session) SFTPClient() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	if s.sftpClient == nil {
		s.sftpClient = sftp.NewClient(s.conn)
	}

	return s.sftpClient, nil
}

// Close closes the SSH connection and any associated clients.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keepaliveStop != nil {
		close(s.keepaliveStop)
		s.keepaliveStop = nil
	}

	if s.sftpClient != nil {
		s.sftpClient.Close()
		s.sftpClient = nil
	}

	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}

	return nil
}

// IsConnected returns true if the session is connected.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Host returns the host the operator asked for.
func (s *Session) Host() string {
	return s.host
}

// RemoteAddr returns the remote address if connected.
func (s *Session) RemoteAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.RemoteAddr()
	}
	return nil
}

// Platform returns the remote platform.
func (s *Session) Platform() release.Platform {
	return s.platform
}

// ServerPath returns the remote path of the installed server binary.
func (s *Session) ServerPath() string {
	return s.serverPath
}

// ServerVersion returns the version of the installed server binary.
func (s *Session) ServerVersion() *version.Version {
	return s.serverVersion
}

// KeepaliveFailures returns the number of unanswered keepalive requests.
func (s *Session) KeepaliveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepaliveFailures
}
