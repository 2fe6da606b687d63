// Package ssh implements the SSH transport that establishes a remote
// development session: authentication, host key verification, remote
// platform detection, and installation of the remote server binary.
//
// Everything interactive is routed through a Delegate, so the transport
// itself never talks to the operator.
package ssh

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/acolita/devremote/internal/release"
)

// DefaultPort is the SSH port used when none is given.
const DefaultPort = 22

// Delegate is the callback surface the transport drives during a handshake.
// Implementations must be safe to call from the handshake goroutine.
type Delegate interface {
	// AskPassword asks for a password, passphrase, one-time code, or host
	// key confirmation. A returned error aborts the handshake.
	AskPassword(ctx context.Context, prompt string) (string, error)

	// SetStatus reports progress. An empty text clears the status.
	SetStatus(text string)

	// ResolveServerBinary returns a local artifact of the remote server
	// built for platform.
	ResolveServerBinary(ctx context.Context, platform release.Platform) (release.Binary, error)

	// RemoteServerBinaryPath returns the install path on the remote host,
	// relative to the remote user's home directory.
	RemoteServerBinaryPath() (string, error)
}

// ConnectionOptions identifies one connection attempt. It is copied by value
// and never modified once an attempt starts.
type ConnectionOptions struct {
	Host string
	Port int
	User string

	// Password is a password supplied up front. It answers at most the first
	// password prompt of the attempt.
	Password string

	// KeyPath is an explicit private key.
	KeyPath string

	// Platform pins the remote platform. When nil it is probed with uname.
	Platform *release.Platform

	Channel release.Channel
}

// Address returns host:port.
func (o ConnectionOptions) Address() string {
	port := o.Port
	if port == 0 {
		port = DefaultPort
	}
	return joinHostPort(o.Host, port)
}

// String returns the connection in [user@]host[:port] form.
func (o ConnectionOptions) String() string {
	var b strings.Builder
	if o.User != "" {
		b.WriteString(o.User)
		b.WriteByte('@')
	}
	if o.Port != 0 && o.Port != DefaultPort {
		b.WriteString(joinHostPort(o.Host, o.Port))
	} else {
		b.WriteString(o.Host)
	}
	return b.String()
}

func joinHostPort(host string, port int) string {
	if strings.Contains(host, ":") {
		return fmt.Sprintf("[%s]:%d", host, port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// ParseConnectionString parses [user@]host[:port]. IPv6 hosts with a port
// must be bracketed.
func ParseConnectionString(s string) (ConnectionOptions, error) {
	var opts ConnectionOptions

	s = strings.TrimSpace(strings.TrimPrefix(s, "ssh://"))
	if s == "" {
		return opts, fmt.Errorf("empty connection string")
	}

	if i := strings.LastIndex(s, "@"); i >= 0 {
		opts.User = s[:i]
		s = s[i+1:]
		if opts.User == "" {
			return opts, fmt.Errorf("empty user in connection string")
		}
	}

	host, port := s, ""
	switch {
	case strings.HasPrefix(s, "["):
		end := strings.Index(s, "]")
		if end < 0 {
			return opts, fmt.Errorf("unterminated '[' in host %q", s)
		}
		host = s[1:end]
		rest := s[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return opts, fmt.Errorf("unexpected %q after host", rest)
			}
			port = rest[1:]
		}
	case strings.Count(s, ":") == 1:
		i := strings.Index(s, ":")
		host, port = s[:i], s[i+1:]
	}

	if host == "" {
		return opts, fmt.Errorf("empty host in connection string")
	}
	opts.Host = host

	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return opts, fmt.Errorf("invalid port %q", port)
		}
		opts.Port = n
	}

	return opts, nil
}
