package ssh

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrHostKeyRejected is returned when the operator declines an unknown
// host key.
var ErrHostKeyRejected = errors.New("host key rejected")

// hostKeyVerifier checks host keys against a known_hosts file. Unknown
// hosts are confirmed through the authenticator's prompt path and recorded.
// A key that differs from the recorded one is always fatal.
type hostKeyVerifier struct {
	path   string
	auth   *authenticator
	logger *slog.Logger
	mu     sync.Mutex
}

func (v *hostKeyVerifier) callback(hostname string, remote net.Addr, key ssh.PublicKey) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	check, err := v.load()
	if err != nil {
		return err
	}

	err = check(hostname, remote, key)
	if err == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if !errors.As(err, &keyErr) {
		return err
	}
	if len(keyErr.Want) > 0 {
		v.logger.Error("remote host key changed",
			"host", hostname,
			"fingerprint", ssh.FingerprintSHA256(key),
			"known_hosts", v.path,
		)
		return fmt.Errorf("host key for %s does not match %s: %w", hostname, v.path, err)
	}

	fingerprint := ssh.FingerprintSHA256(key)
	message := fmt.Sprintf(
		"The authenticity of host '%s' can't be established.\n%s key fingerprint is %s.\nAre you sure you want to continue connecting (yes/no/[fingerprint])?",
		knownhosts.Normalize(hostname), key.Type(), fingerprint,
	)

	answer, err := v.auth.ask(message)
	if err != nil {
		return err
	}
	answer = strings.TrimSpace(answer)
	if !strings.EqualFold(answer, "yes") && answer != fingerprint {
		v.auth.abort(ErrHostKeyRejected)
		return ErrHostKeyRejected
	}

	if err := v.add(hostname, key); err != nil {
		// The connection may proceed; the operator will be asked again next time.
		v.logger.Warn("failed to record host key", "host", hostname, "error", err)
	}
	return nil
}

// load parses the known_hosts file. A missing file knows no hosts.
func (v *hostKeyVerifier) load() (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(v.path); errors.Is(err, os.ErrNotExist) {
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			return &knownhosts.KeyError{}
		}, nil
	}

	callback, err := knownhosts.New(v.path)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}

func (v *hostKeyVerifier) add(hostname string, key ssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return err
	}

	f, err := os.OpenFile(v.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	_, err = fmt.Fprintln(f, line)
	return err
}
