package ssh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acolita/devremote/internal/ports"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	User        string
	Host        string
	KeyPaths    []string // Explicit or ssh_config identity files, tried in order
	UseAgent    bool     // Use SSH agent for authentication
	AgentSocket string   // Defaults to $SSH_AUTH_SOCK
}

// defaultKeys are tried when no key is configured for the host.
var defaultKeys = []string{
	"~/.ssh/id_ed25519",
	"~/.ssh/id_ecdsa",
	"~/.ssh/id_rsa",
}

// authenticator builds auth methods whose interactive parts are answered
// through the delegate. The first delegate error aborts authentication and
// is kept so the caller can report it instead of the generic handshake
// failure.
type authenticator struct {
	ctx      context.Context
	delegate Delegate
	fs       ports.FileSystem
	logger   *slog.Logger

	mu      sync.Mutex
	err     error
	closers []func() error
}

func (a *authenticator) ask(prompt string) (string, error) {
	a.mu.Lock()
	err := a.err
	a.mu.Unlock()
	if err != nil {
		return "", err
	}

	answer, err := a.delegate.AskPassword(a.ctx, prompt)
	if err != nil {
		a.abort(err)
		return "", err
	}
	return answer, nil
}

func (a *authenticator) abort(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}

// aborted returns the delegate error that stopped authentication, if any.
func (a *authenticator) aborted() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *authenticator) close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for _, fn := range closers {
		fn()
	}
}

// methods constructs SSH auth methods: agent, private keys, password, and
// keyboard-interactive, in that order.
func (a *authenticator) methods(cfg AuthConfig) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if cfg.UseAgent {
		if agentAuth, err := a.agentAuth(cfg.AgentSocket); err == nil {
			methods = append(methods, agentAuth)
		} else {
			a.logger.Debug("ssh agent unavailable", "error", err)
		}
	}

	keyPaths := cfg.KeyPaths
	if len(keyPaths) == 0 {
		keyPaths = defaultKeys
	}
	for _, keyPath := range keyPaths {
		keyAuth, err := a.privateKeyAuth(keyPath)
		if err != nil {
			if len(cfg.KeyPaths) > 0 {
				a.logger.Warn("skipping private key", "key", keyPath, "error", err)
			}
			continue
		}
		methods = append(methods, keyAuth)
	}

	methods = append(methods,
		ssh.PasswordCallback(func() (string, error) {
			return a.ask(fmt.Sprintf("%s@%s's password: ", cfg.User, cfg.Host))
		}),
		ssh.KeyboardInteractive(a.keyboardInteractive),
	)

	return methods
}

// agentAuth returns an SSH agent auth method.
func (a *authenticator) agentAuth(socket string) (ssh.AuthMethod, error) {
	if socket == "" {
		socket = a.fs.Getenv("SSH_AUTH_SOCK")
	}
	if socket == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}

	a.mu.Lock()
	a.closers = append(a.closers, conn.Close)
	a.mu.Unlock()

	agentClient := agent.NewClient(conn)
	return ssh.PublicKeysCallback(agentClient.Signers), nil
}

// privateKeyAuth returns a private key auth method. For an encrypted key the
// passphrase is asked for only when the server actually offers publickey
// authentication.
func (a *authenticator) privateKeyAuth(keyPath string) (ssh.AuthMethod, error) {
	expanded := expandPath(keyPath, a.fs)

	keyData, err := a.fs.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err == nil {
		return ssh.PublicKeys(signer), nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	var (
		once      sync.Once
		encrypted ssh.Signer
		parseErr  error
	)
	return ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
		once.Do(func() {
			passphrase, err := a.ask(fmt.Sprintf("Enter passphrase for key '%s': ", keyPath))
			if err != nil {
				parseErr = err
				return
			}
			encrypted, parseErr = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
		})
		if parseErr != nil {
			return nil, parseErr
		}
		return []ssh.Signer{encrypted}, nil
	}), nil
}

// keyboardInteractive answers each challenge question through the delegate.
func (a *authenticator) keyboardInteractive(user, instruction string, questions []string, echos []bool) ([]string, error) {
	answers := make([]string, len(questions))
	for i, question := range questions {
		text := question
		if instruction = strings.TrimSpace(instruction); instruction != "" && i == 0 {
			text = instruction + "\n" + question
		}
		answer, err := a.ask(text)
		if err != nil {
			return nil, err
		}
		answers[i] = answer
	}
	return answers, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string, fsys ports.FileSystem) string {
	if strings.HasPrefix(path, "~/") {
		home, err := fsys.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
