// Package mockssh provides an in-process SSH server for testing the
// transport: password and keyboard-interactive authentication, exec
// requests, and the sftp subsystem.
package mockssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Server is a mock SSH server for testing.
type Server struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	shell    string
	workDir  string
	signer   ssh.Signer
	users    map[string]string // username -> password
	otp      map[string]string // username -> one-time code
	commands map[string]Response
	mu       sync.RWMutex
	done     chan struct{}
	wg       sync.WaitGroup

	closeOnce sync.Once

	execLog     []string
	authLog     []string
	challenges  int
	connections int
}

// Response is a canned reply to an exec request.
type Response struct {
	Output   string
	ExitCode int
}

// Option configures the mock SSH server.
type Option func(*Server)

// WithShell sets the shell to use for exec requests.
func WithShell(shell string) Option {
	return func(s *Server) {
		s.shell = shell
	}
}

// WithUser adds a user/password pair for authentication.
func WithUser(username, password string) Option {
	return func(s *Server) {
		s.users[username] = password
	}
}

// WithOneTimeCode requires username to answer a keyboard-interactive
// "Verification code" challenge with code after a correct password.
func WithOneTimeCode(username, code string) Option {
	return func(s *Server) {
		s.otp[username] = code
	}
}

// WithCommand answers the exact exec request command with a canned
// response instead of running it.
func WithCommand(command, output string, exitCode int) Option {
	return func(s *Server) {
		s.commands[command] = Response{Output: output, ExitCode: exitCode}
	}
}

// WithWorkDir sets the directory exec requests run in and relative sftp
// paths resolve against. It stands in for the remote home directory.
func WithWorkDir(dir string) Option {
	return func(s *Server) {
		s.workDir = dir
	}
}

// New creates a new mock SSH server.
func New(opts ...Option) (*Server, error) {
	// Generate a temporary host key
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}

	signer, err := ssh.NewSignerFromKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	s := &Server{
		shell: "/bin/sh",
		users: map[string]string{
			"test": "test", // Default test user
		},
		otp:      make(map[string]string),
		commands: make(map[string]Response),
		signer:   signer,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.workDir == "" {
		s.workDir, err = os.MkdirTemp("", "mockssh-")
		if err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
	}

	config := &ssh.ServerConfig{
		PasswordCallback: s.passwordCallback,
	}
	config.AddHostKey(signer)
	s.config = config

	// Start listening on a random port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.addr = listener.Addr().String()

	// Start accepting connections
	s.wg.Add(1)
	go s.acceptLoop()

	slog.Debug("mock SSH server started", slog.String("addr", s.addr))
	return s, nil
}

func (s *Server) passwordCallback(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
	s.mu.Lock()
	s.authLog = append(s.authLog, "password")
	expectedPass, ok := s.users[c.User()]
	code, needsCode := s.otp[c.User()]
	s.mu.Unlock()

	if !ok || string(password) != expectedPass {
		return nil, fmt.Errorf("password rejected for %q", c.User())
	}
	if !needsCode {
		return nil, nil
	}

	return nil, &ssh.PartialSuccessError{
		Next: ssh.ServerAuthCallbacks{
			KeyboardInteractiveCallback: func(c ssh.ConnMetadata, client ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
				s.mu.Lock()
				s.authLog = append(s.authLog, "keyboard-interactive")
				s.challenges++
				s.mu.Unlock()

				answers, err := client(c.User(), "", []string{"Verification code: "}, []bool{false})
				if err != nil {
					return nil, err
				}
				if len(answers) != 1 || answers[0] != code {
					return nil, fmt.Errorf("verification code rejected for %q", c.User())
				}
				return nil, nil
			},
		},
	}
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.addr
}

// Host returns the host part of the address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.addr)
	return host
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// PublicKey returns the server's host key.
func (s *Server) PublicKey() ssh.PublicKey {
	return s.signer.PublicKey()
}

// WorkDir returns the directory standing in for the remote home directory.
func (s *Server) WorkDir() string {
	return s.workDir
}

// ExecLog returns the exec requests received so far.
func (s *Server) ExecLog() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.execLog...)
}

// AuthLog returns the authentication methods attempted so far, in order.
func (s *Server) AuthLog() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.authLog...)
}

// Connections returns the number of completed SSH handshakes.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connections
}

// Close shuts down the mock SSH server. Calling it again is a no-op.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()
		s.wg.Wait()
	})
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Debug("accept error", slog.String("error", err.Error()))
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(netConn net.Conn) {
	defer s.wg.Done()
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		slog.Debug("SSH handshake failed", slog.String("error", err.Error()))
		return
	}
	defer sshConn.Close()

	s.mu.Lock()
	s.connections++
	s.mu.Unlock()

	go func() {
		<-s.done
		sshConn.Close()
	}()

	// Answer keepalives, discard everything else
	go func() {
		for req := range reqs {
			if req.WantReply {
				req.Reply(req.Type == "keepalive@openssh.com", nil)
			}
		}
	}()

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			slog.Debug("channel accept failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go s.handleChannel(channel, requests)
	}
}

func (s *Server) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer s.wg.Done()

	for req := range requests {
		switch req.Type {
		case "exec":
			command := parseString(req.Payload)
			if req.WantReply {
				req.Reply(true, nil)
			}
			s.wg.Add(1)
			go s.handleExec(channel, command)

		case "subsystem":
			if parseString(req.Payload) != "sftp" {
				req.Reply(false, nil)
				continue
			}
			if req.WantReply {
				req.Reply(true, nil)
			}
			s.wg.Add(1)
			go s.serveSFTP(channel)

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func (s *Server) handleExec(channel ssh.Channel, command string) {
	defer s.wg.Done()

	s.mu.Lock()
	s.execLog = append(s.execLog, command)
	canned, ok := s.commands[command]
	s.mu.Unlock()

	if ok {
		channel.Write([]byte(canned.Output))
		sendExitStatus(channel, canned.ExitCode)
		return
	}

	cmd := exec.Command(s.shell, "-c", command)
	cmd.Dir = s.workDir
	cmd.Env = append(os.Environ(), "HOME="+s.workDir)
	cmd.Stdout = channel
	cmd.Stderr = channel.Stderr()

	exitCode := 0
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 127
		}
	}

	sendExitStatus(channel, exitCode)
}

func (s *Server) serveSFTP(channel ssh.Channel) {
	defer s.wg.Done()
	defer channel.Close()

	server, err := sftp.NewServer(channel, sftp.WithServerWorkingDirectory(s.workDir))
	if err != nil {
		slog.Debug("sftp server failed", slog.String("error", err.Error()))
		return
	}
	if err := server.Serve(); err != nil {
		slog.Debug("sftp server stopped", slog.String("error", err.Error()))
	}
	server.Close()
}

func sendExitStatus(channel ssh.Channel, code int) {
	// Close writes first to signal EOF on our output
	channel.CloseWrite()

	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(code))
	channel.SendRequest("exit-status", false, payload)

	channel.Close()
}

// parseString decodes an SSH string, as carried by exec and subsystem
// request payloads.
func parseString(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	n := int(binary.BigEndian.Uint32(payload))
	if len(payload) < 4+n {
		return ""
	}
	return string(payload[4 : 4+n])
}
