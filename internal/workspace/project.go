// Package workspace is the project layer that takes ownership of an
// established remote session and tracks the worktrees opened on it.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/acolita/devremote/internal/ssh"
)

// Project is a workspace backed by a remote session.
type Project interface {
	// Host returns the remote host.
	Host() string
	// Session returns the session the project owns.
	Session() *ssh.Session
	// FindOrCreateWorktree returns the worktree containing the requested
	// path, creating it if the project does not have one yet.
	FindOrCreateWorktree(ctx context.Context, requested string) (*Worktree, error)
	// Worktrees returns the project's worktrees in creation order.
	Worktrees() []*Worktree
	// Close releases the project and closes its session.
	Close() error
}

// Opener creates projects on top of established sessions.
type Opener interface {
	OpenRemote(ctx context.Context, session *ssh.Session) (Project, error)
}

// Worktree is one directory tree of a remote project.
type Worktree struct {
	ID   int
	Root string

	// Path is the absolute path that was requested, which is Root itself or
	// a file inside it.
	Path   string
	IsFile bool
	Row    int
	Column int
}

// RemoteFS is the subset of remote file operations a project needs.
type RemoteFS interface {
	Getwd() (string, error)
	Stat(p string) (os.FileInfo, error)
	RealPath(p string) (string, error)
}

// RemoteOpener opens projects whose files are reached over SFTP.
type RemoteOpener struct {
	Logger *slog.Logger
}

// OpenRemote takes ownership of session and returns a project on it.
func (o *RemoteOpener) OpenRemote(ctx context.Context, session *ssh.Session) (Project, error) {
	client, err := session.SFTPClient()
	if err != nil {
		return nil, fmt.Errorf("open remote project: %w", err)
	}
	return NewRemoteProject(session, client, o.Logger), nil
}

// RemoteProject implements Project over a RemoteFS.
type RemoteProject struct {
	session *ssh.Session
	fs      RemoteFS
	logger  *slog.Logger

	mu        sync.Mutex
	home      string
	worktrees []*Worktree
	nextID    int
	closed    bool
}

// NewRemoteProject creates a project owning session.
func NewRemoteProject(session *ssh.Session, fsys RemoteFS, logger *slog.Logger) *RemoteProject {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteProject{
		session: session,
		fs:      fsys,
		logger:  logger.With("host", session.Host()),
		nextID:  1,
	}
}

// Host returns the remote host.
func (p *RemoteProject) Host() string {
	return p.session.Host()
}

// Session returns the session the project owns.
func (p *RemoteProject) Session() *ssh.Session {
	return p.session
}

// FindOrCreateWorktree resolves requested (path[:row[:column]], relative
// paths and ~ resolve against the remote home directory) and returns the
// worktree for it. A missing path is an error.
func (p *RemoteProject) FindOrCreateWorktree(ctx context.Context, requested string) (*Worktree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.New("project is closed")
	}

	pos := ParsePathWithPosition(requested)
	abs, err := p.resolve(pos.Path)
	if err != nil {
		return nil, err
	}

	info, err := p.fs.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s does not exist on %s", abs, p.session.Host())
		}
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}

	root := abs
	if !info.IsDir() {
		root = path.Dir(abs)
	}

	for _, wt := range p.worktrees {
		if wt.Root == root || strings.HasPrefix(root, strings.TrimSuffix(wt.Root, "/")+"/") {
			found := *wt
			found.Path, found.IsFile, found.Row, found.Column = abs, !info.IsDir(), pos.Row, pos.Column
			return &found, nil
		}
	}

	wt := &Worktree{
		ID:     p.nextID,
		Root:   root,
		Path:   abs,
		IsFile: !info.IsDir(),
		Row:    pos.Row,
		Column: pos.Column,
	}
	p.nextID++
	p.worktrees = append(p.worktrees, wt)
	p.logger.Info("worktree added", "root", root, "worktree", wt.ID)
	return wt, nil
}

func (p *RemoteProject) resolve(requested string) (string, error) {
	if p.home == "" {
		home, err := p.fs.Getwd()
		if err != nil {
			return "", fmt.Errorf("remote home directory: %w", err)
		}
		p.home = home
	}

	switch {
	case requested == "" || requested == "~":
		requested = p.home
	case strings.HasPrefix(requested, "~/"):
		requested = path.Join(p.home, requested[2:])
	case !path.IsAbs(requested):
		requested = path.Join(p.home, requested)
	}

	resolved, err := p.fs.RealPath(requested)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", requested, err)
	}
	return resolved, nil
}

// Worktrees returns the project's worktrees in creation order.
func (p *RemoteProject) Worktrees() []*Worktree {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Worktree(nil), p.worktrees...)
}

// Close closes the project's session.
func (p *RemoteProject) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.session.Close()
}
