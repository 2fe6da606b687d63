// Package sftp provides the SFTP operations the bootstrap needs on an
// established SSH connection: installing the server binary and resolving
// remote worktree paths.
package sftp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("sftp client is closed")

// Client wraps an SFTP client for file transfer operations.
// It uses an existing SSH connection and can be initialized lazily.
type Client struct {
	sshConn    *ssh.Client
	sftpClient *sftp.Client
	mu         sync.Mutex
	closed     bool
}

// NewClient creates a new SFTP client wrapper using an existing SSH connection.
// The SFTP subsystem is initialized lazily on first use.
func NewClient(sshConn *ssh.Client) *Client {
	return &Client{
		sshConn: sshConn,
	}
}

// client initializes the SFTP subsystem if needed and returns it.
func (c *Client) client() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if c.sftpClient != nil {
		return c.sftpClient, nil
	}

	if c.sshConn == nil {
		return nil, fmt.Errorf("ssh connection is nil")
	}

	client, err := sftp.NewClient(c.sshConn)
	if err != nil {
		return nil, fmt.Errorf("create sftp client: %w", err)
	}

	c.sftpClient = client
	return client, nil
}

// Close closes the SFTP client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.sftpClient != nil {
		err := c.sftpClient.Close()
		c.sftpClient = nil
		return err
	}
	return nil
}

// Stat returns file information for the given path.
func (c *Client) Stat(p string) (os.FileInfo, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	return client.Stat(p)
}

// Getwd returns the current working directory on the remote server,
// which is the remote user's home directory for a fresh connection.
func (c *Client) Getwd() (string, error) {
	client, err := c.client()
	if err != nil {
		return "", err
	}
	return client.Getwd()
}

// RealPath returns the real path of a file (resolves symlinks and relative paths).
func (c *Client) RealPath(p string) (string, error) {
	client, err := c.client()
	if err != nil {
		return "", err
	}
	return client.RealPath(p)
}

// Upload streams r to remotePath with the given permissions. The data is
// written next to the target and renamed into place, so a reader never sees
// a partially written file.
func (c *Client) Upload(remotePath string, r io.Reader, perm os.FileMode) (int64, error) {
	client, err := c.client()
	if err != nil {
		return 0, err
	}

	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return 0, fmt.Errorf("create remote directory: %w", err)
	}

	tmp := remotePath + ".part"
	file, err := client.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create remote file: %w", err)
	}

	n, err := io.Copy(file, r)
	if err != nil {
		file.Close()
		client.Remove(tmp)
		return n, fmt.Errorf("write remote file: %w", err)
	}
	if err := file.Close(); err != nil {
		client.Remove(tmp)
		return n, fmt.Errorf("close remote file: %w", err)
	}

	if perm != 0 {
		if err := client.Chmod(tmp, perm); err != nil {
			client.Remove(tmp)
			return n, fmt.Errorf("chmod remote file: %w", err)
		}
	}

	if err := client.PosixRename(tmp, remotePath); err != nil {
		// Servers without the posix-rename extension refuse to overwrite.
		client.Remove(remotePath)
		if err := client.Rename(tmp, remotePath); err != nil {
			client.Remove(tmp)
			return n, fmt.Errorf("rename remote file: %w", err)
		}
	}

	return n, nil
}
