package sftp

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acolita/devremote/internal/testing/mockssh"
	"golang.org/x/crypto/ssh"
)

func connect(t *testing.T) (*mockssh.Server, *ssh.Client) {
	t.Helper()

	server, err := mockssh.New(mockssh.WithWorkDir(t.TempDir()))
	if err != nil {
		t.Fatalf("mockssh.New() error = %v", err)
	}
	t.Cleanup(func() { server.Close() })

	conn, err := ssh.Dial("tcp", server.Addr(), &ssh.ClientConfig{
		User:            "test",
		Auth:            []ssh.AuthMethod{ssh.Password("test")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	if err != nil {
		t.Fatalf("ssh.Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return server, conn
}

func TestUploadCreatesDirectoriesAndMode(t *testing.T) {
	server, conn := connect(t)
	c := NewClient(conn)
	defer c.Close()

	n, err := c.Upload(".local/bin/devremote-server", strings.NewReader("#!/bin/sh\n"), 0o755)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if n != 10 {
		t.Errorf("Upload() wrote %d bytes, want 10", n)
	}

	local := filepath.Join(server.WorkDir(), ".local", "bin", "devremote-server")
	info, err := os.Stat(local)
	if err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
	if _, err := os.Stat(local + ".part"); !os.IsNotExist(err) {
		t.Error("temporary upload file left behind")
	}
}

func TestUploadReplacesExistingFile(t *testing.T) {
	server, conn := connect(t)
	c := NewClient(conn)
	defer c.Close()

	for _, content := range []string{"old", "new"} {
		if _, err := c.Upload("server", strings.NewReader(content), 0o755); err != nil {
			t.Fatalf("Upload(%q) error = %v", content, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(server.WorkDir(), "server"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("content = %q, want %q", data, "new")
	}
}

func TestStatAndPaths(t *testing.T) {
	server, conn := connect(t)
	c := NewClient(conn)
	defer c.Close()

	if err := os.Mkdir(filepath.Join(server.WorkDir(), "project"), 0o755); err != nil {
		t.Fatal(err)
	}

	info, err := c.Stat("project")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir() {
		t.Error("Stat(project) should be a directory")
	}
	if _, err := c.Stat("missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Stat(missing) error = %v, want ErrNotExist", err)
	}

	wd, err := c.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if wd == "" {
		t.Error("Getwd() is empty")
	}
	if _, err := c.RealPath("project"); err != nil {
		t.Errorf("RealPath() error = %v", err)
	}
}

func TestClosedClient(t *testing.T) {
	_, conn := connect(t)
	c := NewClient(conn)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := c.Stat("."); !errors.Is(err, ErrClosed) {
		t.Errorf("Stat() after Close error = %v, want ErrClosed", err)
	}
}

func TestNilConnection(t *testing.T) {
	c := NewClient(nil)
	if _, err := c.Getwd(); err == nil {
		t.Error("Getwd() without a connection should fail")
	}
}
