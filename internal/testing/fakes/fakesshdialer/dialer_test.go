package fakesshdialer

import (
	"errors"
	"net"
	"testing"

	"golang.org/x/crypto/ssh"
)

func TestDial_DefaultError(t *testing.T) {
	d := New()
	if _, err := d.Dial("tcp", "localhost:22", &ssh.ClientConfig{}); err == nil {
		t.Error("expected error from unconfigured dialer")
	}
}

func TestDial_RecordsCalls(t *testing.T) {
	d := New()

	cfg := &ssh.ClientConfig{User: "test"}
	d.Dial("tcp", "host1:22", cfg)
	d.Dial("tcp", "host2:2222", cfg)

	calls := d.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[1].Addr != "host2:2222" {
		t.Errorf("expected second call addr=host2:2222, got %s", calls[1].Addr)
	}
	if calls[0].Config != cfg {
		t.Error("config pointer mismatch")
	}
}

func TestSetError(t *testing.T) {
	d := New()
	expected := errors.New("connection refused")
	d.SetError(expected)

	if _, err := d.Dial("tcp", "host:22", &ssh.ClientConfig{}); err != expected {
		t.Errorf("expected %v, got %v", expected, err)
	}
}

func TestRedirect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			close(accepted)
			conn.Close()
		}
	}()

	d := Redirect(ln.Addr().String())
	// The listener is not an SSH server, so the handshake fails after the
	// connection lands on the redirect target.
	if _, err := d.Dial("tcp", "example.com:22", &ssh.ClientConfig{HostKeyCallback: ssh.InsecureIgnoreHostKey()}); err == nil {
		t.Fatal("expected handshake error")
	}
	<-accepted

	if calls := d.Calls(); len(calls) != 1 || calls[0].Addr != "example.com:22" {
		t.Errorf("Calls() = %+v, want the requested address recorded", calls)
	}
}
