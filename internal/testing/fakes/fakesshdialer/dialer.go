// Package fakesshdialer provides a fake SSH dialer for testing.
package fakesshdialer

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Dialer is a fake SSH dialer that can be configured to return errors,
// specific clients, or to redirect every dial to a test server.
type Dialer struct {
	mu       sync.Mutex
	DialFunc func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
	calls    []DialCall
}

// DialCall records a call to Dial.
type DialCall struct {
	Network string
	Addr    string
	Config  *ssh.ClientConfig
}

// New creates a new fake Dialer that returns an error by default.
func New() *Dialer {
	return &Dialer{
		DialFunc: func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
			return nil, fmt.Errorf("fakesshdialer: not configured")
		},
	}
}

// Redirect returns a Dialer that records the requested address but
// connects to target, typically a mockssh server.
func Redirect(target string) *Dialer {
	d := New()
	d.DialFunc = func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		return ssh.Dial(network, target, config)
	}
	return d
}

// Dial records the call and delegates to DialFunc.
func (d *Dialer) Dial(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d.mu.Lock()
	d.calls = append(d.calls, DialCall{Network: network, Addr: addr, Config: config})
	fn := d.DialFunc
	d.mu.Unlock()
	return fn(network, addr, config)
}

// Calls returns all recorded Dial calls.
func (d *Dialer) Calls() []DialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DialCall(nil), d.calls...)
}

// SetDialFunc sets the function called by Dial.
func (d *Dialer) SetDialFunc(fn func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialFunc = fn
}

// SetError configures the dialer to always return the given error.
func (d *Dialer) SetError(err error) {
	d.SetDialFunc(func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		return nil, err
	})
}
