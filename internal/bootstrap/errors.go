package bootstrap

import (
	"errors"
	"fmt"
)

// ErrDismissed is returned when the operator dismissed the prompt surface
// before the attempt finished.
var ErrDismissed = errors.New("connection dismissed")

// ErrAttemptInProgress is returned by Open while another attempt of the
// same controller has not finished.
var ErrAttemptInProgress = errors.New("connection attempt already in progress")

// HandshakeError is a failed handshake. Err is the transport's error, which
// may wrap prompt.ErrAbandoned or a resolver error.
type HandshakeError struct {
	Host string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Host, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// WorktreeError is a failure to set up a requested path after the session
// was established.
type WorktreeError struct {
	Path string
	Err  error
}

func (e *WorktreeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("open remote project: %v", e.Err)
	}
	return fmt.Sprintf("open %s: %v", e.Path, e.Err)
}

func (e *WorktreeError) Unwrap() error {
	return e.Err
}
