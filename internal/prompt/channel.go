// Package prompt carries interactive prompts from the SSH handshake to the
// operator and classifies them so the surface knows whether to mask input.
package prompt

import (
	"context"
	"errors"
	"sync"
)

// ErrAbandoned is returned by Waiter.Wait when the responder was dropped
// without an answer, e.g. because the operator dismissed the prompt surface.
var ErrAbandoned = errors.New("prompt abandoned before it was answered")

type slotState int

const (
	slotPending slotState = iota
	slotAnswered
	slotDropped
	slotAbandoned
)

// slot is the state both ends of one prompt agree on.
type slot struct {
	mu    sync.Mutex
	state slotState
	ch    chan string
}

// Responder is the answering end of a single outstanding prompt.
// It can be consumed exactly once, by Fulfill or Drop.
type Responder struct {
	message string
	slot    *slot
}

// Waiter is the waiting end of a single outstanding prompt.
type Waiter struct {
	slot *slot
}

// Issue creates one outstanding prompt with its waiting and answering ends.
func Issue(message string) (*Waiter, *Responder) {
	s := &slot{ch: make(chan string, 1)}
	return &Waiter{slot: s}, &Responder{message: message, slot: s}
}

// Message returns the prompt text.
func (r *Responder) Message() string {
	return r.message
}

// Fulfill delivers the operator's answer. It reports true only if the waiter
// receives text; false means the responder was already consumed or the
// waiter stopped waiting.
func (r *Responder) Fulfill(text string) bool {
	s := r.slot
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != slotPending {
		return false
	}
	s.state = slotAnswered
	s.ch <- text
	return true
}

// Drop consumes the responder without an answer. The waiter observes
// ErrAbandoned. Dropping an already consumed responder is a no-op.
func (r *Responder) Drop() {
	s := r.slot
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != slotPending {
		return
	}
	s.state = slotDropped
	close(s.ch)
}

// Wait blocks until the prompt is answered, the responder is dropped, or
// ctx is done. After ctx ends, a late Fulfill is refused. An answer that
// was accepted before ctx ended is still returned.
func (w *Waiter) Wait(ctx context.Context) (string, error) {
	s := w.slot
	select {
	case text, ok := <-s.ch:
		if !ok {
			return "", ErrAbandoned
		}
		return text, nil
	case <-ctx.Done():
		s.mu.Lock()
		defer s.mu.Unlock()
		switch s.state {
		case slotAnswered:
			return <-s.ch, nil
		case slotDropped:
			return "", ErrAbandoned
		}
		s.state = slotAbandoned
		return "", ctx.Err()
	}
}
