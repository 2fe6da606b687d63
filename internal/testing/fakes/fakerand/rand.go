// Package fakerand provides a deterministic ports.Random for tests that
// assert on generated identifiers.
package fakerand

import (
	"sync"

	"github.com/acolita/devremote/internal/ports"
)

// Random cycles through a fixed byte sequence.
type Random struct {
	mu       sync.Mutex
	sequence []byte
	offset   int
}

// New returns a Random that repeats sequence.
func New(sequence []byte) *Random {
	return &Random{sequence: sequence}
}

// NewSequential returns a Random yielding 0, 1, ..., 255, 0, 1, ...
func NewSequential() *Random {
	sequence := make([]byte, 256)
	for i := range sequence {
		sequence[i] = byte(i)
	}
	return New(sequence)
}

// Read fills b with the next bytes of the sequence.
func (r *Random) Read(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range b {
		b[i] = r.sequence[r.offset%len(r.sequence)]
		r.offset++
	}
	return len(b), nil
}

var _ ports.Random = (*Random)(nil)
