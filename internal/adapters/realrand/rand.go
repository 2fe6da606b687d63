// Package realrand reads identifiers from crypto/rand.
package realrand

import (
	"crypto/rand"

	"github.com/acolita/devremote/internal/ports"
)

// Random implements ports.Random.
type Random struct{}

// New returns a Random backed by crypto/rand.
func New() *Random {
	return &Random{}
}

// Read fills b from crypto/rand.
func (r *Random) Read(b []byte) (int, error) {
	return rand.Read(b)
}

var _ ports.Random = (*Random)(nil)
