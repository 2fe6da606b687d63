// Package realclock implements ports.Clock with the time package.
package realclock

import (
	"time"

	"github.com/acolita/devremote/internal/ports"
)

// Clock implements ports.Clock.
type Clock struct{}

// New returns a real Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now()
}

// NewTicker wraps time.NewTicker.
func (c *Clock) NewTicker(d time.Duration) ports.Ticker {
	return &ticker{t: time.NewTicker(d)}
}

type ticker struct {
	t *time.Ticker
}

func (t *ticker) C() <-chan time.Time {
	return t.t.C
}

func (t *ticker) Stop() {
	t.t.Stop()
}
