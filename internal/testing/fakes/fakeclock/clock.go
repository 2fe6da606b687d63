// Package fakeclock provides a Clock whose time only moves when the test
// says so.
package fakeclock

import (
	"sync"
	"time"

	"github.com/acolita/devremote/internal/ports"
)

// Clock is a manually advanced ports.Clock.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*Ticker
}

// New creates a clock set to initial.
func New(initial time.Time) *Clock {
	return &Clock{current: initial}
}

// Now returns the fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker returns a ticker that fires when Advance passes its next
// deadline.
func (c *Clock) NewTicker(d time.Duration) ports.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &Ticker{
		interval: d,
		next:     c.current.Add(d),
		ch:       make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Tickers returns the number of tickers created so far, stopped or not.
func (c *Clock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// Advance moves the clock forward by d. Every running ticker whose deadline
// passed fires once; like time.Ticker, a tick nobody read is dropped.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	tickers := append([]*Ticker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
}

// Ticker is a fake ports.Ticker.
type Ticker struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	stopped  bool
	ch       chan time.Time
}

// C returns the tick channel.
func (t *Ticker) C() <-chan time.Time {
	return t.ch
}

// Stop turns off the ticker.
func (t *Ticker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *Ticker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.interval)
	}
	select {
	case t.ch <- now:
	default:
	}
}
