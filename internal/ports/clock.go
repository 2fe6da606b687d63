// Package ports defines the interfaces the domain packages use to reach the
// operating system, so tests can substitute fakes.
package ports

import "time"

// Clock is the time source of handshakes and session keepalives.
type Clock interface {
	Now() time.Time

	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the session needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}
