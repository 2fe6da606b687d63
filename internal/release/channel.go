// Package release describes remote server releases: distribution channels,
// target platforms, versions, and the client that fetches release artifacts.
package release

import (
	"fmt"
	"strings"
)

// Channel is a named distribution track for server binaries.
type Channel string

const (
	Stable  Channel = "stable"
	Preview Channel = "preview"
	Nightly Channel = "nightly"
	Dev     Channel = "dev"
)

// Channels lists every known channel in display order.
func Channels() []Channel {
	return []Channel{Stable, Preview, Nightly, Dev}
}

// ParseChannel parses a channel name. Matching is case-insensitive.
func ParseChannel(s string) (Channel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Channels() {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown release channel %q", s)
}

// DevName returns the identifier used in install paths and release URLs.
func (c Channel) DevName() string {
	if c == "" {
		return string(Stable)
	}
	return string(c)
}

// DisplayName returns a human-readable channel name.
func (c Channel) DisplayName() string {
	switch c {
	case Preview:
		return "Preview"
	case Nightly:
		return "Nightly"
	case Dev:
		return "Dev"
	default:
		return "Stable"
	}
}
