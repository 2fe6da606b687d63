// Package fakereleases provides a fake release-fetch client for testing.
package fakereleases

import (
	"context"
	"fmt"
	"sync"

	"github.com/acolita/devremote/internal/release"
	"github.com/hashicorp/go-version"
)

// FetchCall records a call to FetchLatest.
type FetchCall struct {
	Platform release.Platform
	Channel  release.Channel
}

// Client is a fake release client returning a fixed artifact.
type Client struct {
	mu      sync.Mutex
	path    string
	version *version.Version
	err     error
	calls   []FetchCall
}

// New creates a fake client that returns path for every request. The
// artifact carries no version until SetVersion is called.
func New(path string) *Client {
	return &Client{path: path}
}

// SetVersion sets the published version of the artifact.
func (c *Client) SetVersion(v *version.Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = v
}

// SetError makes every request fail with err.
func (c *Client) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// FetchLatest records the request and returns the configured result.
func (c *Client) FetchLatest(ctx context.Context, platform release.Platform, channel release.Channel) (release.Binary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, FetchCall{Platform: platform, Channel: channel})
	if c.err != nil {
		return release.Binary{}, c.err
	}
	if c.path == "" {
		return release.Binary{}, fmt.Errorf("fakereleases: no artifact for %s", platform)
	}
	return release.Binary{Path: c.path, Version: c.version}, nil
}

// Calls returns all recorded requests.
func (c *Client) Calls() []FetchCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FetchCall(nil), c.calls...)
}
