package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/acolita/devremote/internal/release"
)

// BuildError reports a toolchain step that exited unsuccessfully.
type BuildError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("failed to run command %q: %v", e.Command, e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// ResolutionError reports a failed release lookup. The release client's
// error is preserved for errors.Is and errors.As.
type ResolutionError struct {
	Platform release.Platform
	Channel  release.Channel
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s server for %s: %v", e.Channel.DisplayName(), e.Platform, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

var errNoReleases = errors.New("no release client configured")
