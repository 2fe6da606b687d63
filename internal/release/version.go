package release

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// Binary is a resolved server artifact: a local path to a possibly
// gzip-compressed executable and the version it reports.
type Binary struct {
	Path    string
	Version *version.Version
}

// ParseVersion parses a semantic version, accepting a leading "v".
func ParseVersion(s string) (*version.Version, error) {
	v, err := version.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("parse version %q: %w", s, err)
	}
	return v, nil
}

// SameVersion reports whether two versions are equal. Nil never matches.
func SameVersion(a, b *version.Version) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Equal(b)
}
