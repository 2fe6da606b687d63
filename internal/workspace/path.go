package workspace

import (
	"fmt"
	"strconv"
	"strings"
)

// PathWithPosition is a requested path with an optional 1-based row and
// column, written path[:row[:column]].
type PathWithPosition struct {
	Path   string
	Row    int
	Column int
}

// ParsePathWithPosition splits a trailing :row or :row:column suffix off
// s. A suffix that is not numeric is part of the path.
func ParsePathWithPosition(s string) PathWithPosition {
	p := PathWithPosition{Path: s}

	rest, last, ok := cutLastNumber(s)
	if !ok {
		return p
	}
	if rest2, prev, ok := cutLastNumber(rest); ok {
		p.Path, p.Row, p.Column = rest2, prev, last
		return p
	}
	p.Path, p.Row = rest, last
	return p
}

func cutLastNumber(s string) (string, int, bool) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n <= 0 {
		return s, 0, false
	}
	return s[:i], n, true
}

// String formats the path back into path[:row[:column]] form.
func (p PathWithPosition) String() string {
	switch {
	case p.Row > 0 && p.Column > 0:
		return fmt.Sprintf("%s:%d:%d", p.Path, p.Row, p.Column)
	case p.Row > 0:
		return fmt.Sprintf("%s:%d", p.Path, p.Row)
	default:
		return p.Path
	}
}
