package ports

import "context"

// CommandRunner abstracts running local toolchain commands for testing.
type CommandRunner interface {
	// Run executes name with args in dir and waits for it to exit.
	// It returns the command's standard error, which callers include in
	// diagnostics. A non-zero exit is reported as an error.
	Run(ctx context.Context, dir, name string, args ...string) (stderr []byte, err error)
}
