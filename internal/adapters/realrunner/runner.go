// Package realrunner provides a real implementation of the CommandRunner port.
package realrunner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
)

// Runner implements ports.CommandRunner using os/exec.
type Runner struct {
	// Env is appended to the current environment of every command.
	Env []string
}

// New creates a new Runner.
func New() *Runner {
	return &Runner{}
}

// Run executes name with args in dir.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.Env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.Bytes(), err
}
