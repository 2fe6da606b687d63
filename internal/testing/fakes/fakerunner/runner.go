// Package fakerunner provides a scripted CommandRunner for testing.
package fakerunner

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call records a call to Run.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String returns the command line of the call.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the scripted outcome of a command.
type Result struct {
	Stderr string
	Err    error
}

// Runner records commands and returns scripted results. Commands without a
// scripted result succeed.
type Runner struct {
	mu      sync.Mutex
	calls   []Call
	results map[string]Result
	hook    func(Call)
}

// New creates a new fake Runner.
func New() *Runner {
	return &Runner{results: make(map[string]Result)}
}

// Fail makes every call to the named command fail with stderr.
func (r *Runner) Fail(name, stderr string, exitCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[name] = Result{Stderr: stderr, Err: fmt.Errorf("exit status %d", exitCode)}
}

// OnRun registers fn to be called for every command before it returns.
func (r *Runner) OnRun(fn func(Call)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}

// Run records the call and returns the scripted result for name.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	result := r.results[name]
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return []byte(result.Stderr), result.Err
}

// Calls returns all recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Names returns the command names in call order.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.calls))
	for i, c := range r.calls {
		names[i] = c.Name
	}
	return names
}
