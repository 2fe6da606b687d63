// Package resolver decides which remote server binary to run for a
// platform and release channel, building it from source in development
// builds or fetching a release otherwise.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/acolita/devremote/internal/adapters/realrunner"
	"github.com/acolita/devremote/internal/ports"
	"github.com/acolita/devremote/internal/release"
	"github.com/hashicorp/go-version"
)

// Status lines reported while resolving.
const (
	StatusBuilding    = "building remote server binary from source"
	StatusStripping   = "stripping remote server binary"
	StatusCompressing = "compressing remote server binary"
	StatusChecking    = "checking for latest version of remote server"
)

// StatusFunc receives progress updates.
type StatusFunc func(text string)

// Releases fetches release artifacts.
type Releases interface {
	// FetchLatest returns the local path and published version of the
	// latest artifact for platform on channel.
	FetchLatest(ctx context.Context, platform release.Platform, channel release.Channel) (release.Binary, error)
}

// Toolchain describes how the server is built from source. Commands run in
// WorkDir; Artifact is relative to it.
type Toolchain struct {
	WorkDir  string   `yaml:"work_dir"`
	Build    []string `yaml:"build"`
	Strip    []string `yaml:"strip"`
	Compress []string `yaml:"compress"`
	Artifact string   `yaml:"artifact"`
}

// DefaultToolchain returns the toolchain that builds cmd/devremote-server.
func DefaultToolchain() Toolchain {
	return Toolchain{
		WorkDir:  ".",
		Build:    []string{"go", "build", "-trimpath", "-o", "bin/devremote-server", "./cmd/devremote-server"},
		Strip:    []string{"strip", "bin/devremote-server"},
		Compress: []string{"gzip", "-9", "-f", "bin/devremote-server"},
		Artifact: "bin/devremote-server.gz",
	}
}

// Options configures a Resolver.
type Options struct {
	// DevelopmentBuild enables building the server from source.
	DevelopmentBuild bool
	// LocalPlatform is the platform of this machine. Defaults to
	// release.LocalPlatform().
	LocalPlatform release.Platform
	// AppVersion is the version of the running application.
	AppVersion *version.Version

	Toolchain Toolchain
	Runner    ports.CommandRunner
	Releases  Releases
	Logger    *slog.Logger
}

// Resolver produces the server binary for a connection attempt.
type Resolver struct {
	opts Options
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	if opts.LocalPlatform.IsZero() {
		opts.LocalPlatform = release.LocalPlatform()
	}
	if opts.Runner == nil {
		opts.Runner = realrunner.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Toolchain.Build) == 0 {
		opts.Toolchain = DefaultToolchain()
	}
	return &Resolver{opts: opts}
}

// BuildsFromSource reports whether Resolve would build the server locally
// for platform and channel.
func (r *Resolver) BuildsFromSource(platform release.Platform, channel release.Channel) bool {
	return r.opts.DevelopmentBuild && channel == release.Dev && platform == r.opts.LocalPlatform
}

// Resolve returns the server binary for platform and channel, reporting
// progress before every long-running step.
func (r *Resolver) Resolve(ctx context.Context, platform release.Platform, channel release.Channel, report StatusFunc) (release.Binary, error) {
	if report == nil {
		report = func(string) {}
	}
	logger := r.opts.Logger.With("platform", platform.String(), "channel", string(channel))

	if r.BuildsFromSource(platform, channel) {
		logger.Info("building remote server from source")
		return r.build(ctx, report)
	}

	report(StatusChecking)
	if r.opts.Releases == nil {
		return release.Binary{}, &ResolutionError{Platform: platform, Channel: channel, Err: errNoReleases}
	}

	bin, err := r.opts.Releases.FetchLatest(ctx, platform, channel)
	if err != nil {
		logger.Warn("release lookup failed", "error", err)
		return release.Binary{}, &ResolutionError{Platform: platform, Channel: channel, Err: err}
	}
	// The installer compares this against the installed server, so it
	// must be the version of the downloaded artifact.
	if bin.Version == nil {
		bin.Version = r.opts.AppVersion
	}

	logger.Info("resolved release artifact", "path", bin.Path, "version", fmt.Sprint(bin.Version))
	return bin, nil
}

// build runs build, strip, and compress in order. The first failure stops
// the sequence.
func (r *Resolver) build(ctx context.Context, report StatusFunc) (release.Binary, error) {
	tc := r.opts.Toolchain
	steps := []struct {
		status string
		argv   []string
	}{
		{StatusBuilding, tc.Build},
		{StatusStripping, tc.Strip},
		{StatusCompressing, tc.Compress},
	}

	for _, step := range steps {
		report(step.status)
		if len(step.argv) == 0 {
			continue
		}
		if err := r.run(ctx, tc.WorkDir, step.argv); err != nil {
			return release.Binary{}, err
		}
	}

	path, err := filepath.Abs(filepath.Join(tc.WorkDir, tc.Artifact))
	if err != nil {
		return release.Binary{}, err
	}
	return release.Binary{Path: path, Version: r.opts.AppVersion}, nil
}

func (r *Resolver) run(ctx context.Context, dir string, argv []string) error {
	command := strings.Join(argv, " ")
	r.opts.Logger.Debug("running toolchain command", "command", command, "dir", dir)

	stderr, err := r.opts.Runner.Run(ctx, dir, argv[0], argv[1:]...)
	if err != nil {
		return &BuildError{Command: command, Stderr: string(stderr), Err: err}
	}
	return nil
}
