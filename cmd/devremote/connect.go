package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/acolita/devremote/internal/adapters/realfs"
	"github.com/acolita/devremote/internal/bootstrap"
	"github.com/acolita/devremote/internal/config"
	"github.com/acolita/devremote/internal/ports"
	"github.com/acolita/devremote/internal/prompt"
	"github.com/acolita/devremote/internal/release"
	"github.com/acolita/devremote/internal/resolver"
	"github.com/acolita/devremote/internal/security"
	"github.com/acolita/devremote/internal/ssh"
	"github.com/acolita/devremote/internal/status"
	"github.com/acolita/devremote/internal/tui"
	"github.com/acolita/devremote/internal/window"
	"github.com/acolita/devremote/internal/workspace"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-version"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type connectFlags struct {
	channel     string
	passwordEnv string
	platform    string
	key         string
	plain       bool
}

func newConnectCommand(g *globalFlags) *cobra.Command {
	f := &connectFlags{}

	cmd := &cobra.Command{
		Use:   "connect [user@]host[:port] [paths...]",
		Short: "Connect to a host and open paths on it",
		Long: `Connect to a host over SSH, install the matching devremote server and
open each path as a worktree. Paths may carry a position, e.g. main.go:12:4.
Without paths the remote working directory is opened.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd.Context(), g, f, args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&f.channel, "channel", "", "release channel of the server (stable, preview, nightly, dev)")
	cmd.Flags().StringVar(&f.passwordEnv, "password-env", "", "environment variable holding the SSH password")
	cmd.Flags().StringVar(&f.platform, "platform", "", "remote platform as os/arch, skips detection")
	cmd.Flags().StringVar(&f.key, "key", "", "private key to authenticate with")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "line-oriented prompts instead of the full-screen surface")
	return cmd
}

// reportedError is an error the operator surface has already shown.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func runConnect(ctx context.Context, g *globalFlags, f *connectFlags, target string, paths []string) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	plain := f.plain || cfg.UI.Plain
	logCloser := setupLogging(cfg, plain)
	defer logCloser.Close()
	logger := slog.Default()

	base, err := flagOptions(target, f)
	if err != nil {
		return err
	}

	appVersion, err := release.ParseVersion(Version)
	if err != nil {
		return fmt.Errorf("application version: %w", err)
	}

	patterns, err := cfg.PromptPatterns()
	if err != nil {
		return err
	}
	classifier := prompt.NewClassifier(prompt.WithCustomPatterns(patterns))

	windows := window.NewManager(logger, window.WithWindowOptions(
		window.WithSinkOptions(status.WithClassifier(classifier), status.WithLogger(logger)),
	))
	defer windows.CloseAll()

	s := watchSettings(g.configPath, cfg, logger)
	defer s.Close()

	c := &connector{
		settings:   s,
		windows:    windows,
		fsys:       realfs.New(),
		classifier: classifier,
		appVersion: appVersion,
		logger:     logger,
	}
	if cfg.Security.UseKeyring {
		c.keyring = security.NewKeyringStore()
	}

	var result *bootstrap.Result
	if plain {
		result, err = c.runPlain(ctx, base, paths)
	} else {
		result, err = c.runInteractive(ctx, base, paths)
	}
	if err != nil || result == nil {
		return err
	}

	printSummary(os.Stdout, result)
	<-ctx.Done()

	logger.Info("disconnecting", "host", result.Session.Host())
	if err := result.Project.Close(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// settings hands out the configuration new attempts start from.
type settings struct {
	watcher *config.Watcher
	static  *config.Config
}

// watchSettings follows path for changes. If it cannot be watched the
// configuration loaded at startup is used for every attempt.
func watchSettings(path string, cfg *config.Config, logger *slog.Logger) *settings {
	w, err := config.NewWatcher(path, logger, func(*config.Config) {
		logger.Info("configuration reloaded", "path", path)
	})
	if err != nil {
		logger.Debug("config hot-reload disabled", "error", err)
		return &settings{static: cfg}
	}
	return &settings{watcher: w}
}

func (s *settings) Config() *config.Config {
	if s.watcher != nil {
		return s.watcher.Config()
	}
	return s.static
}

func (s *settings) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// connector runs connection attempts for one invocation.
type connector struct {
	settings   *settings
	windows    *window.Manager
	fsys       ports.FileSystem
	keyring    passwordStore
	classifier *prompt.Classifier
	appVersion *version.Version
	logger     *slog.Logger
}

// open starts one attempt with transport and resolver built from the
// current configuration.
func (c *connector) open(ctx context.Context, base ssh.ConnectionOptions, paths []string) (*bootstrap.Result, bool, error) {
	cfg := c.settings.Config()
	opts, err := completeOptions(cfg, base, c.fsys, c.keyring)
	if err != nil {
		return nil, false, err
	}

	controller := bootstrap.NewController(bootstrap.Options{
		Windows:    c.windows,
		Transport:  newTransport(cfg, c.logger),
		Resolver:   newResolver(cfg, c.appVersion, c.logger),
		Logger:     c.logger,
		Classifier: c.classifier,
	})
	res, err := controller.Open(ctx, opts, paths)
	return res, true, err
}

// runInteractive drives attempts behind the full-screen surface. After a
// failure the operator may retry; each retry reads the latest configuration.
func (c *connector) runInteractive(ctx context.Context, base ssh.ConnectionOptions, paths []string) (*bootstrap.Result, error) {
	retry := make(chan struct{}, 1)
	model := tui.New(tui.Options{OnRetry: func() {
		select {
		case retry <- struct{}{}:
		default:
		}
	}})
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(os.Stderr))
	c.windows.OnOpen(func(w *window.Window) {
		program.Send(tui.Attach(w))
	})

	var result *bootstrap.Result
	surfaceDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(surfaceDone)
		defer c.windows.CloseAll()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("run surface: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer program.Quit()
		for {
			res, shown, err := c.open(gctx, base, paths)
			switch {
			case err == nil:
				result = res
				return nil
			case !shown:
				return err
			case errors.Is(err, bootstrap.ErrDismissed), gctx.Err() != nil:
				return nil
			}

			c.logger.Info("connection failed", "host", base.Host, "error", err)
			select {
			case <-retry:
				c.logger.Info("retrying connection", "host", base.Host)
			case <-surfaceDone:
				return reportedError{err}
			case <-gctx.Done():
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// runPlain runs a single attempt behind the line-oriented surface.
func (c *connector) runPlain(ctx context.Context, base ssh.ConnectionOptions, paths []string) (*bootstrap.Result, error) {
	surface := tui.NewPlain(tui.WithPlainLogger(c.logger))

	g, gctx := errgroup.WithContext(ctx)
	c.windows.OnOpen(func(w *window.Window) {
		g.Go(func() error {
			return surface.Run(gctx, w)
		})
	})

	var result *bootstrap.Result
	g.Go(func() error {
		res, shown, err := c.open(gctx, base, paths)
		switch {
		case err == nil:
			result = res
			return nil
		case errors.Is(err, bootstrap.ErrDismissed):
			return nil
		case shown:
			return reportedError{err}
		default:
			return err
		}
	})

	err := g.Wait()
	if ctx.Err() != nil {
		// Interrupted by a signal.
		if result != nil {
			result.Project.Close()
		}
		return nil, nil
	}
	return result, err
}

func newTransport(cfg *config.Config, logger *slog.Logger) *ssh.Transport {
	return ssh.NewTransport(ssh.TransportOptions{
		KnownHostsPath:    cfg.SSH.KnownHosts,
		SSHConfigPath:     cfg.SSH.ConfigPath,
		UseSSHConfig:      cfg.SSH.UseSSHConfig,
		UseAgent:          cfg.SSH.UseAgent,
		ConnectTimeout:    cfg.SSH.ConnectTimeout,
		KeepaliveInterval: cfg.SSH.KeepaliveInterval,
		Logger:            logger,
	})
}

func newResolver(cfg *config.Config, appVersion *version.Version, logger *slog.Logger) *resolver.Resolver {
	return resolver.New(resolver.Options{
		DevelopmentBuild: cfg.DevelopmentBuild,
		AppVersion:       appVersion,
		Toolchain:        cfg.Toolchain,
		Releases: release.NewClient(release.ClientOptions{
			BaseURL:  cfg.Releases.BaseURL,
			CacheDir: cfg.Releases.CacheDir,
			Timeout:  cfg.Releases.Timeout,
			Logger:   logger,
		}),
		Logger: logger,
	})
}

func printSummary(out io.Writer, res *bootstrap.Result) {
	session := res.Session
	fmt.Fprintln(out, green("Connected to %s (%s)", session.Host(), session.Platform()))

	server := session.ServerPath()
	if v := session.ServerVersion(); v != nil {
		server += " " + v.String()
	}
	fmt.Fprintf(out, "  server: %s\n", server)

	for _, wt := range res.Project.Worktrees() {
		p := workspace.PathWithPosition{Path: wt.Path, Row: wt.Row, Column: wt.Column}
		fmt.Fprintf(out, "  open:   %s\n", p)
	}
	fmt.Fprintln(out, "Press Ctrl-C to disconnect.")
}
