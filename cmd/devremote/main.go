// devremote opens projects on remote hosts over SSH, installing the
// devremote server on the host as part of the connection.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/acolita/devremote/internal/config"
	"github.com/acolita/devremote/internal/logging"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version information - set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	red   = color.New(color.FgRed).SprintfFunc()
	green = color.New(color.FgGreen).SprintfFunc()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, red("Error: %v", err))
		}
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "devremote",
		Short:         "Open remote projects over SSH",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", config.DefaultConfigPath(), "path to configuration file")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newConnectCommand(g),
		newPasswordCommand(g),
		newVersionCommand(),
	)
	return root
}

// loadConfig reads and validates the configuration file, applying flag
// overrides.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	g.override(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", g.configPath, err)
	}
	return cfg, nil
}

func (g *globalFlags) override(cfg *config.Config) {
	if g.debug {
		cfg.Logging.Level = "debug"
	}
}

// setupLogging installs the default logger. A log file that cannot be
// opened is reported once on stderr and logging continues there.
func setupLogging(cfg *config.Config, toStderr bool) io.Closer {
	closer, err := logging.Setup(cfg.Logging, toStderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, red("Warning: %v; logging to stderr", err))
	}
	slog.Debug("starting devremote",
		slog.String("version", Version),
		slog.String("commit", GitCommit),
	)
	return closer
}
