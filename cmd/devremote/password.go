package main

import (
	"errors"
	"fmt"

	"github.com/acolita/devremote/internal/adapters/realfs"
	"github.com/acolita/devremote/internal/security"
	"github.com/acolita/devremote/internal/ssh"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

func newPasswordCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage SSH passwords saved in the system keyring",
		Long: `Manage SSH passwords saved in the system keyring. A saved password
answers the first password prompt of a connection when security.use_keyring
is enabled.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set [user@]host",
			Short: "Save the password for a host",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPassword(cmd, g, args[0], true)
			},
		},
		&cobra.Command{
			Use:   "forget [user@]host",
			Short: "Delete the saved password for a host",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPassword(cmd, g, args[0], false)
			},
		},
	)
	return cmd
}

func runPassword(cmd *cobra.Command, g *globalFlags, target string, set bool) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	logCloser := setupLogging(cfg, false)
	defer logCloser.Close()

	opts, err := ssh.ParseConnectionString(target)
	if err != nil {
		return err
	}
	fsys := realfs.New()
	opts, err = cfg.ConnectionOptions(opts, fsys)
	if err != nil {
		return err
	}
	user := remoteUser(cfg, opts, fsys)
	if user == "" {
		return fmt.Errorf("no user for %s", opts.Host)
	}

	store := security.NewKeyringStore()
	if !store.IsEnabled() {
		return security.ErrKeyringUnavailable
	}

	out := cmd.OutOrStdout()
	if !set {
		if err := store.DeletePassword(opts.Host, user); err != nil {
			return err
		}
		fmt.Fprintf(out, "Forgot password for %s@%s\n", user, opts.Host)
		return nil
	}

	var password string
	err = huh.NewInput().
		Title(fmt.Sprintf("Password for %s@%s", user, opts.Host)).
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return nil
	}
	if err != nil {
		return err
	}

	secret := []byte(password)
	defer security.WipeBytes(secret)
	if err := store.StorePassword(opts.Host, user, secret); err != nil {
		return err
	}
	fmt.Fprintln(out, green("Saved password for %s@%s", user, opts.Host))
	return nil
}
