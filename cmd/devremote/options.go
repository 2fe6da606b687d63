package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/acolita/devremote/internal/config"
	"github.com/acolita/devremote/internal/ports"
	"github.com/acolita/devremote/internal/release"
	"github.com/acolita/devremote/internal/security"
	"github.com/acolita/devremote/internal/ssh"
)

// passwordStore is the read side of the OS keyring.
type passwordStore interface {
	Password(host, user string) ([]byte, error)
}

// flagOptions builds the connection options given on the command line.
// Configuration is applied later, once per attempt.
func flagOptions(target string, f *connectFlags) (ssh.ConnectionOptions, error) {
	opts, err := ssh.ParseConnectionString(target)
	if err != nil {
		return opts, err
	}

	opts.KeyPath = f.key
	if f.channel != "" {
		ch, err := release.ParseChannel(f.channel)
		if err != nil {
			return opts, err
		}
		opts.Channel = ch
	}
	if f.platform != "" {
		p, err := release.ParsePlatform(f.platform)
		if err != nil {
			return opts, err
		}
		opts.Platform = &p
	}
	if f.passwordEnv != "" {
		opts.Password = os.Getenv(f.passwordEnv)
		if opts.Password == "" {
			return opts, fmt.Errorf("environment variable %s is empty", f.passwordEnv)
		}
	}
	return opts, nil
}

// completeOptions applies cfg to opts. With use_keyring set, a password
// saved for the host is supplied when none was given otherwise.
func completeOptions(cfg *config.Config, opts ssh.ConnectionOptions, fsys ports.FileSystem, store passwordStore) (ssh.ConnectionOptions, error) {
	opts, err := cfg.ConnectionOptions(opts, fsys)
	if err != nil {
		return opts, err
	}
	if opts.Password != "" || !cfg.Security.UseKeyring || store == nil {
		return opts, nil
	}

	user := remoteUser(cfg, opts, fsys)
	password, err := store.Password(opts.Host, user)
	if err != nil {
		slog.Debug("keyring lookup failed", "host", opts.Host, "error", err)
		return opts, nil
	}
	if password != nil {
		opts.Password = string(password)
		security.WipeBytes(password)
	}
	return opts, nil
}

// remoteUser returns the user the transport will log in as.
func remoteUser(cfg *config.Config, opts ssh.ConnectionOptions, fsys ports.FileSystem) string {
	if opts.User != "" {
		return opts.User
	}
	if cfg.SSH.UseSSHConfig {
		if hc := ssh.ResolveHostConfig(fsys, cfg.SSH.ConfigPath, opts.Host); hc.User != "" {
			return hc.User
		}
	}
	return fsys.Getenv("USER")
}
