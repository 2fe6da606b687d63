package ssh

import (
	"bytes"
	"strconv"

	"github.com/acolita/devremote/internal/ports"
	"github.com/kevinburke/ssh_config"
)

// HostConfig is what ~/.ssh/config says about a host alias.
type HostConfig struct {
	HostName      string
	User          string
	Port          int
	IdentityFiles []string
}

// ResolveHostConfig reads the ssh_config file at path (default
// ~/.ssh/config) and returns the settings for alias. A missing or
// unparsable file yields an empty HostConfig.
func ResolveHostConfig(fsys ports.FileSystem, path, alias string) HostConfig {
	var hc HostConfig

	if path == "" {
		path = "~/.ssh/config"
	}
	data, err := fsys.ReadFile(expandPath(path, fsys))
	if err != nil {
		return hc
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(data))
	if err != nil {
		return hc
	}

	if v, err := cfg.Get(alias, "HostName"); err == nil {
		hc.HostName = v
	}
	if v, err := cfg.Get(alias, "User"); err == nil {
		hc.User = v
	}
	if v, err := cfg.Get(alias, "Port"); err == nil && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			hc.Port = port
		}
	}
	if files, err := cfg.GetAll(alias, "IdentityFile"); err == nil {
		for _, f := range files {
			// Skip the legacy protocol 1 default identity.
			if f != "" && f != ssh_config.Default("IdentityFile") {
				hc.IdentityFiles = append(hc.IdentityFiles, f)
			}
		}
	}

	return hc
}

// apply fills the unset fields of opts from the host config.
func (hc HostConfig) apply(opts ConnectionOptions) (ConnectionOptions, string) {
	dialHost := opts.Host
	if hc.HostName != "" {
		dialHost = hc.HostName
	}
	if opts.User == "" {
		opts.User = hc.User
	}
	if opts.Port == 0 {
		opts.Port = hc.Port
	}
	return opts, dialHost
}
