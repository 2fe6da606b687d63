// Package config handles configuration parsing for devremote.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/acolita/devremote/internal/ports"
	"github.com/acolita/devremote/internal/prompt"
	"github.com/acolita/devremote/internal/release"
	"github.com/acolita/devremote/internal/resolver"
	"github.com/acolita/devremote/internal/ssh"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/devremote/config.yaml or ~/.config/devremote/config.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "devremote", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	ReleaseChannel   string             `yaml:"release_channel"`
	DevelopmentBuild bool               `yaml:"development_build"` // build the dev-channel server from source
	Toolchain        resolver.Toolchain `yaml:"toolchain"`
	Releases         ReleasesConfig     `yaml:"releases"`
	SSH              SSHConfig          `yaml:"ssh"`
	Hosts            []HostConfig       `yaml:"hosts"`
	Security         SecurityConfig     `yaml:"security"`
	Logging          LoggingConfig      `yaml:"logging"`
	UI               UIConfig           `yaml:"ui"`
	Prompts          PromptConfig       `yaml:"prompts"`
}

// ReleasesConfig defines where server releases are fetched from.
type ReleasesConfig struct {
	BaseURL  string        `yaml:"base_url"`
	CacheDir string        `yaml:"cache_dir"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SSHConfig defines transport settings.
type SSHConfig struct {
	KnownHosts        string        `yaml:"known_hosts"`
	ConfigPath        string        `yaml:"config_path"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	UseAgent          bool          `yaml:"use_agent"`
	UseSSHConfig      bool          `yaml:"use_ssh_config"` // consult ~/.ssh/config
}

// HostConfig overrides connection settings for hosts matching a glob.
type HostConfig struct {
	Match       string `yaml:"match"` // doublestar pattern, e.g. "*.corp.example.com"
	User        string `yaml:"user"`
	Port        int    `yaml:"port"`
	KeyPath     string `yaml:"key_path"`
	PasswordEnv string `yaml:"password_env"` // env var containing the SSH password
	Platform    string `yaml:"platform"`     // "os/arch", skips the remote probe
	Channel     string `yaml:"channel"`
}

// SecurityConfig defines security settings.
type SecurityConfig struct {
	UseKeyring bool `yaml:"use_keyring"` // read stored passwords from the OS keyring
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // sanitize sensitive data from logs
	File     string `yaml:"file"`     // log file; empty means the default state dir
}

// UIConfig defines the operator surface.
type UIConfig struct {
	Plain bool `yaml:"plain"` // line-oriented prompts instead of the full-screen surface
}

// PromptConfig defines prompt classification settings.
type PromptConfig struct {
	CustomPatterns []PatternConfig `yaml:"custom_patterns"`
}

// PatternConfig defines a custom prompt pattern.
type PatternConfig struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
	Kind  string `yaml:"kind"` // "secret", "confirmation", "code"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ReleaseChannel: string(release.Stable),
		Toolchain:      resolver.DefaultToolchain(),
		Releases: ReleasesConfig{
			BaseURL: release.DefaultBaseURL,
			Timeout: 60 * time.Second,
		},
		SSH: SSHConfig{
			KnownHosts:        "~/.ssh/known_hosts",
			ConfigPath:        "~/.ssh/config",
			ConnectTimeout:    30 * time.Second,
			KeepaliveInterval: 30 * time.Second,
			UseAgent:          true,
			UseSSHConfig:      true,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
	}
}

// Load loads configuration from a YAML file.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	var data []byte
	var err error
	if len(fsys) > 0 && fsys[0] != nil {
		data, err = fsys[0].ReadFile(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Validate normalizes the configuration and reports every invalid setting.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.ReleaseChannel == "" {
		c.ReleaseChannel = string(release.Stable)
	}
	if ch, err := release.ParseChannel(c.ReleaseChannel); err != nil {
		result = multierror.Append(result, fmt.Errorf("release_channel: %w", err))
	} else {
		c.ReleaseChannel = string(ch)
	}

	if len(c.Toolchain.Build) == 0 {
		c.Toolchain = resolver.DefaultToolchain()
	}
	if c.Toolchain.Artifact == "" {
		result = multierror.Append(result, fmt.Errorf("toolchain.artifact: must be set"))
	}

	if c.Releases.Timeout <= 0 {
		c.Releases.Timeout = 60 * time.Second
	}
	if c.SSH.ConnectTimeout <= 0 {
		c.SSH.ConnectTimeout = 30 * time.Second
	}
	if c.SSH.KeepaliveInterval < 0 {
		c.SSH.KeepaliveInterval = 0
	}

	for i := range c.Hosts {
		if err := c.Hosts[i].validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("hosts[%d]: %w", i, err))
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "info":
		c.Logging.Level = "info"
	case "debug", "warn", "error":
		c.Logging.Level = strings.ToLower(c.Logging.Level)
	default:
		result = multierror.Append(result, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}

	if _, err := c.PromptPatterns(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func (h *HostConfig) validate() error {
	if h.Match == "" {
		return fmt.Errorf("match: must be set")
	}
	if !doublestar.ValidatePattern(h.Match) {
		return fmt.Errorf("match: invalid pattern %q", h.Match)
	}
	if h.Port < 0 || h.Port > 65535 {
		return fmt.Errorf("port: %d out of range", h.Port)
	}
	if h.Platform != "" {
		p, err := release.ParsePlatform(h.Platform)
		if err != nil {
			return fmt.Errorf("platform: %w", err)
		}
		h.Platform = p.String()
	}
	if h.Channel != "" {
		ch, err := release.ParseChannel(h.Channel)
		if err != nil {
			return fmt.Errorf("channel: %w", err)
		}
		h.Channel = string(ch)
	}
	return nil
}

// Channel returns the configured default release channel.
func (c *Config) Channel() release.Channel {
	ch, err := release.ParseChannel(c.ReleaseChannel)
	if err != nil {
		return release.Stable
	}
	return ch
}

// HostFor returns the overrides that apply to host. Entries are matched in
// order and the first entry to set a field wins.
func (c *Config) HostFor(host string) HostConfig {
	var merged HostConfig
	for _, h := range c.Hosts {
		ok, err := doublestar.Match(h.Match, host)
		if err != nil || !ok {
			continue
		}
		if merged.Match == "" {
			merged.Match = h.Match
		}
		if merged.User == "" {
			merged.User = h.User
		}
		if merged.Port == 0 {
			merged.Port = h.Port
		}
		if merged.KeyPath == "" {
			merged.KeyPath = h.KeyPath
		}
		if merged.PasswordEnv == "" {
			merged.PasswordEnv = h.PasswordEnv
		}
		if merged.Platform == "" {
			merged.Platform = h.Platform
		}
		if merged.Channel == "" {
			merged.Channel = h.Channel
		}
	}
	return merged
}

// ConnectionOptions completes opts with the overrides for opts.Host.
// Values already set in opts win. The password is read from the entry's
// password_env, if any.
func (c *Config) ConnectionOptions(opts ssh.ConnectionOptions, fsys ports.FileSystem) (ssh.ConnectionOptions, error) {
	h := c.HostFor(opts.Host)

	if opts.User == "" {
		opts.User = h.User
	}
	if opts.Port == 0 {
		opts.Port = h.Port
	}
	if opts.KeyPath == "" {
		opts.KeyPath = h.KeyPath
	}
	if opts.Password == "" && h.PasswordEnv != "" {
		opts.Password = fsys.Getenv(h.PasswordEnv)
	}
	if opts.Platform == nil && h.Platform != "" {
		p, err := release.ParsePlatform(h.Platform)
		if err != nil {
			return opts, fmt.Errorf("host %s: %w", opts.Host, err)
		}
		opts.Platform = &p
	}
	if opts.Channel == "" {
		opts.Channel = c.Channel()
		if h.Channel != "" {
			ch, err := release.ParseChannel(h.Channel)
			if err != nil {
				return opts, fmt.Errorf("host %s: %w", opts.Host, err)
			}
			opts.Channel = ch
		}
	}
	return opts, nil
}

// PromptPatterns compiles the custom prompt patterns.
func (c *Config) PromptPatterns() ([]prompt.Pattern, error) {
	var patterns []prompt.Pattern
	for i, pc := range c.Prompts.CustomPatterns {
		re, err := regexp.Compile(pc.Regex)
		if err != nil {
			return nil, fmt.Errorf("prompts.custom_patterns[%d]: %w", i, err)
		}
		kind := prompt.Kind(strings.ToLower(pc.Kind))
		switch kind {
		case prompt.KindSecret, prompt.KindConfirmation, prompt.KindCode:
		case "":
			kind = prompt.KindSecret
		default:
			return nil, fmt.Errorf("prompts.custom_patterns[%d]: unknown kind %q", i, pc.Kind)
		}
		patterns = append(patterns, prompt.Pattern{Name: pc.Name, Regex: re, Kind: kind})
	}
	return patterns, nil
}

// Save writes the configuration to a YAML file.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Save(cfg *Config, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if len(fsys) > 0 && fsys[0] != nil {
		if err := fsys[0].MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		return fsys[0].WriteFile(path, data, 0644)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
