package release

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform identifies an operating system and CPU architecture using the
// names reported by uname on the remote host ("linux"/"macos", "x86_64"/"aarch64").
type Platform struct {
	OS   string `yaml:"os"`
	Arch string `yaml:"arch"`
}

func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// IsZero reports whether neither field is set.
func (p Platform) IsZero() bool {
	return p.OS == "" && p.Arch == ""
}

// LocalPlatform returns the platform this process runs on.
func LocalPlatform() Platform {
	return Platform{OS: normalizeOS(runtime.GOOS), Arch: normalizeArch(runtime.GOARCH)}
}

// ParsePlatform parses "os/arch", normalizing Go and uname spellings.
func ParsePlatform(s string) (Platform, error) {
	osName, arch, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || osName == "" || arch == "" {
		return Platform{}, fmt.Errorf("invalid platform %q (expected os/arch)", s)
	}
	p := Platform{OS: normalizeOS(osName), Arch: normalizeArch(arch)}
	if err := p.Validate(); err != nil {
		return Platform{}, err
	}
	return p, nil
}

// ParseUname parses the output of `uname -sm`.
func ParseUname(out string) (Platform, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return Platform{}, fmt.Errorf("unexpected uname output %q", strings.TrimSpace(out))
	}
	p := Platform{OS: normalizeOS(fields[0]), Arch: normalizeArch(fields[1])}
	if err := p.Validate(); err != nil {
		return Platform{}, err
	}
	return p, nil
}

// Validate reports whether the platform is one the server is built for.
func (p Platform) Validate() error {
	switch p.OS {
	case "linux", "macos":
	default:
		return fmt.Errorf("unsupported remote os %q", p.OS)
	}
	switch p.Arch {
	case "x86_64", "aarch64":
	default:
		return fmt.Errorf("unsupported remote arch %q", p.Arch)
	}
	return nil
}

// GOOS returns the Go toolchain name for the platform's OS.
func (p Platform) GOOS() string {
	if p.OS == "macos" {
		return "darwin"
	}
	return p.OS
}

// GOARCH returns the Go toolchain name for the platform's architecture.
func (p Platform) GOARCH() string {
	switch p.Arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return p.Arch
	}
}

func normalizeOS(s string) string {
	switch strings.ToLower(s) {
	case "darwin", "macos":
		return "macos"
	default:
		return strings.ToLower(s)
	}
}

func normalizeArch(s string) string {
	switch strings.ToLower(s) {
	case "amd64", "x86_64":
		return "x86_64"
	case "arm64", "aarch64":
		return "aarch64"
	default:
		return strings.ToLower(s)
	}
}
