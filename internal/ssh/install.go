package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/acolita/devremote/internal/release"
	"github.com/klauspost/compress/gzip"
)

// installServer makes sure remotePath holds the server binary at the
// resolved version, uploading it when the installed one differs.
func (s *Session) installServer(ctx context.Context, d Delegate, binary release.Binary, remotePath string) error {
	d.SetStatus("checking remote server version")
	if installed := s.installedVersion(ctx, remotePath); installed != "" {
		if v, err := release.ParseVersion(installed); err == nil && release.SameVersion(v, binary.Version) {
			s.logger.Debug("remote server up to date", "path", remotePath, "version", installed)
			return nil
		}
		s.logger.Info("replacing remote server", "path", remotePath, "installed", installed)
	}

	d.SetStatus("uploading remote server binary")
	if err := s.upload(binary.Path, remotePath); err != nil {
		return fmt.Errorf("install remote server: %w", err)
	}
	return nil
}

// installedVersion returns the version string reported by the installed
// binary, or "" if it is missing or does not run.
func (s *Session) installedVersion(ctx context.Context, remotePath string) string {
	out, err := s.Run(ctx, shellQuote(remotePath)+" version")
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// upload copies the local artifact to remotePath, decompressing gzip
// artifacts on the way.
func (s *Session) upload(localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(localPath, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("decompress artifact: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	client, err := s.SFTPClient()
	if err != nil {
		return err
	}

	n, err := client.Upload(remotePath, r, 0o755)
	if err != nil {
		return err
	}
	s.logger.Info("uploaded remote server", "path", remotePath, "bytes", n)
	return nil
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '-' || r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
