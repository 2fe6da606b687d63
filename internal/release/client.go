package release

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
)

// DefaultBaseURL is the release service queried when none is configured.
const DefaultBaseURL = "https://releases.devremote.dev"

// AssetName is the release asset holding the remote server binary.
const AssetName = "devremote-server"

// Metadata describes the latest release of an asset on a channel.
type Metadata struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256,omitempty"`
}

// HTTPResponseError is returned when the release service answers with a
// non-2xx status.
type HTTPResponseError struct {
	URL    string
	Status string
}

func (e *HTTPResponseError) Error() string {
	return fmt.Sprintf("%s %s", e.URL, e.Status)
}

// Client fetches server release artifacts and keeps them in a local cache.
type Client struct {
	http     *resty.Client
	fs       afero.Fs
	cacheDir string
	logger   *slog.Logger
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL  string
	CacheDir string
	Timeout  time.Duration
	FS       afero.Fs
	Logger   *slog.Logger
}

// DefaultCacheDir returns $XDG_CACHE_HOME/devremote/servers or ~/.cache/devremote/servers.
func DefaultCacheDir() string {
	dir := os.Getenv("XDG_CACHE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "devremote", "servers")
		}
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, "devremote", "servers")
}

// NewClient creates a release client.
func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.CacheDir == "" {
		opts.CacheDir = DefaultCacheDir()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetHeader("User-Agent", "devremote")

	return &Client{
		http:     httpClient,
		fs:       opts.FS,
		cacheDir: opts.CacheDir,
		logger:   opts.Logger,
	}
}

// HTTPClient exposes the underlying resty client.
func (c *Client) HTTPClient() *resty.Client {
	return c.http
}

// LatestMetadata queries the release service for the newest server build
// on channel for platform.
func (c *Client) LatestMetadata(ctx context.Context, platform Platform, channel Channel) (*Metadata, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("channel", channel.DevName()).
		SetQueryParams(map[string]string{
			"asset": AssetName,
			"os":    platform.OS,
			"arch":  platform.Arch,
		}).
		Get("/api/releases/{channel}/latest")
	if err != nil {
		return nil, fmt.Errorf("query latest release: %w", err)
	}
	if res.IsError() {
		return nil, &HTTPResponseError{URL: res.Request.URL, Status: res.Status()}
	}

	var meta Metadata
	if err := json.Unmarshal(res.Body(), &meta); err != nil {
		return nil, fmt.Errorf("decode release metadata: %w", err)
	}
	if meta.URL == "" {
		return nil, fmt.Errorf("release metadata for %s on %s has no download url", platform, channel.DevName())
	}
	if _, err := ParseVersion(meta.Version); err != nil {
		return nil, err
	}
	return &meta, nil
}

// FetchLatest returns the newest gzip-compressed server binary for platform
// on channel, downloading it unless it is already cached. The binary carries
// the version the release service published for it.
func (c *Client) FetchLatest(ctx context.Context, platform Platform, channel Channel) (Binary, error) {
	meta, err := c.LatestMetadata(ctx, platform, channel)
	if err != nil {
		return Binary{}, err
	}
	// LatestMetadata already rejected unparsable versions.
	ver, _ := ParseVersion(meta.Version)

	path := c.cachePath(platform, channel, meta.Version)
	if ok, _ := afero.Exists(c.fs, path); ok {
		data, err := afero.ReadFile(c.fs, path)
		if err == nil && verifyArtifact(data, meta.SHA256) == nil {
			c.logger.Debug("using cached server binary",
				slog.String("path", path),
				slog.String("version", meta.Version),
			)
			return Binary{Path: path, Version: ver}, nil
		}
		c.logger.Warn("discarding invalid cached server binary", slog.String("path", path))
		_ = c.fs.Remove(path)
	}

	c.logger.Info("downloading server binary",
		slog.String("url", meta.URL),
		slog.String("version", meta.Version),
		slog.String("platform", platform.String()),
	)
	res, err := c.http.R().SetContext(ctx).Get(meta.URL)
	if err != nil {
		return Binary{}, fmt.Errorf("download server binary: %w", err)
	}
	if res.IsError() {
		return Binary{}, &HTTPResponseError{URL: res.Request.URL, Status: res.Status()}
	}

	data := res.Body()
	if err := verifyArtifact(data, meta.SHA256); err != nil {
		return Binary{}, fmt.Errorf("download server binary: %w", err)
	}

	if err := c.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Binary{}, fmt.Errorf("create cache directory: %w", err)
	}
	tmp := path + ".part"
	if err := afero.WriteFile(c.fs, tmp, data, 0o644); err != nil {
		return Binary{}, fmt.Errorf("write server binary: %w", err)
	}
	if err := c.fs.Rename(tmp, path); err != nil {
		_ = c.fs.Remove(tmp)
		return Binary{}, fmt.Errorf("move server binary into cache: %w", err)
	}
	return Binary{Path: path, Version: ver}, nil
}

func (c *Client) cachePath(platform Platform, channel Channel, ver string) string {
	name := fmt.Sprintf("%s-%s-%s-%s.gz", AssetName, strings.TrimPrefix(ver, "v"), platform.OS, platform.Arch)
	return filepath.Join(c.cacheDir, channel.DevName(), name)
}

// verifyArtifact checks the checksum (when published) and that data is a
// complete gzip stream.
func verifyArtifact(data []byte, sum string) error {
	if sum != "" {
		got := sha256.Sum256(data)
		if !strings.EqualFold(hex.EncodeToString(got[:]), sum) {
			return fmt.Errorf("checksum mismatch")
		}
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("not a gzip archive: %w", err)
	}
	defer zr.Close()
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return fmt.Errorf("corrupt gzip archive: %w", err)
	}
	return nil
}
