// Package urlutil validates and fetches lineup sources, which may be local
// paths, file:// URLs, or remote playlists.
package urlutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/jmylchreest/hlsgate/internal/httpclient"
)

// IsSupportedURL reports whether a lineup source string is a URL this
// package can fetch. Plain filesystem paths return false; the lineup
// loader opens those directly.
func IsSupportedURL(source string) bool {
	switch scheme(source) {
	case "http", "https", "file":
		return true
	}
	// Protocol-relative sources inherit http.
	return strings.HasPrefix(source, "//")
}

// ValidateURL rejects sources the fetcher would fail on later: missing or
// unsupported schemes, and file:// URLs whose target does not exist. Used
// at lineup load time so a bad source is a startup error, not a silent
// empty lineup.
func ValidateURL(source string) error {
	if source == "" {
		return fmt.Errorf("URL is required")
	}

	switch scheme(source) {
	case "http", "https":
		return nil
	case "file":
		path, err := filePath(source)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", path)
			}
			return fmt.Errorf("cannot access file: %w", err)
		}
		return nil
	case "":
		return fmt.Errorf("URL must include a scheme (http://, https://, or file://)")
	default:
		return fmt.Errorf("unsupported URL scheme: %s (supported: http, https, file)", scheme(source))
	}
}

// ResourceFetcher reads a lineup source through one interface regardless
// of whether it lives on an HTTP origin or the local filesystem.
type ResourceFetcher struct {
	client *httpclient.Client
}

// NewDefaultResourceFetcher builds a fetcher on the default HTTP client
// settings. Remote sources share one circuit breaker, so a dead playlist
// host backs off across repeated lineup reloads.
func NewDefaultResourceFetcher() *ResourceFetcher {
	breaker := httpclient.DefaultManager.GetOrCreate("playlist-source")
	return &ResourceFetcher{
		client: httpclient.NewWithBreaker(httpclient.DefaultConfig(), breaker),
	}
}

// Fetch opens the source for reading. The caller owns the returned
// ReadCloser.
func (f *ResourceFetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	switch scheme(source) {
	case "http", "https":
		resp, err := f.client.Get(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch URL: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return resp.Body, nil

	case "file":
		path, err := filePath(source)
		if err != nil {
			return nil, err
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		return file, nil

	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (URL: %s)", scheme(source), source)
	}
}

func scheme(source string) string {
	parsed, err := url.Parse(source)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Scheme)
}

// filePath extracts the path from a file:// URL, covering both
// file:///path and file://localhost/path forms.
func filePath(source string) (string, error) {
	parsed, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Path == "" {
		return "", fmt.Errorf("empty path in file URL: %s", source)
	}
	return parsed.Path, nil
}
