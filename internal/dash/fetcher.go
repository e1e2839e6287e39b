package dash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmylchreest/hlsgate/internal/httpclient"
)

// Fetch failure classification. ErrManifestFetch covers transport and HTTP
// status failures; ErrManifestParse covers XML decoding failures. Both are
// transient from the pipeline's point of view: the next tick retries.
var (
	ErrManifestFetch = errors.New("manifest fetch failed")
	ErrManifestParse = errors.New("manifest parse failed")
)

// FetcherConfig controls manifest fetching behaviour.
type FetcherConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration

	// UserAgent is sent with every manifest request.
	UserAgent string

	// MaxSize caps the decoded manifest size in bytes. 0 disables the cap.
	MaxSize int64

	// Breaker optionally shares a circuit breaker with other clients
	// talking to the same origin. If nil, the client gets its own.
	Breaker *httpclient.CircuitBreaker

	// Logger receives fetch diagnostics.
	Logger *slog.Logger
}

// Fetcher retrieves and parses DASH manifests. Each call performs exactly one
// GET: the pipeline loop is the retry mechanism, so the underlying client is
// configured with zero retry attempts.
type Fetcher struct {
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher creates a manifest fetcher backed by the shared resilient
// HTTP client, with retries disabled.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.Timeout
	clientCfg.RetryAttempts = 0
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.MaxResponseSize = cfg.MaxSize
	clientCfg.Logger = cfg.Logger

	return &Fetcher{
		client: httpclient.NewWithBreaker(clientCfg, cfg.Breaker),
		logger: cfg.Logger,
	}
}

// Fetch downloads and parses the manifest at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*MPD, error) {
	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrManifestFetch, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrManifestFetch, err)
	}

	mpd, err := Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}

	f.logger.Debug("fetched manifest",
		slog.String("url", url),
		slog.String("type", mpd.Type),
		slog.Int("periods", len(mpd.Periods)),
		slog.Int("bytes", len(body)),
	)

	return mpd, nil
}
