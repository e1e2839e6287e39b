package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/hlsgate/internal/httpclient"
)

// DownloaderConfig configures segment downloads for a single pipeline.
type DownloaderConfig struct {
	// Timeout bounds each individual segment request.
	Timeout time.Duration

	// UserAgent is sent on every request.
	UserAgent string

	// MaxSize caps the size of a single segment in bytes. Zero means no cap.
	MaxSize int64

	// Breaker optionally shares a circuit breaker with other clients
	// talking to the same origin. If nil, the client gets its own.
	Breaker *httpclient.CircuitBreaker

	// Logger receives download diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// cachedInit holds the last init segment fetched for a track, keyed by its
// URL so a template rotation on the origin invalidates it naturally.
type cachedInit struct {
	url  string
	data []byte
}

// Downloader fetches DASH segments over HTTP and caches init segments
// per track. It is owned by exactly one pipeline but safe for concurrent
// use.
type Downloader struct {
	client *httpclient.Client
	logger *slog.Logger

	mu    sync.Mutex
	inits map[string]cachedInit
}

// NewDownloader creates a downloader. Segment requests are never retried:
// on a live stream a failed segment is cheaper to skip than to replay late.
func NewDownloader(cfg DownloaderConfig) *Downloader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.Timeout
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.MaxResponseSize = cfg.MaxSize
	clientCfg.RetryAttempts = 0
	clientCfg.Logger = logger

	return &Downloader{
		client: httpclient.NewWithBreaker(clientCfg, cfg.Breaker),
		logger: logger,
		inits:  make(map[string]cachedInit),
	}
}

// Fetch downloads a single media segment.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, err := d.client.GetBytes(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSegmentFetch, err)
	}
	return data, nil
}

// InitFor returns the init segment for a track, fetching it only when the
// URL differs from the cached one. The track name keys the cache so video
// and audio inits never collide. It reports whether a fetch happened, so
// callers can re-probe track metadata only when the init actually changed.
// An empty URL means the representation carries no separate init segment.
func (d *Downloader) InitFor(ctx context.Context, track, url string) ([]byte, bool, error) {
	if url == "" {
		return nil, false, nil
	}

	d.mu.Lock()
	cached, ok := d.inits[track]
	d.mu.Unlock()
	if ok && cached.url == url {
		return cached.data, false, nil
	}

	data, err := d.client.GetBytes(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSegmentFetch, err)
	}

	if ok {
		d.logger.Info("init segment rotated",
			slog.String("track", track),
			slog.Int("bytes", len(data)))
	}

	d.mu.Lock()
	d.inits[track] = cachedInit{url: url, data: data}
	d.mu.Unlock()

	return data, true, nil
}
