package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloader_Fetch(t *testing.T) {
	var requests atomic.Int64
	var gotUA atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Write([]byte("segment payload"))
	}))
	defer server.Close()

	d := NewDownloader(DownloaderConfig{
		Timeout:   5 * time.Second,
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
	})

	data, err := d.Fetch(context.Background(), server.URL+"/seg_1.m4s")
	require.NoError(t, err)
	assert.Equal(t, []byte("segment payload"), data)
	assert.Equal(t, int64(1), requests.Load())
	assert.Contains(t, gotUA.Load().(string), "Firefox/133.0")
}

func TestDownloader_FetchHTTPError(t *testing.T) {
	var requests atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewDownloader(DownloaderConfig{Timeout: 5 * time.Second})

	_, err := d.Fetch(context.Background(), server.URL+"/seg_1.m4s")
	require.ErrorIs(t, err, ErrSegmentFetch)

	// A failed segment is skipped, not retried; the next tick moves on.
	assert.Equal(t, int64(1), requests.Load())
}

func TestDownloader_FetchTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	d := NewDownloader(DownloaderConfig{Timeout: 5 * time.Second, MaxSize: 512})

	_, err := d.Fetch(context.Background(), server.URL+"/seg_1.m4s")
	assert.ErrorIs(t, err, ErrSegmentFetch)
}

func TestDownloader_InitForCachesByURL(t *testing.T) {
	var requests atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("init:" + r.URL.Path))
	}))
	defer server.Close()

	d := NewDownloader(DownloaderConfig{Timeout: 5 * time.Second})
	ctx := context.Background()

	data, fetched, err := d.InitFor(ctx, "video", server.URL+"/init_v.mp4")
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, []byte("init:/init_v.mp4"), data)

	data, fetched, err = d.InitFor(ctx, "video", server.URL+"/init_v.mp4")
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Equal(t, []byte("init:/init_v.mp4"), data)

	assert.Equal(t, int64(1), requests.Load())
}

func TestDownloader_InitForRefetchesOnRotation(t *testing.T) {
	var requests atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("init:" + r.URL.Path))
	}))
	defer server.Close()

	d := NewDownloader(DownloaderConfig{Timeout: 5 * time.Second})
	ctx := context.Background()

	_, _, err := d.InitFor(ctx, "video", server.URL+"/init_v1.mp4")
	require.NoError(t, err)

	data, fetched, err := d.InitFor(ctx, "video", server.URL+"/init_v2.mp4")
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, []byte("init:/init_v2.mp4"), data)

	// The rotated URL replaced the cache entry.
	_, fetched, err = d.InitFor(ctx, "video", server.URL+"/init_v2.mp4")
	require.NoError(t, err)
	assert.False(t, fetched)

	assert.Equal(t, int64(2), requests.Load())
}

func TestDownloader_InitForTracksAreIndependent(t *testing.T) {
	var requests atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("init"))
	}))
	defer server.Close()

	d := NewDownloader(DownloaderConfig{Timeout: 5 * time.Second})
	ctx := context.Background()

	_, _, err := d.InitFor(ctx, "video", server.URL+"/init.mp4")
	require.NoError(t, err)
	_, fetched, err := d.InitFor(ctx, "audio", server.URL+"/init.mp4")
	require.NoError(t, err)

	// Same URL, different track: the audio entry is its own cache slot.
	assert.True(t, fetched)
	assert.Equal(t, int64(2), requests.Load())
}

func TestDownloader_InitForEmptyURL(t *testing.T) {
	d := NewDownloader(DownloaderConfig{Timeout: 5 * time.Second})

	data, fetched, err := d.InitFor(context.Background(), "video", "")
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Nil(t, data)
}

func TestDownloader_InitForFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := NewDownloader(DownloaderConfig{Timeout: 5 * time.Second})

	_, _, err := d.InitFor(context.Background(), "video", server.URL+"/init.mp4")
	assert.ErrorIs(t, err, ErrSegmentFetch)
}
