package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmylchreest/hlsgate/pkg/m3u"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaylistHandler_Export(t *testing.T) {
	handler := NewPlaylistHandler(newTestLineup(t))

	req := httptest.NewRequest(http.MethodGet, "http://gateway.local:8080/playlist.m3u", nil)
	rec := httptest.NewRecorder()
	handler.Export(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/x-mpegurl", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "hlsgate.m3u")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "#EXTM3U"), "playlist must start with #EXTM3U")
	assert.Contains(t, body, `tvg-id="ch1"`)
	assert.Contains(t, body, `tvg-name="News One"`)
	assert.Contains(t, body, `group-title="News"`)
	assert.Contains(t, body, "http://gateway.local:8080/init/ch1")
	assert.Contains(t, body, "http://gateway.local:8080/init/ch2")

	// The export must round-trip through our own parser.
	var entries []*m3u.Entry
	parser := &m3u.Parser{
		OnEntry: func(entry *m3u.Entry) error {
			entries = append(entries, entry)
			return nil
		},
	}
	require.NoError(t, parser.Parse(strings.NewReader(body)))
	require.Len(t, entries, 2)
	assert.Equal(t, "ch1", entries[0].TvgID)
	assert.Equal(t, "News One", entries[0].Title)
	assert.Equal(t, "http://gateway.local:8080/init/ch1", entries[0].URL)
}

func TestPlaylistHandler_ForwardedProto(t *testing.T) {
	handler := NewPlaylistHandler(newTestLineup(t))

	req := httptest.NewRequest(http.MethodGet, "http://gateway.local/playlist.m3u", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	handler.Export(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://gateway.local/init/ch1")
}

func TestPlaylistRoute_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/playlist.m3u", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := env.login(t)
	rec = env.do(t, http.MethodGet, "/playlist.m3u", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "#EXTM3U"))
}
