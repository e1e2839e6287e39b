package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/hlsgate/internal/auth"
	"github.com/jmylchreest/hlsgate/internal/config"
	internalhttp "github.com/jmylchreest/hlsgate/internal/http"
	"github.com/jmylchreest/hlsgate/internal/models"
	"github.com/jmylchreest/hlsgate/internal/storage"
	"github.com/jmylchreest/hlsgate/internal/stream"
	"github.com/stretchr/testify/require"
)

const testChannelsTOML = `
[[channels]]
id = "ch1"
name = "News One"
url = "https://origin.example/news/manifest.mpd"
kid = "00112233445566778899aabbccddeeff"
key = "ffeeddccbbaa99887766554433221100"
group = "News"
logo = "https://logos.example/ch1.png"

[[channels]]
id = "ch2"
name = "Sports Two"
url = "https://origin.example/sports/manifest.mpd"
`

const testUsersTOML = `
[[users]]
username = "alice"
password = "wonderland"
`

// newTestLineup loads a two-channel, one-user lineup from temp files.
func newTestLineup(t *testing.T) *config.LineupStore {
	t.Helper()

	dir := t.TempDir()
	channelsFile := filepath.Join(dir, "channels.toml")
	usersFile := filepath.Join(dir, "users.toml")
	require.NoError(t, os.WriteFile(channelsFile, []byte(testChannelsTOML), 0o600))
	require.NoError(t, os.WriteFile(usersFile, []byte(testUsersTOML), 0o600))

	lineup, err := config.LoadLineup(config.LineupConfig{
		ChannelsFile: channelsFile,
		UsersFile:    usersFile,
	})
	require.NoError(t, err)

	return config.NewLineupStore(lineup)
}

// fakeController implements StreamController in memory.
type fakeController struct {
	mu          sync.Mutex
	activateErr error
	activations []config.Channel
	active      map[string]bool
	details     map[string]*stream.StreamDetails
	touched     []string
}

func newFakeController() *fakeController {
	return &fakeController{
		active:  make(map[string]bool),
		details: make(map[string]*stream.StreamDetails),
	}
}

func (f *fakeController) Activate(ch config.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activateErr != nil {
		return f.activateErr
	}
	f.activations = append(f.activations, ch)
	f.active[ch.ID] = true
	return nil
}

func (f *fakeController) Touch(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return f.active[id]
}

func (f *fakeController) ActiveIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.active))
	for id, on := range f.active {
		if on {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeController) Details(id string) (*stream.StreamDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok {
		return nil, stream.ErrStreamNotFound
	}
	return d, nil
}

func (f *fakeController) AllDetails() []*stream.StreamDetails {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.details))
	for id := range f.details {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*stream.StreamDetails, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.details[id])
	}
	return out
}

// setActive marks a stream as running, with an optional snapshot.
func (f *fakeController) setActive(id string, d *stream.StreamDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[id] = true
	if d != nil {
		f.details[id] = d
	}
}

func (f *fakeController) touchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, got := range f.touched {
		if got == id {
			n++
		}
	}
	return n
}

// fakeEventRepo implements repository.StreamEventRepository in memory.
type fakeEventRepo struct {
	mu     sync.Mutex
	err    error
	events []*models.StreamEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{}
}

func (r *fakeEventRepo) Create(ctx context.Context, event *models.StreamEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if event.ID.IsZero() {
		event.ID = models.NewULID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.events = append(r.events, event)
	return nil
}

func (r *fakeEventRepo) List(ctx context.Context, streamID string, limit int) ([]*models.StreamEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]*models.StreamEvent, 0, len(r.events))
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if streamID != "" && e.StreamID != streamID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeEventRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var removed int64
	for _, e := range r.events {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return removed, nil
}

func (r *fakeEventRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.events)), nil
}

func (r *fakeEventRepo) has(typ models.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

// testEnv runs the full HTTP surface: real server, middleware chain,
// auth guard and every handler, backed by fakes.
type testEnv struct {
	router     http.Handler
	api        huma.API
	svc        *auth.Service
	controller *fakeController
	events     *fakeEventRepo
	lineup     *config.LineupStore
	streams    *storage.Sandbox
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	streams, err := storage.NewSandbox(filepath.Join(t.TempDir(), "streams"))
	require.NoError(t, err)

	lineup := newTestLineup(t)
	svc := auth.NewService(config.AuthConfig{
		Secret:   "handler-test-secret",
		TokenTTL: time.Hour,
	}, func(username string) (config.User, bool) {
		return lineup.Current().User(username)
	})

	controller := newFakeController()
	events := newFakeEventRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := internalhttp.NewServer(internalhttp.DefaultServerConfig(), logger, "test")
	api := server.API()
	api.UseMiddleware(NewAuthGuard(api, svc))

	NewStreamsHandler(controller, lineup).
		WithLogger(logger).
		WithStreamsDir(streams).
		Register(api)
	NewEventsHandler(events).WithLogger(logger).Register(api)
	NewHealthHandler("test").WithStreamController(controller).Register(api)
	NewVersionHandler().Register(api)

	router := server.Router()
	NewAuthHandler(svc).
		WithLogger(logger).
		WithEvents(events).
		WithRateLimit(1000, time.Minute).
		RegisterChiRoutes(router)
	NewFilesHandler(controller, streams).
		WithLogger(logger).
		RegisterChiRoutes(router, auth.Middleware(svc))
	NewPlaylistHandler(lineup).
		WithLogger(logger).
		RegisterChiRoutes(router, auth.Middleware(svc))
	router.Get("/docs", NewDocsHandler("hlsgate API", "/openapi.json").ServeHTTP)
	router.NotFound(NewStaticHandler().ServeHTTP)

	return &testEnv{
		router:     router,
		api:        api,
		svc:        svc,
		controller: controller,
		events:     events,
		lineup:     lineup,
		streams:    streams,
	}
}

// do runs one request through the full router.
func (e *testEnv) do(t *testing.T, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// login authenticates the test user and returns the session cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/login", `{"username":"alice","password":"wonderland"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, "login failed: %s", rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == e.svc.CookieName() {
			return c
		}
	}
	t.Fatal("login response did not set the session cookie")
	return nil
}
