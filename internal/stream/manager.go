package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/hlsgate/internal/config"
	"github.com/jmylchreest/hlsgate/internal/ffmpeg"
	"github.com/jmylchreest/hlsgate/internal/httpclient"
	"github.com/jmylchreest/hlsgate/internal/models"
	"github.com/jmylchreest/hlsgate/internal/observability"
	"github.com/jmylchreest/hlsgate/internal/repository"
	"github.com/jmylchreest/hlsgate/internal/storage"
)

// ScratchDirPrefix marks per-stream scratch directories so a later boot
// can sweep orphans left by an unclean shutdown.
const ScratchDirPrefix = "hlsgate-scratch-"

func scratchDirName(id string) string { return ScratchDirPrefix + id }

// ManagerConfig configures the stream manager.
type ManagerConfig struct {
	// Streaming supplies pipeline timing and the idle eviction policy.
	Streaming config.StreamingConfig

	// FFmpegPath locates the ffmpeg binary handed to every pipeline.
	FFmpegPath string

	// Streams is the sandbox under which published HLS output lives,
	// one subdirectory per stream ID.
	Streams *storage.Sandbox

	// Scratch is the sandbox for transient fragment files.
	Scratch *storage.Sandbox

	// Events receives the lifecycle audit trail. Optional; nil disables
	// event recording.
	Events repository.StreamEventRepository

	// Breakers holds the per-channel upstream circuit breakers. Optional;
	// when set, eviction drops the evicted channel's breaker with it.
	Breakers *httpclient.CircuitBreakerManager

	// Logger receives manager diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// StreamDetails is a point-in-time snapshot of one managed stream.
type StreamDetails struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Active        bool                 `json:"active"`
	Encrypted     bool                 `json:"encrypted"`
	StartedAt     time.Time            `json:"started_at"`
	LastAccess    time.Time            `json:"last_access"`
	Sequence      uint64               `json:"sequence"`
	WriterRunning bool                 `json:"writer_running"`
	Writer        *ffmpeg.ProcessStats `json:"writer,omitempty"`
	Tracks        []InitTrack          `json:"tracks,omitempty"`
}

// Manager owns every running pipeline. Activation is idempotent per
// stream ID, and a background sweep evicts streams that have gone idle
// or whose pipeline has stopped on its own.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu         sync.RWMutex
	pipelines  map[string]*Pipeline
	lastAccess map[string]time.Time

	// newPipeline is swapped out in tests.
	newPipeline func(PipelineConfig) (*Pipeline, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager and starts its eviction sweep.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:         cfg,
		logger:      logger,
		pipelines:   make(map[string]*Pipeline),
		lastAccess:  make(map[string]time.Time),
		newPipeline: NewPipeline,
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.evictLoop()

	return m
}

// Activate ensures a pipeline is running for the channel. A second call
// for the same ID refreshes its access time and changes nothing else.
func (m *Manager) Activate(ch config.Channel) error {
	m.mu.RLock()
	_, ok := m.pipelines[ch.ID]
	m.mu.RUnlock()
	if ok {
		m.Touch(ch.ID)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pipelines[ch.ID]; ok {
		m.lastAccess[ch.ID] = time.Now().UTC()
		return nil
	}

	if err := m.cfg.Streams.MkdirAll(ch.ID); err != nil {
		return fmt.Errorf("creating stream directory: %w", err)
	}
	outputDir, err := m.cfg.Streams.ResolvePath(ch.ID)
	if err != nil {
		return err
	}

	scratch := scratchDirName(ch.ID)
	if err := m.cfg.Scratch.MkdirAll(scratch); err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	scratchDir, err := m.cfg.Scratch.ResolvePath(scratch)
	if err != nil {
		return err
	}

	p, err := m.newPipeline(PipelineConfig{
		Channel:    ch,
		OutputDir:  outputDir,
		ScratchDir: scratchDir,
		FFmpegPath: m.cfg.FFmpegPath,
		Streaming:  m.cfg.Streaming,
		Breakers:   m.cfg.Breakers,
		Logger:     observability.WithChannel(m.logger, ch.ID),
		OnEvent: func(typ models.EventType, message string) {
			m.recordEvent(ch.ID, typ, message)
		},
	})
	if err != nil {
		m.cfg.Streams.RemoveAll(ch.ID)
		m.cfg.Scratch.RemoveAll(scratch)
		return fmt.Errorf("constructing pipeline: %w", err)
	}
	p.Start()

	m.pipelines[ch.ID] = p
	m.lastAccess[ch.ID] = time.Now().UTC()

	m.logger.Info("stream activated",
		slog.String("stream_id", ch.ID),
		slog.String("name", ch.Name))
	m.recordEvent(ch.ID, models.EventActivated, "stream activated")
	return nil
}

// Touch refreshes a stream's access time. It reports false when the
// stream has no pipeline, so playback handlers can 404 without probing
// the filesystem.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pipelines[id]; !ok {
		return false
	}
	m.lastAccess[id] = time.Now().UTC()
	return true
}

// ActiveIDs returns the IDs of all managed streams, sorted.
func (m *Manager) ActiveIDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.pipelines))
	for id := range m.pipelines {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Details returns a snapshot of one stream, or ErrStreamNotFound.
func (m *Manager) Details(id string) (*StreamDetails, error) {
	m.mu.RLock()
	p, ok := m.pipelines[id]
	last := m.lastAccess[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrStreamNotFound
	}
	return m.snapshot(id, p, last), nil
}

// AllDetails returns snapshots of every managed stream, sorted by ID.
// The pipeline list is copied under the read lock and the snapshots are
// collected outside it, since collecting taps per-pipeline state.
func (m *Manager) AllDetails() []*StreamDetails {
	type entry struct {
		id   string
		p    *Pipeline
		last time.Time
	}

	m.mu.RLock()
	entries := make([]entry, 0, len(m.pipelines))
	for id, p := range m.pipelines {
		entries = append(entries, entry{id: id, p: p, last: m.lastAccess[id]})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	out := make([]*StreamDetails, 0, len(entries))
	for _, e := range entries {
		out = append(out, m.snapshot(e.id, e.p, e.last))
	}
	return out
}

func (m *Manager) snapshot(id string, p *Pipeline, last time.Time) *StreamDetails {
	ch := p.Channel()
	return &StreamDetails{
		ID:            id,
		Name:          ch.Name,
		Active:        p.Active(),
		Encrypted:     ch.Encrypted(),
		StartedAt:     p.StartedAt(),
		LastAccess:    last,
		Sequence:      p.Sequence(),
		WriterRunning: p.WriterRunning(),
		Writer:        p.WriterStats(),
		Tracks:        p.Tracks(),
	}
}

func (m *Manager) evictLoop() {
	defer m.wg.Done()

	interval := m.cfg.Streaming.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep collects eviction candidates under the read lock and tears them
// down outside it.
func (m *Manager) sweep() {
	idle := m.cfg.Streaming.IdleTimeout
	now := time.Now().UTC()

	type victim struct {
		id     string
		reason string
	}
	var victims []victim

	m.mu.RLock()
	for id, p := range m.pipelines {
		if !p.Active() {
			victims = append(victims, victim{id: id, reason: "pipeline stopped"})
			continue
		}
		if idle > 0 && now.Sub(m.lastAccess[id]) > idle {
			victims = append(victims, victim{id: id, reason: "idle timeout"})
		}
	}
	m.mu.RUnlock()

	for _, v := range victims {
		m.evict(v.id, v.reason)
	}
}

// evict stops one pipeline and removes its directories. The map entries
// stay in place until teardown finishes so a concurrent Activate for the
// same ID no-ops instead of racing its fresh directory against RemoveAll.
func (m *Manager) evict(id, reason string) {
	m.mu.RLock()
	p, ok := m.pipelines[id]
	last := m.lastAccess[id]
	m.mu.RUnlock()
	if !ok {
		return
	}

	// A touch may have landed between the sweep and now.
	idle := m.cfg.Streaming.IdleTimeout
	if p.Active() && (idle <= 0 || time.Now().UTC().Sub(last) <= idle) {
		return
	}

	m.logger.Info("evicting stream",
		slog.String("stream_id", id),
		slog.String("reason", reason))

	p.Stop()
	if err := p.WriterExitErr(); err != nil {
		m.logger.Warn("writer exited with error",
			slog.String("stream_id", id),
			slog.Any("error", err))
	}

	if err := m.cfg.Streams.RemoveAll(id); err != nil {
		m.logger.Warn("removing stream directory failed",
			slog.String("stream_id", id),
			slog.Any("error", err))
	}
	if err := m.cfg.Scratch.RemoveAll(scratchDirName(id)); err != nil {
		m.logger.Warn("removing scratch directory failed",
			slog.String("stream_id", id),
			slog.Any("error", err))
	}

	m.mu.Lock()
	delete(m.pipelines, id)
	delete(m.lastAccess, id)
	m.mu.Unlock()

	if m.cfg.Breakers != nil {
		m.cfg.Breakers.Remove(id)
	}

	m.recordEvent(id, models.EventEvicted, reason)
}

// Close stops the sweep and every pipeline, blocking until all have
// exited. Published output directories are left on disk; the startup
// sweep of the next boot clears them.
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	pipelines := make([]*Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		pipelines = append(pipelines, p)
	}
	m.pipelines = make(map[string]*Pipeline)
	m.lastAccess = make(map[string]time.Time)
	m.mu.Unlock()

	for _, p := range pipelines {
		p.Stop()
	}
	m.wg.Wait()

	m.logger.Info("stream manager closed", slog.Int("stopped", len(pipelines)))
}

// recordEvent persists one audit event. Recording is fire and forget:
// the write happens on its own goroutine with a bounded deadline and a
// failure only logs.
func (m *Manager) recordEvent(streamID string, typ models.EventType, message string) {
	if m.cfg.Events == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		event := &models.StreamEvent{
			StreamID: streamID,
			Type:     typ,
			Message:  message,
		}
		if err := m.cfg.Events.Create(ctx, event); err != nil {
			m.logger.Warn("recording stream event failed",
				slog.String("stream_id", streamID),
				slog.String("type", string(typ)),
				slog.Any("error", err))
		}
	}()
}
