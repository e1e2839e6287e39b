package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/hlsgate/internal/config"
	"github.com/jmylchreest/hlsgate/internal/dash"
	"github.com/jmylchreest/hlsgate/internal/ffmpeg"
	"github.com/jmylchreest/hlsgate/internal/httpclient"
	"github.com/jmylchreest/hlsgate/internal/models"
	"github.com/jmylchreest/hlsgate/internal/observability"
)

// segmentMuxer produces one transport stream blob from a fragment pair.
type segmentMuxer interface {
	Mux(ctx context.Context, videoPath, audioPath string) ([]byte, error)
}

// tsWriter is the long-lived process a pipeline feeds muxed segments to.
type tsWriter interface {
	Write(p []byte) (int, error)
	Stop()
	Running() bool
	Stats() *ffmpeg.ProcessStats
	ExitErr() error
}

// PipelineConfig configures one channel pipeline.
type PipelineConfig struct {
	// Channel is the lineup entry being republished.
	Channel config.Channel

	// OutputDir is the existing directory the HLS writer publishes into.
	OutputDir string

	// ScratchDir is the existing directory for transient fragment files.
	ScratchDir string

	// FFmpegPath locates the ffmpeg binary.
	FFmpegPath string

	// Streaming supplies timing, sizing and selection defaults.
	Streaming config.StreamingConfig

	// Breakers optionally provides the shared per-channel circuit
	// breakers. The manifest fetcher and segment downloader of one
	// channel talk to the same origin, so they share one breaker.
	Breakers *httpclient.CircuitBreakerManager

	// Logger receives pipeline diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger

	// OnEvent receives lifecycle events for the audit trail. It must not
	// block; the manager records events asynchronously. Optional.
	OnEvent func(typ models.EventType, message string)
}

// Pipeline republishes one DASH channel as HLS. Each loop iteration fetches
// the manifest, resolves the live edge for the selected video and audio
// representations, and feeds every new segment pair through download,
// decrypt and mux into the writer. Segment pairs already emitted are
// skipped, so a failed iteration resumes exactly where it stopped.
type Pipeline struct {
	channel    config.Channel
	outputDir  string
	scratchDir string

	fetcher    *dash.Fetcher
	downloader *Downloader
	decryptor  *Decryptor
	muxer      segmentMuxer
	writer     tsWriter

	videoIndex int
	audioIndex int
	liveEdge   int
	interval   time.Duration

	logger  *slog.Logger
	onEvent func(typ models.EventType, message string)

	active    atomic.Bool
	started   atomic.Bool
	seq       atomic.Uint64
	startedAt time.Time

	// Iteration state, owned by the run goroutine.
	lastVideo []string
	lastAudio []string
	seenVideo map[string]struct{}
	seenAudio map[string]struct{}
	probedTS  bool

	trackMu sync.RWMutex
	tracks  []InitTrack

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPipeline constructs the pipeline and spawns its HLS writer. The loop
// does not run until Start is called, so a writer spawn failure leaves
// nothing to tear down.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := cfg.Streaming
	videoIndex := s.PreferredVideoIndex
	if cfg.Channel.PreferredVideoIndex != nil {
		videoIndex = *cfg.Channel.PreferredVideoIndex
	}
	audioIndex := s.PreferredAudioIndex
	if cfg.Channel.PreferredAudioIndex != nil {
		audioIndex = *cfg.Channel.PreferredAudioIndex
	}

	interval := s.LoopInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	p := &Pipeline{
		channel:    cfg.Channel,
		outputDir:  cfg.OutputDir,
		scratchDir: cfg.ScratchDir,
		videoIndex: videoIndex,
		audioIndex: audioIndex,
		liveEdge:   s.LiveEdgeSegments,
		interval:   interval,
		logger:     logger,
		onEvent:    cfg.OnEvent,
		seenVideo:  make(map[string]struct{}),
		seenAudio:  make(map[string]struct{}),
		done:       make(chan struct{}),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	var breaker *httpclient.CircuitBreaker
	if cfg.Breakers != nil {
		breaker = cfg.Breakers.GetOrCreate(cfg.Channel.ID)
	}

	p.fetcher = dash.NewFetcher(dash.FetcherConfig{
		Timeout:   s.ManifestTimeout,
		UserAgent: s.UserAgent,
		MaxSize:   s.MaxManifestSize.Bytes(),
		Breaker:   breaker,
		Logger:    logger,
	})
	p.downloader = NewDownloader(DownloaderConfig{
		Timeout:   s.SegmentTimeout,
		UserAgent: s.UserAgent,
		MaxSize:   s.MaxSegmentSize.Bytes(),
		Breaker:   breaker,
		Logger:    logger,
	})
	p.decryptor = NewDecryptor(DecryptorConfig{
		FFmpegPath: cfg.FFmpegPath,
		Logger:     logger,
		OnFallback: func(reason string) {
			p.emitEvent(models.EventDecryptFallback, reason)
		},
	})
	p.muxer = NewMuxer(cfg.FFmpegPath, logger)

	writer, err := StartWriter(WriterConfig{
		FFmpegPath:      cfg.FFmpegPath,
		OutputDir:       cfg.OutputDir,
		SegmentDuration: s.SegmentDuration,
		MaxSegments:     s.MaxSegments,
		Logger:          logger,
		OnExit:          p.handleWriterExit,
	})
	if err != nil {
		p.cancel()
		return nil, err
	}
	p.writer = writer
	p.startedAt = time.Now().UTC()

	return p, nil
}

// Start launches the pipeline loop.
func (p *Pipeline) Start() {
	p.started.Store(true)
	p.active.Store(true)
	go p.run()
}

// Stop halts the loop, tears down the writer and blocks until the run
// goroutine has exited. Scratch files are removed by the loop's own
// cleanup; output directory removal is the manager's job.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.active.Store(false)
		p.cancel()
		p.writer.Stop()
		if p.started.Load() {
			<-p.done
		}
	})
}

func (p *Pipeline) run() {
	defer close(p.done)
	defer p.writer.Stop()

	p.logger.Info("pipeline started",
		slog.String("manifest", observability.ScrubURL(p.channel.URL)),
		slog.Bool("encrypted", p.channel.Encrypted()),
		slog.Int("video_index", p.videoIndex),
		slog.Int("audio_index", p.audioIndex))

	for p.active.Load() {
		if err := p.iterate(p.ctx); err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Error("iteration failed", slog.Any("error", err))
			p.emitEvent(models.EventPipelineError, err.Error())
			if errors.Is(err, ErrWriterClosed) {
				p.active.Store(false)
				return
			}
		}

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

// iterate performs one manifest fetch and emits every segment pair that is
// new since the last iteration. Pairs are marked seen only after a
// successful emit, so a mid-window failure retries the failing pair and
// nothing before it.
func (p *Pipeline) iterate(ctx context.Context) error {
	mpd, err := p.fetcher.Fetch(ctx, p.channel.URL)
	if err != nil {
		return err
	}

	sel := dash.Select(mpd, p.videoIndex, p.audioIndex)
	video, err := dash.Resolve(mpd, p.channel.URL, sel.Video, p.liveEdge)
	if err != nil {
		return fmt.Errorf("resolving video: %w", err)
	}
	audio, err := dash.Resolve(mpd, p.channel.URL, sel.Audio, p.liveEdge)
	if err != nil {
		return fmt.Errorf("resolving audio: %w", err)
	}
	if video == nil || audio == nil {
		p.logger.Warn("manifest offered no usable representation pair",
			slog.Bool("has_video", video != nil),
			slog.Bool("has_audio", audio != nil))
		return nil
	}

	if slices.Equal(video.SegmentURLs, p.lastVideo) && slices.Equal(audio.SegmentURLs, p.lastAudio) {
		return nil
	}

	videoInit, vFresh, err := p.downloader.InitFor(ctx, "video", video.InitURL)
	if err != nil {
		return err
	}
	audioInit, aFresh, err := p.downloader.InitFor(ctx, "audio", audio.InitURL)
	if err != nil {
		return err
	}
	if vFresh || aFresh {
		p.updateTracks(videoInit, audioInit)
	}

	n := min(len(video.SegmentURLs), len(audio.SegmentURLs))
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.active.Load() {
			return nil
		}

		videoURL := video.SegmentURLs[i]
		audioURL := audio.SegmentURLs[i]
		_, vSeen := p.seenVideo[videoURL]
		_, aSeen := p.seenAudio[audioURL]
		if vSeen && aSeen {
			continue
		}

		if err := p.emitPair(ctx, videoInit, audioInit, videoURL, audioURL); err != nil {
			return err
		}
		p.seenVideo[videoURL] = struct{}{}
		p.seenAudio[audioURL] = struct{}{}
	}

	p.rememberWindow(video.SegmentURLs, audio.SegmentURLs)
	return nil
}

// emitPair downloads, decrypts and muxes one segment pair, then feeds the
// result to the writer. Fragments touch disk only for the ffmpeg mux step
// and are removed before returning.
func (p *Pipeline) emitPair(ctx context.Context, videoInit, audioInit []byte, videoURL, audioURL string) error {
	seq := p.seq.Load()

	videoSeg, err := p.downloader.Fetch(ctx, videoURL)
	if err != nil {
		return err
	}
	audioSeg, err := p.downloader.Fetch(ctx, audioURL)
	if err != nil {
		return err
	}

	videoMP4, err := p.decryptor.Decrypt(ctx, combine(videoInit, videoSeg), p.channel.Key)
	if err != nil {
		return err
	}
	audioMP4, err := p.decryptor.Decrypt(ctx, combine(audioInit, audioSeg), p.channel.Key)
	if err != nil {
		return err
	}

	videoPath := filepath.Join(p.scratchDir, fmt.Sprintf("video_%d.mp4", seq))
	if err := os.WriteFile(videoPath, videoMP4, 0o644); err != nil {
		return fmt.Errorf("writing video fragment: %w", err)
	}
	defer os.Remove(videoPath)

	audioPath := filepath.Join(p.scratchDir, fmt.Sprintf("audio_%d.mp4", seq))
	if err := os.WriteFile(audioPath, audioMP4, 0o644); err != nil {
		return fmt.Errorf("writing audio fragment: %w", err)
	}
	defer os.Remove(audioPath)

	ts, err := p.muxer.Mux(ctx, videoPath, audioPath)
	if err != nil {
		return err
	}

	if !p.probedTS {
		p.probedTS = true
		if tracks, err := ProbeTS(ts); err == nil {
			p.logger.Debug("first muxed segment", slog.Any("tracks", tracks))
		}
	}

	if _, err := p.writer.Write(ts); err != nil {
		return err
	}
	p.seq.Add(1)

	p.logger.Debug("segment pair emitted",
		slog.Uint64("seq", seq),
		slog.Int("ts_bytes", len(ts)))
	return nil
}

// rememberWindow records the segment window just processed and prunes seen
// markers for URLs that have left it. The live edge only moves forward, so
// a URL outside the window never comes back.
func (p *Pipeline) rememberWindow(video, audio []string) {
	p.lastVideo = slices.Clone(video)
	p.lastAudio = slices.Clone(audio)
	p.seenVideo = retainSeen(p.seenVideo, video)
	p.seenAudio = retainSeen(p.seenAudio, audio)
}

func retainSeen(seen map[string]struct{}, window []string) map[string]struct{} {
	next := make(map[string]struct{}, len(window))
	for _, u := range window {
		if _, ok := seen[u]; ok {
			next[u] = struct{}{}
		}
	}
	return next
}

func (p *Pipeline) updateTracks(videoInit, audioInit []byte) {
	var tracks []InitTrack
	for _, init := range [][]byte{videoInit, audioInit} {
		if len(init) == 0 {
			continue
		}
		probed, err := ProbeInit(init)
		if err != nil {
			p.logger.Warn("init segment probe failed", slog.Any("error", err))
			continue
		}
		tracks = append(tracks, probed...)
	}

	p.trackMu.Lock()
	p.tracks = tracks
	p.trackMu.Unlock()

	codecs := make([]string, 0, len(tracks))
	for _, t := range tracks {
		codecs = append(codecs, t.Codec)
	}
	p.logger.Info("origin tracks", slog.Any("codecs", codecs))
}

func (p *Pipeline) handleWriterExit(err error) {
	p.active.Store(false)
	p.cancel()
	msg := "hls writer exited"
	if err != nil {
		msg = fmt.Sprintf("hls writer exited: %v", err)
	}
	p.emitEvent(models.EventWriterExit, msg)
}

func (p *Pipeline) emitEvent(typ models.EventType, message string) {
	if p.onEvent != nil {
		p.onEvent(typ, message)
	}
}

func combine(init, media []byte) []byte {
	if len(init) == 0 {
		return media
	}
	out := make([]byte, 0, len(init)+len(media))
	out = append(out, init...)
	return append(out, media...)
}

// Active reports whether the loop is still willing to run.
func (p *Pipeline) Active() bool { return p.active.Load() }

// Sequence returns the number of segment pairs emitted so far.
func (p *Pipeline) Sequence() uint64 { return p.seq.Load() }

// StartedAt returns when the pipeline was constructed.
func (p *Pipeline) StartedAt() time.Time { return p.startedAt }

// Channel returns the lineup entry this pipeline serves.
func (p *Pipeline) Channel() config.Channel { return p.channel }

// Tracks returns the most recently probed origin tracks.
func (p *Pipeline) Tracks() []InitTrack {
	p.trackMu.RLock()
	defer p.trackMu.RUnlock()
	return slices.Clone(p.tracks)
}

// WriterRunning reports whether the HLS writer process is alive.
func (p *Pipeline) WriterRunning() bool { return p.writer.Running() }

// WriterExitErr returns the writer process exit error. Only meaningful
// after Stop has returned.
func (p *Pipeline) WriterExitErr() error { return p.writer.ExitErr() }

// WriterStats returns resource usage of the writer process, or nil.
func (p *Pipeline) WriterStats() *ffmpeg.ProcessStats { return p.writer.Stats() }
