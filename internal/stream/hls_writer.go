package stream

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jmylchreest/hlsgate/internal/ffmpeg"
)

const (
	// writerStopGrace is how long Stop waits between escalation steps:
	// stdin close, then SIGTERM, then SIGKILL.
	writerStopGrace = 3 * time.Second

	playlistName       = "master.m3u8"
	segmentFilePattern = "segment_%03d.ts"
)

// WriterConfig configures a long-lived HLS writer process.
type WriterConfig struct {
	// FFmpegPath locates the ffmpeg binary.
	FFmpegPath string

	// OutputDir receives the playlist and its rolling segment files.
	OutputDir string

	// SegmentDuration is the target duration of each HLS segment.
	SegmentDuration time.Duration

	// MaxSegments bounds the playlist length; older segments are deleted.
	MaxSegments int

	// Logger receives writer diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger

	// OnExit is invoked once if the process exits without Stop being
	// called, with the process error. Optional.
	OnExit func(err error)
}

// HLSWriter owns one ffmpeg process that consumes MPEG-TS on stdin and
// maintains a rolling HLS playlist on disk. Write and Stop may be called
// from different goroutines; Write never takes a lock so a write blocked
// on a full pipe cannot deadlock Stop.
type HLSWriter struct {
	cmd    *ffmpeg.Command
	stdin  *ffmpeg.CountingWriter
	logger *slog.Logger
	onExit func(err error)

	closed   atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
	waitErr  error
}

// StartWriter spawns the writer process. The process is not bound to any
// context: it outlives the request that activated the stream and is torn
// down only by Stop or its own exit.
func StartWriter(cfg WriterConfig) (*HLSWriter, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	segSecs := int(cfg.SegmentDuration / time.Second)
	if segSecs < 1 {
		segSecs = 1
	}

	cmd := ffmpeg.NewCommandBuilder(cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		Input("pipe:0").
		VideoCodec("copy").
		AudioCodec("aac").
		AudioChannels(2).
		ChannelLayout("stereo").
		AudioBitrate("128k").
		AudioSampleRate(48000).
		HLSArgs(segSecs, cfg.MaxSegments, filepath.Join(cfg.OutputDir, segmentFilePattern)).
		Output(filepath.Join(cfg.OutputDir, playlistName)).
		Build()

	if err := cmd.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("starting hls writer: %w", err)
	}

	w := &HLSWriter{
		cmd:    cmd,
		stdin:  ffmpeg.NewCountingWriter(cmd.StdinWriter(), cmd.Monitor()),
		logger: logger,
		onExit: cfg.OnExit,
		done:   make(chan struct{}),
	}
	go w.wait()

	logger.Info("hls writer started",
		slog.String("playlist", filepath.Join(cfg.OutputDir, playlistName)),
		slog.Int("segment_seconds", segSecs),
		slog.Int("max_segments", cfg.MaxSegments))
	return w, nil
}

// Write feeds one muxed transport stream blob to the writer. The pipe
// provides backpressure: if ffmpeg falls behind, Write blocks. Any error,
// including a write racing Stop, is reported as ErrWriterClosed.
func (w *HLSWriter) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, ErrWriterClosed
	}
	n, err := w.stdin.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrWriterClosed, err)
	}
	return n, nil
}

// Stop shuts the writer down and blocks until the process has exited.
// It closes stdin first so ffmpeg can flush the playlist, escalating to
// SIGTERM and finally SIGKILL if the process lingers.
func (w *HLSWriter) Stop() {
	w.stopOnce.Do(func() {
		w.closed.Store(true)

		if stdin := w.cmd.StdinWriter(); stdin != nil {
			stdin.Close()
		}
		select {
		case <-w.done:
			return
		case <-time.After(writerStopGrace):
		}

		w.cmd.Signal(syscall.SIGTERM)
		select {
		case <-w.done:
			return
		case <-time.After(writerStopGrace):
		}

		w.logger.Warn("hls writer ignored SIGTERM, killing")
		w.cmd.Kill()
		<-w.done
	})
}

func (w *HLSWriter) wait() {
	err := w.cmd.Wait()
	requested := w.closed.Swap(true)
	w.waitErr = err
	close(w.done)

	if requested {
		w.logger.Debug("hls writer exited")
		return
	}

	w.logger.Error("hls writer exited unexpectedly",
		slog.Any("error", err),
		slog.String("stderr", w.cmd.StderrTail(5)))
	if w.onExit != nil {
		w.onExit(err)
	}
}

// ExitErr returns the process exit error, blocking until the process has
// exited. Call Stop first, or only consume it from an OnExit callback.
func (w *HLSWriter) ExitErr() error {
	<-w.done
	return w.waitErr
}

// Running reports whether the process is alive and accepting writes.
func (w *HLSWriter) Running() bool {
	return !w.closed.Load() && w.cmd.IsRunning()
}

// Stats returns a snapshot of the writer process resource usage, or nil
// if monitoring is unavailable.
func (w *HLSWriter) Stats() *ffmpeg.ProcessStats {
	return w.cmd.ProcessStats()
}

// StderrTail returns the last n lines of the process stderr.
func (w *HLSWriter) StderrTail(n int) string {
	return w.cmd.StderrTail(n)
}
