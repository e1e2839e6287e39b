package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// maxStderrLines bounds the in-memory stderr ring kept per command.
const maxStderrLines = 100

// Command represents a single FFmpeg invocation. Commands are built with
// CommandBuilder and run either synchronously (Output) or long-lived with a
// stdin feed (Start/StdinWriter/Wait).
type Command struct {
	Binary string
	Args   []string

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started time.Time
	mu      sync.RWMutex

	// Process monitoring, active for long-lived commands only.
	monitor *ProcessMonitor

	// Recent stderr lines for error reporting.
	stderrLines []string
	stderrMu    sync.RWMutex
	stderrWG    sync.WaitGroup
}

// inputSpec pairs an input URL with the flags that must precede its -i.
type inputSpec struct {
	args []string
	url  string
}

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	pending    []string // input args queued for the next Input call
	inputs     []inputSpec
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// InputArgs queues arguments that apply to the next input. FFmpeg requires
// per-input flags to precede their -i.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.pending = append(b.pending, args...)
	return b
}

// DecryptionKey sets the CENC decryption key for the next input.
func (b *CommandBuilder) DecryptionKey(hexKey string) *CommandBuilder {
	return b.InputArgs("-decryption_key", hexKey)
}

// Input adds an input source, consuming any queued input args. May be called
// multiple times; inputs keep their order.
func (b *CommandBuilder) Input(url string) *CommandBuilder {
	b.inputs = append(b.inputs, inputSpec{args: b.pending, url: url})
	b.pending = nil
	return b
}

// Map adds a -map stream selector.
func (b *CommandBuilder) Map(spec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-map", spec)
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// AudioChannels sets the number of audio channels.
func (b *CommandBuilder) AudioChannels(channels int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ac", strconv.Itoa(channels))
	return b
}

// ChannelLayout sets the audio channel layout.
func (b *CommandBuilder) ChannelLayout(layout string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-channel_layout", layout)
	return b
}

// AudioSampleRate sets the audio sample rate in Hz.
func (b *CommandBuilder) AudioSampleRate(rate int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ar", strconv.Itoa(rate))
	return b
}

// Format sets the output container format.
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", format)
	return b
}

// MovFlags sets MP4 muxer flags.
func (b *CommandBuilder) MovFlags(flags string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-movflags", flags)
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// HLSArgs adds the HLS muxer arguments for a rolling live playlist with
// MPEG-TS segments written to segmentPattern.
func (b *CommandBuilder) HLSArgs(segmentTime int, playlistSize int, segmentPattern string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentTime),
		"-hls_list_size", strconv.Itoa(playlistSize),
		"-hls_flags", "delete_segments",
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", segmentPattern)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.url)
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:      b.binary,
		Args:        args,
		stderrLines: make([]string, 0, maxStderrLines),
	}
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Output runs the command to completion, feeding stdin (may be nil) and
// returning captured stdout. Stderr is available through StderrLines either
// way; on failure the returned error carries its tail.
func (c *Command) Output(ctx context.Context, stdin io.Reader) ([]byte, error) {
	c.mu.Lock()
	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	c.cmd.Stdin = stdin
	var stdout bytes.Buffer
	c.cmd.Stdout = &stdout
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("getting stderr pipe: %w", err)
	}
	c.started = time.Now()
	c.mu.Unlock()

	if err := c.cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	c.stderrWG.Add(1)
	go c.captureStderr(stderr)

	// Drain stderr fully before reaping so no trailing lines are lost.
	c.stderrWG.Wait()

	if err := c.cmd.Wait(); err != nil {
		return stdout.Bytes(), fmt.Errorf("ffmpeg: %w (%s)", err, c.StderrTail(3))
	}

	return stdout.Bytes(), nil
}

// Start launches a long-lived command with a stdin pipe, stderr capture and
// resource monitoring. The caller feeds data through StdinWriter and must
// call Wait to reap the process.
func (c *Command) Start(ctx context.Context) error {
	c.mu.Lock()
	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("getting stdin pipe: %w", err)
	}

	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	c.stdin = stdin
	c.started = time.Now()
	c.mu.Unlock()

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	c.mu.Lock()
	c.monitor = NewProcessMonitor(c.cmd.Process.Pid)
	c.monitor.Start()
	c.mu.Unlock()

	c.stderrWG.Add(1)
	go c.captureStderr(stderr)

	return nil
}

// StdinWriter returns the pipe feeding the process stdin. Valid after Start.
func (c *Command) StdinWriter() io.WriteCloser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stdin
}

// Wait reaps a process launched with Start. It drains the stderr capture
// first, then waits for the process and stops monitoring.
func (c *Command) Wait() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil {
		return fmt.Errorf("command not started")
	}

	c.stderrWG.Wait()
	err := cmd.Wait()
	c.stopMonitor()
	return err
}

// Kill terminates the FFmpeg process.
func (c *Command) Kill() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	return cmd.Process.Kill()
}

// Signal sends a signal to the FFmpeg process.
func (c *Command) Signal(sig os.Signal) error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	return cmd.Process.Signal(sig)
}

// IsRunning returns true if the command has started and not yet been reaped.
func (c *Command) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return false
	}

	return c.cmd.ProcessState == nil
}

// Duration returns how long the command has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.started.IsZero() {
		return 0
	}

	return time.Since(c.started)
}

// captureStderr reads FFmpeg stderr into a bounded ring of recent lines.
func (c *Command) captureStderr(stderr io.ReadCloser) {
	defer c.stderrWG.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		c.stderrMu.Lock()
		if len(c.stderrLines) >= maxStderrLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.stderrMu.Unlock()
	}
}

// StderrLines returns a copy of the recent stderr lines.
func (c *Command) StderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// StderrTail returns the last n stderr lines joined for error messages.
func (c *Command) StderrTail(n int) string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	if len(c.stderrLines) == 0 {
		return "no stderr output"
	}
	start := len(c.stderrLines) - n
	if start < 0 {
		start = 0
	}
	return strings.Join(c.stderrLines[start:], "; ")
}

// stopMonitor stops the process monitor if running.
func (c *Command) stopMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitor != nil {
		c.monitor.Stop()
	}
}

// ProcessStats returns the current process statistics.
// Returns nil if monitoring is not active.
func (c *Command) ProcessStats() *ProcessStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.monitor == nil {
		return nil
	}

	stats := c.monitor.Stats()
	return &stats
}

// Monitor returns the process monitor for direct access.
// Returns nil if monitoring is not active.
func (c *Command) Monitor() *ProcessMonitor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.monitor
}
