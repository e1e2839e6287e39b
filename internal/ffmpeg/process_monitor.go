package ffmpeg

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage statistics for an FFmpeg process.
type ProcessStats struct {
	PID int `json:"pid"`

	// CPU usage as a percentage (0-100 per core), sampled over the
	// monitoring interval.
	CPUPercent float64 `json:"cpu_percent"`

	// Memory usage
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	MemoryRSSMB    float64 `json:"memory_rss_mb"`
	MemoryVMSBytes uint64  `json:"memory_vms_bytes"`
	MemoryPercent  float64 `json:"memory_percent"`

	// Bandwidth, tracked externally via CountingWriter
	BytesWritten  uint64  `json:"bytes_written"`
	WriteRateBps  float64 `json:"write_rate_bps"`
	WriteRateMbps float64 `json:"write_rate_mbps"`

	// Timing
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	LastUpdated time.Time     `json:"last_updated"`
}

// ProcessMonitor samples resource usage of a running FFmpeg process via
// gopsutil. Byte counters are fed externally by CountingWriter wrapping the
// pipe into the process.
type ProcessMonitor struct {
	pid       int
	proc      *process.Process
	startedAt time.Time
	interval  time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	// For write rate calculation
	lastBytesWritten uint64
	lastBytesCheck   time.Time

	bytesWritten atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a new process monitor for the given PID.
func NewProcessMonitor(pid int) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	pm := &ProcessMonitor{
		pid:       pid,
		startedAt: time.Now(),
		interval:  time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}

	// A lookup failure means the process already exited; samples then carry
	// only the externally fed byte counters.
	pm.proc, _ = process.NewProcess(int32(pid))

	return pm
}

// Start begins monitoring the process.
func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	pm.lastBytesCheck = time.Now()
	pm.mu.Unlock()

	pm.wg.Add(1)
	go pm.monitorLoop()
}

// Stop stops monitoring the process.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()
}

// Stats returns the current process statistics.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := pm.stats
	stats.BytesWritten = pm.bytesWritten.Load()

	return stats
}

// AddBytesWritten adds to the bytes written counter.
func (pm *ProcessMonitor) AddBytesWritten(n uint64) {
	pm.bytesWritten.Add(n)
}

// SetInterval sets the monitoring interval.
func (pm *ProcessMonitor) SetInterval(d time.Duration) {
	pm.mu.Lock()
	pm.interval = d
	pm.mu.Unlock()
}

// monitorLoop is the main monitoring loop.
func (pm *ProcessMonitor) monitorLoop() {
	defer pm.wg.Done()

	pm.mu.RLock()
	interval := pm.interval
	pm.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial sample
	pm.sample()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

// sample takes a snapshot of process statistics.
func (pm *ProcessMonitor) sample() {
	now := time.Now()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.PID = pm.pid
	pm.stats.StartedAt = pm.startedAt
	pm.stats.Duration = now.Sub(pm.startedAt)
	pm.stats.LastUpdated = now

	if pm.proc != nil {
		// CPUPercent measures usage since its previous call, so ticking it
		// at the sample interval yields a rolling figure.
		if cpuPct, err := pm.proc.CPUPercentWithContext(pm.ctx); err == nil {
			pm.stats.CPUPercent = cpuPct
		}

		if memInfo, err := pm.proc.MemoryInfoWithContext(pm.ctx); err == nil && memInfo != nil {
			pm.stats.MemoryRSSBytes = memInfo.RSS
			pm.stats.MemoryVMSBytes = memInfo.VMS
			pm.stats.MemoryRSSMB = float64(memInfo.RSS) / (1024 * 1024)
		}

		if memPct, err := pm.proc.MemoryPercentWithContext(pm.ctx); err == nil {
			pm.stats.MemoryPercent = float64(memPct)
		}
	}

	pm.calculateWriteRate(now)
}

// calculateWriteRate updates the current write bandwidth figures.
func (pm *ProcessMonitor) calculateWriteRate(now time.Time) {
	currentBytes := pm.bytesWritten.Load()
	elapsed := now.Sub(pm.lastBytesCheck)

	if elapsed > 0 {
		bytesDelta := currentBytes - pm.lastBytesWritten
		pm.stats.WriteRateBps = float64(bytesDelta) / elapsed.Seconds()
		pm.stats.WriteRateMbps = pm.stats.WriteRateBps * 8 / 1_000_000
	}

	pm.stats.BytesWritten = currentBytes
	pm.lastBytesWritten = currentBytes
	pm.lastBytesCheck = now
}

// CountingWriter wraps an io.Writer and reports bytes written to a monitor.
type CountingWriter struct {
	w       io.Writer
	monitor *ProcessMonitor
}

// NewCountingWriter creates a writer that counts bytes and reports to monitor.
func NewCountingWriter(w io.Writer, monitor *ProcessMonitor) *CountingWriter {
	return &CountingWriter{
		w:       w,
		monitor: monitor,
	}
}

// Write implements io.Writer and tracks bytes written.
func (cw *CountingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	if n > 0 && cw.monitor != nil {
		cw.monitor.AddBytesWritten(uint64(n))
	}
	return n, err
}
