package ffmpeg

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not installed.
func skipIfNoFFmpeg(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	return path
}

func TestBinaryDetector_Detect(t *testing.T) {
	skipIfNoFFmpeg(t)

	ctx := context.Background()
	detector := NewBinaryDetector("")

	info, err := detector.Detect(ctx)
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.NotEmpty(t, info.FFmpegPath)
	assert.NotEmpty(t, info.Version)
	assert.Greater(t, info.MajorVersion, 0)
}

func TestBinaryDetector_ConfiguredPath(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)

	ctx := context.Background()
	detector := NewBinaryDetector(ffmpegPath)

	info, err := detector.Detect(ctx)
	require.NoError(t, err)
	assert.Equal(t, ffmpegPath, info.FFmpegPath)
}

func TestBinaryDetector_ConfiguredPathMissing(t *testing.T) {
	ctx := context.Background()
	detector := NewBinaryDetector("/nonexistent/path/to/ffmpeg")

	_, err := detector.Detect(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg not found")
}

func TestBinaryDetector_Caching(t *testing.T) {
	skipIfNoFFmpeg(t)

	ctx := context.Background()
	detector := NewBinaryDetector("").WithCacheTTL(1 * time.Hour)

	// First detection
	info1, err := detector.Detect(ctx)
	require.NoError(t, err)

	// Second detection should return cached result
	info2, err := detector.Detect(ctx)
	require.NoError(t, err)

	assert.Equal(t, info1.FFmpegPath, info2.FFmpegPath)
	assert.Equal(t, info1.Version, info2.Version)
}

func TestBinaryDetector_Clear(t *testing.T) {
	skipIfNoFFmpeg(t)

	ctx := context.Background()
	detector := NewBinaryDetector("")

	// Detect and cache
	_, err := detector.Detect(ctx)
	require.NoError(t, err)

	// Clear cache
	detector.Clear()

	// Verify cache is cleared (will need to detect again)
	assert.Nil(t, detector.info)
}

func TestBinaryInfo_HasEncoder(t *testing.T) {
	info := &BinaryInfo{
		Encoders: []string{"libx264", "aac", "mpeg2video"},
	}

	assert.True(t, info.HasEncoder("aac"))
	assert.True(t, info.HasEncoder("libx264"))
	assert.False(t, info.HasEncoder("h264_nvenc"))
}

func TestBinaryInfo_HasMuxer(t *testing.T) {
	info := &BinaryInfo{
		Formats: []FormatInfo{
			{Name: "mpegts", CanMux: true, CanDemux: true},
			{Name: "hls", CanMux: true, CanDemux: true},
			{Name: "rawvideo", CanMux: false, CanDemux: true},
		},
	}

	assert.True(t, info.HasMuxer("mpegts"))
	assert.True(t, info.HasMuxer("hls"))
	assert.False(t, info.HasMuxer("rawvideo")) // Can't mux
	assert.False(t, info.HasMuxer("nonexistent"))
}

func TestBinaryInfo_SupportsMinVersion(t *testing.T) {
	info := &BinaryInfo{
		MajorVersion: 6,
		MinorVersion: 1,
	}

	assert.True(t, info.SupportsMinVersion(5, 0))
	assert.True(t, info.SupportsMinVersion(6, 0))
	assert.True(t, info.SupportsMinVersion(6, 1))
	assert.False(t, info.SupportsMinVersion(6, 2))
	assert.False(t, info.SupportsMinVersion(7, 0))
}

func TestBinaryInfo_JSON(t *testing.T) {
	info := &BinaryInfo{
		FFmpegPath:   "/usr/bin/ffmpeg",
		Version:      "6.0",
		MajorVersion: 6,
		MinorVersion: 0,
	}

	jsonStr := info.JSON()
	assert.Contains(t, jsonStr, "ffmpeg_path")
	assert.Contains(t, jsonStr, "/usr/bin/ffmpeg")
}

func TestCommandBuilder_Build(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		Input("pipe:0").
		VideoCodec("copy").
		AudioCodec("aac").
		Output("output.m3u8").
		Build()

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Binary)
	assert.Contains(t, cmd.Args, "-hide_banner")
	assert.Contains(t, cmd.Args, "-y")
	assert.Contains(t, cmd.Args, "-i")
	assert.Contains(t, cmd.Args, "pipe:0")
	assert.Contains(t, cmd.Args, "-c:v")
	assert.Contains(t, cmd.Args, "copy")
	assert.Contains(t, cmd.Args, "-c:a")
	assert.Contains(t, cmd.Args, "aac")
	assert.Equal(t, "output.m3u8", cmd.Args[len(cmd.Args)-1])
}

func TestCommandBuilder_MultipleInputs(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		Overwrite().
		Input("video.mp4").
		Input("audio.mp4").
		Map("0:v:0").
		Map("1:a:0").
		VideoCodec("copy").
		AudioCodec("aac").
		Format("mpegts").
		Output("pipe:1").
		Build()

	cmdStr := cmd.String()
	assert.Contains(t, cmdStr, "-i video.mp4 -i audio.mp4")
	assert.Contains(t, cmdStr, "-map 0:v:0 -map 1:a:0")
	assert.Contains(t, cmdStr, "-f mpegts")
	assert.Contains(t, cmdStr, "pipe:1")
}

func TestCommandBuilder_DecryptionKey(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		Overwrite().
		DecryptionKey("00112233445566778899aabbccddeeff").
		Input("pipe:0").
		OutputArgs("-c", "copy").
		Format("mp4").
		MovFlags("frag_keyframe+empty_moov").
		Output("pipe:1").
		Build()

	cmdStr := cmd.String()
	// The key must precede the -i it applies to.
	assert.Contains(t, cmdStr, "-decryption_key 00112233445566778899aabbccddeeff -i pipe:0")
	assert.Contains(t, cmdStr, "-movflags frag_keyframe+empty_moov")
}

func TestCommandBuilder_InputArgsApplyToNextInputOnly(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		InputArgs("-decryption_key", "aa").
		Input("first.mp4").
		Input("second.mp4").
		Output("out.mp4").
		Build()

	cmdStr := cmd.String()
	assert.Contains(t, cmdStr, "-decryption_key aa -i first.mp4")
	assert.Contains(t, cmdStr, "first.mp4 -i second.mp4")
}

func TestCommandBuilder_HLSArgs(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		Input("pipe:0").
		VideoCodec("copy").
		AudioCodec("aac").
		AudioChannels(2).
		ChannelLayout("stereo").
		AudioBitrate("128k").
		AudioSampleRate(48000).
		HLSArgs(4, 40, "/data/streams/c1/segment_%03d.ts").
		Output("/data/streams/c1/master.m3u8").
		Build()

	cmdStr := cmd.String()
	assert.Contains(t, cmdStr, "-f hls")
	assert.Contains(t, cmdStr, "-hls_time 4")
	assert.Contains(t, cmdStr, "-hls_list_size 40")
	assert.Contains(t, cmdStr, "-hls_flags delete_segments")
	assert.Contains(t, cmdStr, "-hls_segment_type mpegts")
	assert.Contains(t, cmdStr, "-hls_segment_filename /data/streams/c1/segment_%03d.ts")
	assert.Contains(t, cmdStr, "-ac 2")
	assert.Contains(t, cmdStr, "-channel_layout stereo")
	assert.Contains(t, cmdStr, "-b:a 128k")
	assert.Contains(t, cmdStr, "-ar 48000")
}

func TestCommand_String(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Input("input.mp4").
		VideoCodec("copy").
		Output("output.mp4").
		Build()

	str := cmd.String()
	assert.Contains(t, str, "/usr/bin/ffmpeg")
	assert.Contains(t, str, "-hide_banner")
	assert.Contains(t, str, "input.mp4")
	assert.Contains(t, str, "output.mp4")
}

func TestCommand_IsRunning(t *testing.T) {
	cmd := &Command{
		Binary: "/usr/bin/ffmpeg",
		Args:   []string{"-version"},
	}

	assert.False(t, cmd.IsRunning())
}

func TestCommand_StderrTail(t *testing.T) {
	cmd := &Command{}
	assert.Equal(t, "no stderr output", cmd.StderrTail(3))

	cmd.stderrLines = []string{"one", "two", "three", "four"}
	assert.Equal(t, "three; four", cmd.StderrTail(2))
	assert.Equal(t, "one; two; three; four", cmd.StderrTail(10))
}

func TestProcessMonitor_CountingWriter(t *testing.T) {
	monitor := NewProcessMonitor(os.Getpid())
	cw := NewCountingWriter(io.Discard, monitor)

	n, err := cw.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	_, err = cw.Write([]byte("again"))
	require.NoError(t, err)

	assert.Equal(t, uint64(16), monitor.Stats().BytesWritten)
}

func TestProcessMonitor_SampleSelf(t *testing.T) {
	monitor := NewProcessMonitor(os.Getpid())
	monitor.AddBytesWritten(4096)

	monitor.sample()

	stats := monitor.Stats()
	assert.Equal(t, os.Getpid(), stats.PID)
	assert.Equal(t, uint64(4096), stats.BytesWritten)
	assert.Greater(t, stats.MemoryRSSBytes, uint64(0))
	assert.False(t, stats.LastUpdated.IsZero())
}

func TestProcessMonitor_StartStop(t *testing.T) {
	monitor := NewProcessMonitor(os.Getpid())
	monitor.SetInterval(10 * time.Millisecond)

	monitor.Start()
	time.Sleep(50 * time.Millisecond)
	monitor.Stop()

	stats := monitor.Stats()
	assert.Equal(t, os.Getpid(), stats.PID)
	assert.Greater(t, stats.Duration, time.Duration(0))
}

// Integration tests that require FFmpeg to be installed

func TestIntegration_Command_Output(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)

	ctx := context.Background()
	cmd := NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		InputArgs("-f", "lavfi").
		Input("testsrc=duration=1:size=128x72:rate=10").
		VideoCodec("mpeg2video").
		Format("mpegts").
		Output("pipe:1").
		Build()

	out, err := cmd.Output(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	// MPEG-TS packets start with a sync byte.
	assert.Equal(t, byte(0x47), out[0])
}

func TestIntegration_Command_OutputFailureKeepsStderr(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)

	ctx := context.Background()
	cmd := NewCommandBuilder(ffmpegPath).
		HideBanner().
		Input("/nonexistent/input.mp4").
		OutputArgs("-c", "copy").
		Format("mp4").
		Output("/dev/null").
		Build()

	_, err := cmd.Output(ctx, nil)
	require.Error(t, err)
	assert.NotEmpty(t, cmd.StderrLines())
	assert.Contains(t, strings.ToLower(err.Error()), "no such file")
}

func TestIntegration_Command_StartAndStdin(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)

	outDir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Remux a generated MPEG-TS blob through stdin to exercise the
	// long-lived writer path end to end.
	src := NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		InputArgs("-f", "lavfi").
		Input("testsrc=duration=1:size=128x72:rate=10").
		VideoCodec("mpeg2video").
		Format("mpegts").
		Output("pipe:1").
		Build()
	blob, err := src.Output(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	sink := NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		Input("pipe:0").
		VideoCodec("copy").
		Format("mpegts").
		Output(outDir + "/out.ts").
		Build()

	require.NoError(t, sink.Start(ctx))
	assert.True(t, sink.IsRunning())
	require.NotNil(t, sink.Monitor())

	stdin := NewCountingWriter(sink.StdinWriter(), sink.Monitor())
	_, err = stdin.Write(blob)
	require.NoError(t, err)
	require.NoError(t, sink.StdinWriter().Close())

	require.NoError(t, sink.Wait())
	assert.False(t, sink.IsRunning())

	stats := sink.ProcessStats()
	require.NotNil(t, stats)
	assert.Equal(t, uint64(len(blob)), stats.BytesWritten)

	written, err := os.ReadFile(outDir + "/out.ts")
	require.NoError(t, err)
	assert.NotEmpty(t, written)
}
