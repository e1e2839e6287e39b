package stream

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/hlsgate/internal/ffmpeg"
)

const testKeyHex = "00112233445566778899aabbccddeeff"

func TestDecryptor_EmptyKeyPassesThrough(t *testing.T) {
	var fallbacks atomic.Int64
	d := NewDecryptor(DecryptorConfig{
		FFmpegPath: "/nonexistent/ffmpeg",
		OnFallback: func(string) { fallbacks.Add(1) },
	})

	in := []byte("not even mp4, does not matter")
	out, err := d.Decrypt(context.Background(), in, "")
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, int64(0), fallbacks.Load())
}

func TestDecryptor_InvalidHexKey(t *testing.T) {
	d := NewDecryptor(DecryptorConfig{FFmpegPath: "/nonexistent/ffmpeg"})

	_, err := d.Decrypt(context.Background(), []byte("data"), "not-hex-at-all")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptor_WrongLengthKey(t *testing.T) {
	d := NewDecryptor(DecryptorConfig{FFmpegPath: "/nonexistent/ffmpeg"})

	_, err := d.Decrypt(context.Background(), []byte("data"), "00112233")
	require.ErrorIs(t, err, ErrDecrypt)
	assert.Contains(t, err.Error(), "16 bytes")
}

func TestDecryptor_PassesOriginalThroughWhenBothArmsFail(t *testing.T) {
	var fallbacks atomic.Int64
	var reason atomic.Value

	d := NewDecryptor(DecryptorConfig{
		FFmpegPath: "/nonexistent/ffmpeg",
		OnFallback: func(r string) {
			fallbacks.Add(1)
			reason.Store(r)
		},
	})

	// Garbage defeats mp4ff, the bogus binary defeats the subprocess arm,
	// and the segment comes back untouched.
	in := []byte("garbage that is not an mp4 fragment")
	out, err := d.Decrypt(context.Background(), in, testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, int64(1), fallbacks.Load())
	assert.Contains(t, reason.Load().(string), "in-process")
}

// generateFragmentedMP4 produces a short clear fMP4 blob with ffmpeg.
func generateFragmentedMP4(t *testing.T, ffmpegPath string) []byte {
	t.Helper()

	cmd := ffmpeg.NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		InputArgs("-f", "lavfi").
		Input("testsrc=duration=1:size=128x72:rate=10").
		VideoCodec("mpeg2video").
		Format("mp4").
		MovFlags("frag_keyframe+empty_moov").
		Output("pipe:1").
		Build()

	data, err := cmd.Output(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	return data
}

func TestIntegration_Decryptor_ClearFragmentSurvives(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)

	var fallbacks atomic.Int64
	d := NewDecryptor(DecryptorConfig{
		FFmpegPath: ffmpegPath,
		OnFallback: func(string) { fallbacks.Add(1) },
	})

	in := generateFragmentedMP4(t, ffmpegPath)
	out, err := d.Decrypt(context.Background(), in, testKeyHex)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	// A clear fragment with a key configured must decode to a valid
	// fragmented file, not hit the passthrough.
	f, err := mp4.DecodeFile(bytes.NewReader(out))
	require.NoError(t, err)
	require.NotNil(t, f.Init)
	assert.NotEmpty(t, f.Segments)
	assert.Equal(t, int64(0), fallbacks.Load())
}

func TestIntegration_Decryptor_GarbageFallsBackWithRealFFmpeg(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)

	var fallbacks atomic.Int64
	d := NewDecryptor(DecryptorConfig{
		FFmpegPath: ffmpegPath,
		OnFallback: func(string) { fallbacks.Add(1) },
	})

	in := []byte("garbage that is not an mp4 fragment")
	out, err := d.Decrypt(context.Background(), in, testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, int64(1), fallbacks.Load())
}
