package stream

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/jmylchreest/hlsgate/internal/ffmpeg"
)

// DecryptorConfig configures segment decryption for a pipeline.
type DecryptorConfig struct {
	// FFmpegPath locates the ffmpeg binary used as the fallback arm.
	FFmpegPath string

	// Logger receives decryption diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger

	// OnFallback is invoked with a description whenever both decryption
	// arms fail and the original bytes are passed through. Optional.
	OnFallback func(reason string)
}

// Decryptor removes CENC encryption from fragmented MP4 segments. It first
// decrypts in process, falls back to an ffmpeg subprocess, and as a last
// resort passes the original bytes through so a misconfigured key degrades
// output quality instead of killing the stream.
type Decryptor struct {
	ffmpegPath string
	logger     *slog.Logger
	onFallback func(reason string)
}

// NewDecryptor creates a decryptor.
func NewDecryptor(cfg DecryptorConfig) *Decryptor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Decryptor{
		ffmpegPath: cfg.FFmpegPath,
		logger:     logger,
		onFallback: cfg.OnFallback,
	}
}

// Decrypt returns data decrypted with the channel key. An empty key means
// the channel is clear and data is returned untouched. A key that is not
// 16 bytes of hex is a configuration error and returns ErrDecrypt; any
// later failure falls through to the permissive passthrough instead.
func (d *Decryptor) Decrypt(ctx context.Context, data []byte, hexKey string) ([]byte, error) {
	if hexKey == "" {
		return data, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid hex: %v", ErrDecrypt, err)
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("%w: key must be 16 bytes, got %d", ErrDecrypt, len(key))
	}

	out, inErr := decryptInProcess(data, key)
	if inErr == nil {
		return out, nil
	}

	out, subErr := d.decryptSubprocess(ctx, data, hexKey)
	if subErr == nil && len(out) > 0 {
		d.logger.Debug("in-process decrypt failed, ffmpeg fallback succeeded",
			slog.String("error", inErr.Error()))
		return out, nil
	}
	if subErr == nil {
		subErr = errors.New("ffmpeg produced no output")
	}

	reason := fmt.Sprintf("in-process: %v; ffmpeg: %v", inErr, subErr)
	d.logger.Error("decryption failed on both arms, passing segment through",
		slog.String("in_process_error", inErr.Error()),
		slog.String("ffmpeg_error", subErr.Error()),
		slog.Int("bytes", len(data)))
	if d.onFallback != nil {
		d.onFallback(reason)
	}
	return data, nil
}

// decryptInProcess decrypts CENC-encrypted fragments with mp4ff. Clear
// tracks come back with a nil protection scheme and pass through unchanged,
// so feeding it an unencrypted segment is not an error.
func decryptInProcess(data []byte, key []byte) ([]byte, error) {
	f, err := mp4.DecodeFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing fragmented mp4: %w", err)
	}
	if f.Init == nil {
		return nil, errors.New("input has no init segment")
	}

	di, err := mp4.DecryptInit(f.Init)
	if err != nil {
		return nil, fmt.Errorf("reading protection metadata: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Init.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encoding init segment: %w", err)
	}
	for _, seg := range f.Segments {
		if err := mp4.DecryptSegment(seg, di, key); err != nil {
			return nil, fmt.Errorf("decrypting segment: %w", err)
		}
		if err := seg.Encode(&buf); err != nil {
			return nil, fmt.Errorf("encoding segment: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// decryptSubprocess pipes the segment through ffmpeg with -decryption_key.
// The output stays fragmented so the muxer downstream sees the same shape
// as the in-process arm produces.
func (d *Decryptor) decryptSubprocess(ctx context.Context, data []byte, hexKey string) ([]byte, error) {
	cmd := ffmpeg.NewCommandBuilder(d.ffmpegPath).
		Overwrite().
		DecryptionKey(hexKey).
		Input("pipe:0").
		OutputArgs("-c", "copy").
		Format("mp4").
		MovFlags("frag_keyframe+empty_moov").
		Output("pipe:1").
		Build()

	return cmd.Output(ctx, bytes.NewReader(data))
}
