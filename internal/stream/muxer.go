package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/hlsgate/internal/ffmpeg"
)

// Muxer combines one video and one audio fragment into a single MPEG-TS
// blob. Video is copied; audio is normalised to stereo AAC here so the
// long-lived writer downstream never has to renegotiate its output.
type Muxer struct {
	ffmpegPath string
	logger     *slog.Logger
}

// NewMuxer creates a muxer using the given ffmpeg binary.
func NewMuxer(ffmpegPath string, logger *slog.Logger) *Muxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Muxer{ffmpegPath: ffmpegPath, logger: logger}
}

// Mux reads the two fragment files and returns the muxed transport stream.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath string) ([]byte, error) {
	cmd := ffmpeg.NewCommandBuilder(m.ffmpegPath).
		Overwrite().
		Input(videoPath).
		Input(audioPath).
		Map("0:v:0").
		Map("1:a:0").
		VideoCodec("copy").
		AudioCodec("aac").
		Format("mpegts").
		Output("pipe:1").
		Build()

	out, err := cmd.Output(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMux, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no output", ErrMux)
	}
	return out, nil
}
