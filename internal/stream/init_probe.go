package stream

import (
	"bytes"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

// InitTrack describes one track declared by a fragmented MP4 init segment.
type InitTrack struct {
	ID        int    `json:"id"`
	TimeScale uint32 `json:"timescale"`
	Codec     string `json:"codec"`
	Kind      string `json:"kind"`
}

// ProbeInit parses a DASH init segment and reports its tracks. Pipelines
// run it whenever an init segment is fetched so the stream details can
// show what the origin is serving.
func ProbeInit(data []byte) ([]InitTrack, error) {
	var init fmp4.Init
	if err := init.Unmarshal(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parsing init segment: %w", err)
	}

	tracks := make([]InitTrack, 0, len(init.Tracks))
	for _, tr := range init.Tracks {
		t := InitTrack{ID: tr.ID, TimeScale: tr.TimeScale}
		switch tr.Codec.(type) {
		case *mp4.CodecH264:
			t.Codec, t.Kind = "h264", "video"
		case *mp4.CodecH265:
			t.Codec, t.Kind = "h265", "video"
		case *mp4.CodecAV1:
			t.Codec, t.Kind = "av1", "video"
		case *mp4.CodecVP9:
			t.Codec, t.Kind = "vp9", "video"
		case *mp4.CodecMPEG4Audio:
			t.Codec, t.Kind = "aac", "audio"
		case *mp4.CodecAC3:
			t.Codec, t.Kind = "ac3", "audio"
		case *mp4.CodecOpus:
			t.Codec, t.Kind = "opus", "audio"
		default:
			t.Codec, t.Kind = fmt.Sprintf("%T", tr.Codec), "other"
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}
