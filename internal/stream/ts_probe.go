package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astits"
)

// TSTrack describes one elementary stream declared by a transport stream
// program map table.
type TSTrack struct {
	PID   uint16 `json:"pid"`
	Codec string `json:"codec"`
	Kind  string `json:"kind"`
}

// ProbeTS walks transport stream packets until the first PMT and reports
// the elementary streams it declares. Pipelines run it once on their first
// muxed segment to log what the writer is actually being fed.
func ProbeTS(data []byte) ([]TSTrack, error) {
	dmx := astits.NewDemuxer(context.Background(), bytes.NewReader(data))
	for {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				return nil, errors.New("no PMT in transport stream")
			}
			return nil, fmt.Errorf("demuxing transport stream: %w", err)
		}
		if d.PMT == nil {
			continue
		}

		tracks := make([]TSTrack, 0, len(d.PMT.ElementaryStreams))
		for _, es := range d.PMT.ElementaryStreams {
			codec, kind := tsStreamCodec(es.StreamType)
			tracks = append(tracks, TSTrack{
				PID:   es.ElementaryPID,
				Codec: codec,
				Kind:  kind,
			})
		}
		return tracks, nil
	}
}

func tsStreamCodec(st astits.StreamType) (codec, kind string) {
	switch st {
	case astits.StreamTypeH264Video:
		return "h264", "video"
	case astits.StreamTypeH265Video:
		return "h265", "video"
	case astits.StreamTypeMPEG2Video:
		return "mpeg2video", "video"
	case astits.StreamTypeMPEG1Video:
		return "mpeg1video", "video"
	case astits.StreamTypeAACAudio, astits.StreamTypeAACLATMAudio:
		return "aac", "audio"
	case astits.StreamTypeAC3Audio:
		return "ac3", "audio"
	case astits.StreamTypeEAC3Audio:
		return "eac3", "audio"
	case astits.StreamTypeMPEG1Audio, astits.StreamTypeMPEG2HalvedSampleRateAudio:
		return "mpegaudio", "audio"
	default:
		return fmt.Sprintf("0x%02x", uint8(st)), "other"
	}
}
