// Package handlers provides HTTP API handlers for hlsgate.
package handlers

import (
	"fmt"

	"github.com/jmylchreest/hlsgate/internal/config"
	"github.com/jmylchreest/hlsgate/internal/stream"
)

// StreamController is the stream manager surface the handlers drive.
// *stream.Manager satisfies it; tests substitute a fake.
type StreamController interface {
	// Activate ensures a pipeline is running for the channel.
	Activate(ch config.Channel) error
	// Touch refreshes a stream's idle timer. False means not active.
	Touch(id string) bool
	// ActiveIDs lists the IDs of all running streams, sorted.
	ActiveIDs() []string
	// Details snapshots one running stream.
	Details(id string) (*stream.StreamDetails, error)
	// AllDetails snapshots every running stream.
	AllDetails() []*stream.StreamDetails
}

// StreamURL is the client-facing playlist path for a channel.
func StreamURL(id string) string {
	return fmt.Sprintf("/streams/%s/master.m3u8", id)
}

// ChannelSummary is one lineup entry in API responses.
type ChannelSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Group     string `json:"group,omitempty"`
	Logo      string `json:"logo,omitempty"`
	Encrypted bool   `json:"encrypted"`
}

// ChannelSummaryFromConfig converts a lineup channel to a response.
func ChannelSummaryFromConfig(ch *config.Channel) ChannelSummary {
	return ChannelSummary{
		ID:        ch.ID,
		Name:      ch.Name,
		Group:     ch.Group,
		Logo:      ch.Logo,
		Encrypted: ch.Encrypted(),
	}
}

// PlaylistInfo summarizes the on-disk HLS playlist of an active stream.
type PlaylistInfo struct {
	TargetDuration int    `json:"target_duration"`
	MediaSequence  int    `json:"media_sequence"`
	SegmentCount   int    `json:"segment_count"`
	Ended          bool   `json:"ended"`
	LastSegment    string `json:"last_segment,omitempty"`
	DiskBytes      int64  `json:"disk_bytes,omitempty"`
	DiskSize       string `json:"disk_size,omitempty"`
}

// StreamDetailsResponse is the full picture of one configured channel:
// the lineup entry, the client URL and, when the stream is running, the
// pipeline snapshot and playlist state.
type StreamDetailsResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	URL       string `json:"url"`
	Group     string `json:"group,omitempty"`
	Logo      string `json:"logo,omitempty"`
	Encrypted bool   `json:"encrypted"`

	// Runtime state, present only while the stream is active.
	Stream   *stream.StreamDetails `json:"stream,omitempty"`
	Playlist *PlaylistInfo         `json:"playlist,omitempty"`
}
