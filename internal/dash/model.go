// Package dash parses MPEG-DASH media presentation descriptions (MPD) and
// resolves them into downloadable segment URL lists. It covers the subset of
// the DASH spec that live ClearKey sources actually use: SegmentTemplate with
// $Time$ addressing (with or without a SegmentTimeline), SegmentList, and
// single-file BaseURL representations.
package dash

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// MPD is the root element of a DASH manifest.
type MPD struct {
	XMLName                   xml.Name `xml:"MPD"`
	Type                      string   `xml:"type,attr"`
	Profiles                  string   `xml:"profiles,attr"`
	MinimumUpdatePeriod       string   `xml:"minimumUpdatePeriod,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	AvailabilityStartTime     string   `xml:"availabilityStartTime,attr"`
	BaseURL                   string   `xml:"BaseURL"`
	Periods                   []Period `xml:"Period"`
}

// IsDynamic reports whether the manifest describes a live presentation.
func (m *MPD) IsDynamic() bool {
	return m.Type == "dynamic"
}

// Period is a content period within the presentation.
type Period struct {
	ID             string          `xml:"id,attr"`
	Start          string          `xml:"start,attr"`
	Duration       string          `xml:"duration,attr"`
	BaseURL        string          `xml:"BaseURL"`
	AdaptationSets []AdaptationSet `xml:"AdaptationSet"`
}

// AdaptationSet groups interchangeable representations of one media component.
type AdaptationSet struct {
	ID                string              `xml:"id,attr"`
	MimeType          string              `xml:"mimeType,attr"`
	ContentType       string              `xml:"contentType,attr"`
	Lang              string              `xml:"lang,attr"`
	SegmentTemplate   *SegmentTemplate    `xml:"SegmentTemplate"`
	ContentProtection []ContentProtection `xml:"ContentProtection"`
	Representations   []Representation    `xml:"Representation"`
}

// IsVideo reports whether the set carries video content.
func (a *AdaptationSet) IsVideo() bool {
	return a.MimeType == "video/mp4" || a.ContentType == "video"
}

// IsAudio reports whether the set carries audio content.
func (a *AdaptationSet) IsAudio() bool {
	return a.MimeType == "audio/mp4" || a.ContentType == "audio"
}

// ContentProtection describes a DRM scheme applied to an adaptation set.
type ContentProtection struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
	DefaultKID  string `xml:"default_KID,attr"`
}

// Representation is a single encoded variant of a media component.
type Representation struct {
	ID              string           `xml:"id,attr"`
	Bandwidth       int              `xml:"bandwidth,attr"`
	Width           int              `xml:"width,attr"`
	Height          int              `xml:"height,attr"`
	Codecs          string           `xml:"codecs,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	AudioSampleRate string           `xml:"audioSamplingRate,attr"`
	BaseURL         string           `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	SegmentList     *SegmentList     `xml:"SegmentList"`
}

// SegmentTemplate defines URL templates and timing for segment addressing.
// It may appear on the representation or be inherited from its adaptation set.
type SegmentTemplate struct {
	Media          string           `xml:"media,attr"`
	Initialization string           `xml:"initialization,attr"`
	Timescale      uint64           `xml:"timescale,attr"`
	Duration       uint64           `xml:"duration,attr"`
	StartNumber    uint64           `xml:"startNumber,attr"`
	Timeline       *SegmentTimeline `xml:"SegmentTimeline"`
}

// SegmentTimeline lists explicit segment timing entries.
type SegmentTimeline struct {
	Segments []TimelineSegment `xml:"S"`
}

// TimelineSegment is one S element: start time T (media timescale units),
// duration D, and R additional repeats of the same duration.
type TimelineSegment struct {
	T uint64 `xml:"t,attr"`
	D uint64 `xml:"d,attr"`
	R int    `xml:"r,attr"`
}

// SegmentList enumerates segment URLs directly.
type SegmentList struct {
	Timescale      uint64          `xml:"timescale,attr"`
	Duration       uint64          `xml:"duration,attr"`
	Initialization *URLType        `xml:"Initialization"`
	SegmentURLs    []SegmentURLRef `xml:"SegmentURL"`
}

// URLType is a simple element carrying a sourceURL attribute.
type URLType struct {
	SourceURL string `xml:"sourceURL,attr"`
}

// SegmentURLRef is one SegmentURL element of a SegmentList.
type SegmentURLRef struct {
	Media string `xml:"media,attr"`
}

// Parse decodes an MPD document from raw XML bytes.
func Parse(data []byte) (*MPD, error) {
	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return nil, fmt.Errorf("decoding MPD: %w", err)
	}
	mpd.BaseURL = strings.TrimSpace(mpd.BaseURL)
	for i := range mpd.Periods {
		mpd.Periods[i].BaseURL = strings.TrimSpace(mpd.Periods[i].BaseURL)
		for j := range mpd.Periods[i].AdaptationSets {
			reps := mpd.Periods[i].AdaptationSets[j].Representations
			for k := range reps {
				reps[k].BaseURL = strings.TrimSpace(reps[k].BaseURL)
			}
		}
	}
	return &mpd, nil
}

// Template returns the effective segment template for a representation,
// falling back to the enclosing adaptation set when the representation
// declares none.
func (r *Representation) Template(parent *AdaptationSet) *SegmentTemplate {
	if r.SegmentTemplate != nil {
		return r.SegmentTemplate
	}
	if parent != nil {
		return parent.SegmentTemplate
	}
	return nil
}
