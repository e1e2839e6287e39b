package dash

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTimeline(t *testing.T) {
	tl := &SegmentTimeline{Segments: []TimelineSegment{
		{T: 5000, D: 1000, R: 3},
	}}

	times := ExpandTimeline(tl)
	assert.Equal(t, []uint64{5000, 6000, 7000, 8000}, times)
}

func TestExpandTimelineMultipleEntries(t *testing.T) {
	tl := &SegmentTimeline{Segments: []TimelineSegment{
		{T: 0, D: 2000, R: 1},
		{D: 1000, R: 2},
	}}

	times := ExpandTimeline(tl)
	assert.Equal(t, []uint64{0, 2000, 4000, 5000, 6000}, times)
}

func TestExpandTimelineEmpty(t *testing.T) {
	assert.Nil(t, ExpandTimeline(nil))
	assert.Nil(t, ExpandTimeline(&SegmentTimeline{}))
}

func timelineChoice(mpdType string, entries []TimelineSegment) (*MPD, *Choice) {
	mpd := &MPD{
		Type: mpdType,
		Periods: []Period{{
			AdaptationSets: []AdaptationSet{{
				MimeType: "video/mp4",
				SegmentTemplate: &SegmentTemplate{
					Timescale:      1000,
					Initialization: "$RepresentationID$/init.mp4",
					Media:          "$RepresentationID$/$Time$.m4s",
					Timeline:       &SegmentTimeline{Segments: entries},
				},
				Representations: []Representation{{ID: "v0", Bandwidth: 1000}},
			}},
		}},
	}
	period := &mpd.Periods[0]
	set := &period.AdaptationSets[0]
	return mpd, &Choice{Period: period, Set: set, Rep: &set.Representations[0]}
}

func TestResolveTimeline(t *testing.T) {
	mpd, choice := timelineChoice("static", []TimelineSegment{{T: 5000, D: 1000, R: 3}})

	set, err := Resolve(mpd, "https://cdn.example.com/live/manifest.mpd", choice, 0)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/live/v0/init.mp4", set.InitURL)
	assert.Equal(t, []string{
		"https://cdn.example.com/live/v0/5000.m4s",
		"https://cdn.example.com/live/v0/6000.m4s",
		"https://cdn.example.com/live/v0/7000.m4s",
		"https://cdn.example.com/live/v0/8000.m4s",
	}, set.SegmentURLs)
}

func TestResolveDynamicKeepsLiveEdge(t *testing.T) {
	entries := make([]TimelineSegment, 50)
	for i := range entries {
		entries[i] = TimelineSegment{T: uint64(i * 1000), D: 1000}
	}
	// Only the first entry's t seeds the cursor; later entries continue
	// from where the previous one ended.
	mpd, choice := timelineChoice("dynamic", entries)

	set, err := Resolve(mpd, "https://cdn.example.com/live/manifest.mpd", choice, 20)
	require.NoError(t, err)

	require.Len(t, set.SegmentURLs, 20)
	assert.Equal(t, "https://cdn.example.com/live/v0/30000.m4s", set.SegmentURLs[0])
	assert.Equal(t, "https://cdn.example.com/live/v0/49000.m4s", set.SegmentURLs[19])
}

func TestResolveStaticKeepsAll(t *testing.T) {
	entries := make([]TimelineSegment, 50)
	for i := range entries {
		entries[i] = TimelineSegment{D: 1000}
	}
	mpd, choice := timelineChoice("static", entries)

	set, err := Resolve(mpd, "https://cdn.example.com/live/manifest.mpd", choice, 20)
	require.NoError(t, err)
	assert.Len(t, set.SegmentURLs, 50)
}

func TestResolveWithoutTimeline(t *testing.T) {
	mpd := &MPD{
		Type: "static",
		Periods: []Period{{
			Duration: "PT10S",
			AdaptationSets: []AdaptationSet{{
				MimeType: "video/mp4",
				SegmentTemplate: &SegmentTemplate{
					Timescale: 1000,
					Duration:  2000,
					Media:     "$RepresentationID$/$Time$.m4s",
				},
				Representations: []Representation{{ID: "v0"}},
			}},
		}},
	}
	period := &mpd.Periods[0]
	set := &period.AdaptationSets[0]
	choice := &Choice{Period: period, Set: set, Rep: &set.Representations[0]}

	resolved, err := Resolve(mpd, "https://cdn.example.com/live/manifest.mpd", choice, 0)
	require.NoError(t, err)

	// 10 s x 1000 timescale / 2000 per segment = 5 segments at times 0,
	// 2000, 4000, 6000, 8000.
	require.Len(t, resolved.SegmentURLs, 5)
	assert.Equal(t, "https://cdn.example.com/live/v0/0.m4s", resolved.SegmentURLs[0])
	assert.Equal(t, "https://cdn.example.com/live/v0/8000.m4s", resolved.SegmentURLs[4])
	assert.Empty(t, resolved.InitURL)
}

func TestResolveBaseURLFolding(t *testing.T) {
	mpd := &MPD{
		BaseURL: "https://edge.example.net/content/",
		Periods: []Period{{
			BaseURL: "period1/",
			AdaptationSets: []AdaptationSet{{
				MimeType: "video/mp4",
				SegmentTemplate: &SegmentTemplate{
					Media:    "seg_$Time$.m4s",
					Timeline: &SegmentTimeline{Segments: []TimelineSegment{{D: 1000}}},
				},
				Representations: []Representation{{ID: "v0", BaseURL: "video/"}},
			}},
		}},
	}
	period := &mpd.Periods[0]
	set := &period.AdaptationSets[0]
	choice := &Choice{Period: period, Set: set, Rep: &set.Representations[0]}

	resolved, err := Resolve(mpd, "https://origin.example.com/manifest.mpd", choice, 0)
	require.NoError(t, err)

	// The absolute MPD BaseURL replaces the manifest URL; period and
	// representation elements append.
	require.Len(t, resolved.SegmentURLs, 1)
	assert.Equal(t, "https://edge.example.net/content/period1/video/seg_0.m4s", resolved.SegmentURLs[0])
}

func TestResolveAbsoluteTemplateURLs(t *testing.T) {
	mpd, choice := timelineChoice("static", []TimelineSegment{{D: 1000}})
	choice.Set.SegmentTemplate.Media = "https://other.example.com/$RepresentationID$/$Time$.m4s"
	choice.Set.SegmentTemplate.Initialization = "https://other.example.com/$RepresentationID$/init.mp4"

	set, err := Resolve(mpd, "https://cdn.example.com/live/manifest.mpd", choice, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/v0/init.mp4", set.InitURL)
	assert.Equal(t, []string{"https://other.example.com/v0/0.m4s"}, set.SegmentURLs)
}

func TestResolveSegmentList(t *testing.T) {
	mpd := &MPD{
		BaseURL: "https://cdn.example.com/vod/stream1/",
		Periods: []Period{{
			AdaptationSets: []AdaptationSet{{
				MimeType: "video/mp4",
				Representations: []Representation{{
					ID: "v0",
					SegmentList: &SegmentList{
						Initialization: &URLType{SourceURL: "init.mp4"},
						SegmentURLs: []SegmentURLRef{
							{Media: "seg1.m4s"},
							{Media: "seg2.m4s"},
							{Media: "https://abs.example.com/seg3.m4s"},
						},
					},
				}},
			}},
		}},
	}
	period := &mpd.Periods[0]
	set := &period.AdaptationSets[0]
	choice := &Choice{Period: period, Set: set, Rep: &set.Representations[0]}

	resolved, err := Resolve(mpd, "https://origin.example.com/manifest.mpd", choice, 0)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/vod/stream1/init.mp4", resolved.InitURL)
	assert.Equal(t, []string{
		"https://cdn.example.com/vod/stream1/seg1.m4s",
		"https://cdn.example.com/vod/stream1/seg2.m4s",
		"https://abs.example.com/seg3.m4s",
	}, resolved.SegmentURLs)
}

func TestResolveBareBaseURL(t *testing.T) {
	mpd := &MPD{
		Periods: []Period{{
			AdaptationSets: []AdaptationSet{{
				MimeType: "video/mp4",
				Representations: []Representation{{
					ID:      "v0",
					BaseURL: "https://cdn.example.com/full/movie.mp4",
				}},
			}},
		}},
	}
	period := &mpd.Periods[0]
	set := &period.AdaptationSets[0]
	choice := &Choice{Period: period, Set: set, Rep: &set.Representations[0]}

	resolved, err := Resolve(mpd, "https://cdn.example.com/manifest.mpd", choice, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.com/full/movie.mp4"}, resolved.SegmentURLs)
}

func TestResolveUnsupported(t *testing.T) {
	mpd := &MPD{
		Periods: []Period{{
			AdaptationSets: []AdaptationSet{{
				MimeType:        "video/mp4",
				Representations: []Representation{{ID: "v0"}},
			}},
		}},
	}
	period := &mpd.Periods[0]
	set := &period.AdaptationSets[0]
	choice := &Choice{Period: period, Set: set, Rep: &set.Representations[0]}

	_, err := Resolve(mpd, "https://cdn.example.com/manifest.mpd", choice, 0)
	assert.ErrorIs(t, err, ErrRepresentationUnsupported)
}

func TestResolveNilChoice(t *testing.T) {
	set, err := Resolve(&MPD{}, "https://cdn.example.com/manifest.mpd", nil, 0)
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"PT4S", 4 * time.Second},
		{"PT1M30S", 90 * time.Second},
		{"PT2H", 2 * time.Hour},
		{"PT1H2M3S", time.Hour + 2*time.Minute + 3*time.Second},
		{"PT3.840S", 3840 * time.Millisecond},
		{"P1DT12H", 36 * time.Hour},
		{"PT0S", 0},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseISODuration(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseISODurationInvalid(t *testing.T) {
	for _, in := range []string{"", "4S", "PT", "PTXS", "P1Y", "PT5"} {
		t.Run(fmt.Sprintf("%q", in), func(t *testing.T) {
			_, err := ParseISODuration(in)
			assert.Error(t, err)
		})
	}
}
