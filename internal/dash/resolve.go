package dash

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrRepresentationUnsupported is returned when a representation carries no
// segment addressing information at all (no template, no list, no BaseURL).
// The pipeline logs it and stays active; a later manifest may be usable.
var ErrRepresentationUnsupported = errors.New("representation has no usable segment information")

// DefaultLiveEdge is the number of trailing segments kept from a dynamic
// manifest. Live sources advertise a long sliding window; fetching all of it
// on every tick would re-download history the playlist no longer needs.
const DefaultLiveEdge = 20

// Template placeholders substituted during URL expansion.
const (
	placeholderRepID = "$RepresentationID$"
	placeholderTime  = "$Time$"
)

// MediaSet is the resolved download plan for one representation: an optional
// initialization segment URL and the media segment URLs in presentation
// order. SegmentURLs may be empty for a representation between timeline
// windows; that is not an error.
type MediaSet struct {
	InitURL     string
	SegmentURLs []string
	Rep         *Representation
}

// Plan pairs the resolved video and audio media sets for one manifest fetch.
// A nil side means selection or resolution produced nothing for it.
type Plan struct {
	Video *MediaSet
	Audio *MediaSet
}

// Resolve expands a selected representation into absolute segment URLs.
//
// The effective base URL is a left fold over manifest URL, MPD BaseURL,
// period BaseURL, and representation BaseURL: an absolute element replaces
// the accumulator, a relative one is appended after stripping the
// accumulator's trailing slash. Segment and init URLs produced from
// templates resolve against that base with standard relative-reference
// semantics.
//
// liveEdge caps the segment count for dynamic manifests; values <= 0 use
// DefaultLiveEdge.
func Resolve(mpd *MPD, manifestURL string, c *Choice, liveEdge int) (*MediaSet, error) {
	if c == nil || c.Rep == nil {
		return nil, nil
	}
	if liveEdge <= 0 {
		liveEdge = DefaultLiveEdge
	}

	base := manifestURL
	base = foldBaseURL(base, mpd.BaseURL)
	if c.Period != nil {
		base = foldBaseURL(base, c.Period.BaseURL)
	}
	base = foldBaseURL(base, c.Rep.BaseURL)

	set := &MediaSet{Rep: c.Rep}

	switch {
	case c.Rep.Template(c.Set) != nil:
		if err := resolveTemplate(mpd, c, base, liveEdge, set); err != nil {
			return nil, err
		}

	case c.Rep.SegmentList != nil:
		resolveSegmentList(c.Rep.SegmentList, base, set)

	case c.Rep.BaseURL != "":
		// Single-file representation: the folded base is the media itself.
		set.SegmentURLs = []string{base}

	default:
		return nil, fmt.Errorf("%w: representation %q", ErrRepresentationUnsupported, c.Rep.ID)
	}

	if mpd.IsDynamic() && len(set.SegmentURLs) > liveEdge {
		set.SegmentURLs = set.SegmentURLs[len(set.SegmentURLs)-liveEdge:]
	}

	return set, nil
}

// resolveTemplate expands a SegmentTemplate into init and media URLs.
func resolveTemplate(mpd *MPD, c *Choice, base string, liveEdge int, out *MediaSet) error {
	tpl := c.Rep.Template(c.Set)

	if tpl.Initialization != "" {
		initURL := strings.ReplaceAll(tpl.Initialization, placeholderRepID, c.Rep.ID)
		resolved, err := resolveRef(base, initURL)
		if err != nil {
			return fmt.Errorf("resolving init URL: %w", err)
		}
		out.InitURL = resolved
	}

	if tpl.Media == "" {
		return nil
	}

	times := segmentTimes(mpd, c, tpl, liveEdge)
	for _, t := range times {
		u := strings.ReplaceAll(tpl.Media, placeholderRepID, c.Rep.ID)
		u = strings.ReplaceAll(u, placeholderTime, strconv.FormatUint(t, 10))
		resolved, err := resolveRef(base, u)
		if err != nil {
			return fmt.Errorf("resolving segment URL: %w", err)
		}
		out.SegmentURLs = append(out.SegmentURLs, resolved)
	}

	return nil
}

// segmentTimes produces the $Time$ values for a template, either from its
// explicit timeline or synthesized from period duration and segment duration.
func segmentTimes(mpd *MPD, c *Choice, tpl *SegmentTemplate, liveEdge int) []uint64 {
	if tpl.Timeline != nil && len(tpl.Timeline.Segments) > 0 {
		return ExpandTimeline(tpl.Timeline)
	}

	duration := tpl.Duration
	if duration == 0 {
		duration = 1
	}
	timescale := tpl.Timescale
	if timescale == 0 {
		timescale = 1
	}

	periodDur := 60 * time.Second
	if c.Period != nil && c.Period.Duration != "" {
		if d, err := ParseISODuration(c.Period.Duration); err == nil {
			periodDur = d
		}
	} else if mpd.MediaPresentationDuration != "" {
		if d, err := ParseISODuration(mpd.MediaPresentationDuration); err == nil {
			periodDur = d
		}
	}

	count := int(periodDur.Seconds() * float64(timescale) / float64(duration))
	if mpd.IsDynamic() && count > liveEdge {
		count = liveEdge
	}

	times := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		times = append(times, uint64(i)*duration)
	}
	return times
}

// ExpandTimeline flattens a SegmentTimeline into the start time of every
// segment. The cursor starts at the first entry's t (zero when absent); each
// entry contributes r+1 segments stepping by d.
func ExpandTimeline(tl *SegmentTimeline) []uint64 {
	if tl == nil || len(tl.Segments) == 0 {
		return nil
	}

	times := make([]uint64, 0, len(tl.Segments))
	cursor := tl.Segments[0].T

	for _, s := range tl.Segments {
		repeat := s.R
		if repeat < 0 {
			repeat = 0
		}
		for i := 0; i <= repeat; i++ {
			times = append(times, cursor)
			cursor += s.D
		}
	}

	return times
}

// resolveSegmentList collects explicit SegmentURL entries.
func resolveSegmentList(list *SegmentList, base string, out *MediaSet) {
	if list.Initialization != nil && list.Initialization.SourceURL != "" {
		out.InitURL = joinRelative(base, list.Initialization.SourceURL)
	}
	for _, su := range list.SegmentURLs {
		if su.Media == "" {
			continue
		}
		out.SegmentURLs = append(out.SegmentURLs, joinRelative(base, su.Media))
	}
}

// foldBaseURL merges one BaseURL element into the accumulated base.
func foldBaseURL(acc, elem string) string {
	if elem == "" {
		return acc
	}
	if strings.HasPrefix(elem, "http") {
		return elem
	}
	return strings.TrimRight(acc, "/") + "/" + elem
}

// joinRelative appends a relative path to base unless it is already absolute.
func joinRelative(base, ref string) string {
	if strings.HasPrefix(ref, "http") {
		return ref
	}
	return strings.TrimRight(base, "/") + "/" + ref
}

// resolveRef resolves ref against base using relative-reference semantics:
// the final path component of base is replaced, not extended.
func resolveRef(base, ref string) (string, error) {
	if strings.HasPrefix(ref, "http") {
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing reference %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

// ParseISODuration parses the ISO-8601 duration subset DASH manifests use:
// P[nD][T[nH][nM][n[.n]S]]. The sign and week/month/year designators are not
// supported.
func ParseISODuration(s string) (time.Duration, error) {
	orig := s
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid ISO duration %q", orig)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	parsed := false
	num := ""

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == 'T':
			inTime = true
		case (ch >= '0' && ch <= '9') || ch == '.':
			num += string(ch)
		default:
			if num == "" {
				return 0, fmt.Errorf("invalid ISO duration %q", orig)
			}
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid ISO duration %q: %w", orig, err)
			}
			num = ""
			switch {
			case ch == 'D' && !inTime:
				total += time.Duration(val * 24 * float64(time.Hour))
			case ch == 'H' && inTime:
				total += time.Duration(val * float64(time.Hour))
			case ch == 'M' && inTime:
				total += time.Duration(val * float64(time.Minute))
			case ch == 'S' && inTime:
				total += time.Duration(val * float64(time.Second))
			default:
				return 0, fmt.Errorf("invalid ISO duration %q: unexpected designator %q", orig, string(ch))
			}
			parsed = true
		}
	}

	if num != "" {
		return 0, fmt.Errorf("invalid ISO duration %q: trailing number", orig)
	}
	if !parsed {
		return 0, fmt.Errorf("invalid ISO duration %q: no components", orig)
	}

	return total, nil
}
