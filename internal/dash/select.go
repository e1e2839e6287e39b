package dash

// Choice identifies one selected representation together with its enclosing
// period and adaptation set, which the resolver needs for BaseURL folding and
// template inheritance.
type Choice struct {
	Period *Period
	Set    *AdaptationSet
	Rep    *Representation
}

// Selection holds the chosen video and audio representations. Either side may
// be nil when the manifest offers nothing suitable; callers treat a nil side
// as "skip this iteration".
type Selection struct {
	Video *Choice
	Audio *Choice
}

// Select picks one video and one audio representation from the manifest.
//
// Representations are numbered in document order with a single counter per
// period that runs across adaptation set boundaries. A representation in a
// video-typed set whose number equals videoIndex becomes the video choice;
// likewise audioIndex for audio-typed sets. Sources that always publish the
// same lineup make specific indices a stable quality pick.
//
// When an index does not land on a matching representation, the fallback is
// the highest declared bandwidth in the first video set and the first
// representation of the first audio set.
func Select(mpd *MPD, videoIndex, audioIndex int) Selection {
	var sel Selection

	for p := range mpd.Periods {
		period := &mpd.Periods[p]
		k := 0
		for a := range period.AdaptationSets {
			set := &period.AdaptationSets[a]
			for r := range set.Representations {
				rep := &set.Representations[r]
				if set.IsVideo() && k == videoIndex && sel.Video == nil {
					sel.Video = &Choice{Period: period, Set: set, Rep: rep}
				} else if set.IsAudio() && k == audioIndex && sel.Audio == nil {
					sel.Audio = &Choice{Period: period, Set: set, Rep: rep}
				}
				k++
			}
		}
	}

	if sel.Video != nil && sel.Audio != nil {
		return sel
	}

	// Fallback pass: best available instead of fixed position.
	for p := range mpd.Periods {
		period := &mpd.Periods[p]
		for a := range period.AdaptationSets {
			set := &period.AdaptationSets[a]
			switch {
			case set.IsVideo() && sel.Video == nil:
				if best := maxBandwidth(set); best != nil {
					sel.Video = &Choice{Period: period, Set: set, Rep: best}
				}
			case set.IsAudio() && sel.Audio == nil:
				if len(set.Representations) > 0 {
					sel.Audio = &Choice{Period: period, Set: set, Rep: &set.Representations[0]}
				}
			}
		}
	}

	return sel
}

// maxBandwidth returns the representation with the highest declared bandwidth
// in the set, or nil for an empty set.
func maxBandwidth(set *AdaptationSet) *Representation {
	var best *Representation
	bestBW := -1
	for i := range set.Representations {
		if set.Representations[i].Bandwidth > bestBW {
			bestBW = set.Representations[i].Bandwidth
			best = &set.Representations[i]
		}
	}
	return best
}
