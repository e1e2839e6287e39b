package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		// Standard Go format
		{"hours", "168h", 168 * time.Hour, false},
		{"minutes", "30m", 30 * time.Minute, false},
		{"seconds", "45s", 45 * time.Second, false},
		{"milliseconds", "100ms", 100 * time.Millisecond, false},
		{"combined standard", "1h30m", 90 * time.Minute, false},

		// Days
		{"days short", "7d", 7 * Day, false},
		{"days and hours", "1d12h", 36 * time.Hour, false},
		{"day singular", "1 day", Day, false},
		{"days plural", "7 days", 7 * Day, false},
		{"days no space", "7days", 7 * Day, false},

		// Weeks
		{"weeks short", "2w", 2 * Week, false},
		{"wk abbrev", "2wk", 2 * Week, false},
		{"week singular", "1 week", Week, false},
		{"weeks plural", "2 weeks", 2 * Week, false},

		// Combinations
		{"weeks and days", "1w2d", 9 * Day, false},
		{"weeks days hours", "1w2d12h", 9*Day + 12*time.Hour, false},
		{"full combo", "1w2d3h4m5s", 9*Day + 3*time.Hour + 4*time.Minute + 5*time.Second, false},
		{"words and short", "1 week 2 days 3h", 9*Day + 3*time.Hour, false},

		// Word units
		{"hours word", "3 hours", 3 * time.Hour, false},
		{"minutes word", "30 minutes", 30 * time.Minute, false},
		{"seconds word", "45 seconds", 45 * time.Second, false},

		// Case insensitive
		{"DAYS uppercase", "7DAYS", 7 * Day, false},
		{"Weeks mixed", "2Weeks", 2 * Week, false},

		// Zero and negative
		{"zero", "0s", 0, false},
		{"negative days", "-7d", -7 * Day, false},
		{"negative hours", "-12h", -12 * time.Hour, false},

		// Errors
		{"empty", "", 0, true},
		{"garbage", "not a duration", 0, true},
		{"bare number", "42", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d, "Parse(%q) = %v, want %v", tt.input, d, tt.expected)
		})
	}
}

func TestMustParse(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, 7*Day, MustParse("7d"))
	})

	assert.Panics(t, func() {
		MustParse("bogus")
	})
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{"zero", 0, "0s"},
		{"seconds", 45 * time.Second, "45s"},
		{"minutes", 30 * time.Minute, "30m"},
		{"hours", 3 * time.Hour, "3h"},
		{"days", 2 * Day, "2d"},
		{"weeks", 2 * Week, "2w"},
		{"week day hour", Week + Day + time.Hour, "1w1d1h"},
		{"skips zero components", time.Hour + 10*time.Second, "1h10s"},
		{"retention week", 168 * time.Hour, "1w"},
		{"milliseconds", 250 * time.Millisecond, "250ms"},
		{"negative", -90 * time.Minute, "-1h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.input))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	durations := []time.Duration{
		0,
		time.Second,
		90 * time.Minute,
		Day,
		Week,
		168 * time.Hour,
		Week + 2*Day + 3*time.Hour,
	}

	for _, d := range durations {
		parsed, err := Parse(Format(d))
		require.NoError(t, err, "Parse(Format(%v)) failed", d)
		assert.Equal(t, d, parsed, "round trip failed for %v", d)
	}
}
