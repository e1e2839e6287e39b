package httpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []int
		excludes []int
		wantNil  bool
		wantErr  bool
	}{
		{
			name:     "single code",
			input:    "200",
			contains: []int{200},
			excludes: []int{201, 404},
		},
		{
			name:     "multiple codes",
			input:    "200,404",
			contains: []int{200, 404},
			excludes: []int{201, 500},
		},
		{
			name:     "range",
			input:    "200-299",
			contains: []int{200, 250, 299},
			excludes: []int{199, 300},
		},
		{
			name:     "mixed range and codes",
			input:    "200-299,404",
			contains: []int{200, 299, 404},
			excludes: []int{300, 405},
		},
		{
			name:     "spaces are tolerated",
			input:    " 200 , 404 ",
			contains: []int{200, 404},
		},
		{
			name:    "empty string",
			input:   "",
			wantNil: true,
		},
		{
			name:    "only commas",
			input:   ",,",
			wantNil: true,
		},
		{
			name:    "invalid code",
			input:   "abc",
			wantErr: true,
		},
		{
			name:    "code out of bounds",
			input:   "99",
			wantErr: true,
		},
		{
			name:    "range out of bounds",
			input:   "200-600",
			wantErr: true,
		},
		{
			name:    "inverted range",
			input:   "299-200",
			wantErr: true,
		},
		{
			name:    "invalid range start",
			input:   "abc-299",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseStatusCodes(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			if tt.wantNil {
				assert.Nil(t, set)
				return
			}
			require.NotNil(t, set)

			for _, code := range tt.contains {
				assert.True(t, set.Contains(code), "expected set to contain %d", code)
			}
			for _, code := range tt.excludes {
				assert.False(t, set.Contains(code), "expected set to exclude %d", code)
			}
		})
	}
}

func TestMustParseStatusCodes(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		set := MustParseStatusCodes("200-299")
		assert.True(t, set.Contains(204))
	})

	t.Run("panics on invalid input", func(t *testing.T) {
		assert.Panics(t, func() {
			MustParseStatusCodes("not-a-code")
		})
	})
}

func TestStatusCodesFromSlice(t *testing.T) {
	set := StatusCodesFromSlice([]int{200, 404})
	assert.True(t, set.Contains(200))
	assert.True(t, set.Contains(404))
	assert.False(t, set.Contains(500))

	assert.Nil(t, StatusCodesFromSlice(nil))
}

func TestStatusCodeSet_AddAndRanges(t *testing.T) {
	set := NewStatusCodeSet()
	set.Add(404)
	set.AddRange(200, 299)

	assert.True(t, set.Contains(404))
	assert.True(t, set.Contains(200))
	assert.True(t, set.Contains(299))
	assert.False(t, set.Contains(300))
}

func TestStatusCodeSet_IsEmpty(t *testing.T) {
	var nilSet *StatusCodeSet
	assert.True(t, nilSet.IsEmpty())
	assert.False(t, nilSet.Contains(200))

	assert.True(t, NewStatusCodeSet().IsEmpty())

	set := NewStatusCodeSet()
	set.Add(200)
	assert.False(t, set.IsEmpty())
}

func TestStatusCodeSet_String(t *testing.T) {
	set := NewStatusCodeSet()
	set.AddRange(200, 299)
	assert.Equal(t, "200-299", set.String())

	set.Add(404)
	assert.Contains(t, set.String(), "200-299")
	assert.Contains(t, set.String(), "404")

	var nilSet *StatusCodeSet
	assert.Equal(t, "", nilSet.String())
}
