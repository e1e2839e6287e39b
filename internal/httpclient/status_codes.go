package httpclient

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusCodeRange represents a range of HTTP status codes (inclusive).
type StatusCodeRange struct {
	Lo int
	Hi int
}

// Contains returns true if the code falls within this range.
func (r StatusCodeRange) Contains(code int) bool {
	return code >= r.Lo && code <= r.Hi
}

// StatusCodeSet represents a set of acceptable HTTP status codes.
// It supports both individual codes and ranges.
//
// Example formats:
//   - "200" - single code
//   - "200,404" - multiple codes
//   - "200-299" - range (inclusive)
//   - "200-299,404" - mixed ranges and codes
type StatusCodeSet struct {
	codes  map[int]struct{}
	ranges []StatusCodeRange
}

// NewStatusCodeSet creates an empty StatusCodeSet.
func NewStatusCodeSet() *StatusCodeSet {
	return &StatusCodeSet{
		codes: make(map[int]struct{}),
	}
}

// ParseStatusCodes parses a string like "200-299,404" into a StatusCodeSet.
// Returns nil if the input is empty.
func ParseStatusCodes(s string) (*StatusCodeSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	set := NewStatusCodeSet()

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.SplitN(part, "-", 2)
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid range format: %q", part)
			}

			lo, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid range start %q: %w", rangeParts[0], err)
			}

			hi, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid range end %q: %w", rangeParts[1], err)
			}

			if lo > hi {
				return nil, fmt.Errorf("invalid range %d-%d: start > end", lo, hi)
			}

			if lo < 100 || hi > 599 {
				return nil, fmt.Errorf("invalid HTTP status code range %d-%d: must be 100-599", lo, hi)
			}

			set.ranges = append(set.ranges, StatusCodeRange{Lo: lo, Hi: hi})
		} else {
			code, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid status code %q: %w", part, err)
			}

			if code < 100 || code > 599 {
				return nil, fmt.Errorf("invalid HTTP status code %d: must be 100-599", code)
			}

			set.codes[code] = struct{}{}
		}
	}

	if len(set.codes) == 0 && len(set.ranges) == 0 {
		return nil, nil
	}

	return set, nil
}

// MustParseStatusCodes is like ParseStatusCodes but panics on error.
// Use only for compile-time constants.
func MustParseStatusCodes(s string) *StatusCodeSet {
	set, err := ParseStatusCodes(s)
	if err != nil {
		panic(err)
	}
	return set
}

// StatusCodesFromSlice creates a StatusCodeSet from a slice of individual codes.
func StatusCodesFromSlice(codes []int) *StatusCodeSet {
	if len(codes) == 0 {
		return nil
	}

	set := NewStatusCodeSet()
	for _, code := range codes {
		set.codes[code] = struct{}{}
	}
	return set
}

// Add adds an individual status code to the set.
func (s *StatusCodeSet) Add(code int) {
	if s.codes == nil {
		s.codes = make(map[int]struct{})
	}
	s.codes[code] = struct{}{}
}

// AddRange adds a range of status codes to the set.
func (s *StatusCodeSet) AddRange(lo, hi int) {
	s.ranges = append(s.ranges, StatusCodeRange{Lo: lo, Hi: hi})
}

// Contains returns true if the status code is in the set.
func (s *StatusCodeSet) Contains(code int) bool {
	if s == nil {
		return false
	}

	if _, ok := s.codes[code]; ok {
		return true
	}

	for _, r := range s.ranges {
		if r.Contains(code) {
			return true
		}
	}

	return false
}

// IsEmpty returns true if the set has no codes or ranges.
func (s *StatusCodeSet) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.codes) == 0 && len(s.ranges) == 0
}

// String returns a string representation of the set.
func (s *StatusCodeSet) String() string {
	if s.IsEmpty() {
		return ""
	}

	var parts []string

	for _, r := range s.ranges {
		if r.Lo == r.Hi {
			parts = append(parts, strconv.Itoa(r.Lo))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", r.Lo, r.Hi))
		}
	}

	for code := range s.codes {
		parts = append(parts, strconv.Itoa(code))
	}

	return strings.Join(parts, ",")
}
