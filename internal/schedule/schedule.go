// Package schedule parses sparse keyframe schedules and turns them into frame ranges.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMismatchedLengths = errors.New("keyframe positions and weights differ in length")
	ErrNonMonotonic      = errors.New("keyframe positions must be strictly increasing")
	ErrNegativePosition  = errors.New("keyframe positions must be non-negative")
	ErrSyntax            = errors.New("malformed schedule")
)

// Keyframes is a sparse schedule of (position, weight) pairs.
// Positions[0] is a buffer marker and never receives a frame range.
type Keyframes struct {
	Positions []int
	Weights   []float64
}

// Range is a half-open frame interval [Start, End) governed by one keyframe.
type Range struct {
	Keyframe int // index into Keyframes, >= 1
	Start    int
	End      int
	Weight   float64
}

func (r Range) Len() int {
	return r.End - r.Start
}

// Parse reads comma-separated positions and weights, e.g. "0,16,32,48" and "1,1,1,1".
func Parse(positions, weights string) (Keyframes, error) {
	pos, err := ParseInts(positions)
	if err != nil {
		return Keyframes{}, fmt.Errorf("keyframe positions: %w", err)
	}
	ws, err := ParseFloats(weights)
	if err != nil {
		return Keyframes{}, fmt.Errorf("weights: %w", err)
	}
	k := Keyframes{Positions: pos, Weights: ws}
	if err := k.Validate(); err != nil {
		return Keyframes{}, err
	}
	return k, nil
}

// ParseInts splits a comma-separated list of integers. An empty string yields nil.
func ParseInts(s string) ([]int, error) {
	fields := splitList(s)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrSyntax, f)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// ParseFloats splits a comma-separated list of reals. An empty string yields nil.
func ParseFloats(s string) ([]float64, error) {
	fields := splitList(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrSyntax, f)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Len returns the number of keyframes including the buffer marker.
func (k Keyframes) Len() int {
	return len(k.Positions)
}

// Validate rejects schedules that break the input contract.
func (k Keyframes) Validate() error {
	if len(k.Positions) != len(k.Weights) {
		return fmt.Errorf("%w: %d positions, %d weights", ErrMismatchedLengths, len(k.Positions), len(k.Weights))
	}
	for i, p := range k.Positions {
		if p < 0 {
			return fmt.Errorf("%w: position[%d] = %d", ErrNegativePosition, i, p)
		}
		if i > 0 && p <= k.Positions[i-1] {
			return fmt.Errorf("%w: position[%d] = %d after %d", ErrNonMonotonic, i, p, k.Positions[i-1])
		}
	}
	return nil
}

// Ranges lists the frame range of every keyframe after the buffer marker.
// The last keyframe is open-ended and receives exactly openSpan frames.
func (k Keyframes) Ranges(openSpan int) []Range {
	if len(k.Positions) < 2 {
		return nil
	}
	ranges := make([]Range, 0, len(k.Positions)-1)
	for i := 1; i < len(k.Positions); i++ {
		start := k.Positions[i]
		end := start + openSpan
		if i < len(k.Positions)-1 {
			end = k.Positions[i+1]
		}
		ranges = append(ranges, Range{Keyframe: i, Start: start, End: end, Weight: k.Weights[i]})
	}
	return ranges
}

// Even builds count positions spaced by interval, starting at offset, all with weight.
func Even(offset, interval, count int, weight float64) Keyframes {
	k := Keyframes{
		Positions: make([]int, count),
		Weights:   make([]float64, count),
	}
	for i := 0; i < count; i++ {
		k.Positions[i] = offset + i*interval
		k.Weights[i] = weight
	}
	return k
}

// String renders the schedule back into the comma-separated form.
func (k Keyframes) String() string {
	var pos, ws strings.Builder
	for i := range k.Positions {
		if i > 0 {
			pos.WriteByte(',')
			ws.WriteByte(',')
		}
		pos.WriteString(strconv.Itoa(k.Positions[i]))
		if i < len(k.Weights) {
			ws.WriteString(strconv.FormatFloat(k.Weights[i], 'g', -1, 64))
		}
	}
	return pos.String() + " @ " + ws.String()
}
