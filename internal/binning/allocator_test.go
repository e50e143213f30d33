package binning

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/ipbin/internal/schedule"
	"github.com/ivlev/ipbin/internal/tensor"
)

type fakePreparer struct {
	n          int
	calls      []int
	highDetail []bool
	failOn     int
}

func newFakePreparer(n int) *fakePreparer {
	return &fakePreparer{n: n, failOn: -1}
}

func (p *fakePreparer) Len() int { return p.n }

func (p *fakePreparer) Prepare(index int, highDetail bool) (Content, error) {
	p.calls = append(p.calls, index)
	p.highDetail = append(p.highDetail, highDetail)
	if index == p.failOn {
		return Content{}, errors.New("decode failed")
	}
	img := tensor.New(1, 3, 1, 1)
	img.Data[0] = float32(index)
	c := Content{Image: img}
	if highDetail {
		d := tensor.New(1, 3, 2, 2)
		c.Detail = &d
	}
	return c, nil
}

func keyframes(positions []int, weights ...float64) schedule.Keyframes {
	if len(weights) == 0 {
		weights = make([]float64, len(positions))
		for i := range weights {
			weights[i] = 1
		}
	}
	return schedule.Keyframes{Positions: positions, Weights: weights}
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAllocateFillsFirstBinToCapacity(t *testing.T) {
	p := newFakePreparer(3)
	alloc, err := NewAllocator(p, nil).Allocate(Request{
		Keyframes:       keyframes([]int{0, 16, 32, 48}),
		MaxFramesPerBin: 32,
	})
	require.NoError(t, err)

	bins := alloc.Bins()
	require.Len(t, bins, 2)

	assert.Equal(t, 16, bins[0].Start())
	assert.Equal(t, 48, bins[0].End())
	assert.Equal(t, []int{0, 1}, bins[0].Sources())
	assert.Equal(t, append(repeat(0, 16), repeat(1, 16)...), bins[0].FrameMembers())

	assert.Equal(t, 48, bins[1].Start())
	assert.Equal(t, 80, bins[1].End())
	assert.Equal(t, []int{2}, bins[1].Sources())

	assert.Equal(t, 80, alloc.End())
	assert.Equal(t, []int{0, 1, 2}, p.calls)

	_, _, ok := bins[0].At(15)
	assert.False(t, ok, "frames before the first real keyframe stay unassigned")
}

func TestAllocateLastKeyframeSpansCapacity(t *testing.T) {
	alloc, err := NewAllocator(newFakePreparer(1), nil).Allocate(Request{
		Keyframes:       keyframes([]int{0, 10}, 1, 0.5),
		MaxFramesPerBin: 5,
	})
	require.NoError(t, err)

	bins := alloc.Bins()
	require.Len(t, bins, 1)
	assert.Equal(t, 10, bins[0].Start())
	assert.Equal(t, 15, bins[0].End())
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5, 0.5}, bins[0].FrameWeights())
}

func TestAllocateDeduplicatesSourceWithinBin(t *testing.T) {
	p := newFakePreparer(4)
	alloc, err := NewAllocator(p, nil).Allocate(Request{
		Keyframes:       keyframes([]int{0, 4, 8, 12, 16, 20}),
		Sources:         []int{3, 1, 2, 3, 0},
		MaxFramesPerBin: 100,
	})
	require.NoError(t, err)

	bins := alloc.Bins()
	require.Len(t, bins, 2)
	assert.Equal(t, []int{3, 1, 2}, bins[0].Sources())

	members := bins[0].FrameMembers()
	assert.Equal(t, repeat(0, 4), members[0:4])
	assert.Equal(t, repeat(0, 4), members[12:16])
	assert.Equal(t, float32(3), bins[0].Members()[0].Content.Image.Data[0])

	assert.Equal(t, []int{0}, bins[1].Sources())
	assert.Equal(t, []int{3, 1, 2, 3, 0}, p.calls, "content is prepared once per keyframe")
}

func TestAllocateRejectsMismatchedLengths(t *testing.T) {
	p := newFakePreparer(3)
	alloc, err := NewAllocator(p, nil).Allocate(Request{
		Keyframes:       keyframes([]int{0, 16, 32}, 1, 1),
		MaxFramesPerBin: 32,
	})
	assert.ErrorIs(t, err, schedule.ErrMismatchedLengths)
	assert.Nil(t, alloc)
	assert.Empty(t, p.calls)
}

func TestAllocateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		n    int
		want error
	}{
		{"zero capacity", Request{Keyframes: keyframes([]int{0, 8}), MaxFramesPerBin: 0}, 1, ErrInvalidCapacity},
		{"negative capacity", Request{Keyframes: keyframes([]int{0, 8}), MaxFramesPerBin: -3}, 1, ErrInvalidCapacity},
		{"non-monotonic", Request{Keyframes: keyframes([]int{0, 8, 8}), MaxFramesPerBin: 8}, 2, schedule.ErrNonMonotonic},
		{"negative position", Request{Keyframes: keyframes([]int{-1, 8}), MaxFramesPerBin: 8}, 1, schedule.ErrNegativePosition},
		{"too few sources", Request{Keyframes: keyframes([]int{0, 8, 16}), MaxFramesPerBin: 8}, 1, ErrSourceOutOfRange},
		{"source index too large", Request{Keyframes: keyframes([]int{0, 8}), Sources: []int{4}, MaxFramesPerBin: 8}, 2, ErrSourceOutOfRange},
		{"negative source index", Request{Keyframes: keyframes([]int{0, 8}), Sources: []int{-1}, MaxFramesPerBin: 8}, 2, ErrSourceOutOfRange},
		{"source list length", Request{Keyframes: keyframes([]int{0, 8, 16}), Sources: []int{0}, MaxFramesPerBin: 8}, 2, ErrSourceCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePreparer(tt.n)
			_, err := NewAllocator(p, nil).Allocate(tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, p.calls)
		})
	}
}

func TestAllocateWithoutPreparer(t *testing.T) {
	_, err := (&Allocator{}).Allocate(Request{MaxFramesPerBin: 1})
	assert.ErrorIs(t, err, ErrNoPreparer)
}

func TestAllocateFewerThanTwoKeyframes(t *testing.T) {
	for _, positions := range [][]int{nil, {0}} {
		alloc, err := NewAllocator(newFakePreparer(0), nil).Allocate(Request{
			Keyframes:       keyframes(positions),
			MaxFramesPerBin: 16,
		})
		require.NoError(t, err)
		require.Equal(t, 1, alloc.Len())
		assert.True(t, alloc.Bins()[0].Empty())
		assert.Zero(t, alloc.End())
	}
}

func TestAllocateOversizedRange(t *testing.T) {
	alloc, err := NewAllocator(newFakePreparer(2), nil).Allocate(Request{
		Keyframes:       keyframes([]int{0, 10, 50}),
		MaxFramesPerBin: 32,
	})
	require.NoError(t, err)

	bins := alloc.Bins()
	require.Len(t, bins, 2)

	// The oversized range opens a bin of its own; the following range
	// still fits the untouched first bin.
	assert.Equal(t, 10, bins[1].Start())
	assert.Equal(t, 40, bins[1].Len())
	assert.Equal(t, []int{0}, bins[1].Sources())

	assert.Equal(t, 50, bins[0].Start())
	assert.Equal(t, 32, bins[0].Len())
	assert.Equal(t, []int{1}, bins[0].Sources())
}

func TestAllocatePassesHighDetail(t *testing.T) {
	p := newFakePreparer(2)
	alloc, err := NewAllocator(p, nil).Allocate(Request{
		Keyframes:       keyframes([]int{0, 4, 8}),
		MaxFramesPerBin: 16,
		HighDetail:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, p.highDetail)
	assert.NotNil(t, alloc.Bins()[0].Members()[0].Content.Detail)
}

func TestAllocatePropagatesPrepareError(t *testing.T) {
	p := newFakePreparer(3)
	p.failOn = 1
	alloc, err := NewAllocator(p, nil).Allocate(Request{
		Keyframes:       keyframes([]int{0, 4, 8, 12}),
		MaxFramesPerBin: 16,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "prepare source 1 for keyframe 2")
	assert.Nil(t, alloc)
}

func randomRequest(r *rand.Rand) (Request, int) {
	n := 2 + r.Intn(30)
	capacity := 1 + r.Intn(40)
	positions := make([]int, n)
	weights := make([]float64, n)
	pos := r.Intn(10)
	for i := range positions {
		positions[i] = pos
		weights[i] = r.Float64()
		pos += 1 + r.Intn(capacity+8)
	}
	sources := make([]int, n-1)
	for i := range sources {
		sources[i] = r.Intn(5)
	}
	return Request{
		Keyframes:       schedule.Keyframes{Positions: positions, Weights: weights},
		Sources:         sources,
		MaxFramesPerBin: capacity,
	}, 5
}

func TestAllocateProperties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		req, n := randomRequest(r)
		alloc, err := NewAllocator(newFakePreparer(n), nil).Allocate(req)
		require.NoError(t, err)

		ranges := req.Keyframes.Ranges(req.MaxFramesPerBin)
		first := ranges[0].Start
		owner := map[int]int{}

		for bi, b := range alloc.Bins() {
			members := b.FrameMembers()
			weights := b.FrameWeights()
			require.Equal(t, len(members), len(weights), "dense maps stay aligned")

			oversized := false
			for _, rg := range ranges {
				if rg.Start >= b.Start() && rg.End <= b.End() && rg.Len() > req.MaxFramesPerBin {
					oversized = true
				}
			}
			if !oversized {
				assert.LessOrEqual(t, b.Len(), req.MaxFramesPerBin, "capacity, iteration %d", iter)
			}

			sources := b.Sources()
			seen := map[int]bool{}
			for _, s := range sources {
				assert.False(t, seen[s], "duplicate member %d", s)
				seen[s] = true
			}

			for f := b.Start(); f < b.End(); f++ {
				prev, dup := owner[f]
				assert.False(t, dup, "frame %d in bins %d and %d", f, prev, bi)
				owner[f] = bi
			}
		}

		for f := first; f < alloc.End(); f++ {
			_, ok := owner[f]
			assert.True(t, ok, "frame %d unassigned, iteration %d", f, iter)
		}
		assert.Len(t, owner, alloc.End()-first)

		for i, rg := range ranges {
			bi := owner[rg.Start]
			b := alloc.Bins()[bi]
			for f := rg.Start; f < rg.End; f++ {
				slot, w, ok := b.At(f)
				require.True(t, ok)
				assert.Equal(t, rg.Weight, w)
				assert.Equal(t, req.Sources[i], b.Sources()[slot])
			}
		}
	}
}

func TestAllocateDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for iter := 0; iter < 50; iter++ {
		req, n := randomRequest(r)
		a, err := NewAllocator(newFakePreparer(n), nil).Allocate(req)
		require.NoError(t, err)
		b, err := NewAllocator(newFakePreparer(n), nil).Allocate(req)
		require.NoError(t, err)

		require.Equal(t, a.Len(), b.Len())
		for i := range a.Bins() {
			x, y := a.Bins()[i], b.Bins()[i]
			assert.Equal(t, x.Sources(), y.Sources())
			assert.Equal(t, x.Start(), y.Start())
			assert.Equal(t, x.FrameMembers(), y.FrameMembers())
			assert.Equal(t, x.FrameWeights(), y.FrameWeights())
		}
	}
}

// nextFitBins counts bins for contiguous ranges packed greedily by span,
// which is optimal when every range fits the capacity on its own.
func nextFitBins(ranges []schedule.Range, capacity int) int {
	count, start := 0, -1
	for _, rg := range ranges {
		if start < 0 || rg.End-start > capacity {
			count++
			start = rg.Start
		}
	}
	return count
}

func TestAllocateFirstFitMatchesMinimum(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for iter := 0; iter < 100; iter++ {
		capacity := 1 + r.Intn(40)
		n := 2 + r.Intn(20)
		positions := make([]int, n)
		pos := 0
		for i := range positions {
			positions[i] = pos
			pos += 1 + r.Intn(capacity)
		}
		req := Request{Keyframes: keyframes(positions), MaxFramesPerBin: capacity}

		alloc, err := NewAllocator(newFakePreparer(n), nil).Allocate(req)
		require.NoError(t, err)
		assert.Equal(t, nextFitBins(req.Keyframes.Ranges(capacity), capacity), alloc.Len())
	}
}

func TestAllocationNext(t *testing.T) {
	alloc, err := NewAllocator(newFakePreparer(3), nil).Allocate(Request{
		Keyframes:       keyframes([]int{0, 16, 32, 48}),
		MaxFramesPerBin: 32,
	})
	require.NoError(t, err)

	first, err := alloc.Next()
	require.NoError(t, err)
	assert.Equal(t, 16, first.Start())
	assert.Equal(t, 1, alloc.Len())

	second, err := alloc.Next()
	require.NoError(t, err)
	assert.Equal(t, 48, second.Start())

	_, err = alloc.Next()
	assert.ErrorIs(t, err, ErrExhausted)
}
