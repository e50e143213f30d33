package binning

import (
	"errors"
	"slices"
)

// ErrExhausted is returned by Next once every bin has been consumed.
var ErrExhausted = errors.New("allocation has no bins left")

// Allocation is the ordered bin list produced by one Allocate call.
// It is owned by a single consumer; Next removes bins from the front.
type Allocation struct {
	bins []*Bin
	end  int
}

// Bins returns the bins not yet consumed, in creation order.
func (a *Allocation) Bins() []*Bin {
	return slices.Clone(a.bins)
}

// Len returns the number of bins not yet consumed.
func (a *Allocation) Len() int {
	return len(a.bins)
}

// End is one past the last frame of the last keyframe range.
func (a *Allocation) End() int {
	return a.end
}

// Next pops the first bin.
func (a *Allocation) Next() (*Bin, error) {
	if len(a.bins) == 0 {
		return nil, ErrExhausted
	}
	b := a.bins[0]
	a.bins[0] = nil
	a.bins = a.bins[1:]
	return b, nil
}
