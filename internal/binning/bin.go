package binning

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ivlev/ipbin/internal/schedule"
	"github.com/ivlev/ipbin/internal/tensor"
)

// ErrRangeBeforeBin is returned when a range starts before the bin's first frame.
var ErrRangeBeforeBin = errors.New("range starts before the bin")

// Content is the prepared form of one source item.
// Detail and the noise tensors are nil when the mode or settings do not ask for them.
type Content struct {
	Image       tensor.Tensor
	Detail      *tensor.Tensor
	Noise       *tensor.Tensor
	DetailNoise *tensor.Tensor
}

// Member is one deduplicated slot of a bin.
type Member struct {
	Source  int
	Content Content
}

// Bin groups the schedules of several keyframes into one dense frame map.
// frameMember[i] and frameWeight[i] describe frame start+i.
type Bin struct {
	members     []Member
	start       int
	frameMember []int
	frameWeight []float64
}

// Members returns the slots in first-use order.
func (b *Bin) Members() []Member {
	return slices.Clone(b.members)
}

// Sources returns the source index of every slot, in slot order.
func (b *Bin) Sources() []int {
	out := make([]int, len(b.members))
	for i, m := range b.members {
		out[i] = m.Source
	}
	return out
}

// Start is the first frame covered by the bin.
func (b *Bin) Start() int {
	return b.start
}

// End is one past the last frame covered by the bin.
func (b *Bin) End() int {
	return b.start + len(b.frameMember)
}

// Len is the number of frames the bin spans.
func (b *Bin) Len() int {
	return len(b.frameMember)
}

func (b *Bin) Empty() bool {
	return len(b.frameMember) == 0
}

// FrameMembers returns the slot index of every frame from Start to End.
func (b *Bin) FrameMembers() []int {
	return slices.Clone(b.frameMember)
}

// FrameWeights returns the weight of every frame from Start to End.
func (b *Bin) FrameWeights() []float64 {
	return slices.Clone(b.frameWeight)
}

// At returns the slot and weight scheduled for frame.
func (b *Bin) At(frame int) (slot int, weight float64, ok bool) {
	i := frame - b.start
	if i < 0 || i >= len(b.frameMember) {
		return 0, 0, false
	}
	return b.frameMember[i], b.frameWeight[i], true
}

// fits reports whether r can join the bin without the bin spanning more than capacity frames.
func (b *Bin) fits(r schedule.Range, capacity int) bool {
	if b.Empty() {
		return r.Len() <= capacity
	}
	return max(b.End(), r.End)-min(b.start, r.Start) <= capacity
}

// add schedules source over r. A source already in the bin reuses its slot.
// Frames between the current end and r.Start are filled with slot 0 at weight 0.
func (b *Bin) add(source int, content Content, r schedule.Range) error {
	if !b.Empty() && r.Start < b.start {
		return fmt.Errorf("%w: range %d..%d, bin starts at %d", ErrRangeBeforeBin, r.Start, r.End, b.start)
	}

	slot := slices.IndexFunc(b.members, func(m Member) bool { return m.Source == source })
	if slot < 0 {
		b.members = append(b.members, Member{Source: source, Content: content})
		slot = len(b.members) - 1
	}

	if b.Empty() {
		b.start = r.Start
	}
	if n := r.End - b.start; n > len(b.frameMember) {
		b.frameMember = slices.Grow(b.frameMember, n-len(b.frameMember))
		b.frameWeight = slices.Grow(b.frameWeight, n-len(b.frameWeight))
		for len(b.frameMember) < n {
			b.frameMember = append(b.frameMember, 0)
			b.frameWeight = append(b.frameWeight, 0)
		}
	}
	for f := r.Start; f < r.End; f++ {
		b.frameMember[f-b.start] = slot
		b.frameWeight[f-b.start] = r.Weight
	}
	return nil
}
