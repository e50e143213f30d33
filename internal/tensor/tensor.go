// Package tensor holds the dense float32 arrays that carry prepared image content.
package tensor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"slices"
)

var (
	ErrShapeMismatch = errors.New("tensor shapes do not match")
	ErrEmpty         = errors.New("no tensors to concatenate")
)

// Tensor is a row-major float32 array. Image tensors use [N, C, H, W].
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zero tensor of the given shape.
func New(shape ...int) Tensor {
	return Tensor{Shape: slices.Clone(shape), Data: make([]float32, numel(shape))}
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (t Tensor) Len() int {
	return len(t.Data)
}

// Batch returns the size of the leading axis.
func (t Tensor) Batch() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

func (t Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}

// FromImage converts img to a [1, 3, H, W] tensor with channels scaled to [0, 1].
func FromImage(img image.Image) Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := New(1, 3, h, w)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := y*w + x
			t.Data[i] = float32(c.R) / 255
			t.Data[plane+i] = float32(c.G) / 255
			t.Data[2*plane+i] = float32(c.B) / 255
		}
	}
	return t
}

// ToImages converts an [N, 3, H, W] tensor back to N images, clamping to [0, 1].
func (t Tensor) ToImages() ([]*image.RGBA, error) {
	if len(t.Shape) != 4 || t.Shape[1] != 3 {
		return nil, fmt.Errorf("%w: want [N 3 H W], got %v", ErrShapeMismatch, t.Shape)
	}
	n, h, w := t.Shape[0], t.Shape[2], t.Shape[3]
	plane := w * h
	out := make([]*image.RGBA, n)
	for k := 0; k < n; k++ {
		base := k * 3 * plane
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := 0; i < plane; i++ {
			img.Pix[i*4] = toByte(t.Data[base+i])
			img.Pix[i*4+1] = toByte(t.Data[base+plane+i])
			img.Pix[i*4+2] = toByte(t.Data[base+2*plane+i])
			img.Pix[i*4+3] = 0xff
		}
		out[k] = img
	}
	return out, nil
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	}
	return uint8(v*255 + 0.5)
}

// Concat joins tensors along the batch axis. All trailing dimensions must agree.
func Concat(ts ...Tensor) (Tensor, error) {
	if len(ts) == 0 {
		return Tensor{}, ErrEmpty
	}
	first := ts[0]
	if len(first.Shape) == 0 {
		return Tensor{}, fmt.Errorf("%w: scalar tensor", ErrShapeMismatch)
	}
	batch, size := 0, 0
	for i, t := range ts {
		if len(t.Shape) != len(first.Shape) || !slices.Equal(t.Shape[1:], first.Shape[1:]) {
			return Tensor{}, fmt.Errorf("%w: item %d is %v, item 0 is %v", ErrShapeMismatch, i, t.Shape, first.Shape)
		}
		batch += t.Shape[0]
		size += len(t.Data)
	}
	shape := slices.Clone(first.Shape)
	shape[0] = batch
	data := make([]float32, 0, size)
	for _, t := range ts {
		data = append(data, t.Data...)
	}
	return Tensor{Shape: shape, Data: data}, nil
}

// Randn returns a tensor of the given shape filled with N(0, 1) samples scaled by scale.
// The same seed always yields the same tensor.
func Randn(shape []int, seed int64, scale float64) Tensor {
	t := New(shape...)
	r := rand.New(rand.NewSource(seed))
	for i := range t.Data {
		t.Data[i] = float32(r.NormFloat64() * scale)
	}
	return t
}
