package tensor

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestFromImage(t *testing.T) {
	img := solid(4, 2, color.RGBA{R: 255, G: 0, B: 51, A: 255})
	tn := FromImage(img)

	assert.Equal(t, []int{1, 3, 2, 4}, tn.Shape)
	assert.Equal(t, 24, tn.Len())
	assert.InDelta(t, 1.0, tn.Data[0], 1e-6)
	assert.InDelta(t, 0.0, tn.Data[8], 1e-6)
	assert.InDelta(t, 0.2, tn.Data[16], 1e-6)
}

func TestToImagesRoundTrip(t *testing.T) {
	img := solid(3, 3, color.RGBA{R: 10, G: 200, B: 99, A: 255})
	imgs, err := FromImage(img).ToImages()
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.Equal(t, color.RGBA{R: 10, G: 200, B: 99, A: 255}, imgs[0].RGBAAt(1, 1))
}

func TestToImagesRejectsShape(t *testing.T) {
	_, err := New(2, 2).ToImages()
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestConcat(t *testing.T) {
	a := FromImage(solid(2, 2, color.RGBA{R: 255, A: 255}))
	b := FromImage(solid(2, 2, color.RGBA{G: 255, A: 255}))

	c, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2, 2}, c.Shape)
	assert.Equal(t, 2, c.Batch())
	assert.Equal(t, a.Data, c.Data[:12])
	assert.Equal(t, b.Data, c.Data[12:])

	imgs, err := c.ToImages()
	require.NoError(t, err)
	assert.Equal(t, uint8(255), imgs[1].RGBAAt(0, 0).G)
}

func TestConcatErrors(t *testing.T) {
	_, err := Concat()
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Concat(New(1, 3, 2, 2), New(1, 3, 4, 4))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Concat(New(1, 3, 2, 2), New(3, 2, 2))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestRandnDeterministic(t *testing.T) {
	a := Randn([]int{1, 3, 4, 4}, 42, 0.5)
	b := Randn([]int{1, 3, 4, 4}, 42, 0.5)
	c := Randn([]int{1, 3, 4, 4}, 43, 0.5)

	assert.Equal(t, a.Data, b.Data)
	assert.NotEqual(t, a.Data, c.Data)
	assert.Equal(t, 48, a.Len())
}
