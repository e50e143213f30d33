// Package prepare turns decoded source images into the tensors held by bins.
package prepare

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/ivlev/ipbin/internal/binning"
	"github.com/ivlev/ipbin/internal/config"
	"github.com/ivlev/ipbin/internal/tensor"
)

const (
	DefaultBaseSize   = 224
	DefaultDetailSize = 448
)

// Options sets the square edge of the prepared variants and the noise seed.
type Options struct {
	BaseSize   int
	DetailSize int
	Seed       int64
}

func (o Options) withDefaults() Options {
	if o.BaseSize <= 0 {
		o.BaseSize = DefaultBaseSize
	}
	if o.DetailSize <= 0 {
		o.DetailSize = DefaultDetailSize
	}
	return o
}

// ImagePreparer implements binning.Preparer over an in-memory image list.
// Base and Detail are the optional settings bundles; a nil Detail disables the
// high-detail variant even in high-detail mode.
type ImagePreparer struct {
	images []image.Image
	base   *config.Settings
	detail *config.Settings
	opts   Options
}

var _ binning.Preparer = (*ImagePreparer)(nil)

func New(images []image.Image, base, detail *config.Settings, opts Options) *ImagePreparer {
	return &ImagePreparer{
		images: images,
		base:   base,
		detail: detail,
		opts:   opts.withDefaults(),
	}
}

func (p *ImagePreparer) Len() int {
	return len(p.images)
}

// Prepare builds the content of one source image. Nothing is cached: calling it
// twice for the same index does the work twice and yields equal content.
func (p *ImagePreparer) Prepare(index int, highDetail bool) (binning.Content, error) {
	if index < 0 || index >= len(p.images) {
		return binning.Content{}, fmt.Errorf("%w: %d of %d", binning.ErrSourceOutOfRange, index, len(p.images))
	}
	src := p.images[index]
	if src == nil || src.Bounds().Empty() {
		return binning.Content{}, fmt.Errorf("source %d has no pixels", index)
	}

	content := binning.Content{
		Image: tensor.FromImage(SquareFit(src, p.opts.BaseSize)),
	}
	if p.base.HasNoise() {
		n := tensor.Randn(content.Image.Shape, p.noiseSeed(index, 0), p.base.NoiseStrength)
		content.Noise = &n
	}

	if highDetail && p.detail != nil {
		d := tensor.FromImage(SquareFit(src, p.opts.DetailSize))
		content.Detail = &d
		if p.detail.HasNoise() {
			n := tensor.Randn(d.Shape, p.noiseSeed(index, 1), p.detail.NoiseStrength)
			content.DetailNoise = &n
		}
	}
	return content, nil
}

func (p *ImagePreparer) noiseSeed(index int, variant int64) int64 {
	return p.opts.Seed*1_000_003 + int64(index)*2 + variant
}

// SquareFit center-crops src to a square and scales it to size x size.
func SquareFit(src image.Image, size int) *image.RGBA {
	b := src.Bounds()
	edge := min(b.Dx(), b.Dy())
	crop := image.Rect(0, 0, edge, edge).Add(image.Pt(
		b.Min.X+(b.Dx()-edge)/2,
		b.Min.Y+(b.Dy()-edge)/2,
	))
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}
