// Package renderer composites the frames described by blend requests into a preview.
package renderer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/ipbin/internal/apply"
	"github.com/ivlev/ipbin/internal/logging"
	"github.com/ivlev/ipbin/internal/system"
)

// Frame is one composited output frame.
type Frame struct {
	Number int
	Image  *image.RGBA
}

// PreviewBlender implements apply.Blender by cross-fading each frame's scheduled
// source image over a background with the frame's curved weight.
// Passes accumulate: a detail pass composites on top of the base pass.
type PreviewBlender struct {
	Width      int
	Height     int
	Background color.RGBA
	Debug      bool // stamp a QR code with bin/frame/slot/weight on each frame
	Workers    int

	logger *slog.Logger
	mu     sync.Mutex
	frames map[int]*image.RGBA
}

var _ apply.Blender = (*PreviewBlender)(nil)

func NewPreviewBlender(width, height int, logger *slog.Logger) *PreviewBlender {
	return &PreviewBlender{
		Width:      width,
		Height:     height,
		Background: color.RGBA{A: 0xff},
		Workers:    runtime.NumCPU(),
		logger:     logging.WithComponent(logger, "renderer"),
		frames:     make(map[int]*image.RGBA),
	}
}

// Blend composites every frame of req.
func (p *PreviewBlender) Blend(ctx context.Context, req apply.BlendRequest) error {
	if len(req.Weights) != len(req.Schedule) {
		return fmt.Errorf("weights and schedule differ: %d vs %d", len(req.Weights), len(req.Schedule))
	}
	sources, err := req.Images.ToImages()
	if err != nil {
		return err
	}
	fitted := make([]*image.RGBA, len(sources))
	for i, src := range sources {
		dst := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		fitted[i] = dst
	}

	canvases := p.canvases(req.Start, len(req.Weights))
	curve := Curve(req.WeightType)
	n := len(req.Weights)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Workers, 1))
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			slot := req.Schedule[i]
			if slot < 0 || slot >= len(fitted) {
				return fmt.Errorf("frame %d: slot %d outside batch of %d", req.Start+i, slot, len(fitted))
			}
			w := FrameWeight(req, i, curve)
			blendInto(canvases[i], fitted[slot], w)
			if p.Debug && req.Pass == apply.PassBase {
				label := fmt.Sprintf("bin=%d frame=%d slot=%d weight=%.3f", req.Bin, req.Start+i, slot, w)
				if err := stampQR(canvases[i], label); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.logger.Debug("blend done", "bin", req.Bin, "pass", req.Pass.String(), "frames", n,
		"scaling", req.EmbedsScaling.String(), "negative", req.Negative != nil)
	return nil
}

// FrameWeight is the effective weight of frame Start+i: the scheduled weight shaped by
// curve over the request's frames, zero outside [StartAt, EndAt] of the timeline,
// clamped to [0, 1].
func FrameWeight(req apply.BlendRequest, i int, curve func(float64) float64) float64 {
	t := 0.0
	if n := len(req.Weights); n > 1 {
		t = float64(i) / float64(n-1)
	}
	w := req.Weights[i] * curve(t)
	if req.TotalFrames > 0 {
		frac := float64(req.Start+i) / float64(req.TotalFrames)
		if frac < req.StartAt || frac > req.EndAt {
			w = 0
		}
	}
	return min(max(w, 0), 1)
}

func (p *PreviewBlender) canvases(start, n int) []*image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*image.RGBA, n)
	for i := range out {
		c, ok := p.frames[start+i]
		if !ok {
			c = system.GetCanvas(p.Width, p.Height, p.Background)
			p.frames[start+i] = c
		}
		out[i] = c
	}
	return out
}

// Frames returns the composited frames ordered by frame number.
func (p *PreviewBlender) Frames() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Frame, 0, len(p.frames))
	for n, img := range p.frames {
		out = append(out, Frame{Number: n, Image: img})
	}
	slices.SortFunc(out, func(a, b Frame) int { return a.Number - b.Number })
	return out
}

// Reset drops every frame and returns the canvases to the pool.
func (p *PreviewBlender) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n, img := range p.frames {
		system.PutCanvas(img)
		delete(p.frames, n)
	}
}

// blendInto cross-fades dst towards src by w. Both images share the same bounds.
func blendInto(dst, src *image.RGBA, w float64) {
	if w <= 0 {
		return
	}
	for i := range dst.Pix {
		dst.Pix[i] = uint8(lerp(float64(dst.Pix[i]), float64(src.Pix[i]), w) + 0.5)
	}
}

func stampQR(dst *image.RGBA, label string) error {
	q, err := qrcode.New(label, qrcode.Low)
	if err != nil {
		return err
	}
	size := min(dst.Bounds().Dx(), dst.Bounds().Dy()) / 4
	code := q.Image(size)
	draw.Draw(dst, code.Bounds(), code, code.Bounds().Min, draw.Src)
	return nil
}
