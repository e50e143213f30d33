// Package apply consumes allocations: every bin drives one weighted blend.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ivlev/ipbin/internal/binning"
	"github.com/ivlev/ipbin/internal/config"
	"github.com/ivlev/ipbin/internal/logging"
	"github.com/ivlev/ipbin/internal/tensor"
)

var (
	ErrNoDetail        = errors.New("bin was prepared without high-detail content")
	ErrIncompleteNoise = errors.New("noise present for some members only")
)

// Pass distinguishes the base blend from the high-detail blend of the same bin.
type Pass int

const (
	PassBase Pass = iota
	PassDetail
)

func (p Pass) String() string {
	if p == PassDetail {
		return "detail"
	}
	return "base"
}

// BlendRequest is one weighted composition over a bin's frames.
// Weights[i] and Schedule[i] describe frame Start+i; Schedule indexes the batch axis of Images.
type BlendRequest struct {
	Pass          Pass
	Bin           int
	Images        tensor.Tensor
	Negative      *tensor.Tensor
	Start         int
	Weights       []float64
	Schedule      []int
	WeightType    config.WeightType
	StartAt       float64
	EndAt         float64
	EmbedsScaling config.EmbedsScaling
	TotalFrames   int
}

// Blender performs the weighted composition for one request.
type Blender interface {
	Blend(ctx context.Context, req BlendRequest) error
}

// Options configures one Apply call. A nil Base uses config.DefaultSettings.
type Options struct {
	HighDetail bool
	Base       *config.Settings
	Detail     *config.Settings
}

// Applier feeds bins to a Blender in allocation order.
type Applier struct {
	Blender Blender
	Logger  *slog.Logger
}

func NewApplier(b Blender, logger *slog.Logger) *Applier {
	return &Applier{Blender: b, Logger: logging.WithComponent(logger, "apply")}
}

// ApplyNext pops the oldest allocation from q and applies it.
func (a *Applier) ApplyNext(ctx context.Context, q *Queue, opts Options) error {
	alloc, err := q.Pop()
	if err != nil {
		return err
	}
	return a.Apply(ctx, alloc, opts)
}

// Apply consumes every bin of alloc. Empty bins are skipped.
func (a *Applier) Apply(ctx context.Context, alloc *binning.Allocation, opts Options) error {
	logger := logging.OrDefault(a.Logger)
	base := config.DefaultSettings()
	if opts.Base != nil {
		base = *opts.Base
	}
	total := alloc.End()

	for i := 0; alloc.Len() > 0; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		bin, err := alloc.Next()
		if err != nil {
			return err
		}
		if bin.Empty() {
			logger.Debug("skipping empty bin", "bin", i)
			continue
		}

		req, err := buildRequest(bin, PassBase, base, total)
		if err != nil {
			return fmt.Errorf("bin %d: %w", i, err)
		}
		req.Bin = i
		if err := a.Blender.Blend(ctx, req); err != nil {
			return fmt.Errorf("bin %d %s blend: %w", i, PassBase, err)
		}

		if opts.HighDetail && opts.Detail != nil {
			req, err := buildRequest(bin, PassDetail, *opts.Detail, total)
			if err != nil {
				return fmt.Errorf("bin %d: %w", i, err)
			}
			req.Bin = i
			if err := a.Blender.Blend(ctx, req); err != nil {
				return fmt.Errorf("bin %d %s blend: %w", i, PassDetail, err)
			}
		}

		logger.Debug("bin applied", "bin", i, "start", bin.Start(), "frames", bin.Len(), "members", len(bin.Sources()))
	}
	return nil
}

func buildRequest(bin *binning.Bin, pass Pass, s config.Settings, total int) (BlendRequest, error) {
	members := bin.Members()
	images := make([]tensor.Tensor, 0, len(members))
	var negatives []tensor.Tensor
	for _, m := range members {
		img, noise := m.Content.Image, m.Content.Noise
		if pass == PassDetail {
			if m.Content.Detail == nil {
				return BlendRequest{}, fmt.Errorf("%w: source %d", ErrNoDetail, m.Source)
			}
			img, noise = *m.Content.Detail, m.Content.DetailNoise
		}
		images = append(images, img)
		if noise != nil {
			negatives = append(negatives, *noise)
		}
	}

	batch, err := tensor.Concat(images...)
	if err != nil {
		return BlendRequest{}, err
	}

	var negative *tensor.Tensor
	switch len(negatives) {
	case 0:
	case len(images):
		n, err := tensor.Concat(negatives...)
		if err != nil {
			return BlendRequest{}, err
		}
		negative = &n
	default:
		return BlendRequest{}, fmt.Errorf("%w: %d of %d", ErrIncompleteNoise, len(negatives), len(images))
	}

	weights := bin.FrameWeights()
	for i := range weights {
		weights[i] *= s.Weight
	}

	return BlendRequest{
		Pass:          pass,
		Images:        batch,
		Negative:      negative,
		Start:         bin.Start(),
		Weights:       weights,
		Schedule:      bin.FrameMembers(),
		WeightType:    s.WeightType,
		StartAt:       s.StartAt,
		EndAt:         s.EndAt,
		EmbedsScaling: s.EmbedsScaling,
		TotalFrames:   total,
	}, nil
}
