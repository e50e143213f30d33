// Package binning groups a sparse keyframe schedule into capacity-bounded bins.
//
// Every keyframe after the buffer marker governs a contiguous frame range. Ranges are
// placed first-fit, in keyframe order, into bins whose dense frame maps never span more
// than the configured number of frames. A single range longer than the capacity is
// still placed whole, in a bin of its own.
package binning

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ivlev/ipbin/internal/logging"
	"github.com/ivlev/ipbin/internal/schedule"
)

var (
	ErrInvalidCapacity  = errors.New("max frames per bin must be positive")
	ErrSourceOutOfRange = errors.New("source index out of range")
	ErrSourceCount      = errors.New("source list does not match keyframes")
	ErrNoPreparer       = errors.New("no preparer configured")
)

// Preparer produces the content of a source item.
type Preparer interface {
	// Len is the number of source items available.
	Len() int
	// Prepare builds the content of source index. It is called once per keyframe.
	Prepare(index int, highDetail bool) (Content, error)
}

// Request is the input of one allocation.
type Request struct {
	Keyframes schedule.Keyframes
	// Sources optionally maps keyframe i to Sources[i-1]. When nil keyframe i uses source i-1.
	Sources         []int
	MaxFramesPerBin int
	HighDetail      bool
}

// Allocator turns requests into allocations. It keeps no state between calls.
type Allocator struct {
	Preparer Preparer
	Logger   *slog.Logger
}

// NewAllocator creates an Allocator drawing content from p.
func NewAllocator(p Preparer, logger *slog.Logger) *Allocator {
	return &Allocator{Preparer: p, Logger: logging.WithComponent(logger, "binning")}
}

// Allocate validates req and distributes its keyframe ranges over bins.
// Input that breaks the contract is rejected before any bin is created.
func (a *Allocator) Allocate(req Request) (*Allocation, error) {
	if a.Preparer == nil {
		return nil, ErrNoPreparer
	}
	if err := a.validate(req); err != nil {
		return nil, err
	}
	logger := logging.OrDefault(a.Logger)

	alloc := &Allocation{bins: []*Bin{{}}}
	for _, r := range req.Keyframes.Ranges(req.MaxFramesPerBin) {
		source := r.Keyframe - 1
		if req.Sources != nil {
			source = req.Sources[r.Keyframe-1]
		}

		content, err := a.Preparer.Prepare(source, req.HighDetail)
		if err != nil {
			return nil, fmt.Errorf("prepare source %d for keyframe %d: %w", source, r.Keyframe, err)
		}

		target := -1
		for i, b := range alloc.bins {
			if b.fits(r, req.MaxFramesPerBin) {
				target = i
				break
			}
		}
		if target < 0 {
			alloc.bins = append(alloc.bins, &Bin{})
			target = len(alloc.bins) - 1
			if r.Len() > req.MaxFramesPerBin {
				logger.Warn("keyframe range exceeds bin capacity",
					"keyframe", r.Keyframe, "frames", r.Len(), "capacity", req.MaxFramesPerBin)
			}
		}

		if err := alloc.bins[target].add(source, content, r); err != nil {
			return nil, fmt.Errorf("keyframe %d: %w", r.Keyframe, err)
		}
		alloc.end = max(alloc.end, r.End)

		logger.Debug("keyframe placed",
			"keyframe", r.Keyframe, "source", source, "start", r.Start, "end", r.End, "bin", target)
	}

	logger.Debug("allocation done", "bins", len(alloc.bins), "end", alloc.end)
	return alloc, nil
}

func (a *Allocator) validate(req Request) error {
	if req.MaxFramesPerBin <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, req.MaxFramesPerBin)
	}
	if err := req.Keyframes.Validate(); err != nil {
		return err
	}

	ranges := req.Keyframes.Len() - 1
	if ranges < 1 {
		return nil
	}

	available := a.Preparer.Len()
	if req.Sources == nil {
		if available < ranges {
			return fmt.Errorf("%w: %d keyframes need %d sources, have %d", ErrSourceOutOfRange, req.Keyframes.Len(), ranges, available)
		}
		return nil
	}

	if len(req.Sources) != ranges {
		return fmt.Errorf("%w: %d keyframes need %d source indices, got %d", ErrSourceCount, req.Keyframes.Len(), ranges, len(req.Sources))
	}
	for i, s := range req.Sources {
		if s < 0 || s >= available {
			return fmt.Errorf("%w: keyframe %d uses source %d, have %d", ErrSourceOutOfRange, i+1, s, available)
		}
	}
	return nil
}
