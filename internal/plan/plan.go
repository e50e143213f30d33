// Package plan records an allocation as a YAML document.
package plan

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/ipbin/internal/binning"
	"github.com/ivlev/ipbin/internal/schedule"
)

// Plan is the serialized form of one allocation.
type Plan struct {
	Version         string    `yaml:"version"`
	ID              string    `yaml:"id"`
	CreatedAt       time.Time `yaml:"created_at"`
	Keyframes       []int     `yaml:"keyframes"`
	Weights         []float64 `yaml:"weights"`
	MaxFramesPerBin int       `yaml:"max_frames_per_bin"`
	HighDetail      bool      `yaml:"high_detail"`
	End             int       `yaml:"end"`
	Bins            []Bin     `yaml:"bins"`
}

// Bin is one bin of the plan. FrameMembers index into Sources.
type Bin struct {
	Index        int       `yaml:"index"`
	Start        int       `yaml:"start"`
	End          int       `yaml:"end"`
	Sources      []int     `yaml:"sources"`
	FrameMembers []int     `yaml:"frame_members,flow"`
	FrameWeights []float64 `yaml:"frame_weights,flow"`
}

// FromAllocation describes alloc without consuming it.
func FromAllocation(req binning.Request, alloc *binning.Allocation) *Plan {
	p := &Plan{
		Version:         "1.0",
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		Keyframes:       req.Keyframes.Positions,
		Weights:         req.Keyframes.Weights,
		MaxFramesPerBin: req.MaxFramesPerBin,
		HighDetail:      req.HighDetail,
		End:             alloc.End(),
	}
	for i, b := range alloc.Bins() {
		p.Bins = append(p.Bins, Bin{
			Index:        i,
			Start:        b.Start(),
			End:          b.End(),
			Sources:      b.Sources(),
			FrameMembers: b.FrameMembers(),
			FrameWeights: b.FrameWeights(),
		})
	}
	return p
}

// Schedule returns the keyframe schedule the plan was built from.
func (p *Plan) Schedule() schedule.Keyframes {
	return schedule.Keyframes{Positions: p.Keyframes, Weights: p.Weights}
}

// Write stores the plan as YAML, creating parent directories.
func Write(p *Plan, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Read loads a plan from YAML.
func Read(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultPath creates a timestamped plan filename under dir.
func DefaultPath(dir string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, "plan_"+timestamp+".yaml")
}
