package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownWeightType    = errors.New("unknown weight type")
	ErrUnknownEmbedsScaling = errors.New("unknown embeds scaling")
	ErrInvalidSettings      = errors.New("invalid settings")
)

// WeightType selects the curve applied to a bin's weights when it is consumed.
type WeightType int

const (
	WeightLinear WeightType = iota
	WeightEaseIn
	WeightEaseOut
	WeightEaseInOut
	WeightReverseInOut
	WeightWeakInput
	WeightWeakOutput
	WeightWeakMiddle
	WeightStrongMiddle
)

var weightTypeNames = []string{
	WeightLinear:       "linear",
	WeightEaseIn:       "ease in",
	WeightEaseOut:      "ease out",
	WeightEaseInOut:    "ease in-out",
	WeightReverseInOut: "reverse in-out",
	WeightWeakInput:    "weak input",
	WeightWeakOutput:   "weak output",
	WeightWeakMiddle:   "weak middle",
	WeightStrongMiddle: "strong middle",
}

func (w WeightType) String() string {
	if w < 0 || int(w) >= len(weightTypeNames) {
		return fmt.Sprintf("WeightType(%d)", int(w))
	}
	return weightTypeNames[w]
}

// ParseWeightType resolves a weight type name. Matching ignores case and surrounding space.
func ParseWeightType(s string) (WeightType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return WeightLinear, nil
	}
	for i, n := range weightTypeNames {
		if n == name {
			return WeightType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeightType, s)
}

func (w WeightType) MarshalYAML() (any, error) {
	return w.String(), nil
}

func (w *WeightType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseWeightType(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// EmbedsScaling selects how reference embeddings are scaled by the blend stage.
type EmbedsScaling int

const (
	ScalingVOnly EmbedsScaling = iota
	ScalingKV
	ScalingKVPenalty
	ScalingKMeanVPenalty
)

var embedsScalingNames = []string{
	ScalingVOnly:         "V only",
	ScalingKV:            "K+V",
	ScalingKVPenalty:     "K+V w/ C penalty",
	ScalingKMeanVPenalty: "K+mean(V) w/ C penalty",
}

func (e EmbedsScaling) String() string {
	if e < 0 || int(e) >= len(embedsScalingNames) {
		return fmt.Sprintf("EmbedsScaling(%d)", int(e))
	}
	return embedsScalingNames[e]
}

// ParseEmbedsScaling resolves an embeds scaling name, case-insensitively.
func ParseEmbedsScaling(s string) (EmbedsScaling, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return ScalingVOnly, nil
	}
	for i, n := range embedsScalingNames {
		if strings.EqualFold(n, name) {
			return EmbedsScaling(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEmbedsScaling, s)
}

func (e EmbedsScaling) MarshalYAML() (any, error) {
	return e.String(), nil
}

func (e *EmbedsScaling) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseEmbedsScaling(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Settings controls how source items are prepared and how a bin's schedule is applied.
type Settings struct {
	Weight        float64       `yaml:"weight"`         // multiplier on the stored weights
	WeightType    WeightType    `yaml:"weight_type"`    // curve shape at consumption time
	StartAt       float64       `yaml:"start_at"`       // fraction of the timeline where the schedule starts
	EndAt         float64       `yaml:"end_at"`         // fraction of the timeline where it ends
	EmbedsScaling EmbedsScaling `yaml:"embeds_scaling"` // passed through to the blend stage
	NoiseStrength float64       `yaml:"noise_strength"` // > 0 prepares a noise tensor per source item
}

// DefaultSettings returns the bundle used when none is supplied.
func DefaultSettings() Settings {
	return Settings{
		Weight:        1.0,
		WeightType:    WeightLinear,
		StartAt:       0.0,
		EndAt:         1.0,
		EmbedsScaling: ScalingVOnly,
	}
}

// Validate checks ranges of the numeric fields.
func (s Settings) Validate() error {
	if math.IsNaN(s.Weight) || math.IsInf(s.Weight, 0) {
		return fmt.Errorf("%w: weight must be finite", ErrInvalidSettings)
	}
	if s.StartAt < 0 || s.EndAt > 1 || s.StartAt > s.EndAt {
		return fmt.Errorf("%w: need 0 <= start_at <= end_at <= 1, got %.3f..%.3f", ErrInvalidSettings, s.StartAt, s.EndAt)
	}
	if s.NoiseStrength < 0 || math.IsNaN(s.NoiseStrength) {
		return fmt.Errorf("%w: noise_strength must be >= 0", ErrInvalidSettings)
	}
	return nil
}

// HasNoise reports whether a noise tensor should be prepared.
func (s *Settings) HasNoise() bool {
	return s != nil && s.NoiseStrength > 0
}

// UnmarshalYAML fills fields missing from the document with defaults.
func (s *Settings) UnmarshalYAML(value *yaml.Node) error {
	type plain Settings
	p := plain(DefaultSettings())
	if err := value.Decode(&p); err != nil {
		return err
	}
	if err := Settings(p).Validate(); err != nil {
		return err
	}
	*s = Settings(p)
	return nil
}

// SettingsFile holds the two optional bundles: base preparation and high-detail preparation.
type SettingsFile struct {
	Base   *Settings `yaml:"base,omitempty"`
	Detail *Settings `yaml:"detail,omitempty"`
}

// LoadSettings reads a settings file from YAML.
func LoadSettings(path string) (*SettingsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSettings(data)
}

// ParseSettings decodes a settings document.
func ParseSettings(data []byte) (*SettingsFile, error) {
	var f SettingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return &f, nil
}

// BaseOrDefault returns the base bundle, or defaults when the file has none.
func (f *SettingsFile) BaseOrDefault() Settings {
	if f == nil || f.Base == nil {
		return DefaultSettings()
	}
	return *f.Base
}
