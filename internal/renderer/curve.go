package renderer

import (
	"math"

	"github.com/ivlev/ipbin/internal/config"
)

// Curve returns the weight multiplier for a normalized position t in [0, 1]
// across a bin's frames. The switch runs once per request, not per frame.
func Curve(wt config.WeightType) func(t float64) float64 {
	switch wt {
	case config.WeightEaseIn:
		return func(t float64) float64 { return t * t }
	case config.WeightEaseOut:
		return func(t float64) float64 { return 1 - t*t }
	case config.WeightEaseInOut:
		return bell
	case config.WeightReverseInOut:
		return func(t float64) float64 { return 1 - bell(t) }
	case config.WeightWeakInput:
		return func(t float64) float64 { return lerp(0.2, 1, t) }
	case config.WeightWeakOutput:
		return func(t float64) float64 { return lerp(1, 0.2, t) }
	case config.WeightWeakMiddle:
		return func(t float64) float64 { return 1 - 0.8*math.Sin(math.Pi*t) }
	case config.WeightStrongMiddle:
		return func(t float64) float64 { return 1 + 0.5*math.Sin(math.Pi*t) }
	default:
		return func(float64) float64 { return 1 }
	}
}

// bell rises with a cubic ease to 1 at the midpoint and falls back symmetrically.
func bell(t float64) float64 {
	if t < 0.5 {
		return easeInOutCubic(2 * t)
	}
	return easeInOutCubic(2 - 2*t)
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// easeInOutCubic applies smooth easing function
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - pow(-2*t+2, 3)/2
}

// pow calculates x^n
func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}
