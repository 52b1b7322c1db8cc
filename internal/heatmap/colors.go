package heatmap

import (
	"fmt"
	"image/color"
	"math"
)

var (
	fastColor = color.NRGBA{R: 0x4c, G: 0xd1, B: 0x37, A: 0xff}
	midColor  = color.NRGBA{R: 0xfb, G: 0xc5, B: 0x31, A: 0xff}
	slowColor = color.NRGBA{R: 0xe7, G: 0x4c, B: 0x3c, A: 0xff}

	highConfidence   = color.NRGBA{R: 0x51, G: 0xcf, B: 0x66, A: 0xff}
	mediumConfidence = color.NRGBA{R: 0xfc, G: 0xc4, B: 0x19, A: 0xff}
	lowConfidence    = color.NRGBA{R: 0xff, G: 0x6b, B: 0x6b, A: 0xff}
)

// Fixed thresholds used when no measured range is known, in Mbps
const (
	fastThreshold = 50.0
	midThreshold  = 20.0
)

// Range is the span of measured values a ramp is stretched over
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Span is Max-Min
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// Mid is the midpoint of the range
func (r Range) Mid() float64 {
	return (r.Min + r.Max) / 2
}

// SpeedColor colours a throughput. With a nil range it uses fixed
// thresholds; otherwise it ramps red to yellow to green across the range.
func SpeedColor(speed float64, rng *Range) color.NRGBA {
	if rng == nil {
		switch {
		case speed > fastThreshold:
			return fastColor
		case speed > midThreshold:
			return midColor
		default:
			return slowColor
		}
	}
	if rng.Span() < 1 {
		return fastColor
	}

	t := math.Max(0, math.Min(1, (speed-rng.Min)/rng.Span()))
	if t < 0.5 {
		u := t * 2
		return color.NRGBA{R: 231, G: lerp(76, 188, u), B: lerp(60, 49, u), A: 0xff}
	}
	u := (t - 0.5) * 2
	return color.NRGBA{R: lerp(251, 76, u), G: lerp(197, 209, u), B: lerp(49, 55, u), A: 0xff}
}

// ConfidenceColor buckets a confidence into high, medium or low
func ConfidenceColor(c float64) color.NRGBA {
	switch confidenceLevel(c) {
	case 2:
		return highConfidence
	case 1:
		return mediumConfidence
	default:
		return lowConfidence
	}
}

func confidenceLevel(c float64) int {
	switch {
	case c > 0.7:
		return 2
	case c > 0.4:
		return 1
	default:
		return 0
	}
}

// Hex formats an opaque colour as #rrggbb
func Hex(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// withAlpha returns c at the given opacity in [0,1]
func withAlpha(c color.NRGBA, alpha float64) color.NRGBA {
	c.A = uint8(math.Round(alpha * 255))
	return c
}

func lerp(a, b, t float64) uint8 {
	return uint8(math.Round(a + (b-a)*t))
}
