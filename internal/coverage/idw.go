package coverage

import (
	"math"

	"github.com/golang/geo/r2"
)

const (
	// DefaultPower is the standard inverse-square falloff
	DefaultPower = 2.0

	// exactHitDistance treats a query this close to a sample as the sample itself
	exactHitDistance = 0.01

	// DefaultConfidenceRadius is the distance, in cells, at which a sample
	// stops contributing to confidence.
	DefaultConfidenceRadius = 5.0
)

// Interpolator reconstructs a continuous field from sparse samples with
// inverse-distance weighting. Query points may be fractional.
type Interpolator struct {
	Power float64
}

// FieldValue returns the IDW estimate of ch at p. Zero samples yield 0.
func (ip Interpolator) FieldValue(samples []Sample, p r2.Point, ch Channel) float64 {
	if len(samples) == 0 {
		return 0
	}
	power := ip.Power
	if !(power > 0) {
		power = DefaultPower
	}

	var weighted, total float64
	for _, s := range samples {
		d := p.Sub(s.Cell().Point()).Norm()
		if d < exactHitDistance {
			return s.Value(ch)
		}
		w := 1 / math.Pow(d, power)
		weighted += w * s.Value(ch)
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// Confidence maps a nearest-sample distance onto [0,1], falling linearly
// to zero at radius.
func Confidence(nearest, radius float64) float64 {
	if math.IsInf(nearest, 1) || math.IsNaN(nearest) {
		return 0
	}
	if !(radius > 0) {
		radius = DefaultConfidenceRadius
	}
	return clamp(1-nearest/radius, 0, 1)
}

// Estimator answers field and confidence queries over one fixed sample set
type Estimator struct {
	samples []Sample
	index   *SampleIndex
	interp  Interpolator
	radius  float64
}

// EstimatorOptions tunes the falloffs; zero values take the defaults
type EstimatorOptions struct {
	Power            float64
	ConfidenceRadius float64
}

// NewEstimator indexes samples once for repeated queries
func NewEstimator(samples []Sample, opts EstimatorOptions) *Estimator {
	own := make([]Sample, len(samples))
	copy(own, samples)
	return &Estimator{
		samples: own,
		index:   NewSampleIndex(own),
		interp:  Interpolator{Power: opts.Power},
		radius:  opts.ConfidenceRadius,
	}
}

// FieldValue is the interpolated value of ch at p
func (e *Estimator) FieldValue(p r2.Point, ch Channel) float64 {
	return e.interp.FieldValue(e.samples, p, ch)
}

// Confidence at p; 0 everywhere when there are no samples
func (e *Estimator) Confidence(p r2.Point) float64 {
	return Confidence(e.index.Nearest(p), e.radius)
}

// NearestDistance to any sample, +Inf when empty
func (e *Estimator) NearestDistance(p r2.Point) float64 {
	return e.index.Nearest(p)
}

// Samples returns the estimator's sample set
func (e *Estimator) Samples() []Sample {
	return e.samples
}
