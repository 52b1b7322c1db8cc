package coverage

import (
	"fmt"

	"github.com/golang/geo/r2"
)

// DefaultReferencePoints places the two scale markers on the horizontal
// midline at 20% and 80% of the image width.
func DefaultReferencePoints(image Size) (r2.Point, r2.Point) {
	image = image.OrDefault(unitImage)
	return r2.Point{X: image.W * 0.2, Y: image.H * 0.5},
		r2.Point{X: image.W * 0.8, Y: image.H * 0.5}
}

// MetersPerPixel derives the floor-plan scale from two image points that
// span a wall of known length.
func MetersPerPixel(p1, p2 r2.Point, lengthMeters float64) (float64, error) {
	if !(lengthMeters > 0) {
		return 0, fmt.Errorf("wall length must be positive, got %v", lengthMeters)
	}
	dist := p2.Sub(p1).Norm()
	if dist < 1 {
		return 0, fmt.Errorf("reference points are %.2f px apart, need at least 1 px", dist)
	}
	return lengthMeters / dist, nil
}
