package coverage

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// SampleIndex answers nearest-sample distance queries in grid-cell space
type SampleIndex struct {
	tree *kdtree.Tree
}

// NewSampleIndex builds a k-d tree over the sample positions
func NewSampleIndex(samples []Sample) *SampleIndex {
	if len(samples) == 0 {
		return &SampleIndex{}
	}
	pts := make(kdtree.Points, len(samples))
	for i, s := range samples {
		pts[i] = kdtree.Point{float64(s.GridX), float64(s.GridY)}
	}
	return &SampleIndex{tree: kdtree.New(pts, false)}
}

// Nearest returns the Euclidean distance from p to the closest sample,
// or +Inf when the index is empty.
func (ix *SampleIndex) Nearest(p r2.Point) float64 {
	if ix == nil || ix.tree == nil {
		return math.Inf(1)
	}
	got, d2 := ix.tree.Nearest(kdtree.Point{p.X, p.Y})
	if got == nil {
		return math.Inf(1)
	}
	return math.Sqrt(d2)
}

// Empty reports whether the index holds no samples
func (ix *SampleIndex) Empty() bool {
	return ix == nil || ix.tree == nil
}
