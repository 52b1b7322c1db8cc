// Package heatmap samples the interpolated coverage field at sub-cell
// resolution and renders it as PNG, HTML or JSON.
package heatmap

import (
	"fmt"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/floats"

	"speedmap-platform/internal/coverage"
)

// Kind selects what the heatmap shows
type Kind string

const (
	KindDownload   Kind = "download"
	KindUpload     Kind = "upload"
	KindConfidence Kind = "confidence"
)

// DefaultSubdivisions samples each cell 10x10
const DefaultSubdivisions = 10

// Opacity of the painted field over the floor plan
const Opacity = 0.7

// MinSamples is how many measurements a heatmap needs
const MinSamples = 2

// ParseKind accepts download, upload or confidence
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDownload, KindUpload, KindConfidence:
		return Kind(s), nil
	case "":
		return KindDownload, nil
	}
	return "", fmt.Errorf("unknown heatmap channel %q, expected download, upload or confidence", s)
}

// Channel maps a speed kind onto the engine channel
func (k Kind) Channel() coverage.Channel {
	if k == KindUpload {
		return coverage.ChannelUpload
	}
	return coverage.ChannelDownload
}

// Field is a dense grid of estimates, Subdivisions samples per cell per axis.
// Values is indexed [row][col] in sub-cell units.
type Field struct {
	Kind         Kind              `json:"kind"`
	Cols         int               `json:"cols"`
	Rows         int               `json:"rows"`
	Subdivisions int               `json:"subdivisions"`
	Range        Range             `json:"range"`
	Values       [][]float64       `json:"values"`
	Samples      []coverage.Sample `json:"samples"`
}

// Compute samples the estimator at the centre of every sub-cell
func Compute(est *coverage.Estimator, grid coverage.GridSpec, kind Kind, subdivisions int) Field {
	grid = grid.Normalized()
	if subdivisions < 1 {
		subdivisions = DefaultSubdivisions
	}

	f := Field{
		Kind:         kind,
		Cols:         grid.Cols,
		Rows:         grid.Rows,
		Subdivisions: subdivisions,
		Range:        SampleRange(est.Samples(), kind),
		Samples:      est.Samples(),
	}

	w, h := f.Width(), f.Height()
	f.Values = make([][]float64, h)
	for j := 0; j < h; j++ {
		row := make([]float64, w)
		for i := 0; i < w; i++ {
			p := f.Position(i, j)
			if kind == KindConfidence {
				row[i] = est.Confidence(p)
			} else {
				row[i] = est.FieldValue(p, kind.Channel())
			}
		}
		f.Values[j] = row
	}
	return f
}

// Width is the number of sub-cell columns
func (f Field) Width() int {
	return f.Cols * f.Subdivisions
}

// Height is the number of sub-cell rows
func (f Field) Height() int {
	return f.Rows * f.Subdivisions
}

// Position is the grid-cell coordinate sampled for sub-cell (i,j)
func (f Field) Position(i, j int) r2.Point {
	sub := float64(f.Subdivisions)
	return r2.Point{X: (float64(i) + 0.5) / sub, Y: (float64(j) + 0.5) / sub}
}

// Color is the display colour of a value in this field
func (f Field) Color(v float64) string {
	if f.Kind == KindConfidence {
		return Hex(ConfidenceColor(v))
	}
	rng := f.Range
	return Hex(SpeedColor(v, &rng))
}

// SampleRange is the min and max measured value; confidence is always [0,1]
func SampleRange(samples []coverage.Sample, kind Kind) Range {
	if kind == KindConfidence {
		return Range{Min: 0, Max: 1}
	}
	if len(samples) == 0 {
		return Range{Min: 0, Max: 100}
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value(kind.Channel())
	}
	return Range{Min: floats.Min(values), Max: floats.Max(values)}
}
