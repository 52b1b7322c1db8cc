package models

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/gesture"
)

// Settings are the global user preferences
type Settings struct {
	SpeedTestRuns int `json:"speedtest_runs"`
}

// DefaultSettings runs one speed test per scan
func DefaultSettings() Settings {
	return Settings{SpeedTestRuns: 1}
}

// Validate checks runs is within [1,5]
func (s Settings) Validate() error {
	if s.SpeedTestRuns < 1 || s.SpeedTestRuns > 5 {
		return &ValidationError{
			Field:   "speedtest_runs",
			Value:   fmt.Sprint(s.SpeedTestRuns),
			Message: "speedtest_runs must be between 1 and 5",
		}
	}
	return nil
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

type UpdateProjectRequest struct {
	Name *string `json:"name"`
}

type DensityRequest struct {
	Density string `json:"density"`
}

// ScaleRequest calibrates the floor plan and switches to physical sizing
type ScaleRequest struct {
	Point1           r2.Point `json:"point1"`
	Point2           r2.Point `json:"point2"`
	WallLengthMeters float64  `json:"wall_length_meters"`
	CellSizeMeters   float64  `json:"cell_size_meters"`
}

// Validate rejects non-positive or non-finite lengths
func (r ScaleRequest) Validate() error {
	if !(r.WallLengthMeters > 0) || math.IsInf(r.WallLengthMeters, 0) {
		return &ValidationError{Field: "wall_length_meters", Value: fmt.Sprint(r.WallLengthMeters), Message: "wall length must be a positive number of meters"}
	}
	if !(r.CellSizeMeters > 0) || math.IsInf(r.CellSizeMeters, 0) {
		return &ValidationError{Field: "cell_size_meters", Value: fmt.Sprint(r.CellSizeMeters), Message: "cell size must be a positive number of meters"}
	}
	return nil
}

// OffsetRequest drags the grid origin by a screen delta seen at Scale
type OffsetRequest struct {
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
	Scale float64 `json:"scale"`
}

// ManualMeasurementRequest stores a measurement taken elsewhere
type ManualMeasurementRequest struct {
	Download float64 `json:"download_mbps"`
	Upload   float64 `json:"upload_mbps"`
}

// ScanRequest runs the speed test; nil Runs uses the saved setting
type ScanRequest struct {
	Runs *int `json:"runs,omitempty"`
}

// ViewRequest carries the client's layout and viewport
type ViewRequest struct {
	Container coverage.Size     `json:"container"`
	Viewport  coverage.Viewport `json:"viewport"`
}

// HitTestRequest resolves a screen point to a cell
type HitTestRequest struct {
	ViewRequest
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GestureRequest replays a touch trace starting from Viewport
type GestureRequest struct {
	ViewRequest
	Events []gesture.Event `json:"events"`
}
