package models

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"

	"speedmap-platform/internal/coverage"
)

// ExportFile is the key/value store written by the mobile app
type ExportFile struct {
	Projects      []RawProject `json:"projects"`
	SpeedTestRuns int          `json:"speedTestRuns"`
}

// RawProject is a project as the mobile app stores it
type RawProject struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	CreatedAt     string           `json:"created_at"`
	UpdatedAt     string           `json:"updated_at"`
	FloorplanData string           `json:"floorplan_data"`
	ImageWidth    float64          `json:"image_width"`
	ImageHeight   float64          `json:"image_height"`
	GridOffsetX   float64          `json:"grid_offset_x"`
	GridOffsetY   float64          `json:"grid_offset_y"`
	GridDensity   string           `json:"grid_density"`
	GridCols      int              `json:"grid_cols"`
	GridRows      int              `json:"grid_rows"`
	ScalePoint1X  *float64         `json:"scale_point1_x"`
	ScalePoint1Y  *float64         `json:"scale_point1_y"`
	ScalePoint2X  *float64         `json:"scale_point2_x"`
	ScalePoint2Y  *float64         `json:"scale_point2_y"`
	Measurements  []RawMeasurement `json:"measurements"`
}

// RawMeasurement is a sample as the mobile app stores it
type RawMeasurement struct {
	ID       string  `json:"id"`
	GridX    int     `json:"grid_x"`
	GridY    int     `json:"grid_y"`
	Download float64 `json:"download"`
	Upload   float64 `json:"upload"`
}

// Floorplan is a decoded image payload
type Floorplan struct {
	Data        []byte
	ContentType string
}

// ToProject converts an exported project. Measurements sharing a cell keep
// the last one; a missing id or timestamp is generated.
func (r *RawProject) ToProject() (*Project, *Floorplan, error) {
	name, err := ValidateName(r.Name)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	p := &Project{
		ID:             r.ID,
		Name:           name,
		CreatedAt:      parseTimestamp(r.CreatedAt, now),
		UpdatedAt:      parseTimestamp(r.UpdatedAt, now),
		ImageWidth:     r.ImageWidth,
		ImageHeight:    r.ImageHeight,
		Sizing:         string(coverage.SizingDensity),
		Density:        string(coverage.DensityMedium),
		CellSizeMeters: 1,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if d, err := coverage.ParseDensity(r.GridDensity); err == nil {
		p.Density = string(d)
	}

	grid := coverage.DensitySizer{Density: coverage.Density(p.Density)}.Resize(
		coverage.GridSpec{Origin: r2.Point{X: r.GridOffsetX, Y: r.GridOffsetY}},
		p.ImageSize(),
	)
	// keep the app's dimensions so stored cells stay where they were measured
	if r.GridCols > 0 && r.GridRows > 0 {
		grid.Cols, grid.Rows = r.GridCols, r.GridRows
	}
	if r.ImageWidth <= 0 {
		grid.CellSize = coverage.DefaultGrid().CellSize
	}
	p.SetGrid(grid)

	if r.ScalePoint1X != nil && r.ScalePoint1Y != nil && r.ScalePoint2X != nil && r.ScalePoint2Y != nil {
		p.SetScalePoints(r2.Point{X: *r.ScalePoint1X, Y: *r.ScalePoint1Y}, r2.Point{X: *r.ScalePoint2X, Y: *r.ScalePoint2Y})
	}

	seen := make(map[coverage.Cell]int)
	for i, rm := range r.Measurements {
		cell := coverage.Cell{Col: rm.GridX, Row: rm.GridY}
		m, err := NewMeasurement(p.ID, cell, rm.Download, rm.Upload, SourceImport)
		if err != nil {
			return nil, nil, fmt.Errorf("measurement %d: %w", i, err)
		}
		if rm.ID != "" {
			m.ID = rm.ID
		}
		m.MeasuredAt = p.UpdatedAt
		if idx, ok := seen[cell]; ok {
			p.Measurements[idx] = *m
			continue
		}
		seen[cell] = len(p.Measurements)
		p.Measurements = append(p.Measurements, *m)
	}
	p.MeasurementCount = len(p.Measurements)

	var fp *Floorplan
	if r.FloorplanData != "" {
		fp, err = DecodeDataURL(r.FloorplanData)
		if err != nil {
			return nil, nil, err
		}
	}
	return p, fp, nil
}

// DecodeDataURL decodes a base64 "data:<type>;base64,<payload>" URL
func DecodeDataURL(s string) (*Floorplan, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, &ValidationError{Field: "floorplan_data", Value: truncate(s), Message: "floor plan is not a data URL"}
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, &ValidationError{Field: "floorplan_data", Value: truncate(s), Message: "data URL has no payload"}
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, &ValidationError{Field: "floorplan_data", Value: truncate(s), Message: "data URL must be base64 encoded"}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &ValidationError{Field: "floorplan_data", Value: truncate(s), Message: fmt.Sprintf("invalid base64 payload: %v", err)}
	}
	return &Floorplan{Data: data, ContentType: contentType}, nil
}

func parseTimestamp(s string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return fallback
}

func truncate(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
