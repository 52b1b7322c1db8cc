package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"

	"speedmap-platform/internal/coverage"
)

// Measurement sources
const (
	SourceScan   = "scan"
	SourceManual = "manual"
	SourceImport = "import"
)

const maxNameLength = 200

// Project is one surveyed floor: its floor plan, grid and measurements
type Project struct {
	ID                   string    `json:"id" db:"id"`
	Name                 string    `json:"name" db:"name"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
	FloorplanKey         string    `json:"floorplan_key,omitempty" db:"floorplan_key"`
	FloorplanContentType string    `json:"floorplan_content_type,omitempty" db:"floorplan_content_type"`
	ImageWidth           float64   `json:"image_width" db:"image_width"`
	ImageHeight          float64   `json:"image_height" db:"image_height"`
	Sizing               string    `json:"sizing" db:"sizing"`
	Density              string    `json:"density" db:"density"`

	// Scale calibration. NULL until a floor plan is uploaded.
	ScalePoint1X     *float64 `json:"scale_point1_x,omitempty" db:"scale_p1_x"`
	ScalePoint1Y     *float64 `json:"scale_point1_y,omitempty" db:"scale_p1_y"`
	ScalePoint2X     *float64 `json:"scale_point2_x,omitempty" db:"scale_p2_x"`
	ScalePoint2Y     *float64 `json:"scale_point2_y,omitempty" db:"scale_p2_y"`
	WallLengthMeters *float64 `json:"wall_length_meters,omitempty" db:"wall_length_meters"`
	MetersPerPixel   *float64 `json:"meters_per_pixel,omitempty" db:"meters_per_pixel"`
	ScaleSet         bool     `json:"scale_set" db:"scale_set"`
	CellSizeMeters   float64  `json:"cell_size_meters" db:"cell_size_meters"`

	GridOffsetX  float64 `json:"grid_offset_x" db:"grid_offset_x"`
	GridOffsetY  float64 `json:"grid_offset_y" db:"grid_offset_y"`
	GridCellSize float64 `json:"grid_cell_size" db:"grid_cell_size"`
	GridCols     int     `json:"grid_cols" db:"grid_cols"`
	GridRows     int     `json:"grid_rows" db:"grid_rows"`

	Measurements     []Measurement `json:"measurements,omitempty" db:"-"`
	MeasurementCount int           `json:"measurement_count" db:"measurement_count"`
}

// Measurement is a persisted speed sample
type Measurement struct {
	ID           string    `json:"id" db:"id"`
	ProjectID    string    `json:"project_id" db:"project_id"`
	GridX        int       `json:"grid_x" db:"grid_x"`
	GridY        int       `json:"grid_y" db:"grid_y"`
	DownloadMbps float64   `json:"download_mbps" db:"download_mbps"`
	UploadMbps   float64   `json:"upload_mbps" db:"upload_mbps"`
	Source       string    `json:"source" db:"source"`
	MeasuredAt   time.Time `json:"measured_at" db:"measured_at"`
}

// NewProject creates a project with a medium-density 10x10 grid
func NewProject(name string) (*Project, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	grid := coverage.DefaultGrid()
	return &Project{
		ID:             uuid.NewString(),
		Name:           name,
		CreatedAt:      now,
		UpdatedAt:      now,
		Sizing:         string(grid.Sizing),
		Density:        string(grid.Density),
		CellSizeMeters: 1,
		GridCellSize:   grid.CellSize,
		GridCols:       grid.Cols,
		GridRows:       grid.Rows,
	}, nil
}

// ValidateName trims a project name and rejects empty or oversized ones
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "name", Value: name, Message: "project name is required"}
	}
	if len(name) > maxNameLength {
		return "", &ValidationError{
			Field:   "name",
			Value:   name[:20] + "...",
			Message: fmt.Sprintf("project name must be at most %d characters", maxNameLength),
		}
	}
	return name, nil
}

// HasFloorplan reports whether an image has been uploaded
func (p *Project) HasFloorplan() bool {
	return p.FloorplanKey != "" && p.ImageWidth > 0 && p.ImageHeight > 0
}

// ImageSize returns the floor-plan dimensions in pixels
func (p *Project) ImageSize() coverage.Size {
	return coverage.Size{W: p.ImageWidth, H: p.ImageHeight}
}

// Grid rebuilds the engine's grid description from the stored columns
func (p *Project) Grid() coverage.GridSpec {
	return coverage.GridSpec{
		Cols:       p.GridCols,
		Rows:       p.GridRows,
		Origin:     r2.Point{X: p.GridOffsetX, Y: p.GridOffsetY},
		CellSize:   p.GridCellSize,
		Sizing:     coverage.Sizing(p.Sizing),
		Density:    coverage.Density(p.Density),
		CellMeters: p.CellSizeMeters,
	}
}

// SetGrid stores a grid produced by the engine, clamped to the grid limits
func (p *Project) SetGrid(g coverage.GridSpec) {
	g = g.Normalized()
	p.GridCols = g.Cols
	p.GridRows = g.Rows
	p.GridOffsetX = g.Origin.X
	p.GridOffsetY = g.Origin.Y
	p.GridCellSize = g.CellSize
	p.Sizing = string(g.Sizing)
	if g.Density != "" {
		p.Density = string(g.Density)
	}
	if g.CellMeters > 0 {
		p.CellSizeMeters = g.CellMeters
	}
}

// ScalePoints returns the calibration markers when both are set
func (p *Project) ScalePoints() (r2.Point, r2.Point, bool) {
	if p.ScalePoint1X == nil || p.ScalePoint1Y == nil || p.ScalePoint2X == nil || p.ScalePoint2Y == nil {
		return r2.Point{}, r2.Point{}, false
	}
	return r2.Point{X: *p.ScalePoint1X, Y: *p.ScalePoint1Y}, r2.Point{X: *p.ScalePoint2X, Y: *p.ScalePoint2Y}, true
}

// SetScalePoints stores the calibration markers
func (p *Project) SetScalePoints(p1, p2 r2.Point) {
	p.ScalePoint1X, p.ScalePoint1Y = &p1.X, &p1.Y
	p.ScalePoint2X, p.ScalePoint2Y = &p2.X, &p2.Y
}

// Scale returns meters per image pixel, or 0 when uncalibrated
func (p *Project) Scale() float64 {
	if !p.ScaleSet || p.MetersPerPixel == nil {
		return 0
	}
	return *p.MetersPerPixel
}

// Samples converts the measurements for the engine
func (p *Project) Samples() []coverage.Sample {
	out := make([]coverage.Sample, len(p.Measurements))
	for i, m := range p.Measurements {
		out[i] = m.Sample()
	}
	return out
}

// EngineState loads the project into a fresh engine
func (p *Project) EngineState(opts coverage.EngineOptions) *coverage.EngineState {
	return coverage.NewEngineState(p.ImageSize(), p.Grid(), p.Samples(), opts)
}

// Sample converts to the engine's representation
func (m Measurement) Sample() coverage.Sample {
	return coverage.Sample{ID: m.ID, GridX: m.GridX, GridY: m.GridY, Download: m.DownloadMbps, Upload: m.UploadMbps}
}

// NewMeasurement builds a measurement for a cell, validating the speeds
func NewMeasurement(projectID string, cell coverage.Cell, download, upload float64, source string) (*Measurement, error) {
	if cell.Col < 0 || cell.Row < 0 {
		return nil, &ValidationError{Field: "cell", Value: cell.String(), Message: "cell coordinates must be non-negative"}
	}
	if err := validateSpeed("download", download); err != nil {
		return nil, err
	}
	if err := validateSpeed("upload", upload); err != nil {
		return nil, err
	}
	return &Measurement{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		GridX:        cell.Col,
		GridY:        cell.Row,
		DownloadMbps: download,
		UploadMbps:   upload,
		Source:       source,
		MeasuredAt:   time.Now().UTC(),
	}, nil
}

func validateSpeed(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return &ValidationError{
			Field:   field,
			Value:   fmt.Sprint(v),
			Message: field + " speed must be a non-negative number",
		}
	}
	return nil
}

// ValidationError represents a rejected input
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
