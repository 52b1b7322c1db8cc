package coverage

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// Density selects how many columns a density-sized grid gets
type Density string

const (
	DensityCoarse Density = "coarse"
	DensityMedium Density = "medium"
	DensityFine   Density = "fine"
)

// Columns returns the column count for a density level.
// Unknown levels behave as medium.
func (d Density) Columns() int {
	switch d {
	case DensityCoarse:
		return 6
	case DensityFine:
		return 16
	default:
		return 10
	}
}

// Valid reports whether d is one of the known levels
func (d Density) Valid() bool {
	return d == DensityCoarse || d == DensityMedium || d == DensityFine
}

// ParseDensity converts a user supplied level
func ParseDensity(s string) (Density, error) {
	d := Density(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown density %q, expected coarse, medium or fine", s)
	}
	return d, nil
}

// Sizing names the strategy that produced a grid's dimensions
type Sizing string

const (
	SizingDensity  Sizing = "density"
	SizingPhysical Sizing = "physical"
)

// Cell addresses one grid cell by integer column and row
type Cell struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Point returns the cell's position in grid-cell space
func (c Cell) Point() r2.Point {
	return r2.Point{X: float64(c.Col), Y: float64(c.Row)}
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Col, c.Row)
}

// Size is a width/height pair in pixels
type Size struct {
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// OrDefault replaces non-positive or non-finite dimensions with the fallback's
func (s Size) OrDefault(fallback Size) Size {
	if !(s.W > 0) || math.IsInf(s.W, 0) {
		s.W = fallback.W
	}
	if !(s.H > 0) || math.IsInf(s.H, 0) {
		s.H = fallback.H
	}
	return s
}

var (
	// DefaultContainer is assumed while layout has not produced a real size yet
	DefaultContainer = Size{W: 300, H: 400}

	unitImage = Size{W: 1, H: 1}
)

// Grid size limits. Every cell is walked by suggestion and sampled
// Subdivisions^2 times by the heatmap, so these bound the work per request.
const (
	MaxGridAxis  = 1000
	MaxGridCells = 10000
)

// ErrGridTooLarge is returned when a sizing would exceed MaxGridAxis or MaxGridCells
var ErrGridTooLarge = errors.New("grid too large")

// GridSpec describes the measurement grid laid over a floor plan.
// Origin and CellSize are in image pixels.
type GridSpec struct {
	Cols       int      `json:"cols"`
	Rows       int      `json:"rows"`
	Origin     r2.Point `json:"origin"`
	CellSize   float64  `json:"cell_size"`
	Sizing     Sizing   `json:"sizing"`
	Density    Density  `json:"density,omitempty"`
	CellMeters float64  `json:"cell_meters,omitempty"`
}

// DefaultGrid is the grid a project starts with before a floor plan is known
func DefaultGrid() GridSpec {
	return GridSpec{Cols: 10, Rows: 10, CellSize: 50, Sizing: SizingDensity, Density: DensityMedium}
}

// Normalized returns g with degenerate dimensions replaced by usable ones
// and oversized ones clamped to MaxGridAxis and MaxGridCells
func (g GridSpec) Normalized() GridSpec {
	g.Cols = clampAxis(float64(g.Cols))
	g.Rows = clampAxis(float64(g.Rows))
	if g.Cols*g.Rows > MaxGridCells {
		g.Rows = max(1, MaxGridCells/g.Cols)
	}
	if !(g.CellSize > 0) || math.IsInf(g.CellSize, 0) {
		g.CellSize = 1
	}
	return g
}

// Oversized reports whether g exceeds the grid limits
func (g GridSpec) Oversized() bool {
	return g.Cols > MaxGridAxis || g.Rows > MaxGridAxis || g.Cols*g.Rows > MaxGridCells
}

// clampAxis converts a computed dimension to [1, MaxGridAxis], treating NaN as 1
func clampAxis(v float64) int {
	if !(v >= 1) {
		return 1
	}
	if v > MaxGridAxis {
		return MaxGridAxis
	}
	return int(v)
}

// Contains reports whether c lies in [0,cols)x[0,rows)
func (g GridSpec) Contains(c Cell) bool {
	return c.Col >= 0 && c.Col < g.Cols && c.Row >= 0 && c.Row < g.Rows
}

// CellCount is cols*rows
func (g GridSpec) CellCount() int {
	return g.Cols * g.Rows
}

// Center is the geometric centre of the grid in grid-cell units
func (g GridSpec) Center() r2.Point {
	return r2.Point{X: float64(g.Cols) / 2, Y: float64(g.Rows) / 2}
}

// Cells lists every cell in row-major order, col innermost
func (g GridSpec) Cells() []Cell {
	cells := make([]Cell, 0, g.CellCount())
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			cells = append(cells, Cell{Col: col, Row: row})
		}
	}
	return cells
}

// DragOrigin moves the grid origin by a screen-space delta observed at the
// given display scale. start is the origin when the drag began.
func (g GridSpec) DragOrigin(start, screenDelta r2.Point, scale float64) GridSpec {
	if !(scale > 0) {
		scale = 1
	}
	g.Origin = start.Add(screenDelta.Mul(1 / scale))
	return g
}

// Sizer derives grid dimensions from the floor-plan image size
type Sizer interface {
	Resize(current GridSpec, image Size) GridSpec
}

// DensitySizer sizes the grid from a discrete density level
type DensitySizer struct {
	Density Density
}

// Resize keeps the origin and recomputes cols, rows and cell size
func (s DensitySizer) Resize(current GridSpec, image Size) GridSpec {
	image = image.OrDefault(unitImage)
	density := s.Density
	if !density.Valid() {
		density = DensityMedium
	}

	cols := density.Columns()
	rows := clampAxis(math.Round(float64(cols) * image.H / image.W))

	return GridSpec{
		Cols:     cols,
		Rows:     rows,
		Origin:   current.Origin,
		CellSize: image.W / float64(cols),
		Sizing:   SizingDensity,
		Density:  density,
	}.Normalized()
}

// PhysicalSizer sizes the grid so that each cell spans CellMeters on the floor
type PhysicalSizer struct {
	CellMeters     float64
	MetersPerPixel float64
}

// Check reports ErrGridTooLarge when cells of CellMeters would not fit the
// grid limits over image. Resize itself clamps instead of failing.
func (s PhysicalSizer) Check(image Size) error {
	if !(s.CellMeters > 0) || !(s.MetersPerPixel > 0) {
		return nil
	}
	image = image.OrDefault(unitImage)
	cellPx := s.CellMeters / s.MetersPerPixel
	cols, rows := math.Ceil(image.W/cellPx), math.Ceil(image.H/cellPx)
	if cols > MaxGridAxis || rows > MaxGridAxis || cols*rows > MaxGridCells {
		return fmt.Errorf("%w: %.3g m cells give %.0fx%.0f, limit is %d cells and %d per side",
			ErrGridTooLarge, s.CellMeters, cols, rows, MaxGridCells, MaxGridAxis)
	}
	return nil
}

// Resize falls back to medium density when the calibration is unusable
func (s PhysicalSizer) Resize(current GridSpec, image Size) GridSpec {
	if !(s.CellMeters > 0) || !(s.MetersPerPixel > 0) {
		return DensitySizer{Density: DensityMedium}.Resize(current, image)
	}
	image = image.OrDefault(unitImage)

	cellPx := s.CellMeters / s.MetersPerPixel
	return GridSpec{
		Cols:       clampAxis(math.Ceil(image.W / cellPx)),
		Rows:       clampAxis(math.Ceil(image.H / cellPx)),
		Origin:     current.Origin,
		CellSize:   cellPx,
		Sizing:     SizingPhysical,
		CellMeters: s.CellMeters,
	}.Normalized()
}
