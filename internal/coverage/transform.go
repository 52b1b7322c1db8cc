package coverage

import (
	"math"

	"github.com/golang/geo/r2"
)

// fitMargin leaves a 5% border on each side of the fitted image
const fitMargin = 0.9

// ScaleTransform fits the floor-plan image inside a container
type ScaleTransform struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// FitImage computes the centred fit of image into container.
// Degenerate sizes fall back to the default container and a 1x1 image.
func FitImage(container, image Size) ScaleTransform {
	container = container.OrDefault(DefaultContainer)
	image = image.OrDefault(unitImage)

	scale := math.Min(container.W/image.W, container.H/image.H) * fitMargin
	return ScaleTransform{
		Scale:   scale,
		OffsetX: (container.W - image.W*scale) / 2,
		OffsetY: (container.H - image.H*scale) / 2,
	}
}

// Viewport is the live zoom and pan applied over the fitted image.
// Pan is in screen pixels.
type Viewport struct {
	Zoom float64  `json:"zoom"`
	Pan  r2.Point `json:"pan"`
}

const (
	MinZoom = 1.0
	MaxZoom = 5.0
)

// IdentityViewport is zoom 1 with no pan
func IdentityViewport() Viewport {
	return Viewport{Zoom: 1}
}

// Clamped bounds zoom to [minZoom,maxZoom] and pan to the overscroll
// margin of the given container.
func (v Viewport) Clamped(container Size, minZoom, maxZoom float64) Viewport {
	container = container.OrDefault(DefaultContainer)
	if math.IsNaN(v.Zoom) {
		v.Zoom = minZoom
	}
	v.Zoom = clamp(v.Zoom, minZoom, maxZoom)

	overscroll := math.Max(0, v.Zoom-1)
	maxX := overscroll * container.W / 2
	maxY := overscroll * container.H / 2
	v.Pan = r2.Point{
		X: clamp(v.Pan.X, -maxX, maxX),
		Y: clamp(v.Pan.Y, -maxY, maxY),
	}
	return v
}

// Project maps an unscaled container point to the screen: the draw
// transform is translate(center+pan) * scale(zoom) * translate(-center).
func (v Viewport) Project(p r2.Point, container Size) r2.Point {
	center := r2.Point{X: container.W / 2, Y: container.H / 2}
	return p.Sub(center).Mul(v.zoom()).Add(center).Add(v.Pan)
}

// Unproject is the inverse of Project
func (v Viewport) Unproject(screen r2.Point, container Size) r2.Point {
	center := r2.Point{X: container.W / 2, Y: container.H / 2}
	return screen.Sub(center).Sub(v.Pan).Mul(1 / v.zoom()).Add(center)
}

func (v Viewport) zoom() float64 {
	if !(v.Zoom > 0) {
		return 1
	}
	return v.Zoom
}

// CoordinateTransform is one snapshot of the geometry needed to move
// between screen, container, image and grid-cell space. Drawing and
// hit-testing must share a snapshot.
type CoordinateTransform struct {
	Container Size
	Fit       ScaleTransform
	Grid      GridSpec
	View      Viewport
}

// NewCoordinateTransform snapshots the fit for the current container size
func NewCoordinateTransform(container, image Size, grid GridSpec, view Viewport) CoordinateTransform {
	container = container.OrDefault(DefaultContainer)
	return CoordinateTransform{
		Container: container,
		Fit:       FitImage(container, image),
		Grid:      grid.Normalized(),
		View:      view,
	}
}

// CellPixels is the on-container size of one cell before zoom
func (t CoordinateTransform) CellPixels() float64 {
	return t.Grid.CellSize * t.Fit.Scale
}

// GridOrigin is the grid's top-left corner in unscaled container pixels
func (t CoordinateTransform) GridOrigin() r2.Point {
	return r2.Point{
		X: t.Fit.OffsetX + t.Grid.Origin.X*t.Fit.Scale,
		Y: t.Fit.OffsetY + t.Grid.Origin.Y*t.Fit.Scale,
	}
}

// ScreenToCell hit-tests a screen point against the grid
func (t CoordinateTransform) ScreenToCell(screen r2.Point) (Cell, bool) {
	p := t.View.Unproject(screen, t.Container).Sub(t.GridOrigin())
	size := t.CellPixels()
	if !(size > 0) {
		return Cell{}, false
	}

	fx := math.Floor(p.X / size)
	fy := math.Floor(p.Y / size)
	if math.IsNaN(fx) || math.IsNaN(fy) || fx < 0 || fy < 0 ||
		fx >= float64(t.Grid.Cols) || fy >= float64(t.Grid.Rows) {
		return Cell{}, false
	}

	return Cell{Col: int(fx), Row: int(fy)}, true
}

// ContainerRect is the cell's rectangle in unscaled container pixels
func (t CoordinateTransform) ContainerRect(c Cell) r2.Rect {
	size := t.CellPixels()
	lo := t.GridOrigin().Add(r2.Point{X: float64(c.Col) * size, Y: float64(c.Row) * size})
	return r2.RectFromPoints(lo, lo.Add(r2.Point{X: size, Y: size}))
}

// CellRect is the cell's rectangle on screen, zoom and pan applied
func (t CoordinateTransform) CellRect(c Cell) r2.Rect {
	r := t.ContainerRect(c)
	return r2.RectFromPoints(
		t.View.Project(r.Lo(), t.Container),
		t.View.Project(r.Hi(), t.Container),
	)
}

// ImageToScreen maps an image pixel to the screen
func (t CoordinateTransform) ImageToScreen(p r2.Point) r2.Point {
	container := r2.Point{X: t.Fit.OffsetX + p.X*t.Fit.Scale, Y: t.Fit.OffsetY + p.Y*t.Fit.Scale}
	return t.View.Project(container, t.Container)
}

// ScreenToImage maps a screen point back to image pixels
func (t CoordinateTransform) ScreenToImage(screen r2.Point) r2.Point {
	p := t.View.Unproject(screen, t.Container)
	return r2.Point{X: (p.X - t.Fit.OffsetX) / t.Fit.Scale, Y: (p.Y - t.Fit.OffsetY) / t.Fit.Scale}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
