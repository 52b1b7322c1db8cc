package coverage

import (
	"github.com/golang/geo/r2"
)

// EngineOptions holds the tunable constants of the engine
type EngineOptions struct {
	Power            float64
	ConfidenceRadius float64
	MinZoom          float64
	MaxZoom          float64
}

// DefaultEngineOptions returns IDW power 2, a 5 cell confidence radius
// and zoom limits [1,5].
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Power:            DefaultPower,
		ConfidenceRadius: DefaultConfidenceRadius,
		MinZoom:          MinZoom,
		MaxZoom:          MaxZoom,
	}
}

// EngineState is everything the engine needs for one open project.
// It is not safe for concurrent use; callers own a state exclusively.
type EngineState struct {
	Image   Size
	Grid    GridSpec
	Samples *MeasurementSet
	View    Viewport

	opts  EngineOptions
	cache engineCache
}

type engineCache struct {
	valid      bool
	version    uint64
	grid       GridSpec
	estimator  *Estimator
	suggestion *Cell
	suggested  bool
}

// NewEngineState wraps a loaded grid and sample list
func NewEngineState(image Size, grid GridSpec, samples []Sample, opts EngineOptions) *EngineState {
	if opts.MaxZoom == 0 {
		opts.MinZoom, opts.MaxZoom = MinZoom, MaxZoom
	}
	return &EngineState{
		Image:   image,
		Grid:    grid.Normalized(),
		Samples: NewMeasurementSet(samples...),
		View:    IdentityViewport(),
		opts:    opts,
	}
}

// Options returns the engine's tuning
func (s *EngineState) Options() EngineOptions {
	return s.opts
}

// Resize applies a sizing strategy to the current image
func (s *EngineState) Resize(sizer Sizer) GridSpec {
	s.Grid = sizer.Resize(s.Grid, s.Image)
	s.invalidate()
	return s.Grid
}

// SetDensity resizes the grid from a density level
func (s *EngineState) SetDensity(d Density) GridSpec {
	return s.Resize(DensitySizer{Density: d})
}

// SetPhysicalCellSize resizes the grid from a physical cell length
func (s *EngineState) SetPhysicalCellSize(cellMeters, metersPerPixel float64) GridSpec {
	return s.Resize(PhysicalSizer{CellMeters: cellMeters, MetersPerPixel: metersPerPixel})
}

// SetImage records new floor-plan dimensions without resizing the grid
func (s *EngineState) SetImage(image Size) {
	s.Image = image
	s.invalidate()
}

// SetOrigin moves the grid origin, in image pixels
func (s *EngineState) SetOrigin(origin r2.Point) {
	s.Grid.Origin = origin
	s.invalidate()
}

// Upsert records a measurement, replacing any at the same cell
func (s *EngineState) Upsert(c Cell, download, upload float64) Sample {
	return s.Samples.Upsert(c, download, upload)
}

// Remove deletes the measurement at c
func (s *EngineState) Remove(c Cell) bool {
	return s.Samples.Remove(c)
}

// Clear deletes all measurements
func (s *EngineState) Clear() {
	s.Samples.Clear()
}

// Find returns the measurement at c
func (s *EngineState) Find(c Cell) (Sample, bool) {
	return s.Samples.Find(c)
}

// Active returns the samples inside the current grid
func (s *EngineState) Active() []Sample {
	return s.estimator().Samples()
}

// Stale returns the samples left outside the grid by a resize
func (s *EngineState) Stale() []Sample {
	var out []Sample
	for _, sample := range s.Samples.Samples() {
		if !s.Grid.Contains(sample.Cell()) {
			out = append(out, sample)
		}
	}
	return out
}

// FieldValue interpolates ch at a fractional grid position
func (s *EngineState) FieldValue(p r2.Point, ch Channel) float64 {
	return s.estimator().FieldValue(p, ch)
}

// Confidence at a fractional grid position
func (s *EngineState) Confidence(p r2.Point) float64 {
	return s.estimator().Confidence(p)
}

// Estimator exposes the cached estimator for bulk rendering
func (s *EngineState) Estimator() *Estimator {
	return s.estimator()
}

// Suggestion is the next cell to measure, cached until the next mutation
func (s *EngineState) Suggestion() (Cell, bool) {
	s.refresh()
	if !s.cache.suggested {
		c, ok := SuggestNextCell(s.Grid, s.cache.estimator.Samples())
		s.cache.suggested = true
		s.cache.suggestion = nil
		if ok {
			s.cache.suggestion = &c
		}
	}
	if s.cache.suggestion == nil {
		return Cell{}, false
	}
	return *s.cache.suggestion, true
}

// Transform snapshots the coordinate transform for a container size
func (s *EngineState) Transform(container Size) CoordinateTransform {
	return NewCoordinateTransform(container, s.Image, s.Grid, s.View)
}

// HitTest resolves a screen point to a cell
func (s *EngineState) HitTest(container Size, screen r2.Point) (Cell, bool) {
	return s.Transform(container).ScreenToCell(screen)
}

// SetViewport stores a viewport after clamping it to container
func (s *EngineState) SetViewport(v Viewport, container Size) Viewport {
	s.View = v.Clamped(container, s.opts.MinZoom, s.opts.MaxZoom)
	return s.View
}

func (s *EngineState) estimator() *Estimator {
	s.refresh()
	return s.cache.estimator
}

func (s *EngineState) refresh() {
	if s.cache.valid && s.cache.version == s.Samples.Version() && s.cache.grid == s.Grid {
		return
	}
	s.cache = engineCache{
		valid:   true,
		version: s.Samples.Version(),
		grid:    s.Grid,
		estimator: NewEstimator(s.Samples.Within(s.Grid), EstimatorOptions{
			Power:            s.opts.Power,
			ConfidenceRadius: s.opts.ConfidenceRadius,
		}),
	}
}

func (s *EngineState) invalidate() {
	s.cache.valid = false
}
