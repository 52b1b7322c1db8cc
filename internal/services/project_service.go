package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/golang/geo/r2"

	"speedmap-platform/internal/blob"
	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/gesture"
	"speedmap-platform/internal/models"
	"speedmap-platform/internal/repository"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

// MaxFloorplanBytes caps uploaded floor-plan images
const MaxFloorplanBytes = 20 << 20

// ProjectService handles projects, floor plans and grid layout
type ProjectService struct {
	repo    repository.ProjectRepository
	blobs   blob.Store
	engine  coverage.EngineOptions
	gesture gesture.Options
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewProjectService creates a new project service
func NewProjectService(repo repository.ProjectRepository, blobs blob.Store, engine coverage.EngineOptions, gestures gesture.Options, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ProjectService {
	return &ProjectService{
		repo:    repo,
		blobs:   blobs,
		engine:  engine,
		gesture: gestures,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// CreateProject creates an empty project with the default grid
func (s *ProjectService) CreateProject(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error) {
	p, err := models.NewProject(req.Name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info(logging.WithProjectID(ctx, p.ID), "[PROJECT_CREATE] Project created", logging.Fields{
		"name": p.Name,
	})
	return p, nil
}

// GetProject retrieves a project with its measurements
func (s *ProjectService) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return s.repo.GetProject(ctx, id)
}

// ListProjects retrieves projects, most recently updated first
func (s *ProjectService) ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, int, error) {
	return s.repo.ListProjects(ctx, limit, offset)
}

// UpdateProject renames a project
func (s *ProjectService) UpdateProject(ctx context.Context, id string, req models.UpdateProjectRequest) (*models.Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if p.Name, err = models.ValidateName(*req.Name); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject removes a project, its measurements and its floor plan
func (s *ProjectService) DeleteProject(ctx context.Context, id string) error {
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, blob.FloorplanKey(id)); err != nil && !errors.Is(err, blob.ErrNotFound) {
		// the project row is already gone, an orphaned image is harmless
		s.logger.Warn(logging.WithProjectID(ctx, id), "[PROJECT_DELETE_BLOB] Failed to delete floor plan", logging.Fields{
			"error": err.Error(),
		})
	}
	return nil
}

// UploadFloorplan stores a new floor-plan image. The previous calibration
// no longer applies, so the grid returns to density sizing with default
// reference points.
func (s *ProjectService) UploadFloorplan(ctx context.Context, id string, r io.Reader) (*models.Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxFloorplanBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read floor plan: %w", err)
	}
	if len(data) > MaxFloorplanBytes {
		return nil, &models.ValidationError{Field: "floorplan", Value: fmt.Sprint(len(data)), Message: "floor plan image is too large"}
	}

	info, err := blob.SniffImage(bytes.NewReader(data))
	if err != nil {
		return nil, &models.ValidationError{Field: "floorplan", Message: err.Error()}
	}

	key := blob.FloorplanKey(p.ID)
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data), info.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store floor plan: %w", err)
	}

	p.FloorplanKey = key
	p.FloorplanContentType = info.ContentType
	p.ImageWidth, p.ImageHeight = float64(info.Width), float64(info.Height)
	p.SetScalePoints(coverage.DefaultReferencePoints(p.ImageSize()))
	p.ScaleSet = false
	p.MetersPerPixel = nil
	p.WallLengthMeters = nil

	state := p.EngineState(s.engine)
	p.SetGrid(state.SetDensity(coverage.Density(p.Density)))

	if err := s.repo.UpdateProject(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info(logging.WithProjectID(ctx, p.ID), "[PROJECT_FLOORPLAN] Floor plan uploaded", logging.Fields{
		"format": info.Format,
		"width":  info.Width,
		"height": info.Height,
		"bytes":  len(data),
		"cols":   p.GridCols,
		"rows":   p.GridRows,
	})
	return p, nil
}

// Floorplan opens a project's floor-plan image
func (s *ProjectService) Floorplan(ctx context.Context, id string) (blob.Info, io.ReadCloser, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return blob.Info{}, nil, err
	}
	if p.FloorplanKey == "" {
		return blob.Info{}, nil, &repository.NotFoundError{Resource: "floorplan", ID: id}
	}

	info, rc, err := s.blobs.Get(ctx, p.FloorplanKey)
	if errors.Is(err, blob.ErrNotFound) {
		return blob.Info{}, nil, &repository.NotFoundError{Resource: "floorplan", ID: id}
	}
	return info, rc, err
}

// SetDensity resizes the grid from a density level
func (s *ProjectService) SetDensity(ctx context.Context, id string, req models.DensityRequest) (*models.Project, error) {
	density, err := coverage.ParseDensity(req.Density)
	if err != nil {
		return nil, &models.ValidationError{Field: "density", Value: req.Density, Message: err.Error()}
	}

	return s.updateGrid(ctx, id, func(p *models.Project, state *coverage.EngineState) error {
		p.SetGrid(state.SetDensity(density))
		return nil
	})
}

// SetScale calibrates the floor plan from two reference points and sizes
// the grid in meters.
func (s *ProjectService) SetScale(ctx context.Context, id string, req models.ScaleRequest) (*models.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	mpp, err := coverage.MetersPerPixel(req.Point1, req.Point2, req.WallLengthMeters)
	if err != nil {
		return nil, &models.ValidationError{Field: "points", Message: err.Error()}
	}

	return s.updateGrid(ctx, id, func(p *models.Project, state *coverage.EngineState) error {
		sizer := coverage.PhysicalSizer{CellMeters: req.CellSizeMeters, MetersPerPixel: mpp}
		if err := sizer.Check(p.ImageSize()); err != nil {
			return &models.ValidationError{
				Field:   "cell_size_meters",
				Value:   fmt.Sprint(req.CellSizeMeters),
				Message: err.Error(),
			}
		}
		p.SetScalePoints(req.Point1, req.Point2)
		wall := req.WallLengthMeters
		p.WallLengthMeters = &wall
		p.MetersPerPixel = &mpp
		p.ScaleSet = true
		p.SetGrid(state.SetPhysicalCellSize(req.CellSizeMeters, mpp))

		s.logger.Info(logging.WithProjectID(ctx, p.ID), "[PROJECT_SCALE] Floor plan calibrated", logging.Fields{
			"meters_per_pixel": mpp,
			"cell_size_meters": req.CellSizeMeters,
			"cols":             p.GridCols,
			"rows":             p.GridRows,
		})
		return nil
	})
}

// SetOffset drags the grid origin by a screen delta
func (s *ProjectService) SetOffset(ctx context.Context, id string, req models.OffsetRequest) (*models.Project, error) {
	return s.updateGrid(ctx, id, func(p *models.Project, state *coverage.EngineState) error {
		g := state.Grid
		p.SetGrid(g.DragOrigin(g.Origin, r2.Point{X: req.DX, Y: req.DY}, req.Scale))
		return nil
	})
}

func (s *ProjectService) updateGrid(ctx context.Context, id string, apply func(*models.Project, *coverage.EngineState) error) (*models.Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	state := p.EngineState(s.engine)
	if err := apply(p, state); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Suggestion is the next cell worth measuring
type Suggestion struct {
	Cell  *coverage.Cell `json:"cell"`
	Found bool           `json:"found"`
}

// Suggest returns the cell farthest from every existing measurement
func (s *ProjectService) Suggest(ctx context.Context, id string) (*Suggestion, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	cell, ok := p.EngineState(s.engine).Suggestion()
	s.metrics.RecordSuggestion(ok)
	if !ok {
		return &Suggestion{}, nil
	}
	return &Suggestion{Cell: &cell, Found: true}, nil
}

// HitResult is the cell under a screen point, with its measurement if any
type HitResult struct {
	Cell        *coverage.Cell      `json:"cell"`
	Hit         bool                `json:"hit"`
	Measurement *models.Measurement `json:"measurement,omitempty"`
}

// HitTest resolves a screen point in the client's layout to a grid cell
func (s *ProjectService) HitTest(ctx context.Context, id string, req models.HitTestRequest) (*HitResult, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	state := p.EngineState(s.engine)
	state.SetViewport(req.Viewport, req.Container)
	cell, ok := state.HitTest(req.Container, r2.Point{X: req.X, Y: req.Y})
	return hitResult(p, cell, ok), nil
}

func hitResult(p *models.Project, cell coverage.Cell, ok bool) *HitResult {
	if !ok {
		return &HitResult{}
	}
	res := &HitResult{Cell: &cell, Hit: true}
	for i := range p.Measurements {
		if m := p.Measurements[i]; m.GridX == cell.Col && m.GridY == cell.Row {
			res.Measurement = &m
			break
		}
	}
	return res
}

// GestureResult is the viewport after a touch trace and every tap in it
type GestureResult struct {
	Viewport coverage.Viewport `json:"viewport"`
	Taps     []TapResult       `json:"taps"`
}

// TapResult is one tap resolved against the grid
type TapResult struct {
	At r2.Point `json:"at"`
	HitResult
}

// ReplayGestures runs a touch trace through the pinch/pan controller,
// resolving each tap with the viewport in effect when it happened.
func (s *ProjectService) ReplayGestures(ctx context.Context, id string, req models.GestureRequest) (*GestureResult, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	state := p.EngineState(s.engine)
	ctrl := gesture.NewController(s.gesture)
	ctrl.SetViewport(req.Viewport, req.Container)

	result := &GestureResult{Taps: []TapResult{}}
	for i, ev := range req.Events {
		if ev.Size == (coverage.Size{}) {
			ev.Size = req.Container
		}
		rel, ended, err := ctrl.Handle(ev)
		if err != nil {
			return nil, &models.ValidationError{Field: "events", Value: fmt.Sprint(i), Message: err.Error()}
		}
		if !ended || !rel.Tap {
			continue
		}
		state.SetViewport(ctrl.Viewport(), ev.Size)
		cell, ok := state.HitTest(ev.Size, rel.At)
		result.Taps = append(result.Taps, TapResult{At: rel.At, HitResult: *hitResult(p, cell, ok)})
	}
	result.Viewport = ctrl.Viewport()

	s.logger.Debug(logging.WithProjectID(ctx, id), "[PROJECT_GESTURES] Touch trace replayed", logging.Fields{
		"events": len(req.Events),
		"taps":   len(result.Taps),
		"zoom":   result.Viewport.Zoom,
	})
	return result, nil
}
