package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/heatmap"
	"speedmap-platform/internal/repository"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

// Format is a heatmap output encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatPNG  Format = "png"
	FormatHTML Format = "html"
)

// ParseFormat accepts json, png or html; empty means json
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatPNG, FormatHTML:
		return Format(s), nil
	case "":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown heatmap format %q, expected json, png or html", s)
}

// ContentType is the MIME type of the encoding
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}

// HeatmapView is the JSON form of a heatmap
type HeatmapView struct {
	ProjectID string            `json:"project_id"`
	Grid      coverage.GridSpec `json:"grid"`
	Field     heatmap.Field     `json:"field"`
	Legend    heatmap.Legend    `json:"legend"`
	Progress  string            `json:"progress"`
}

// Rendered is an encoded heatmap
type Rendered struct {
	ContentType string
	Body        []byte
}

// InsufficientSamplesError means a heatmap was requested too early
type InsufficientSamplesError struct {
	Have int
	Need int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("heatmap needs at least %d measurements inside the grid, have %d", e.Need, e.Have)
}

// IsTransient returns false; more measurements are needed first
func (e *InsufficientSamplesError) IsTransient() bool {
	return false
}

// HeatmapService renders interpolated coverage fields
type HeatmapService struct {
	repo         repository.ProjectRepository
	engine       coverage.EngineOptions
	subdivisions int
	logger       *logging.StructuredLogger
	metrics      *metrics.Collector
}

// NewHeatmapService creates a new heatmap service
func NewHeatmapService(repo repository.ProjectRepository, engine coverage.EngineOptions, subdivisions int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *HeatmapService {
	if subdivisions < 1 {
		subdivisions = heatmap.DefaultSubdivisions
	}
	return &HeatmapService{
		repo:         repo,
		engine:       engine,
		subdivisions: subdivisions,
		logger:       logger,
		metrics:      metricsCollector,
	}
}

// Heatmap computes the field of kind for a project
func (s *HeatmapService) Heatmap(ctx context.Context, projectID string, kind heatmap.Kind) (*HeatmapView, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	state := p.EngineState(s.engine)
	est := state.Estimator()
	if n := len(est.Samples()); n < heatmap.MinSamples {
		return nil, &InsufficientSamplesError{Have: n, Need: heatmap.MinSamples}
	}

	field := heatmap.Compute(est, state.Grid, kind, s.subdivisions)
	s.metrics.FieldPoints.Observe(float64(field.Width() * field.Height()))

	return &HeatmapView{
		ProjectID: p.ID,
		Grid:      state.Grid,
		Field:     field,
		Legend:    heatmap.NewLegend(kind, field.Range),
		Progress:  heatmap.ProgressText(len(est.Samples()), state.Grid.CellCount()),
	}, nil
}

// Render encodes the heatmap of kind in format
func (s *HeatmapService) Render(ctx context.Context, projectID string, kind heatmap.Kind, format Format) (*Rendered, error) {
	view, err := s.Heatmap(ctx, projectID, kind)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var buf bytes.Buffer
	title := fmt.Sprintf("%s coverage", kind)
	switch format {
	case FormatPNG:
		err = heatmap.RenderPNG(&buf, view.Field, heatmap.PNGOptions{Title: title})
	case FormatHTML:
		err = heatmap.RenderHTML(&buf, view.Field, heatmap.HTMLOptions{Title: title})
	default:
		err = json.NewEncoder(&buf).Encode(view)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render %s heatmap: %w", format, err)
	}
	duration := time.Since(start)
	s.metrics.RenderDuration.WithLabelValues(string(format)).Observe(duration.Seconds())

	s.logger.Debug(logging.WithProjectID(ctx, projectID), "[HEATMAP_RENDER] Heatmap rendered", logging.Fields{
		"kind":        string(kind),
		"format":      string(format),
		"bytes":       buf.Len(),
		"duration_ms": duration.Milliseconds(),
	})
	return &Rendered{ContentType: format.ContentType(), Body: buf.Bytes()}, nil
}
