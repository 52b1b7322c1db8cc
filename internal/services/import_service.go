package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"speedmap-platform/internal/blob"
	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/models"
	"speedmap-platform/internal/repository"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

// ImportService loads data exported from the mobile app
type ImportService struct {
	repo    repository.ProjectRepository
	blobs   blob.Store
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// ImportResult contains import statistics
type ImportResult struct {
	TotalProjects    int
	ImportedProjects int
	FailedProjects   int
	Measurements     int
	Floorplans       int
	SettingsImported bool
	Duration         time.Duration
	Errors           []string
}

// NewImportService creates a new import service
func NewImportService(repo repository.ProjectRepository, blobs blob.Store, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ImportService {
	return &ImportService{
		repo:    repo,
		blobs:   blobs,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ImportFile imports an export file from disk
func (s *ImportService) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	s.logger.Info(ctx, "[IMPORT_START] Starting import", logging.Fields{
		"file":  path,
		"stage": "INITIALIZATION",
	})
	return s.Import(ctx, file)
}

// Import replaces every project found in the export. Projects that fail
// validation are recorded in the result and skipped.
func (s *ImportService) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	startTime := time.Now()

	var export models.ExportFile
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		s.metrics.RecordImportError("decode_error")
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}

	result := &ImportResult{
		TotalProjects: len(export.Projects),
		Errors:        make([]string, 0),
	}

	for i := range export.Projects {
		raw := &export.Projects[i]
		n, hasFloorplan, err := s.importProject(ctx, raw)
		if err != nil {
			result.FailedProjects++
			result.Errors = append(result.Errors, fmt.Sprintf("project %d (%s): %v", i, raw.Name, err))
			s.logger.Error(ctx, "[IMPORT_PROJECT_ERROR] Project import failed", logging.Fields{
				"index": i,
				"name":  raw.Name,
				"stage": "PROJECT_PROCESSING",
			}, err)
			continue
		}

		result.ImportedProjects++
		result.Measurements += n
		if hasFloorplan {
			result.Floorplans++
		}
		s.metrics.ImportProjectsTotal.Inc()
	}

	if export.SpeedTestRuns != 0 {
		settings := models.Settings{SpeedTestRuns: export.SpeedTestRuns}
		if err := settings.Validate(); err != nil {
			result.Errors = append(result.Errors, err.Error())
			s.metrics.RecordImportError("settings_error")
		} else if err := s.repo.SaveSettings(ctx, settings); err != nil {
			return result, err
		} else {
			result.SettingsImported = true
		}
	}

	result.Duration = time.Since(startTime)
	s.metrics.ImportDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[IMPORT_COMPLETE] Import completed", logging.Fields{
		"total_projects":    result.TotalProjects,
		"imported_projects": result.ImportedProjects,
		"failed_projects":   result.FailedProjects,
		"measurements":      result.Measurements,
		"floorplans":        result.Floorplans,
		"duration_seconds":  result.Duration.Seconds(),
		"error_count":       len(result.Errors),
		"stage":             "COMPLETE",
	})

	return result, nil
}

func (s *ImportService) importProject(ctx context.Context, raw *models.RawProject) (int, bool, error) {
	p, fp, err := raw.ToProject()
	if err != nil {
		s.metrics.RecordImportError("validation_error")
		return 0, false, err
	}
	ctx = logging.WithProjectID(ctx, p.ID)

	if fp != nil {
		info, err := blob.SniffImage(bytes.NewReader(fp.Data))
		if err != nil {
			s.metrics.RecordImportError("floorplan_error")
			return 0, false, fmt.Errorf("invalid floor plan: %w", err)
		}
		key := blob.FloorplanKey(p.ID)
		if _, err := s.blobs.Put(ctx, key, bytes.NewReader(fp.Data), info.ContentType); err != nil {
			s.metrics.RecordImportError("blob_error")
			return 0, false, fmt.Errorf("failed to store floor plan: %w", err)
		}
		p.FloorplanKey = key
		p.FloorplanContentType = info.ContentType
		// offsets were stored against the app's size, keep it when present
		if p.ImageWidth <= 0 || p.ImageHeight <= 0 {
			p.ImageWidth, p.ImageHeight = float64(info.Width), float64(info.Height)
			if raw.GridCols <= 0 || raw.GridRows <= 0 {
				sizer := coverage.DensitySizer{Density: coverage.Density(p.Density)}
				p.SetGrid(sizer.Resize(p.Grid(), p.ImageSize()))
			}
		}
	}

	if err := s.repo.ImportProject(ctx, p); err != nil {
		s.metrics.RecordImportError("db_error")
		return 0, false, err
	}

	s.logger.Debug(ctx, "[IMPORT_PROJECT] Project imported", logging.Fields{
		"name":         p.Name,
		"measurements": len(p.Measurements),
		"floorplan":    fp != nil,
	})
	return len(p.Measurements), fp != nil, nil
}
