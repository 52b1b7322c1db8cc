package services

import (
	"context"
	"fmt"

	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/models"
	"speedmap-platform/internal/repository"
	"speedmap-platform/internal/speedtest"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

// ScanService records measurements, either from a live speed test or
// entered by hand.
type ScanService struct {
	repo    repository.ProjectRepository
	runner  speedtest.Runner
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// ScanResult is the stored measurement plus the raw test outcome
type ScanResult struct {
	Measurement *models.Measurement `json:"measurement"`
	SpeedTest   *speedtest.Result   `json:"speedtest"`
}

// NewScanService creates a new scan service
func NewScanService(repo repository.ProjectRepository, runner speedtest.Runner, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ScanService {
	return &ScanService{
		repo:    repo,
		runner:  runner,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Scan runs a speed test and stores the result at cell. A failed test
// leaves the project untouched.
func (s *ScanService) Scan(ctx context.Context, projectID string, cell coverage.Cell, req models.ScanRequest) (*ScanResult, error) {
	ctx = logging.WithProjectID(ctx, projectID)
	if _, err := s.cellInGrid(ctx, projectID, cell); err != nil {
		return nil, err
	}

	runs := 0
	if req.Runs != nil {
		runs = *req.Runs
	} else {
		settings, err := s.repo.GetSettings(ctx)
		if err != nil {
			return nil, err
		}
		runs = settings.SpeedTestRuns
	}
	runs = speedtest.ClampRuns(runs)

	s.logger.Info(ctx, "[SCAN_START] Measuring cell", logging.Fields{
		"cell": cell.String(),
		"runs": runs,
	})

	result, err := s.runner.Run(ctx, runs, speedtest.Observer{
		OnRunComplete: func(r speedtest.RunResult) {
			s.logger.Debug(ctx, "[SCAN_RUN] Run complete", logging.Fields{
				"cell":          cell.String(),
				"run":           r.Run + 1,
				"total_runs":    r.TotalRuns,
				"download_mbps": r.DownloadMbps,
				"upload_mbps":   r.UploadMbps,
			})
		},
	})
	if err != nil {
		s.logger.Warn(ctx, "[SCAN_FAILED] Speed test failed, nothing recorded", logging.Fields{
			"cell":  cell.String(),
			"error": err.Error(),
		})
		return nil, err
	}

	m, err := s.store(ctx, projectID, cell, result.DownloadMbps, result.UploadMbps, models.SourceScan)
	if err != nil {
		return nil, err
	}
	return &ScanResult{Measurement: m, SpeedTest: result}, nil
}

// RecordManual stores a measurement taken outside the app
func (s *ScanService) RecordManual(ctx context.Context, projectID string, cell coverage.Cell, req models.ManualMeasurementRequest) (*models.Measurement, error) {
	ctx = logging.WithProjectID(ctx, projectID)
	if _, err := s.cellInGrid(ctx, projectID, cell); err != nil {
		return nil, err
	}
	return s.store(ctx, projectID, cell, req.Download, req.Upload, models.SourceManual)
}

// GetMeasurement returns the measurement at cell
func (s *ScanService) GetMeasurement(ctx context.Context, projectID string, cell coverage.Cell) (*models.Measurement, error) {
	return s.repo.GetMeasurement(ctx, projectID, cell)
}

// DeleteMeasurement removes the measurement at cell
func (s *ScanService) DeleteMeasurement(ctx context.Context, projectID string, cell coverage.Cell) error {
	deleted, err := s.repo.DeleteMeasurement(ctx, projectID, cell)
	if err != nil {
		return err
	}
	if !deleted {
		return &repository.NotFoundError{Resource: "measurement", ID: projectID + cell.String()}
	}
	s.metrics.MeasurementsDeleted.Inc()
	return nil
}

// ClearMeasurements removes every measurement of a project
func (s *ScanService) ClearMeasurements(ctx context.Context, projectID string) (int64, error) {
	n, err := s.repo.ClearMeasurements(ctx, projectID)
	if err != nil {
		return 0, err
	}
	s.metrics.MeasurementsDeleted.Add(float64(n))

	s.logger.Info(logging.WithProjectID(ctx, projectID), "[SCAN_CLEAR] Measurements cleared", logging.Fields{
		"deleted": n,
	})
	return n, nil
}

func (s *ScanService) cellInGrid(ctx context.Context, projectID string, cell coverage.Cell) (*models.Project, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if grid := p.Grid(); !grid.Contains(cell) {
		return nil, &models.ValidationError{
			Field:   "cell",
			Value:   cell.String(),
			Message: fmt.Sprintf("cell %s is outside the %dx%d grid", cell, grid.Cols, grid.Rows),
		}
	}
	return p, nil
}

func (s *ScanService) store(ctx context.Context, projectID string, cell coverage.Cell, download, upload float64, source string) (*models.Measurement, error) {
	m, err := models.NewMeasurement(projectID, cell, download, upload, source)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertMeasurement(ctx, m); err != nil {
		return nil, err
	}
	s.metrics.RecordMeasurement(source)

	s.logger.Info(ctx, "[SCAN_RECORDED] Measurement stored", logging.Fields{
		"cell":          cell.String(),
		"source":        source,
		"download_mbps": download,
		"upload_mbps":   upload,
	})
	return m, nil
}
