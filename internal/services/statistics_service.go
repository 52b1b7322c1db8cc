package services

import (
	"context"
	"fmt"
	"time"

	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/heatmap"
	"speedmap-platform/internal/repository"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

// overviewPageSize bounds each listing page while walking all projects
const overviewPageSize = 100

// StatisticsService handles coverage statistics
type StatisticsService struct {
	repo    repository.ProjectRepository
	engine  coverage.EngineOptions
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// ProjectSummary is one project's coverage report
type ProjectSummary struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	heatmap.Summary
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repo repository.ProjectRepository, engine coverage.EngineOptions, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		engine:  engine,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Summary reports how well a project's grid is covered
func (s *StatisticsService) Summary(ctx context.Context, projectID string) (*ProjectSummary, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	state := p.EngineState(s.engine)
	return &ProjectSummary{
		ProjectID: p.ID,
		Name:      p.Name,
		Summary:   heatmap.Summarize(state.Grid, state.Estimator(), len(state.Stale())),
	}, nil
}

// Overview summarizes every project. A project that fails to load is
// logged and skipped.
func (s *StatisticsService) Overview(ctx context.Context) ([]*ProjectSummary, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[STATS_OVERVIEW_START] Summarizing all projects", logging.Fields{
		"stage": "INITIALIZATION",
	})

	summaries := make([]*ProjectSummary, 0)
	for offset := 0; ; offset += overviewPageSize {
		projects, total, err := s.repo.ListProjects(ctx, overviewPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}

		for _, p := range projects {
			summary, err := s.Summary(ctx, p.ID)
			if err != nil {
				s.logger.Error(logging.WithProjectID(ctx, p.ID), "[STATS_PROJECT_ERROR] Failed to summarize project", logging.Fields{
					"name": p.Name,
				}, err)
				continue
			}
			summaries = append(summaries, summary)
		}

		if len(projects) == 0 || offset+len(projects) >= total {
			break
		}
	}

	s.logger.Info(ctx, "[STATS_OVERVIEW_COMPLETE] Projects summarized", logging.Fields{
		"total_projects":   len(summaries),
		"duration_seconds": time.Since(startTime).Seconds(),
		"stage":            "COMPLETE",
	})
	return summaries, nil
}
