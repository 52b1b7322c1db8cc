package services

import (
	"context"

	"speedmap-platform/internal/models"
	"speedmap-platform/internal/repository"
	"speedmap-platform/pkg/logging"
)

// SettingsService reads and writes the global preferences
type SettingsService struct {
	repo   repository.ProjectRepository
	logger *logging.StructuredLogger
}

// NewSettingsService creates a new settings service
func NewSettingsService(repo repository.ProjectRepository, logger *logging.StructuredLogger) *SettingsService {
	return &SettingsService{repo: repo, logger: logger}
}

// GetSettings returns the stored settings
func (s *SettingsService) GetSettings(ctx context.Context) (models.Settings, error) {
	return s.repo.GetSettings(ctx)
}

// UpdateSettings validates and stores new settings
func (s *SettingsService) UpdateSettings(ctx context.Context, settings models.Settings) (models.Settings, error) {
	if err := settings.Validate(); err != nil {
		return models.Settings{}, err
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return models.Settings{}, err
	}

	s.logger.Info(ctx, "[SETTINGS_UPDATE] Settings saved", logging.Fields{
		"speedtest_runs": settings.SpeedTestRuns,
	})
	return settings, nil
}
