package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/models"
	"speedmap-platform/pkg/database"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

// ProjectRepository provides data access for projects, measurements and settings
type ProjectRepository interface {
	// Project operations
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, int, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error
	ImportProject(ctx context.Context, p *models.Project) error

	// Measurement operations
	UpsertMeasurement(ctx context.Context, m *models.Measurement) error
	GetMeasurement(ctx context.Context, projectID string, cell coverage.Cell) (*models.Measurement, error)
	DeleteMeasurement(ctx context.Context, projectID string, cell coverage.Cell) (bool, error)
	ClearMeasurements(ctx context.Context, projectID string) (int64, error)

	// Settings operations
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) error

	// Utility operations
	HealthCheck(ctx context.Context) error
}

const projectColumns = `
	id, name, created_at, updated_at, floorplan_key, floorplan_content_type,
	image_width, image_height, sizing, density,
	scale_p1_x, scale_p1_y, scale_p2_x, scale_p2_y,
	wall_length_meters, meters_per_pixel, scale_set, cell_size_meters,
	grid_offset_x, grid_offset_y, grid_cell_size, grid_cols, grid_rows`

const insertProject = `
	INSERT INTO projects (` + projectColumns + `)
	VALUES (
		:id, :name, :created_at, :updated_at, :floorplan_key, :floorplan_content_type,
		:image_width, :image_height, :sizing, :density,
		:scale_p1_x, :scale_p1_y, :scale_p2_x, :scale_p2_y,
		:wall_length_meters, :meters_per_pixel, :scale_set, :cell_size_meters,
		:grid_offset_x, :grid_offset_y, :grid_cell_size, :grid_cols, :grid_rows
	)`

const measurementColumns = `id, project_id, grid_x, grid_y, download_mbps, upload_mbps, source, measured_at`

const upsertMeasurement = `
	INSERT INTO measurements (` + measurementColumns + `)
	VALUES (:id, :project_id, :grid_x, :grid_y, :download_mbps, :upload_mbps, :source, :measured_at)
	ON CONFLICT (project_id, grid_x, grid_y) DO UPDATE SET
		id = EXCLUDED.id,
		download_mbps = EXCLUDED.download_mbps,
		upload_mbps = EXCLUDED.upload_mbps,
		source = EXCLUDED.source,
		measured_at = EXCLUDED.measured_at`

const settingRuns = "speedtest_runs"

// projectRepository implements ProjectRepository
type projectRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ProjectRepository {
	return &projectRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// CreateProject inserts a new project without measurements
func (r *projectRepository) CreateProject(ctx context.Context, p *models.Project) error {
	if _, err := r.db.NamedExecContext(ctx, "insert_project", insertProject, p); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_PROJECT] Project created", logging.Fields{
		"project_id": p.ID,
		"name":       p.Name,
	})
	return nil
}

// GetProject loads a project with all of its measurements
func (r *projectRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	var p models.Project
	err := r.db.GetContext(ctx, "get_project", &p, query, id)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	err = r.db.SelectContext(ctx, "get_measurements", &p.Measurements, `
		SELECT `+measurementColumns+`
		FROM measurements
		WHERE project_id = ?
		ORDER BY grid_y, grid_x
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get measurements: %w", err)
	}
	p.MeasurementCount = len(p.Measurements)

	return &p, nil
}

// ListProjects returns projects most recently updated first, with counts
func (r *projectRepository) ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, int, error) {
	var total int
	if err := r.db.GetContext(ctx, "count_projects", &total, `SELECT COUNT(*) FROM projects`); err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	query := `
		SELECT ` + projectColumns + `,
		       (SELECT COUNT(*) FROM measurements m WHERE m.project_id = projects.id) AS measurement_count
		FROM projects
		ORDER BY updated_at DESC, id
		LIMIT ? OFFSET ?
	`
	projects := []*models.Project{}
	if err := r.db.SelectContext(ctx, "list_projects", &projects, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}

	return projects, total, nil
}

// UpdateProject writes every project column and bumps updated_at
func (r *projectRepository) UpdateProject(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE projects SET
			name = :name, updated_at = :updated_at,
			floorplan_key = :floorplan_key, floorplan_content_type = :floorplan_content_type,
			image_width = :image_width, image_height = :image_height,
			sizing = :sizing, density = :density,
			scale_p1_x = :scale_p1_x, scale_p1_y = :scale_p1_y,
			scale_p2_x = :scale_p2_x, scale_p2_y = :scale_p2_y,
			wall_length_meters = :wall_length_meters, meters_per_pixel = :meters_per_pixel,
			scale_set = :scale_set, cell_size_meters = :cell_size_meters,
			grid_offset_x = :grid_offset_x, grid_offset_y = :grid_offset_y,
			grid_cell_size = :grid_cell_size, grid_cols = :grid_cols, grid_rows = :grid_rows
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, "update_project", query, p)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &NotFoundError{Resource: "project", ID: p.ID}
	}
	return nil
}

// DeleteProject removes a project and its measurements
func (r *projectRepository) DeleteProject(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM measurements WHERE project_id = ?`), id); err != nil {
		r.metrics.RecordDBError("exec_error")
		return fmt.Errorf("failed to delete measurements: %w", err)
	}
	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		r.metrics.RecordDBError("exec_error")
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &NotFoundError{Resource: "project", ID: id}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_DELETE_PROJECT] Project deleted", logging.Fields{"project_id": id})
	return nil
}

// ImportProject replaces a project and its measurements in one transaction
func (r *projectRepository) ImportProject(ctx context.Context, p *models.Project) error {
	timer := time.Now()
	defer func() {
		r.logger.Debug(ctx, "[REPO_IMPORT_PROJECT] Import completed", logging.Fields{
			"project_id":   p.ID,
			"measurements": len(p.Measurements),
			"duration_ms":  time.Since(timer).Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM measurements WHERE project_id = ?`), p.ID); err != nil {
		return fmt.Errorf("failed to clear measurements: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM projects WHERE id = ?`), p.ID); err != nil {
		return fmt.Errorf("failed to replace project: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertProject, p); err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	if len(p.Measurements) > 0 {
		stmt, err := tx.PrepareNamedContext(ctx, upsertMeasurement)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i := range p.Measurements {
			m := &p.Measurements[i]
			m.ProjectID = p.ID
			if _, err := stmt.ExecContext(ctx, m); err != nil {
				return fmt.Errorf("failed to insert measurement: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.MeasurementsRecorded.WithLabelValues(models.SourceImport).Add(float64(len(p.Measurements)))
	return nil
}

// UpsertMeasurement stores m, replacing any measurement at the same cell,
// and bumps the project's updated_at.
func (r *projectRepository) UpsertMeasurement(ctx context.Context, m *models.Measurement) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touchProject(ctx, tx, m.ProjectID); err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, upsertMeasurement, m); err != nil {
		r.metrics.RecordDBError("exec_error")
		return fmt.Errorf("failed to upsert measurement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetMeasurement returns the measurement at a cell
func (r *projectRepository) GetMeasurement(ctx context.Context, projectID string, cell coverage.Cell) (*models.Measurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM measurements
		WHERE project_id = ? AND grid_x = ? AND grid_y = ?
	`
	var m models.Measurement
	err := r.db.GetContext(ctx, "get_measurement", &m, query, projectID, cell.Col, cell.Row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "measurement", ID: projectID + cell.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get measurement: %w", err)
	}
	return &m, nil
}

// DeleteMeasurement removes the measurement at a cell, reporting whether one existed
func (r *projectRepository) DeleteMeasurement(ctx context.Context, projectID string, cell coverage.Cell) (bool, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touchProject(ctx, tx, projectID); err != nil {
		return false, err
	}
	result, err := tx.ExecContext(ctx,
		tx.Rebind(`DELETE FROM measurements WHERE project_id = ? AND grid_x = ? AND grid_y = ?`),
		projectID, cell.Col, cell.Row,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete measurement: %w", err)
	}
	n, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n > 0, nil
}

// ClearMeasurements removes every measurement of a project
func (r *projectRepository) ClearMeasurements(ctx context.Context, projectID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touchProject(ctx, tx, projectID); err != nil {
		return 0, err
	}
	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM measurements WHERE project_id = ?`), projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear measurements: %w", err)
	}
	n, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// touchProject bumps updated_at, failing with NotFoundError for unknown projects
func touchProject(ctx context.Context, tx *sqlx.Tx, projectID string) error {
	result, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE projects SET updated_at = ? WHERE id = ?`), time.Now().UTC(), projectID)
	if err != nil {
		return fmt.Errorf("failed to touch project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &NotFoundError{Resource: "project", ID: projectID}
	}
	return nil
}

// GetSettings reads the global settings, defaulting missing keys
func (r *projectRepository) GetSettings(ctx context.Context) (models.Settings, error) {
	settings := models.DefaultSettings()

	var value string
	err := r.db.GetContext(ctx, "get_setting", &value, `SELECT value FROM settings WHERE key = ?`, settingRuns)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to get settings: %w", err)
	}

	runs, err := strconv.Atoi(value)
	if err != nil {
		r.logger.Warn(ctx, "[REPO_SETTINGS_INVALID] Ignoring malformed setting", logging.Fields{
			"key":   settingRuns,
			"value": value,
		})
		return settings, nil
	}
	settings.SpeedTestRuns = runs
	return settings, nil
}

// SaveSettings persists the global settings
func (r *projectRepository) SaveSettings(ctx context.Context, s models.Settings) error {
	_, err := r.db.ExecContext(ctx, "upsert_setting", `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, settingRuns, strconv.Itoa(s.SpeedTestRuns))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// HealthCheck performs a repository health check
func (r *projectRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
