package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/models"
	"speedmap-platform/pkg/database"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

func newTestRepository(t *testing.T) ProjectRepository {
	t.Helper()
	logger := logging.NewStructuredLogger("repository-test", "0.0.1", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollector("repository_test", prometheus.NewRegistry())

	db, err := database.NewDB(&database.Config{Driver: database.DriverSQLite, DSN: ":memory:", MaxOpenConns: 1}, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.MigrateUp())

	return NewProjectRepository(db, logger, collector)
}

func createProject(t *testing.T, repo ProjectRepository, name string) *models.Project {
	t.Helper()
	p, err := models.NewProject(name)
	require.NoError(t, err)
	require.NoError(t, repo.CreateProject(context.Background(), p))
	return p
}

func TestProjectRepository_CreateGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	p := createProject(t, repo, "Office")

	got, err := repo.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Office", got.Name)
	assert.Equal(t, p.Grid(), got.Grid())
	assert.False(t, got.ScaleSet)
	assert.Nil(t, got.ScalePoint1X)
	assert.Empty(t, got.Measurements)
	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = repo.GetProject(ctx, "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "project", nf.Resource)
	assert.False(t, nf.IsTransient())
}

func TestProjectRepository_UpdateProject(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	p := createProject(t, repo, "Home")
	p.Name = "Home upstairs"
	p.ImageWidth, p.ImageHeight = 1200, 800
	p.SetScalePoints(coverage.DefaultReferencePoints(p.ImageSize()))
	mpp := 0.01
	p.MetersPerPixel = &mpp
	p.ScaleSet = true
	require.NoError(t, repo.UpdateProject(ctx, p))

	got, err := repo.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Home upstairs", got.Name)
	assert.Equal(t, 0.01, got.Scale())
	p1, p2, ok := got.ScalePoints()
	require.True(t, ok)
	want1, want2 := coverage.DefaultReferencePoints(p.ImageSize())
	assert.Equal(t, want1, p1)
	assert.Equal(t, want2, p2)

	missing := *p
	missing.ID = "missing"
	err = repo.UpdateProject(ctx, &missing)
	assert.ErrorAs(t, err, new(*NotFoundError))
}

func TestProjectRepository_Measurements(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	p := createProject(t, repo, "Flat")
	cell := coverage.Cell{Col: 2, Row: 3}

	first, err := models.NewMeasurement(p.ID, cell, 50, 10, models.SourceScan)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertMeasurement(ctx, first))

	second, err := models.NewMeasurement(p.ID, cell, 80, 20, models.SourceManual)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertMeasurement(ctx, second))

	got, err := repo.GetMeasurement(ctx, p.ID, cell)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID, "replacement takes the new id")
	assert.Equal(t, 80.0, got.DownloadMbps)
	assert.Equal(t, models.SourceManual, got.Source)

	loaded, err := repo.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.MeasurementCount)

	other, err := models.NewMeasurement(p.ID, coverage.Cell{Col: 0, Row: 0}, 5, 1, models.SourceScan)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertMeasurement(ctx, other))

	deleted, err := repo.DeleteMeasurement(ctx, p.ID, cell)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.DeleteMeasurement(ctx, p.ID, cell)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.GetMeasurement(ctx, p.ID, cell)
	assert.ErrorAs(t, err, new(*NotFoundError))

	n, err := repo.ClearMeasurements(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	orphan, err := models.NewMeasurement("missing", cell, 1, 1, models.SourceScan)
	require.NoError(t, err)
	assert.ErrorAs(t, repo.UpsertMeasurement(ctx, orphan), new(*NotFoundError))
}

func TestProjectRepository_ListProjects(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	older := createProject(t, repo, "Older")
	time.Sleep(5 * time.Millisecond)
	newer := createProject(t, repo, "Newer")

	projects, total, err := repo.ListProjects(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, projects, 2)
	assert.Equal(t, newer.ID, projects[0].ID)

	// a new measurement moves the project to the front
	time.Sleep(5 * time.Millisecond)
	m, err := models.NewMeasurement(older.ID, coverage.Cell{Col: 1, Row: 1}, 10, 2, models.SourceScan)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertMeasurement(ctx, m))

	projects, _, err = repo.ListProjects(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, older.ID, projects[0].ID)
	assert.Equal(t, 1, projects[0].MeasurementCount)
	assert.Equal(t, 0, projects[1].MeasurementCount)

	page, total, err := repo.ListProjects(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, newer.ID, page[0].ID)
}

func TestProjectRepository_DeleteProject(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	p := createProject(t, repo, "Gone")

	m, err := models.NewMeasurement(p.ID, coverage.Cell{Col: 1, Row: 1}, 10, 2, models.SourceScan)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertMeasurement(ctx, m))

	require.NoError(t, repo.DeleteProject(ctx, p.ID))
	_, err = repo.GetProject(ctx, p.ID)
	assert.ErrorAs(t, err, new(*NotFoundError))

	err = repo.DeleteProject(ctx, p.ID)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestProjectRepository_ImportProject(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	raw := models.RawProject{
		ID:   "imported",
		Name: "Imported",
		Measurements: []models.RawMeasurement{
			{ID: "a", GridX: 0, GridY: 0, Download: 10, Upload: 1},
			{ID: "b", GridX: 1, GridY: 0, Download: 20, Upload: 2},
		},
	}
	p, _, err := raw.ToProject()
	require.NoError(t, err)
	require.NoError(t, repo.ImportProject(ctx, p))

	// importing again replaces rather than merges
	raw.Measurements = raw.Measurements[:1]
	p, _, err = raw.ToProject()
	require.NoError(t, err)
	require.NoError(t, repo.ImportProject(ctx, p))

	got, err := repo.GetProject(ctx, "imported")
	require.NoError(t, err)
	require.Len(t, got.Measurements, 1)
	assert.Equal(t, "a", got.Measurements[0].ID)
	assert.Equal(t, models.SourceImport, got.Measurements[0].Source)
}

func TestProjectRepository_Settings(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	s, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), s)

	require.NoError(t, repo.SaveSettings(ctx, models.Settings{SpeedTestRuns: 4}))
	s, err = repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, s.SpeedTestRuns)

	assert.NoError(t, repo.HealthCheck(ctx))
}
