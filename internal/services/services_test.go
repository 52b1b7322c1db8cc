package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedmap-platform/internal/blob"
	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/gesture"
	"speedmap-platform/internal/heatmap"
	"speedmap-platform/internal/models"
	"speedmap-platform/internal/repository"
	"speedmap-platform/internal/speedtest"
	"speedmap-platform/pkg/database"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

type fakeRunner struct {
	result *speedtest.Result
	err    error
	runs   int
}

func (f *fakeRunner) Run(ctx context.Context, runs int, obs speedtest.Observer) (*speedtest.Result, error) {
	f.runs = runs
	if f.err != nil {
		return nil, f.err
	}
	if obs.OnRunComplete != nil {
		obs.OnRunComplete(speedtest.RunResult{DownloadMbps: f.result.DownloadMbps, UploadMbps: f.result.UploadMbps, TotalRuns: runs})
	}
	return f.result, nil
}

type testEnv struct {
	repo     repository.ProjectRepository
	blobs    *blob.Memory
	runner   *fakeRunner
	projects *ProjectService
	scans    *ScanService
	heatmaps *HeatmapService
	stats    *StatisticsService
	imports  *ImportService
	settings *SettingsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.NewStructuredLogger("services-test", "0.0.1", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollector("services_test", prometheus.NewRegistry())

	db, err := database.NewDB(&database.Config{Driver: database.DriverSQLite, DSN: ":memory:", MaxOpenConns: 1}, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.MigrateUp())

	repo := repository.NewProjectRepository(db, logger, collector)
	blobs := blob.NewMemory()
	runner := &fakeRunner{result: &speedtest.Result{DownloadMbps: 120, UploadMbps: 30}}
	engine := coverage.DefaultEngineOptions()

	return &testEnv{
		repo:     repo,
		blobs:    blobs,
		runner:   runner,
		projects: NewProjectService(repo, blobs, engine, gesture.DefaultOptions(), logger, collector),
		scans:    NewScanService(repo, runner, logger, collector),
		heatmaps: NewHeatmapService(repo, engine, 4, logger, collector),
		stats:    NewStatisticsService(repo, engine, logger, collector),
		imports:  NewImportService(repo, blobs, logger, collector),
		settings: NewSettingsService(repo, logger),
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func (e *testEnv) newProject(t *testing.T, name string) *models.Project {
	t.Helper()
	p, err := e.projects.CreateProject(context.Background(), models.CreateProjectRequest{Name: name})
	require.NoError(t, err)
	return p
}

func (e *testEnv) measure(t *testing.T, projectID string, col, row int, down, up float64) {
	t.Helper()
	_, err := e.scans.RecordManual(context.Background(), projectID, coverage.Cell{Col: col, Row: row},
		models.ManualMeasurementRequest{Download: down, Upload: up})
	require.NoError(t, err)
}

func TestProjectService_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.projects.CreateProject(ctx, models.CreateProjectRequest{Name: " "})
	assert.ErrorAs(t, err, new(*models.ValidationError))

	p := env.newProject(t, "Office")
	name := "Office 2F"
	p, err = env.projects.UpdateProject(ctx, p.ID, models.UpdateProjectRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Office 2F", p.Name)

	projects, total, err := env.projects.ListProjects(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, projects, 1)

	_, err = env.projects.UploadFloorplan(ctx, p.ID, bytes.NewReader(pngBytes(t, 400, 200)))
	require.NoError(t, err)
	require.NoError(t, env.projects.DeleteProject(ctx, p.ID))

	_, err = env.projects.GetProject(ctx, p.ID)
	assert.ErrorAs(t, err, new(*repository.NotFoundError))
	_, _, err = env.blobs.Get(ctx, blob.FloorplanKey(p.ID))
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestProjectService_UploadFloorplan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newProject(t, "Plan")

	_, _, err := env.projects.Floorplan(ctx, p.ID)
	assert.ErrorAs(t, err, new(*repository.NotFoundError))

	_, err = env.projects.UploadFloorplan(ctx, p.ID, strings.NewReader("not an image"))
	assert.ErrorAs(t, err, new(*models.ValidationError))

	p, err = env.projects.UploadFloorplan(ctx, p.ID, bytes.NewReader(pngBytes(t, 400, 200)))
	require.NoError(t, err)
	assert.True(t, p.HasFloorplan())
	assert.Equal(t, "image/png", p.FloorplanContentType)
	assert.Equal(t, 10, p.GridCols)
	assert.Equal(t, 5, p.GridRows)
	assert.Equal(t, 40.0, p.GridCellSize)

	p1, p2, ok := p.ScalePoints()
	require.True(t, ok)
	assert.Equal(t, r2.Point{X: 80, Y: 100}, p1)
	assert.Equal(t, r2.Point{X: 320, Y: 100}, p2)

	info, rc, err := env.projects.Floorplan(ctx, p.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/png", info.ContentType)
}

func TestProjectService_Grid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newProject(t, "Grid")
	_, err := env.projects.UploadFloorplan(ctx, p.ID, bytes.NewReader(pngBytes(t, 400, 200)))
	require.NoError(t, err)

	_, err = env.projects.SetDensity(ctx, p.ID, models.DensityRequest{Density: "dense"})
	assert.ErrorAs(t, err, new(*models.ValidationError))

	p, err = env.projects.SetDensity(ctx, p.ID, models.DensityRequest{Density: "fine"})
	require.NoError(t, err)
	assert.Equal(t, 16, p.GridCols)
	assert.Equal(t, 8, p.GridRows)

	_, err = env.projects.SetScale(ctx, p.ID, models.ScaleRequest{
		Point1: r2.Point{X: 10, Y: 10}, Point2: r2.Point{X: 10, Y: 10}, WallLengthMeters: 5, CellSizeMeters: 1,
	})
	assert.ErrorAs(t, err, new(*models.ValidationError), "coincident points")

	p, err = env.projects.SetScale(ctx, p.ID, models.ScaleRequest{
		Point1: r2.Point{X: 0, Y: 0}, Point2: r2.Point{X: 100, Y: 0}, WallLengthMeters: 5, CellSizeMeters: 1,
	})
	require.NoError(t, err)
	assert.True(t, p.ScaleSet)
	assert.InDelta(t, 0.05, p.Scale(), 1e-12)
	assert.Equal(t, string(coverage.SizingPhysical), p.Sizing)
	assert.Equal(t, 20, p.GridCols)
	assert.Equal(t, 10, p.GridRows)

	p, err = env.projects.SetOffset(ctx, p.ID, models.OffsetRequest{DX: 10, DY: -20, Scale: 2})
	require.NoError(t, err)
	assert.Equal(t, 5.0, p.GridOffsetX)
	assert.Equal(t, -10.0, p.GridOffsetY)

	stored, err := env.projects.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Grid(), stored.Grid())
}

func TestProjectService_GridLimits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newProject(t, "Limits")
	_, err := env.projects.UploadFloorplan(ctx, p.ID, bytes.NewReader(pngBytes(t, 400, 200)))
	require.NoError(t, err)

	// 5 m over 100 px: the plan is 20 m x 10 m
	tests := []struct {
		name      string
		cellSize  float64
		wantErr   bool
		wantCells int
	}{
		{name: "20 cm cells fit", cellSize: 0.2, wantCells: 100 * 50},
		{name: "10 cm cells exceed the cell budget", cellSize: 0.1, wantErr: true},
		{name: "millimetre cells", cellSize: 0.001, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := env.projects.GetProject(ctx, p.ID)
			require.NoError(t, err)

			got, err := env.projects.SetScale(ctx, p.ID, models.ScaleRequest{
				Point1: r2.Point{X: 0, Y: 0}, Point2: r2.Point{X: 100, Y: 0}, WallLengthMeters: 5, CellSizeMeters: tt.cellSize,
			})
			if tt.wantErr {
				var ve *models.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, "cell_size_meters", ve.Field)

				stored, err := env.projects.GetProject(ctx, p.ID)
				require.NoError(t, err)
				assert.Equal(t, before.Grid(), stored.Grid(), "rejected calibration must not change the grid")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCells, got.Grid().CellCount())
		})
	}

	_, err = env.projects.UploadFloorplan(ctx, p.ID, bytes.NewReader(pngBytes(t, 1, blob.MaxImageSide+1)))
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "floorplan", ve.Field)

	// an extreme but legal aspect ratio is clamped, and suggestion stays bounded
	p, err = env.projects.UploadFloorplan(ctx, p.ID, bytes.NewReader(pngBytes(t, 1, 5000)))
	require.NoError(t, err)
	assert.Equal(t, 10, p.GridCols)
	assert.Equal(t, coverage.MaxGridCells/10, p.GridRows)

	s, err := env.projects.Suggest(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, s.Found)
	assert.True(t, p.Grid().Contains(*s.Cell))
}

func TestProjectService_SuggestAndHitTest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newProject(t, "Hits")

	s, err := env.projects.Suggest(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, s.Found)
	assert.True(t, p.Grid().Contains(*s.Cell))

	env.measure(t, p.ID, 0, 0, 50, 10)
	s, err = env.projects.Suggest(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, s.Found)
	assert.NotEqual(t, coverage.Cell{}, *s.Cell, "measured cell is never suggested")

	container := coverage.Size{W: 400, H: 400}
	target := coverage.Cell{Col: 3, Row: 4}
	at := p.EngineState(coverage.DefaultEngineOptions()).Transform(container).CellRect(target).Center()

	hit, err := env.projects.HitTest(ctx, p.ID, models.HitTestRequest{
		ViewRequest: models.ViewRequest{Container: container, Viewport: coverage.IdentityViewport()},
		X:           at.X,
		Y:           at.Y,
	})
	require.NoError(t, err)
	require.True(t, hit.Hit)
	assert.Equal(t, target, *hit.Cell)
	assert.Nil(t, hit.Measurement)

	hit, err = env.projects.HitTest(ctx, p.ID, models.HitTestRequest{
		ViewRequest: models.ViewRequest{Container: container, Viewport: coverage.IdentityViewport()},
		X:           -50,
		Y:           -50,
	})
	require.NoError(t, err)
	assert.False(t, hit.Hit)

	first := p.EngineState(coverage.DefaultEngineOptions()).Transform(container).CellRect(coverage.Cell{}).Center()
	trace := models.GestureRequest{
		ViewRequest: models.ViewRequest{Container: container, Viewport: coverage.IdentityViewport()},
		Events: []gesture.Event{
			{Phase: gesture.PhaseStart, Touches: []gesture.Touch{{ID: 1, X: first.X, Y: first.Y}}},
			{Phase: gesture.PhaseMove, Touches: []gesture.Touch{{ID: 1, X: first.X + 2, Y: first.Y}}},
			{Phase: gesture.PhaseEnd},
		},
	}
	result, err := env.projects.ReplayGestures(ctx, p.ID, trace)
	require.NoError(t, err)
	require.Len(t, result.Taps, 1)
	require.True(t, result.Taps[0].Hit)
	assert.Equal(t, coverage.Cell{}, *result.Taps[0].Cell)
	require.NotNil(t, result.Taps[0].Measurement)
	assert.Equal(t, 50.0, result.Taps[0].Measurement.DownloadMbps)
	assert.Equal(t, 1.0, result.Viewport.Zoom)

	trace.Events = []gesture.Event{{Phase: "hover"}}
	_, err = env.projects.ReplayGestures(ctx, p.ID, trace)
	assert.ErrorAs(t, err, new(*models.ValidationError))
}

func TestScanService_Scan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newProject(t, "Scan")
	cell := coverage.Cell{Col: 1, Row: 2}

	res, err := env.scans.Scan(ctx, p.ID, cell, models.ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, env.runner.runs, "default setting is one run")
	assert.Equal(t, 120.0, res.Measurement.DownloadMbps)
	assert.Equal(t, models.SourceScan, res.Measurement.Source)

	_, err = env.settings.UpdateSettings(ctx, models.Settings{SpeedTestRuns: 3})
	require.NoError(t, err)
	_, err = env.scans.Scan(ctx, p.ID, cell, models.ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, env.runner.runs)

	runs := 9
	_, err = env.scans.Scan(ctx, p.ID, cell, models.ScanRequest{Runs: &runs})
	require.NoError(t, err)
	assert.Equal(t, speedtest.MaxRuns, env.runner.runs)

	_, err = env.scans.Scan(ctx, p.ID, coverage.Cell{Col: 10, Row: 0}, models.ScanRequest{})
	assert.ErrorAs(t, err, new(*models.ValidationError))

	_, err = env.scans.Scan(ctx, "missing", cell, models.ScanRequest{})
	assert.ErrorAs(t, err, new(*repository.NotFoundError))
}

func TestScanService_FailedScanRecordsNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newProject(t, "Offline")
	cell := coverage.Cell{Col: 0, Row: 0}

	env.runner.err = &speedtest.Error{Phase: speedtest.PhaseDownload, Err: errors.New("no data transferred")}
	_, err := env.scans.Scan(ctx, p.ID, cell, models.ScanRequest{})

	var stErr *speedtest.Error
	require.ErrorAs(t, err, &stErr)
	assert.True(t, stErr.IsTransient())

	_, err = env.scans.GetMeasurement(ctx, p.ID, cell)
	assert.ErrorAs(t, err, new(*repository.NotFoundError))
}

func TestScanService_ManualAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newProject(t, "Manual")

	_, err := env.scans.RecordManual(ctx, p.ID, coverage.Cell{Col: 1, Row: 1}, models.ManualMeasurementRequest{Download: -1})
	assert.ErrorAs(t, err, new(*models.ValidationError))

	env.measure(t, p.ID, 1, 1, 40, 5)
	env.measure(t, p.ID, 1, 1, 45, 6)
	env.measure(t, p.ID, 2, 2, 10, 1)

	m, err := env.scans.GetMeasurement(ctx, p.ID, coverage.Cell{Col: 1, Row: 1})
	require.NoError(t, err)
	assert.Equal(t, 45.0, m.DownloadMbps)

	require.NoError(t, env.scans.DeleteMeasurement(ctx, p.ID, coverage.Cell{Col: 1, Row: 1}))
	err = env.scans.DeleteMeasurement(ctx, p.ID, coverage.Cell{Col: 1, Row: 1})
	assert.ErrorAs(t, err, new(*repository.NotFoundError))

	n, err := env.scans.ClearMeasurements(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHeatmapService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newProject(t, "Heat")

	env.measure(t, p.ID, 0, 0, 100, 20)
	_, err := env.heatmaps.Heatmap(ctx, p.ID, heatmap.KindDownload)
	var insufficient *InsufficientSamplesError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Have)

	env.measure(t, p.ID, 9, 9, 10, 2)
	view, err := env.heatmaps.Heatmap(ctx, p.ID, heatmap.KindDownload)
	require.NoError(t, err)
	assert.Equal(t, 40, view.Field.Width())
	assert.Equal(t, heatmap.Range{Min: 10, Max: 100}, view.Field.Range)
	assert.Equal(t, "2 of 100 cells measured", view.Progress)
	assert.Len(t, view.Legend.Entries, 3)

	out, err := env.heatmaps.Render(ctx, p.ID, heatmap.KindUpload, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", out.ContentType)
	var decoded HeatmapView
	require.NoError(t, json.Unmarshal(out.Body, &decoded))
	assert.Equal(t, heatmap.KindUpload, decoded.Field.Kind)

	out, err = env.heatmaps.Render(ctx, p.ID, heatmap.KindConfidence, FormatPNG)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out.Body, []byte("\x89PNG")))

	out, err = env.heatmaps.Render(ctx, p.ID, heatmap.KindDownload, FormatHTML)
	require.NoError(t, err)
	assert.Contains(t, string(out.Body), "<html")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatJSON},
		{in: "png", want: FormatPNG},
		{in: "html", want: FormatHTML},
		{in: "svg", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStatisticsService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newProject(t, "A")
	env.newProject(t, "B")

	env.measure(t, a.ID, 0, 0, 100, 20)
	env.measure(t, a.ID, 1, 0, 50, 10)

	summary, err := env.stats.Summary(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Measured)
	assert.Equal(t, 100, summary.TotalCells)
	assert.Equal(t, 75.0, summary.Download.Mean)
	assert.True(t, summary.HeatmapReady)

	all, err := env.stats.Overview(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestImportService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	plan := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 300, 150))
	export := models.ExportFile{
		SpeedTestRuns: 2,
		Projects: []models.RawProject{
			{
				ID:            "home",
				Name:          "Home",
				UpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
				FloorplanData: plan,
				GridDensity:   "coarse",
				Measurements: []models.RawMeasurement{
					{ID: "m1", GridX: 0, GridY: 0, Download: 80, Upload: 10},
					{ID: "m2", GridX: 1, GridY: 1, Download: 60, Upload: 8},
				},
			},
			{Name: ""},
		},
	}
	body, err := json.Marshal(export)
	require.NoError(t, err)

	result, err := env.imports.Import(ctx, bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalProjects)
	assert.Equal(t, 1, result.ImportedProjects)
	assert.Equal(t, 1, result.FailedProjects)
	assert.Equal(t, 2, result.Measurements)
	assert.Equal(t, 1, result.Floorplans)
	assert.True(t, result.SettingsImported)
	assert.Len(t, result.Errors, 1)

	p, err := env.projects.GetProject(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, 300.0, p.ImageWidth)
	assert.Equal(t, "image/png", p.FloorplanContentType)
	assert.Len(t, p.Measurements, 2)

	settings, err := env.settings.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, settings.SpeedTestRuns)

	_, err = env.imports.Import(ctx, strings.NewReader("{"))
	assert.Error(t, err)
}

func TestSettingsService(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.settings.UpdateSettings(context.Background(), models.Settings{SpeedTestRuns: 0})
	assert.ErrorAs(t, err, new(*models.ValidationError))
}
