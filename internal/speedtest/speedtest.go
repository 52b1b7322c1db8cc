// Package speedtest measures download and upload throughput against an
// HTTP speed-test endpoint that serves /__down?bytes=N and accepts /__up.
package speedtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

const (
	MinRuns = 1
	MaxRuns = 5

	// speeds measured over less than this are too noisy to display
	warmup = 300 * time.Millisecond

	retryBackoff = 100 * time.Millisecond
)

// Phase is one half of a run
type Phase string

const (
	PhaseDownload Phase = "download"
	PhaseUpload   Phase = "upload"
)

// Config describes the endpoint and pacing of a test
type Config struct {
	BaseURL       string
	PhaseDuration time.Duration
	DownloadBytes int64
	UploadChunk   int
	HTTPTimeout   time.Duration
}

// DefaultConfig targets Cloudflare with 5s phases, 10 MiB downloads and 1 MiB uploads
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://speed.cloudflare.com",
		PhaseDuration: 5 * time.Second,
		DownloadBytes: 10 * 1024 * 1024,
		UploadChunk:   1024 * 1024,
		HTTPTimeout:   30 * time.Second,
	}
}

// Progress is reported after every request
type Progress struct {
	Phase        Phase   `json:"phase"`
	Progress     float64 `json:"progress"`
	CurrentSpeed float64 `json:"current_speed"`
	Run          int     `json:"run"`
}

// RunResult is the outcome of one download+upload run
type RunResult struct {
	DownloadMbps float64 `json:"download_mbps"`
	UploadMbps   float64 `json:"upload_mbps"`
	Run          int     `json:"run"`
	TotalRuns    int     `json:"total_runs"`
}

// Result is the aggregated outcome of all runs
type Result struct {
	DownloadMbps float64       `json:"download_mbps"`
	UploadMbps   float64       `json:"upload_mbps"`
	Runs         []RunResult   `json:"runs"`
	Duration     time.Duration `json:"duration"`
}

// Observer receives live progress; both callbacks may be nil
type Observer struct {
	OnProgress    func(Progress)
	OnRunComplete func(RunResult)
}

// Runner is anything that can produce a throughput measurement
type Runner interface {
	Run(ctx context.Context, runs int, obs Observer) (*Result, error)
}

// Error is a failed test. It is always safe to retry.
type Error struct {
	Phase Phase
	Run   int
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s test failed on run %d: %v", e.Phase, e.Run+1, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient returns true as network failures are retryable
func (e *Error) IsTransient() bool { return true }

var errNoData = errors.New("no data transferred")

// Client runs tests over HTTP
type Client struct {
	cfg     Config
	http    *http.Client
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	payload []byte
}

// NewClient creates a speed test client
func NewClient(cfg Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.PhaseDuration <= 0 {
		cfg.PhaseDuration = def.PhaseDuration
	}
	if cfg.DownloadBytes <= 0 {
		cfg.DownloadBytes = def.DownloadBytes
	}
	if cfg.UploadChunk <= 0 {
		cfg.UploadChunk = def.UploadChunk
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = def.HTTPTimeout
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		logger:  logger,
		metrics: metricsCollector,
		payload: make([]byte, cfg.UploadChunk),
	}
}

// ClampRuns bounds a requested run count to [1,5]
func ClampRuns(runs int) int {
	if runs < MinRuns {
		return MinRuns
	}
	if runs > MaxRuns {
		return MaxRuns
	}
	return runs
}

// Run performs runs download+upload rounds and returns the trimmed mean
func (c *Client) Run(ctx context.Context, runs int, obs Observer) (*Result, error) {
	runs = ClampRuns(runs)
	start := time.Now()

	c.logger.Info(ctx, "[SPEEDTEST_START] Starting speed test", logging.Fields{
		"runs":     runs,
		"base_url": c.cfg.BaseURL,
		"stage":    "INITIALIZATION",
	})

	result := &Result{Runs: make([]RunResult, 0, runs)}
	downloads := make([]float64, 0, runs)
	uploads := make([]float64, 0, runs)

	for run := 0; run < runs; run++ {
		down, err := c.phase(ctx, PhaseDownload, run, obs)
		if err != nil {
			return nil, err
		}
		up, err := c.phase(ctx, PhaseUpload, run, obs)
		if err != nil {
			return nil, err
		}

		rr := RunResult{DownloadMbps: down, UploadMbps: up, Run: run, TotalRuns: runs}
		result.Runs = append(result.Runs, rr)
		downloads = append(downloads, down)
		uploads = append(uploads, up)
		c.metrics.RecordSpeedTestRun(down, up)
		if obs.OnRunComplete != nil {
			obs.OnRunComplete(rr)
		}

		c.logger.Debug(ctx, "[SPEEDTEST_RUN] Run complete", logging.Fields{
			"run":           run + 1,
			"download_mbps": down,
			"upload_mbps":   up,
			"stage":         "RUN_COMPLETE",
		})
	}

	result.DownloadMbps = TrimmedMean(downloads)
	result.UploadMbps = TrimmedMean(uploads)
	result.Duration = time.Since(start)
	c.metrics.SpeedTestDuration.Observe(result.Duration.Seconds())

	c.logger.Info(ctx, "[SPEEDTEST_COMPLETE] Speed test completed", logging.Fields{
		"runs":             runs,
		"download_mbps":    result.DownloadMbps,
		"upload_mbps":      result.UploadMbps,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})
	return result, nil
}

// phase saturates one direction for the configured duration
func (c *Client) phase(ctx context.Context, phase Phase, run int, obs Observer) (float64, error) {
	report := func(p Progress) {
		if obs.OnProgress != nil {
			obs.OnProgress(p)
		}
	}
	report(Progress{Phase: phase, Run: run})

	start := time.Now()
	var total int64
	var lastErr error

	for time.Since(start) < c.cfg.PhaseDuration {
		if err := ctx.Err(); err != nil {
			return 0, &Error{Phase: phase, Run: run, Err: err}
		}

		n, err := c.request(ctx, phase)
		total += n
		if err != nil {
			lastErr = err
			c.metrics.RecordSpeedTestError(string(phase))
			c.logger.Warn(ctx, "[SPEEDTEST_REQUEST_ERROR] Request failed, retrying", logging.Fields{
				"phase": phase,
				"run":   run + 1,
				"error": err.Error(),
			})
			select {
			case <-ctx.Done():
			case <-time.After(retryBackoff):
			}
			continue
		}

		elapsed := time.Since(start)
		current := 0.0
		if elapsed > warmup {
			current = Mbps(total, elapsed)
		}
		report(Progress{
			Phase:        phase,
			Progress:     min(1, elapsed.Seconds()/c.cfg.PhaseDuration.Seconds()),
			CurrentSpeed: current,
			Run:          run,
		})
	}

	if total == 0 {
		if lastErr == nil {
			lastErr = errNoData
		}
		return 0, &Error{Phase: phase, Run: run, Err: lastErr}
	}
	return Mbps(total, time.Since(start)), nil
}

// request performs one transfer and returns the bytes moved
func (c *Client) request(ctx context.Context, phase Phase) (int64, error) {
	var req *http.Request
	var err error
	if phase == PhaseDownload {
		url := c.cfg.BaseURL + "/__down?bytes=" + strconv.FormatInt(c.cfg.DownloadBytes, 10)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/__up", bytes.NewReader(c.payload))
		if req != nil {
			req.Header.Set("Content-Type", "application/octet-stream")
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	if phase == PhaseUpload {
		io.Copy(io.Discard, resp.Body)
		return int64(len(c.payload)), nil
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil && n == 0 {
		return 0, fmt.Errorf("failed to read body: %w", err)
	}
	return n, nil
}

// Mbps converts bytes moved over elapsed into megabits per second
func Mbps(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) * 8 / elapsed.Seconds() / 1e6
}

// TrimmedMean averages values, dropping the extremes when there are at least three
func TrimmedMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) < 3 {
		return stat.Mean(values, nil)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Mean(sorted[1:len(sorted)-1], nil)
}
