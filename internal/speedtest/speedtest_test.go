package speedtest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	logger := logging.NewStructuredLogger("speedtest-test", "0.0.1", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return NewClient(Config{
		BaseURL:       url,
		PhaseDuration: 50 * time.Millisecond,
		DownloadBytes: 4096,
		UploadChunk:   2048,
		HTTPTimeout:   time.Second,
	}, logger, metrics.NewCollector("speedtest_test", prometheus.NewRegistry()))
}

func speedServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var uploaded atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/__down", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("bytes"))
		if err != nil {
			http.Error(w, "bad bytes", http.StatusBadRequest)
			return
		}
		w.Write(make([]byte, n))
	})
	mux.HandleFunc("/__up", func(w http.ResponseWriter, r *http.Request) {
		n, _ := io.Copy(io.Discard, r.Body)
		uploaded.Add(n)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &uploaded
}

func TestClient_Run(t *testing.T) {
	srv, uploaded := speedServer(t)
	client := newTestClient(t, srv.URL)

	var mu sync.Mutex
	var progress []Progress
	var runs []RunResult
	res, err := client.Run(context.Background(), 2, Observer{
		OnProgress: func(p Progress) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
		OnRunComplete: func(r RunResult) { runs = append(runs, r) },
	})
	require.NoError(t, err)

	assert.Greater(t, res.DownloadMbps, 0.0)
	assert.Greater(t, res.UploadMbps, 0.0)
	assert.Len(t, res.Runs, 2)
	assert.Len(t, runs, 2)
	assert.Equal(t, 1, runs[1].Run)
	assert.Equal(t, 2, runs[1].TotalRuns)
	assert.Greater(t, uploaded.Load(), int64(0))

	// each phase opens with a zero-progress event
	require.NotEmpty(t, progress)
	assert.Equal(t, Progress{Phase: PhaseDownload, Run: 0}, progress[0])
	for _, p := range progress {
		assert.True(t, p.Progress >= 0 && p.Progress <= 1, "progress %v out of range", p.Progress)
	}
}

func TestClient_RunClampsRuns(t *testing.T) {
	srv, _ := speedServer(t)
	client := newTestClient(t, srv.URL)

	res, err := client.Run(context.Background(), 0, Observer{})
	require.NoError(t, err)
	assert.Len(t, res.Runs, 1)
}

func TestClient_RunFailsWithoutData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	_, err := client.Run(context.Background(), 1, Observer{})
	require.Error(t, err)

	var stErr *Error
	require.True(t, errors.As(err, &stErr))
	assert.Equal(t, PhaseDownload, stErr.Phase)
	assert.True(t, stErr.IsTransient())
}

func TestClient_RunCancelled(t *testing.T) {
	srv, _ := speedServer(t)
	client := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Run(ctx, 1, Observer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClampRuns(t *testing.T) {
	tests := []struct{ in, want int }{
		{-3, 1}, {0, 1}, {1, 1}, {3, 3}, {5, 5}, {9, 5},
	}
	for _, tt := range tests {
		if got := ClampRuns(tt.in); got != tt.want {
			t.Errorf("ClampRuns(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMbps(t *testing.T) {
	assert.InDelta(t, 8.0, Mbps(1_000_000, time.Second), 1e-9)
	assert.InDelta(t, 16.0, Mbps(1_000_000, 500*time.Millisecond), 1e-9)
	assert.Zero(t, Mbps(1000, 0))
}

func TestTrimmedMean(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "empty", values: nil, want: 0},
		{name: "single", values: []float64{42}, want: 42},
		{name: "pair is plain mean", values: []float64{10, 20}, want: 15},
		{name: "drops extremes", values: []float64{100, 10, 20, 30, 1}, want: 20},
		{name: "three keeps middle", values: []float64{5, 50, 500}, want: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TrimmedMean(tt.values), 1e-9)
		})
	}
}
