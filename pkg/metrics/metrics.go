package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Measurement Metrics
	MeasurementsRecorded *prometheus.CounterVec
	MeasurementsDeleted  prometheus.Counter

	// Speed Test Metrics
	SpeedTestDuration    prometheus.Histogram
	SpeedTestThroughput  *prometheus.HistogramVec
	SpeedTestErrorsTotal *prometheus.CounterVec

	// Coverage Engine Metrics
	RenderDuration   *prometheus.HistogramVec
	FieldPoints      prometheus.Histogram
	SuggestionsTotal *prometheus.CounterVec

	// Import Metrics
	ImportProjectsTotal prometheus.Counter
	ImportDuration      prometheus.Histogram
	ImportErrorsTotal   *prometheus.CounterVec

	// Storage Metrics
	DBQueryDuration   *prometheus.HistogramVec
	DBConnectionPool  *prometheus.GaugeVec
	DBErrorsTotal     *prometheus.CounterVec
	BlobOperationTime *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector registered with reg.
// A nil reg uses the default Prometheus registry.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 15.0, 30.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		MeasurementsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "measurements_recorded_total",
				Help:      "Measurements stored by source (scan, manual, import)",
			},
			[]string{"source"},
		),

		MeasurementsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "measurements_deleted_total",
				Help:      "Measurements removed individually or by clearing a project",
			},
		),

		SpeedTestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "speedtest_duration_seconds",
				Help:      "Wall time of a complete multi-run speed test",
				Buckets:   []float64{1, 5, 10, 20, 30, 60, 120},
			},
		),

		SpeedTestThroughput: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "speedtest_throughput_mbps",
				Help:      "Measured throughput per run in Mbps by phase",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"phase"},
		),

		SpeedTestErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "speedtest_errors_total",
				Help:      "Failed speed test requests by phase",
			},
			[]string{"phase"},
		),

		RenderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_duration_seconds",
				Help:      "Heatmap field computation and encoding time by format",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0},
			},
			[]string{"format"},
		),

		FieldPoints: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "field_points",
				Help:      "Number of interpolated points per computed field",
				Buckets:   []float64{100, 1000, 5000, 10000, 25000, 50000},
			},
		),

		SuggestionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suggestions_total",
				Help:      "Next-cell suggestions by outcome (cell, complete)",
			},
			[]string{"outcome"},
		),

		ImportProjectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_projects_total",
				Help:      "Projects imported from exported app stores",
			},
		),

		ImportDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "import_duration_seconds",
				Help:      "Duration of import operations in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),

		ImportErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_errors_total",
				Help:      "Total number of import errors by type",
			},
			[]string{"error_type"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),

		BlobOperationTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "blob_operation_duration_seconds",
				Help:      "Floor-plan storage operation duration by driver and operation",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"driver", "operation"},
		),
	}
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordMeasurement counts a stored measurement
func (c *Collector) RecordMeasurement(source string) {
	c.MeasurementsRecorded.WithLabelValues(source).Inc()
}

// RecordSpeedTestRun observes one run's throughput
func (c *Collector) RecordSpeedTestRun(downloadMbps, uploadMbps float64) {
	c.SpeedTestThroughput.WithLabelValues("download").Observe(downloadMbps)
	c.SpeedTestThroughput.WithLabelValues("upload").Observe(uploadMbps)
}

// RecordSpeedTestError increments the speed test error counter
func (c *Collector) RecordSpeedTestError(phase string) {
	c.SpeedTestErrorsTotal.WithLabelValues(phase).Inc()
}

// RecordSuggestion counts a suggestion outcome
func (c *Collector) RecordSuggestion(found bool) {
	outcome := "complete"
	if found {
		outcome = "cell"
	}
	c.SuggestionsTotal.WithLabelValues(outcome).Inc()
}

// RecordImportError increments import error counter
func (c *Collector) RecordImportError(errorType string) {
	c.ImportErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
