package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/models"
	"speedmap-platform/internal/repository"
	"speedmap-platform/internal/services"
	"speedmap-platform/internal/speedtest"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

const maxJSONBody = 1 << 20

// HealthChecker reports whether a dependency is usable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves the speed map REST API
type Handler struct {
	projects *services.ProjectService
	scans    *services.ScanService
	heatmaps *services.HeatmapService
	stats    *services.StatisticsService
	settings *services.SettingsService
	health   HealthChecker
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// Services groups the services a Handler dispatches to
type Services struct {
	Projects   *services.ProjectService
	Scans      *services.ScanService
	Heatmaps   *services.HeatmapService
	Statistics *services.StatisticsService
	Settings   *services.SettingsService
}

// NewHandler creates a new API handler
func NewHandler(svc Services, health HealthChecker, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Handler {
	return &Handler{
		projects: svc.Projects,
		scans:    svc.Scans,
		heatmaps: svc.Heatmaps,
		stats:    svc.Statistics,
		settings: svc.Settings,
		health:   health,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	Field     string `json:"field,omitempty"`
	Transient bool   `json:"transient,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.Use(RequestID, h.Instrument)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/projects", h.ListProjects).Methods("GET")
	api.HandleFunc("/projects", h.CreateProject).Methods("POST")
	api.HandleFunc("/projects/{id}", h.GetProject).Methods("GET")
	api.HandleFunc("/projects/{id}", h.UpdateProject).Methods("PATCH")
	api.HandleFunc("/projects/{id}", h.DeleteProject).Methods("DELETE")

	api.HandleFunc("/projects/{id}/floorplan", h.UploadFloorplan).Methods("PUT")
	api.HandleFunc("/projects/{id}/floorplan", h.GetFloorplan).Methods("GET")

	api.HandleFunc("/projects/{id}/grid/density", h.SetDensity).Methods("PUT")
	api.HandleFunc("/projects/{id}/grid/scale", h.SetScale).Methods("PUT")
	api.HandleFunc("/projects/{id}/grid/offset", h.SetOffset).Methods("PUT")

	api.HandleFunc("/projects/{id}/cells/{col:[0-9]+}/{row:[0-9]+}", h.GetCell).Methods("GET")
	api.HandleFunc("/projects/{id}/cells/{col:[0-9]+}/{row:[0-9]+}", h.PutCell).Methods("PUT")
	api.HandleFunc("/projects/{id}/cells/{col:[0-9]+}/{row:[0-9]+}", h.DeleteCell).Methods("DELETE")
	api.HandleFunc("/projects/{id}/cells/{col:[0-9]+}/{row:[0-9]+}/scan", h.ScanCell).Methods("POST")
	api.HandleFunc("/projects/{id}/measurements", h.ClearMeasurements).Methods("DELETE")

	api.HandleFunc("/projects/{id}/suggestion", h.Suggestion).Methods("GET")
	api.HandleFunc("/projects/{id}/hit-test", h.HitTest).Methods("POST")
	api.HandleFunc("/projects/{id}/gestures", h.Gestures).Methods("POST")
	api.HandleFunc("/projects/{id}/heatmap", h.Heatmap).Methods("GET")
	api.HandleFunc("/projects/{id}/stats", h.ProjectStats).Methods("GET")
	api.HandleFunc("/stats", h.Overview).Methods("GET")

	api.HandleFunc("/settings", h.GetSettings).Methods("GET")
	api.HandleFunc("/settings", h.UpdateSettings).Methods("PUT")

	api.HandleFunc("/docs", SwaggerUI).Methods("GET")
	api.HandleFunc("/docs/openapi.json", OpenAPISpec).Methods("GET")

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if err := h.health.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Dependency unhealthy", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

// sendJSON sends a JSON response
func (h *Handler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.sendJSON(w, ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Code:      statusCode,
		RequestID: logging.RequestID(r.Context()),
	}, statusCode)
}

// handleError maps service errors onto HTTP statuses
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	resp := ErrorResponse{Message: err.Error(), RequestID: logging.RequestID(ctx)}

	var (
		validation   *models.ValidationError
		notFound     *repository.NotFoundError
		insufficient *services.InsufficientSamplesError
		scanErr      *speedtest.Error
	)
	errorType := "internal_error"
	switch {
	case errors.As(err, &validation):
		resp.Code, errorType, resp.Field = http.StatusBadRequest, "validation_error", validation.Field
	case errors.As(err, &notFound):
		resp.Code, errorType = http.StatusNotFound, "not_found"
	case errors.As(err, &insufficient):
		resp.Code, errorType = http.StatusConflict, "insufficient_samples"
	case errors.As(err, &scanErr):
		resp.Code, errorType, resp.Transient = http.StatusBadGateway, "speedtest_error", true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		resp.Code, errorType, resp.Transient = http.StatusServiceUnavailable, "cancelled", true
	default:
		resp.Code = http.StatusInternalServerError
		resp.Message = "internal server error"
		h.logger.Error(ctx, "[API_ERROR] Request failed", logging.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}, err)
	}

	h.metrics.RecordAPIError(errorType, routeTemplate(r))
	resp.Error = http.StatusText(resp.Code)
	h.sendJSON(w, resp, resp.Code)
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &models.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &models.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	return nil
}

// pagination reads page and limit, defaulting to 1 and 50
func pagination(r *http.Request) (page, limit int) {
	page, limit = 1, 50
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}
	return page, limit
}

func projectID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// cellVars reads the {col}/{row} route variables
func cellVars(r *http.Request) (coverage.Cell, error) {
	vars := mux.Vars(r)
	col, err := strconv.Atoi(vars["col"])
	if err != nil {
		return coverage.Cell{}, &models.ValidationError{Field: "col", Value: vars["col"], Message: "col must be a non-negative integer"}
	}
	row, err := strconv.Atoi(vars["row"])
	if err != nil {
		return coverage.Cell{}, &models.ValidationError{Field: "row", Value: vars["row"], Message: "row must be a non-negative integer"}
	}
	return coverage.Cell{Col: col, Row: row}, nil
}
