package handlers

import (
	"net/http"
	"strconv"

	"speedmap-platform/internal/heatmap"
	"speedmap-platform/internal/models"
	"speedmap-platform/internal/services"
)

// GetCell handles GET /api/projects/{id}/cells/{col}/{row}
func (h *Handler) GetCell(w http.ResponseWriter, r *http.Request) {
	cell, err := cellVars(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	m, err := h.scans.GetMeasurement(r.Context(), projectID(r), cell)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, m, http.StatusOK)
}

// PutCell handles PUT /api/projects/{id}/cells/{col}/{row}
func (h *Handler) PutCell(w http.ResponseWriter, r *http.Request) {
	cell, err := cellVars(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	var req models.ManualMeasurementRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	m, err := h.scans.RecordManual(r.Context(), projectID(r), cell, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, m, http.StatusOK)
}

// DeleteCell handles DELETE /api/projects/{id}/cells/{col}/{row}
func (h *Handler) DeleteCell(w http.ResponseWriter, r *http.Request) {
	cell, err := cellVars(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.scans.DeleteMeasurement(r.Context(), projectID(r), cell); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ScanCell handles POST /api/projects/{id}/cells/{col}/{row}/scan
func (h *Handler) ScanCell(w http.ResponseWriter, r *http.Request) {
	cell, err := cellVars(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	var req models.ScanRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	res, err := h.scans.Scan(r.Context(), projectID(r), cell, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, res, http.StatusOK)
}

// ClearMeasurements handles DELETE /api/projects/{id}/measurements
func (h *Handler) ClearMeasurements(w http.ResponseWriter, r *http.Request) {
	n, err := h.scans.ClearMeasurements(r.Context(), projectID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, map[string]int64{"deleted": n}, http.StatusOK)
}

// Suggestion handles GET /api/projects/{id}/suggestion
func (h *Handler) Suggestion(w http.ResponseWriter, r *http.Request) {
	s, err := h.projects.Suggest(r.Context(), projectID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, s, http.StatusOK)
}

// HitTest handles POST /api/projects/{id}/hit-test
func (h *Handler) HitTest(w http.ResponseWriter, r *http.Request) {
	var req models.HitTestRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	res, err := h.projects.HitTest(r.Context(), projectID(r), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, res, http.StatusOK)
}

// Gestures handles POST /api/projects/{id}/gestures
func (h *Handler) Gestures(w http.ResponseWriter, r *http.Request) {
	var req models.GestureRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	res, err := h.projects.ReplayGestures(r.Context(), projectID(r), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, res, http.StatusOK)
}

// Heatmap handles GET /api/projects/{id}/heatmap?channel=&format=
func (h *Handler) Heatmap(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	kind, err := heatmap.ParseKind(query.Get("channel"))
	if err != nil {
		h.handleError(w, r, &models.ValidationError{Field: "channel", Value: query.Get("channel"), Message: err.Error()})
		return
	}
	format, err := services.ParseFormat(query.Get("format"))
	if err != nil {
		h.handleError(w, r, &models.ValidationError{Field: "format", Value: query.Get("format"), Message: err.Error()})
		return
	}

	out, err := h.heatmaps.Render(r.Context(), projectID(r), kind, format)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(out.Body)
}

// ProjectStats handles GET /api/projects/{id}/stats
func (h *Handler) ProjectStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.stats.Summary(r.Context(), projectID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, s, http.StatusOK)
}

// Overview handles GET /api/stats
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	all, err := h.stats.Overview(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, all, http.StatusOK)
}
