package handlers

import (
	"io"
	"net/http"
	"strconv"

	"speedmap-platform/internal/models"
	"speedmap-platform/internal/services"
	"speedmap-platform/pkg/logging"
)

// ListProjects handles GET /api/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	projects, total, err := h.projects.ListProjects(r.Context(), limit, (page-1)*limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.sendJSON(w, PaginatedResponse{
		Data:       projects,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, http.StatusOK)
}

// CreateProject handles POST /api/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	p, err := h.projects.CreateProject(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/projects/"+p.ID)
	h.sendJSON(w, p, http.StatusCreated)
}

// GetProject handles GET /api/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.GetProject(r.Context(), projectID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, p, http.StatusOK)
}

// UpdateProject handles PATCH /api/projects/{id}
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	p, err := h.projects.UpdateProject(r.Context(), projectID(r), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, p, http.StatusOK)
}

// DeleteProject handles DELETE /api/projects/{id}
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.DeleteProject(r.Context(), projectID(r)); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadFloorplan handles PUT /api/projects/{id}/floorplan with a raw image body
func (h *Handler) UploadFloorplan(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, services.MaxFloorplanBytes+1)
	p, err := h.projects.UploadFloorplan(r.Context(), projectID(r), body)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, p, http.StatusOK)
}

// GetFloorplan handles GET /api/projects/{id}/floorplan
func (h *Handler) GetFloorplan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, rc, err := h.projects.Floorplan(ctx, projectID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if !info.LastModified.IsZero() {
		w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn(ctx, "[API_FLOORPLAN_STREAM] Floor plan download interrupted", logging.Fields{
			"error": err.Error(),
		})
	}
}

// SetDensity handles PUT /api/projects/{id}/grid/density
func (h *Handler) SetDensity(w http.ResponseWriter, r *http.Request) {
	var req models.DensityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	p, err := h.projects.SetDensity(r.Context(), projectID(r), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, p, http.StatusOK)
}

// SetScale handles PUT /api/projects/{id}/grid/scale
func (h *Handler) SetScale(w http.ResponseWriter, r *http.Request) {
	var req models.ScaleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	p, err := h.projects.SetScale(r.Context(), projectID(r), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, p, http.StatusOK)
}

// SetOffset handles PUT /api/projects/{id}/grid/offset
func (h *Handler) SetOffset(w http.ResponseWriter, r *http.Request) {
	var req models.OffsetRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	p, err := h.projects.SetOffset(r.Context(), projectID(r), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, p, http.StatusOK)
}

// GetSettings handles GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.GetSettings(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, s, http.StatusOK)
}

// UpdateSettings handles PUT /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.Settings
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	s, err := h.settings.UpdateSettings(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.sendJSON(w, s, http.StatusOK)
}
