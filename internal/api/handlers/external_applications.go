// external_applications.go — обработчики /api/v1/external-applications endpoints.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/uportal/internal/api/errors"
	"github.com/bigkaa/uportal/internal/service"
)

func (req applicationRequest) input() service.ExternalApplicationInput {
	return service.ExternalApplicationInput{
		AppName:  req.AppName,
		AppURL:   req.AppURL,
		IconName: req.IconName,
	}
}

// ListExternalApplications — GET /api/v1/external-applications. Сортировка по имени.
func (h *APIHandler) ListExternalApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.applications.ListApplications(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Приложение")
		return
	}
	writeJSON(w, http.StatusOK, mapAll(apps, toApplicationResponse))
}

// GetExternalApplication — GET /api/v1/external-applications/{id}.
func (h *APIHandler) GetExternalApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	app, err := h.applications.GetApplication(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Приложение")
		return
	}
	if app == nil {
		apierrors.NotFound(w, "Приложение не найдено")
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// CreateExternalApplication — POST /api/v1/external-applications.
func (h *APIHandler) CreateExternalApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	app, err := h.applications.CreateApplication(r.Context(), req.input())
	if err != nil {
		h.writeServiceError(w, err, "Приложение")
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// UpdateExternalApplication — PUT /api/v1/external-applications/{id}.
func (h *APIHandler) UpdateExternalApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req applicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.applications.UpdateApplication(r.Context(), id, req.input())
	if err != nil {
		h.writeServiceError(w, err, "Приложение")
		return
	}
	if !updated {
		apierrors.NotFound(w, "Приложение не найдено")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteExternalApplication — DELETE /api/v1/external-applications/{id}.
func (h *APIHandler) DeleteExternalApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	deleted, err := h.applications.DeleteApplication(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Приложение")
		return
	}
	if !deleted {
		apierrors.NotFound(w, "Приложение не найдено")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
