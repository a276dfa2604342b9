// locations.go — обработчики /api/v1/locations endpoints.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/uportal/internal/api/errors"
)

// ListLocations — GET /api/v1/locations.
func (h *APIHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.locations.ListLocations(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Площадка")
		return
	}
	writeJSON(w, http.StatusOK, mapAll(locations, toLocationResponse))
}

// GetLocation — GET /api/v1/locations/{id}.
func (h *APIHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	location, err := h.locations.GetLocation(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Площадка")
		return
	}
	if location == nil {
		apierrors.NotFound(w, "Площадка не найдена")
		return
	}
	writeJSON(w, http.StatusOK, toLocationResponse(location))
}

// CreateLocation — POST /api/v1/locations.
func (h *APIHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	location, err := h.locations.CreateLocation(r.Context(), req.Name)
	if err != nil {
		h.writeServiceError(w, err, "Площадка")
		return
	}
	writeJSON(w, http.StatusCreated, toLocationResponse(location))
}

// UpdateLocation — PUT /api/v1/locations/{id}.
func (h *APIHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req locationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.locations.UpdateLocation(r.Context(), id, req.Name)
	if err != nil {
		h.writeServiceError(w, err, "Площадка")
		return
	}
	if !updated {
		apierrors.NotFound(w, "Площадка не найдена")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteLocation — DELETE /api/v1/locations/{id}.
// Пользователи и машины площадки не затрагиваются: ссылка мягкая.
func (h *APIHandler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	deleted, err := h.locations.DeleteLocation(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Площадка")
		return
	}
	if !deleted {
		apierrors.NotFound(w, "Площадка не найдена")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
