// machines.go — обработчики /api/v1/machines endpoints.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/uportal/internal/api/errors"
	"github.com/bigkaa/uportal/internal/service"
)

func (req machineRequest) input() service.MachineInput {
	return service.MachineInput{
		Name:       req.Name,
		LocationID: req.LocationID,
		AppUserID:  req.AppUserID,
	}
}

// ListMachines — GET /api/v1/machines.
func (h *APIHandler) ListMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := h.machines.ListMachines(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Машина")
		return
	}
	writeJSON(w, http.StatusOK, mapAll(machines, toMachineResponse))
}

// GetMachine — GET /api/v1/machines/{id}.
func (h *APIHandler) GetMachine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	machine, err := h.machines.GetMachine(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Машина")
		return
	}
	if machine == nil {
		apierrors.NotFound(w, "Машина не найдена")
		return
	}
	writeJSON(w, http.StatusOK, toMachineResponse(machine))
}

// CreateMachine — POST /api/v1/machines.
// Несуществующий app_user_id — 400 (ссылка строгая).
func (h *APIHandler) CreateMachine(w http.ResponseWriter, r *http.Request) {
	var req machineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	machine, err := h.machines.CreateMachine(r.Context(), req.input())
	if err != nil {
		h.writeServiceError(w, err, "Машина")
		return
	}
	writeJSON(w, http.StatusCreated, toMachineResponse(machine))
}

// UpdateMachine — PUT /api/v1/machines/{id}.
func (h *APIHandler) UpdateMachine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req machineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.machines.UpdateMachine(r.Context(), id, req.input())
	if err != nil {
		h.writeServiceError(w, err, "Машина")
		return
	}
	if !updated {
		apierrors.NotFound(w, "Машина не найдена")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMachine — DELETE /api/v1/machines/{id}.
func (h *APIHandler) DeleteMachine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	deleted, err := h.machines.DeleteMachine(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Машина")
		return
	}
	if !deleted {
		apierrors.NotFound(w, "Машина не найдена")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
