// roles.go — обработчики /api/v1/roles и /api/v1/permissions endpoints.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/uportal/internal/api/errors"
	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/service"
)

// ListRoles — GET /api/v1/roles.
func (h *APIHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Роль")
		return
	}
	writeJSON(w, http.StatusOK, mapAll(roles, toRoleResponse))
}

// GetRole — GET /api/v1/roles/{id}.
func (h *APIHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	role, err := h.roles.GetRole(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Роль")
		return
	}
	if role == nil {
		apierrors.NotFound(w, "Роль не найдена")
		return
	}
	writeJSON(w, http.StatusOK, toRoleResponse(role))
}

// CreateRole — POST /api/v1/roles.
// Имя уникально (409), все permission_ids должны существовать (400).
func (h *APIHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role, err := h.roles.CreateRole(r.Context(), service.RoleInput{
		Name:          req.Name,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		h.writeServiceError(w, err, "Роль")
		return
	}
	writeJSON(w, http.StatusCreated, toRoleResponse(role))
}

// UpdateRole — PUT /api/v1/roles/{id}.
// permission_ids: null или отсутствует — разрешения не меняются, [] — очищаются.
func (h *APIHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.roles.UpdateRole(r.Context(), id, service.RoleInput{
		Name:          req.Name,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		h.writeServiceError(w, err, "Роль")
		return
	}
	if !updated {
		apierrors.NotFound(w, "Роль не найдена")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRole — DELETE /api/v1/roles/{id}. Назначения роли удаляются вместе с ней.
func (h *APIHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	deleted, err := h.roles.DeleteRole(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Роль")
		return
	}
	if !deleted {
		apierrors.NotFound(w, "Роль не найдена")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRolePermissions — GET /api/v1/roles/{id}/permissions.
func (h *APIHandler) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	perms, err := h.roles.GetPermissionsForRole(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Роль")
		return
	}
	writeJSON(w, http.StatusOK, toPermissionResponses(perms))
}

// AssignRolePermission — PUT /api/v1/roles/{id}/permissions/{permissionId}. Идемпотентно.
func (h *APIHandler) AssignRolePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	permID, ok := pathInt(w, r, "permissionId")
	if !ok {
		return
	}

	if _, err := h.roles.AssignPermission(r.Context(), id, permID); err != nil {
		h.writeServiceError(w, err, "Роль или разрешение")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveRolePermission — DELETE /api/v1/roles/{id}/permissions/{permissionId}.
func (h *APIHandler) RemoveRolePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	permID, ok := pathInt(w, r, "permissionId")
	if !ok {
		return
	}

	if err := h.roles.RemovePermission(r.Context(), id, permID); err != nil {
		h.writeServiceError(w, err, "Разрешение роли")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPermissions — GET /api/v1/permissions. Каталог, сортировка по имени.
func (h *APIHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.permissions.ListPermissions(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Разрешение")
		return
	}
	writeJSON(w, http.StatusOK, mapAll(perms, func(p *model.Permission) permissionResponse {
		return permissionResponse{ID: p.ID, Name: p.Name}
	}))
}
