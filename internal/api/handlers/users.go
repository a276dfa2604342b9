// users.go — обработчики /api/v1/me и /api/v1/users endpoints.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/uportal/internal/api/errors"
	"github.com/bigkaa/uportal/internal/api/middleware"
	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/domain/rbac"
)

// GetCurrentUser — GET /api/v1/me.
// Возвращает локального пользователя, сопоставленного с токеном.
func (h *APIHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Пользователь не аутентифицирован")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "Пользователь")
		return
	}
	if user == nil {
		apierrors.NotFound(w, "Пользователь не найден")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// GetCurrentUserPermissions — GET /api/v1/me/permissions.
// Роли текущего пользователя и объединение их разрешений.
func (h *APIHandler) GetCurrentUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Пользователь не аутентифицирован")
		return
	}

	roles, err := h.authz.RolesFor(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "Пользователь")
		return
	}

	// Разрешения выводятся из уже загруженных ролей: один снимок, одна сессия
	writeJSON(w, http.StatusOK, userPermissionsResponse{
		Roles:       mapAll(roles, toRoleResponse),
		Permissions: rbac.PermissionNames(roles),
	})
}

// ListUsers — GET /api/v1/users. Сортировка по имени.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Пользователь")
		return
	}
	writeJSON(w, http.StatusOK, mapAll(users, toUserResponse))
}

// GetUser — GET /api/v1/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Пользователь")
		return
	}
	if user == nil {
		apierrors.NotFound(w, "Пользователь не найден")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// UpdateUser — PUT /api/v1/users/{id}.
// Изменяет имя, активность, флаг администратора и площадку.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	var req userUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.users.UpdateUser(r.Context(), id, model.AppUserUpdate{
		Name:       req.Name,
		IsActive:   req.IsActive,
		IsAdmin:    req.IsAdmin,
		LocationID: req.LocationID,
	})
	if err != nil {
		h.writeServiceError(w, err, "Пользователь")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ListUserRoles — GET /api/v1/users/{id}/roles.
func (h *APIHandler) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	roles, err := h.authz.RolesFor(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Пользователь")
		return
	}
	writeJSON(w, http.StatusOK, mapAll(roles, toRoleResponse))
}

// AssignUserRole — PUT /api/v1/users/{id}/roles/{roleId}. Идемпотентно.
func (h *APIHandler) AssignUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := pathInt(w, r, "roleId")
	if !ok {
		return
	}

	if _, err := h.users.AssignRole(r.Context(), id, roleID); err != nil {
		h.writeServiceError(w, err, "Пользователь или роль")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveUserRole — DELETE /api/v1/users/{id}/roles/{roleId}.
func (h *APIHandler) RemoveUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := pathInt(w, r, "roleId")
	if !ok {
		return
	}

	if err := h.users.RemoveRole(r.Context(), id, roleID); err != nil {
		h.writeServiceError(w, err, "Назначение роли")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
