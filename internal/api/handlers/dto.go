// dto.go — JSON-представления доменных моделей (схемы OpenAPI документа).
package handlers

import (
	"time"

	"github.com/bigkaa/uportal/internal/domain/model"
)

type userResponse struct {
	ID           int        `json:"id"`
	ObjectID     string     `json:"object_id"`
	Name         string     `json:"name"`
	IsActive     bool       `json:"is_active"`
	IsAdmin      bool       `json:"is_admin"`
	LocationID   int        `json:"location_id"`
	LocationName string     `json:"location_name"`
	MachineCount int        `json:"machine_count"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

type userUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	IsActive   bool    `json:"is_active"`
	IsAdmin    bool    `json:"is_admin"`
	LocationID int     `json:"location_id"`
}

type userPermissionsResponse struct {
	Roles       []roleResponse `json:"roles"`
	Permissions []string       `json:"permissions"`
}

type locationResponse struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	UserCount    int    `json:"user_count"`
	MachineCount int    `json:"machine_count"`
}

type locationRequest struct {
	Name string `json:"name"`
}

type machineResponse struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	LocationID   int    `json:"location_id"`
	LocationName string `json:"location_name"`
	AppUserID    *int   `json:"app_user_id"`
	UserName     string `json:"user_name"`
}

type machineRequest struct {
	Name       string `json:"name"`
	LocationID int    `json:"location_id"`
	AppUserID  *int   `json:"app_user_id"`
}

type applicationResponse struct {
	ID       int    `json:"id"`
	AppName  string `json:"app_name"`
	AppURL   string `json:"app_url"`
	IconName string `json:"icon_name"`
}

type applicationRequest struct {
	AppName  string `json:"app_name"`
	AppURL   string `json:"app_url"`
	IconName string `json:"icon_name"`
}

type roleResponse struct {
	ID          int                  `json:"id"`
	Name        string               `json:"name"`
	Permissions []permissionResponse `json:"permissions"`
}

type roleRequest struct {
	Name          string `json:"name"`
	PermissionIDs []int  `json:"permission_ids"`
}

type permissionResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// --- Маппинг ---

func toUserResponse(u *model.AppUser) userResponse {
	resp := userResponse{
		ID:           u.ID,
		ObjectID:     u.ObjectID,
		Name:         u.Name,
		IsActive:     u.IsActive,
		IsAdmin:      u.IsAdmin,
		LocationID:   u.LocationID,
		LocationName: u.LocationName,
		MachineCount: u.MachineCount,
	}
	if !u.CreatedAt.IsZero() {
		t := u.CreatedAt.UTC()
		resp.CreatedAt = &t
	}
	if !u.UpdatedAt.IsZero() {
		t := u.UpdatedAt.UTC()
		resp.UpdatedAt = &t
	}
	return resp
}

func toLocationResponse(l *model.Location) locationResponse {
	return locationResponse{
		ID:           l.ID,
		Name:         l.Name,
		UserCount:    l.UserCount,
		MachineCount: l.MachineCount,
	}
}

func toMachineResponse(m *model.Machine) machineResponse {
	return machineResponse{
		ID:           m.ID,
		Name:         m.Name,
		LocationID:   m.LocationID,
		LocationName: m.LocationName,
		AppUserID:    m.AppUserID,
		UserName:     m.UserName,
	}
}

func toApplicationResponse(a *model.ExternalApplication) applicationResponse {
	return applicationResponse{
		ID:       a.ID,
		AppName:  a.AppName,
		AppURL:   a.AppURL,
		IconName: a.IconName,
	}
}

func toPermissionResponses(perms []model.Permission) []permissionResponse {
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{ID: p.ID, Name: p.Name})
	}
	return out
}

func toRoleResponse(r *model.Role) roleResponse {
	return roleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Permissions: toPermissionResponses(r.Permissions),
	}
}

// mapAll применяет fn к каждому элементу. Результат не nil, чтобы
// пустой список сериализовался как [].
func mapAll[T, R any](items []*T, fn func(*T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}
