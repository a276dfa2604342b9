// Пакет rbac — плоская модель авторизации UPortal.
// Пользователь → множество ролей → объединение разрешений ролей.
// Иерархии ролей и наследования разрешений нет.
package rbac

import (
	"slices"

	"github.com/bigkaa/uportal/internal/domain/model"
)

// Каталог разрешений. Имена совпадают с политиками авторизации API.
const (
	PermManageUsers                = "ManageUsers"
	PermViewUsers                  = "ViewUsers"
	PermEditUsers                  = "EditUsers"
	PermManageRoles                = "ManageRoles"
	PermViewRoles                  = "ViewRoles"
	PermAssignRoles                = "AssignRoles"
	PermManagePermissions          = "ManagePermissions"
	PermViewPermissions            = "ViewPermissions"
	PermManageSettings             = "ManageSettings"
	PermAccessAdminPages           = "AccessAdminPages"
	PermViewDashboard              = "ViewDashboard"
	PermManageMachines             = "ManageMachines"
	PermViewMachines               = "ViewMachines"
	PermManageLocations            = "ManageLocations"
	PermViewLocations              = "ViewLocations"
	PermManageExternalApplications = "ManageExternalApplications"
	PermViewExternalApplications   = "ViewExternalApplications"
)

// RoleAdministrator — роль со всеми разрешениями каталога (создаётся миграцией).
const RoleAdministrator = "Administrator"

// catalogue — все известные разрешения, в порядке объявления.
var catalogue = []string{
	PermManageUsers, PermViewUsers, PermEditUsers,
	PermManageRoles, PermViewRoles, PermAssignRoles,
	PermManagePermissions, PermViewPermissions,
	PermManageSettings,
	PermAccessAdminPages,
	PermViewDashboard,
	PermManageMachines, PermViewMachines,
	PermManageLocations, PermViewLocations,
	PermManageExternalApplications, PermViewExternalApplications,
}

// Catalogue возвращает копию каталога разрешений.
func Catalogue() []string {
	return slices.Clone(catalogue)
}

// IsKnownPermission проверяет, входит ли имя в каталог.
func IsKnownPermission(name string) bool {
	return slices.Contains(catalogue, name)
}

// PermissionSet объединяет разрешения всех ролей в множество имён.
func PermissionSet(roles []*model.Role) map[string]bool {
	set := make(map[string]bool)
	for _, r := range roles {
		for _, p := range r.Permissions {
			set[p.Name] = true
		}
	}
	return set
}

// PermissionNames возвращает отсортированные имена объединённых разрешений.
func PermissionNames(roles []*model.Role) []string {
	set := PermissionSet(roles)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HasPermission проверяет, даёт ли хотя бы одна из ролей разрешение name.
func HasPermission(roles []*model.Role, name string) bool {
	for _, r := range roles {
		for _, p := range r.Permissions {
			if p.Name == name {
				return true
			}
		}
	}
	return false
}

// HasRole проверяет наличие роли с именем name.
func HasRole(roles []*model.Role, name string) bool {
	return slices.ContainsFunc(roles, func(r *model.Role) bool {
		return r.Name == name
	})
}
