package rbac

import (
	"slices"
	"testing"

	"github.com/bigkaa/uportal/internal/domain/model"
)

func role(name string, perms ...string) *model.Role {
	r := &model.Role{Name: name}
	for i, p := range perms {
		r.Permissions = append(r.Permissions, model.Permission{ID: i + 1, Name: p})
	}
	return r
}

func TestHasPermission(t *testing.T) {
	viewer := role("Viewer", PermViewUsers, PermViewMachines)
	editor := role("Editor", PermEditUsers, PermViewUsers)

	tests := []struct {
		name  string
		roles []*model.Role
		perm  string
		want  bool
	}{
		{name: "нет ролей", roles: nil, perm: PermViewUsers, want: false},
		{name: "роль без разрешений", roles: []*model.Role{role("Empty")}, perm: PermViewUsers, want: false},
		{name: "разрешение из единственной роли", roles: []*model.Role{viewer}, perm: PermViewMachines, want: true},
		{name: "разрешение из второй роли", roles: []*model.Role{viewer, editor}, perm: PermEditUsers, want: true},
		{name: "разрешения нет ни в одной роли", roles: []*model.Role{viewer, editor}, perm: PermManageRoles, want: false},
		{name: "регистр имени учитывается", roles: []*model.Role{viewer}, perm: "viewusers", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPermission(tt.roles, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q) = %v, хотели %v", tt.perm, got, tt.want)
			}
		})
	}
}

func TestHasRole(t *testing.T) {
	roles := []*model.Role{role("Viewer"), role(RoleAdministrator)}

	if !HasRole(roles, RoleAdministrator) {
		t.Error("HasRole(Administrator) = false, хотели true")
	}
	if HasRole(roles, "Operator") {
		t.Error("HasRole(Operator) = true, хотели false")
	}
	if HasRole(nil, "Viewer") {
		t.Error("HasRole для пустого набора = true, хотели false")
	}
}

func TestPermissionNames_UnionWithoutDuplicates(t *testing.T) {
	roles := []*model.Role{
		role("A", PermViewUsers, PermEditUsers),
		role("B", PermViewUsers, PermViewLocations),
	}

	got := PermissionNames(roles)
	want := []string{PermEditUsers, PermViewLocations, PermViewUsers}
	if !slices.Equal(got, want) {
		t.Errorf("PermissionNames() = %v, хотели %v", got, want)
	}
	if len(PermissionSet(roles)) != 3 {
		t.Errorf("PermissionSet() содержит %d элементов, хотели 3", len(PermissionSet(roles)))
	}
}

func TestCatalogue(t *testing.T) {
	cat := Catalogue()
	if len(cat) != 17 {
		t.Fatalf("Catalogue() содержит %d разрешений, хотели 17", len(cat))
	}

	// Копия не должна влиять на каталог
	cat[0] = "Mutated"
	if !IsKnownPermission(PermManageUsers) {
		t.Error("изменение копии повлияло на каталог")
	}
	if IsKnownPermission("Mutated") {
		t.Error("IsKnownPermission(Mutated) = true, хотели false")
	}
}
