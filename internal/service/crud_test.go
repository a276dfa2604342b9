package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/domain/rbac"
	"github.com/bigkaa/uportal/internal/identity"
	"github.com/bigkaa/uportal/internal/repository/memory"
)

func intPtr(v int) *int { return &v }

// --- Площадки ---

func TestLocationLifecycle(t *testing.T) {
	store := memory.NewStore()
	svc := NewLocationService(store, testLogger())
	ctx := context.Background()

	loc, err := svc.CreateLocation(ctx, "  Burghausen ")
	if err != nil {
		t.Fatalf("CreateLocation() ошибка: %v", err)
	}
	if loc.Name != "Burghausen" {
		t.Errorf("Name = %q, хотели Burghausen", loc.Name)
	}

	ok, err := svc.UpdateLocation(ctx, loc.ID, "Burghausen Süd")
	if err != nil || !ok {
		t.Fatalf("UpdateLocation() = %v, %v; хотели true, nil", ok, err)
	}
	got, err := svc.GetLocation(ctx, loc.ID)
	if err != nil || got == nil || got.Name != "Burghausen Süd" {
		t.Fatalf("GetLocation() = %+v, %v", got, err)
	}

	ok, err = svc.DeleteLocation(ctx, loc.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteLocation() = %v, %v; хотели true, nil", ok, err)
	}
	ok, err = svc.DeleteLocation(ctx, loc.ID)
	if err != nil || ok {
		t.Errorf("повторный DeleteLocation() = %v, %v; хотели false, nil", ok, err)
	}
	if got, err := svc.GetLocation(ctx, loc.ID); err != nil || got != nil {
		t.Errorf("GetLocation() после удаления = %+v, %v; хотели nil, nil", got, err)
	}
	checkReleased(t, store)
}

func TestUpdateLocation_MissingReturnsFalse(t *testing.T) {
	svc := NewLocationService(memory.NewStore(), testLogger())

	ok, err := svc.UpdateLocation(context.Background(), 777, "Nowhere")
	if err != nil || ok {
		t.Errorf("UpdateLocation() = %v, %v; хотели false, nil", ok, err)
	}
}

func TestLocationName_Validation(t *testing.T) {
	svc := NewLocationService(memory.NewStore(), testLogger())

	for _, name := range []string{"", "X", "   ", strings.Repeat("x", 101)} {
		if _, err := svc.CreateLocation(context.Background(), name); !errors.Is(err, ErrValidation) {
			t.Errorf("CreateLocation(%q) ошибка = %v, хотели ErrValidation", name, err)
		}
	}
}

func TestListLocations_Counts(t *testing.T) {
	store := memory.NewStore()
	locations := NewLocationService(store, testLogger())
	machines := NewMachineService(store, testLogger())
	users := NewUserService(store, testLogger())
	ctx := context.Background()

	loc, _ := locations.CreateLocation(ctx, "Gendorf")
	// Пользователь попадает на единственную площадку
	if _, err := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID(), Name: "Gina"}); err != nil {
		t.Fatalf("Reconcile() ошибка: %v", err)
	}
	for _, name := range []string{"PM1", "PM2"} {
		if _, err := machines.CreateMachine(ctx, MachineInput{Name: name, LocationID: loc.ID}); err != nil {
			t.Fatalf("CreateMachine(%s) ошибка: %v", name, err)
		}
	}

	list, err := locations.ListLocations(ctx)
	if err != nil {
		t.Fatalf("ListLocations() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListLocations() вернул %d площадок, хотели 1", len(list))
	}
	if list[0].UserCount != 1 || list[0].MachineCount != 2 {
		t.Errorf("UserCount=%d MachineCount=%d, хотели 1 и 2", list[0].UserCount, list[0].MachineCount)
	}
}

// --- Машины ---

func TestMachine_DisplayFields(t *testing.T) {
	store := memory.NewStore()
	locations := NewLocationService(store, testLogger())
	machines := NewMachineService(store, testLogger())
	users := NewUserService(store, testLogger())
	ctx := context.Background()

	loc, _ := locations.CreateLocation(ctx, "Hart")
	user, _ := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID(), Name: "Hugo"})

	free, err := machines.CreateMachine(ctx, MachineInput{Name: "PM1", LocationID: loc.ID})
	if err != nil {
		t.Fatalf("CreateMachine() ошибка: %v", err)
	}
	if free.UserName != model.UnassignedUserName || free.AppUserID != nil {
		t.Errorf("свободная машина: UserName=%q AppUserID=%v", free.UserName, free.AppUserID)
	}
	if free.LocationName != "Hart" {
		t.Errorf("LocationName = %q, хотели Hart", free.LocationName)
	}

	owned, err := machines.CreateMachine(ctx, MachineInput{Name: "PM2", LocationID: loc.ID, AppUserID: intPtr(user.ID)})
	if err != nil {
		t.Fatalf("CreateMachine() ошибка: %v", err)
	}
	if owned.UserName != "Hugo" {
		t.Errorf("UserName = %q, хотели Hugo", owned.UserName)
	}

	// Висячая ссылка на площадку
	orphan, err := machines.CreateMachine(ctx, MachineInput{Name: "PM3", LocationID: 99})
	if err != nil {
		t.Fatalf("CreateMachine() ошибка: %v", err)
	}
	if orphan.LocationName != "" {
		t.Errorf("LocationName = %q, хотели пустую строку", orphan.LocationName)
	}
	checkReleased(t, store)
}

func TestMachine_UnknownUserIsInvalidReference(t *testing.T) {
	store := memory.NewStore()
	machines := NewMachineService(store, testLogger())

	_, err := machines.CreateMachine(context.Background(), MachineInput{Name: "PM1", LocationID: 1, AppUserID: intPtr(4242)})
	if !errors.Is(err, ErrStorage) || !errors.Is(err, ErrInvalidReference) {
		t.Errorf("ошибка = %v, хотели ErrStorage + ErrInvalidReference", err)
	}
	checkReleased(t, store)
}

func TestMachine_UpdateAndDelete(t *testing.T) {
	store := memory.NewStore()
	machines := NewMachineService(store, testLogger())
	ctx := context.Background()

	m, _ := machines.CreateMachine(ctx, MachineInput{Name: "PM1", LocationID: 1})

	ok, err := machines.UpdateMachine(ctx, m.ID, MachineInput{Name: "PM1-renamed", LocationID: 2})
	if err != nil || !ok {
		t.Fatalf("UpdateMachine() = %v, %v; хотели true, nil", ok, err)
	}
	got, _ := machines.GetMachine(ctx, m.ID)
	if got.Name != "PM1-renamed" || got.LocationID != 2 {
		t.Errorf("после UpdateMachine: %+v", got)
	}

	ok, err = machines.UpdateMachine(ctx, 9999, MachineInput{Name: "Ghost", LocationID: 1})
	if err != nil || ok {
		t.Errorf("UpdateMachine(нет машины) = %v, %v; хотели false, nil", ok, err)
	}

	ok, err = machines.DeleteMachine(ctx, m.ID)
	if err != nil || !ok {
		t.Errorf("DeleteMachine() = %v, %v; хотели true, nil", ok, err)
	}
	ok, err = machines.DeleteMachine(ctx, m.ID)
	if err != nil || ok {
		t.Errorf("повторный DeleteMachine() = %v, %v; хотели false, nil", ok, err)
	}
}

func TestMachineInput_Validation(t *testing.T) {
	machines := NewMachineService(memory.NewStore(), testLogger())

	tests := []struct {
		name string
		in   MachineInput
	}{
		{name: "короткое имя", in: MachineInput{Name: "P", LocationID: 1}},
		{name: "нет площадки", in: MachineInput{Name: "PM1"}},
		{name: "нулевой пользователь", in: MachineInput{Name: "PM1", LocationID: 1, AppUserID: intPtr(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := machines.CreateMachine(context.Background(), tt.in); !errors.Is(err, ErrValidation) {
				t.Errorf("ошибка = %v, хотели ErrValidation", err)
			}
		})
	}
}

// --- Внешние приложения ---

func TestExternalApplications(t *testing.T) {
	store := memory.NewStore()
	svc := NewExternalApplicationService(store, testLogger())
	ctx := context.Background()

	wiki, err := svc.CreateApplication(ctx, ExternalApplicationInput{AppName: "Wiki", AppURL: "https://wiki.example.com", IconName: "book"})
	if err != nil {
		t.Fatalf("CreateApplication() ошибка: %v", err)
	}
	if _, err := svc.CreateApplication(ctx, ExternalApplicationInput{AppName: "Jira", AppURL: "http://jira.example.com/browse", IconName: "bug"}); err != nil {
		t.Fatalf("CreateApplication() ошибка: %v", err)
	}

	list, err := svc.ListApplications(ctx)
	if err != nil {
		t.Fatalf("ListApplications() ошибка: %v", err)
	}
	if len(list) != 2 || list[0].AppName != "Jira" || list[1].AppName != "Wiki" {
		t.Errorf("ListApplications() вернул неожиданный порядок: %+v", list)
	}

	ok, err := svc.UpdateApplication(ctx, wiki.ID, ExternalApplicationInput{AppName: "Wiki", AppURL: "https://docs.example.com", IconName: "book"})
	if err != nil || !ok {
		t.Fatalf("UpdateApplication() = %v, %v; хотели true, nil", ok, err)
	}
	got, _ := svc.GetApplication(ctx, wiki.ID)
	if got.AppURL != "https://docs.example.com" {
		t.Errorf("AppURL = %q", got.AppURL)
	}

	ok, err = svc.UpdateApplication(ctx, 9999, ExternalApplicationInput{AppName: "X", AppURL: "https://x.example.com", IconName: "x"})
	if err != nil || ok {
		t.Errorf("UpdateApplication(нет) = %v, %v; хотели false, nil", ok, err)
	}
	ok, err = svc.DeleteApplication(ctx, wiki.ID)
	if err != nil || !ok {
		t.Errorf("DeleteApplication() = %v, %v; хотели true, nil", ok, err)
	}
	checkReleased(t, store)
}

func TestExternalApplicationInput_Validation(t *testing.T) {
	svc := NewExternalApplicationService(memory.NewStore(), testLogger())

	tests := []struct {
		name string
		in   ExternalApplicationInput
	}{
		{name: "нет имени", in: ExternalApplicationInput{AppURL: "https://a.example.com", IconName: "i"}},
		{name: "относительный URL", in: ExternalApplicationInput{AppName: "A", AppURL: "/relative", IconName: "i"}},
		{name: "не http схема", in: ExternalApplicationInput{AppName: "A", AppURL: "ftp://a.example.com", IconName: "i"}},
		{name: "длинный URL", in: ExternalApplicationInput{AppName: "A", AppURL: "https://a.example.com/" + strings.Repeat("p", 2048), IconName: "i"}},
		{name: "нет иконки", in: ExternalApplicationInput{AppName: "A", AppURL: "https://a.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateApplication(context.Background(), tt.in); !errors.Is(err, ErrValidation) {
				t.Errorf("ошибка = %v, хотели ErrValidation", err)
			}
		})
	}
}

// --- Роли и разрешения ---

func TestCreateRole_WithPermissions(t *testing.T) {
	store := memory.NewStore()
	roles := NewRoleService(store, testLogger())
	ctx := context.Background()
	view := store.AddPermission(rbac.PermViewUsers)
	edit := store.AddPermission(rbac.PermEditUsers)

	role, err := roles.CreateRole(ctx, RoleInput{Name: " Editors ", PermissionIDs: []int{view, edit, view}})
	if err != nil {
		t.Fatalf("CreateRole() ошибка: %v", err)
	}
	if role.Name != "Editors" {
		t.Errorf("Name = %q, хотели Editors", role.Name)
	}
	if len(role.Permissions) != 2 {
		t.Errorf("разрешений = %d, хотели 2", len(role.Permissions))
	}

	_, err = roles.CreateRole(ctx, RoleInput{Name: "Editors"})
	if !errors.Is(err, ErrStorage) || !errors.Is(err, ErrConflict) {
		t.Errorf("дубликат: ошибка = %v, хотели ErrStorage + ErrConflict", err)
	}
	checkReleased(t, store)
}

func TestCreateRole_UnknownPermissionRollsBack(t *testing.T) {
	store := memory.NewStore()
	roles := NewRoleService(store, testLogger())
	ctx := context.Background()
	view := store.AddPermission(rbac.PermViewUsers)

	_, err := roles.CreateRole(ctx, RoleInput{Name: "Broken", PermissionIDs: []int{view, 4242}})
	if !errors.Is(err, ErrStorage) || !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("ошибка = %v, хотели ErrStorage + ErrInvalidReference", err)
	}

	list, err := roles.ListRoles(ctx)
	if err != nil {
		t.Fatalf("ListRoles() ошибка: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("после отката осталось %d ролей, хотели 0", len(list))
	}
	checkReleased(t, store)
}

func TestUpdateRole(t *testing.T) {
	store := memory.NewStore()
	roles := NewRoleService(store, testLogger())
	ctx := context.Background()
	view := store.AddPermission(rbac.PermViewUsers)
	edit := store.AddPermission(rbac.PermEditUsers)

	role, _ := roles.CreateRole(ctx, RoleInput{Name: "Editors", PermissionIDs: []int{view}})

	// nil — разрешения не трогаются
	ok, err := roles.UpdateRole(ctx, role.ID, RoleInput{Name: "Writers"})
	if err != nil || !ok {
		t.Fatalf("UpdateRole() = %v, %v; хотели true, nil", ok, err)
	}
	got, _ := roles.GetRole(ctx, role.ID)
	if got.Name != "Writers" || len(got.Permissions) != 1 {
		t.Errorf("после переименования: %+v", got)
	}

	ok, err = roles.UpdateRole(ctx, role.ID, RoleInput{Name: "Writers", PermissionIDs: []int{edit}})
	if err != nil || !ok {
		t.Fatalf("UpdateRole() = %v, %v; хотели true, nil", ok, err)
	}
	got, _ = roles.GetRole(ctx, role.ID)
	if len(got.Permissions) != 1 || got.Permissions[0].ID != edit {
		t.Errorf("разрешения = %+v, хотели только %d", got.Permissions, edit)
	}

	// Пустой срез очищает
	if _, err := roles.UpdateRole(ctx, role.ID, RoleInput{Name: "Writers", PermissionIDs: []int{}}); err != nil {
		t.Fatalf("UpdateRole() ошибка: %v", err)
	}
	perms, err := roles.GetPermissionsForRole(ctx, role.ID)
	if err != nil || len(perms) != 0 {
		t.Errorf("GetPermissionsForRole() = %+v, %v; хотели пусто", perms, err)
	}

	ok, err = roles.UpdateRole(ctx, 9999, RoleInput{Name: "Ghost"})
	if err != nil || ok {
		t.Errorf("UpdateRole(нет роли) = %v, %v; хотели false, nil", ok, err)
	}
}

func TestDeleteRole_RemovesAssignments(t *testing.T) {
	store := memory.NewStore()
	roles := NewRoleService(store, testLogger())
	users := NewUserService(store, testLogger())
	ctx := context.Background()

	user, _ := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID()})
	role, _ := roles.CreateRole(ctx, RoleInput{Name: "Temp"})
	if _, err := users.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AssignRole() ошибка: %v", err)
	}

	ok, err := roles.DeleteRole(ctx, role.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteRole() = %v, %v; хотели true, nil", ok, err)
	}
	if n := store.UserRoleCount(user.ID); n != 0 {
		t.Errorf("строк user_roles = %d, хотели 0", n)
	}
	ok, err = roles.DeleteRole(ctx, role.ID)
	if err != nil || ok {
		t.Errorf("повторный DeleteRole() = %v, %v; хотели false, nil", ok, err)
	}
}

func TestRolePermissionGrants(t *testing.T) {
	store := memory.NewStore()
	roles := NewRoleService(store, testLogger())
	ctx := context.Background()
	view := store.AddPermission(rbac.PermViewUsers)
	role, _ := roles.CreateRole(ctx, RoleInput{Name: "Support"})

	added, err := roles.AssignPermission(ctx, role.ID, view)
	if err != nil || !added {
		t.Fatalf("AssignPermission() = %v, %v; хотели true, nil", added, err)
	}
	added, err = roles.AssignPermission(ctx, role.ID, view)
	if err != nil || added {
		t.Errorf("повторный AssignPermission() = %v, %v; хотели false, nil", added, err)
	}

	if _, err := roles.AssignPermission(ctx, 9999, view); !errors.Is(err, ErrNotFound) {
		t.Errorf("нет роли: ошибка = %v, хотели ErrNotFound", err)
	}
	if _, err := roles.AssignPermission(ctx, role.ID, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("нет разрешения: ошибка = %v, хотели ErrNotFound", err)
	}
	if _, err := roles.GetPermissionsForRole(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPermissionsForRole(нет) ошибка = %v, хотели ErrNotFound", err)
	}

	if err := roles.RemovePermission(ctx, role.ID, view); err != nil {
		t.Errorf("RemovePermission() ошибка: %v", err)
	}
	if err := roles.RemovePermission(ctx, role.ID, view); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный RemovePermission() ошибка = %v, хотели ErrNotFound", err)
	}
	checkReleased(t, store)
}

func TestListPermissions_SortedByName(t *testing.T) {
	store := memory.NewStore()
	store.SeedCatalogue()
	svc := NewPermissionService(store, testLogger())

	perms, err := svc.ListPermissions(context.Background())
	if err != nil {
		t.Fatalf("ListPermissions() ошибка: %v", err)
	}
	if len(perms) != len(rbac.Catalogue()) {
		t.Fatalf("разрешений = %d, хотели %d", len(perms), len(rbac.Catalogue()))
	}
	for i := 1; i < len(perms); i++ {
		if perms[i-1].Name > perms[i].Name {
			t.Errorf("нарушен порядок: %s > %s", perms[i-1].Name, perms[i].Name)
		}
	}
}

func TestPermissionCatalogue_CheckReady(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*memory.Store)
		wantStatus string
		wantInMsg  string
	}{
		{name: "каталог засеян", setup: func(s *memory.Store) { s.SeedCatalogue() }, wantStatus: "ok", wantInMsg: "разрешений: 17"},
		{name: "пустая база", setup: func(*memory.Store) {}, wantStatus: "degraded", wantInMsg: rbac.PermManageRoles},
		{name: "нет роли администратора", setup: func(s *memory.Store) {
			for _, name := range rbac.Catalogue() {
				s.AddPermission(name)
			}
		}, wantStatus: "degraded", wantInMsg: rbac.RoleAdministrator},
		{name: "хранилище недоступно", setup: func(s *memory.Store) { s.FailWith(errors.New("pool closed")) }, wantStatus: "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			tt.setup(store)
			svc := NewPermissionService(store, testLogger())

			status, msg := svc.CheckReady(context.Background())
			if status != tt.wantStatus || !strings.Contains(msg, tt.wantInMsg) {
				t.Errorf("CheckReady() = %q, %q; хотели %q с %q", status, msg, tt.wantStatus, tt.wantInMsg)
			}
			checkReleased(t, store)
		})
	}
}

func TestCrud_StorageFailureReleasesSessions(t *testing.T) {
	store := memory.NewStore()
	store.FailWith(errors.New("pool closed"))
	ctx := context.Background()

	locations := NewLocationService(store, testLogger())
	machines := NewMachineService(store, testLogger())
	apps := NewExternalApplicationService(store, testLogger())
	roles := NewRoleService(store, testLogger())

	checks := []struct {
		name string
		call func() error
	}{
		{"ListLocations", func() error { _, err := locations.ListLocations(ctx); return err }},
		{"UpdateMachine", func() error {
			_, err := machines.UpdateMachine(ctx, 1, MachineInput{Name: "PM1", LocationID: 1})
			return err
		}},
		{"DeleteApplication", func() error { _, err := apps.DeleteApplication(ctx, 1); return err }},
		{"CreateRole", func() error { _, err := roles.CreateRole(ctx, RoleInput{Name: "R"}); return err }},
	}

	for _, c := range checks {
		if err := c.call(); !errors.Is(err, ErrStorage) {
			t.Errorf("%s: ошибка = %v, хотели ErrStorage", c.name, err)
		}
	}
	checkReleased(t, store)
}
