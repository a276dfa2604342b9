package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/identity"
	"github.com/bigkaa/uportal/internal/repository"
	"github.com/bigkaa/uportal/internal/repository/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newObjectID возвращает уникальный object id для теста.
func newObjectID() string {
	return uuid.NewString()
}

// checkReleased проверяет, что все сессии хранилища освобождены.
func checkReleased(t *testing.T, store *memory.Store) {
	t.Helper()
	if n := store.OpenSessions(); n != 0 {
		t.Errorf("осталось %d неосвобождённых сессий", n)
	}
}

func TestReconcile_CreatesOnFirstLogin(t *testing.T) {
	store := memory.NewStore()
	locations := NewLocationService(store, testLogger())
	users := NewUserService(store, testLogger())
	ctx := context.Background()

	lowest, err := locations.CreateLocation(ctx, "Trostberg")
	if err != nil {
		t.Fatalf("CreateLocation() ошибка: %v", err)
	}
	if _, err := locations.CreateLocation(ctx, "Altötting"); err != nil {
		t.Fatalf("CreateLocation() ошибка: %v", err)
	}
	oid := newObjectID()

	user, err := users.Reconcile(ctx, &identity.Identity{ObjectID: oid, Name: "Alice"})
	if err != nil {
		t.Fatalf("Reconcile() ошибка: %v", err)
	}
	if user.ID == 0 {
		t.Error("ID не установлен")
	}
	if user.ObjectID != oid || user.Name != "Alice" {
		t.Errorf("ObjectID=%q Name=%q, хотели %q/Alice", user.ObjectID, user.Name, oid)
	}
	if !user.IsActive || user.IsAdmin {
		t.Errorf("IsActive=%v IsAdmin=%v, хотели true/false", user.IsActive, user.IsAdmin)
	}
	if user.LocationID != lowest.ID || user.LocationName != "Trostberg" {
		t.Errorf("Location = %d/%q, хотели %d/Trostberg", user.LocationID, user.LocationName, lowest.ID)
	}
	if store.UserCount() != 1 {
		t.Errorf("UserCount() = %d, хотели 1", store.UserCount())
	}
	checkReleased(t, store)
}

func TestReconcile_ExistingUserUnchanged(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())
	ctx := context.Background()
	oid := newObjectID()

	first, err := users.Reconcile(ctx, &identity.Identity{ObjectID: oid, Name: "Alice"})
	if err != nil {
		t.Fatalf("первый Reconcile() ошибка: %v", err)
	}
	writes := store.Writes()

	// Имя в IdP изменилось — локальная запись не обновляется
	for _, name := range []string{"Alice Smith", "", "Someone Else"} {
		again, err := users.Reconcile(ctx, &identity.Identity{ObjectID: oid, Name: name})
		if err != nil {
			t.Fatalf("повторный Reconcile(%q) ошибка: %v", name, err)
		}
		if again.ID != first.ID || again.Name != "Alice" {
			t.Errorf("Reconcile(%q) = id %d name %q, хотели id %d name Alice", name, again.ID, again.Name, first.ID)
		}
	}

	if store.Writes() != writes {
		t.Errorf("повторные вызовы выполнили %d записей, хотели 0", store.Writes()-writes)
	}
	if store.UserCount() != 1 {
		t.Errorf("UserCount() = %d, хотели 1", store.UserCount())
	}
}

func TestReconcile_InvalidIdentity(t *testing.T) {
	tests := []struct {
		name string
		id   *identity.Identity
	}{
		{name: "nil", id: nil},
		{name: "пустой object id", id: &identity.Identity{Name: "Alice"}},
		{name: "пробельный object id", id: &identity.Identity{ObjectID: "  ", Name: "Alice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			users := NewUserService(store, testLogger())

			user, err := users.Reconcile(context.Background(), tt.id)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ошибка = %v, хотели ErrValidation", err)
			}
			if user != nil {
				t.Errorf("user = %+v, хотели nil", user)
			}
			if store.Writes() != 0 {
				t.Errorf("Writes() = %d, хотели 0", store.Writes())
			}
			checkReleased(t, store)
		})
	}
}

func TestReconcile_NameDefaults(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())
	ctx := context.Background()

	unnamed, err := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID()})
	if err != nil {
		t.Fatalf("Reconcile() ошибка: %v", err)
	}
	if unnamed.Name != UnknownUserName {
		t.Errorf("Name = %q, хотели %q", unnamed.Name, UnknownUserName)
	}

	long := strings.Repeat("Ж", 150)
	truncated, err := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID(), Name: long})
	if err != nil {
		t.Fatalf("Reconcile() ошибка: %v", err)
	}
	if got := len([]rune(truncated.Name)); got != 100 {
		t.Errorf("длина имени = %d символов, хотели 100", got)
	}
}

func TestReconcile_PlaceholderLocation(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())

	// Площадок нет — мягкая ссылка на 1, название пустое
	user, err := users.Reconcile(context.Background(), &identity.Identity{ObjectID: newObjectID(), Name: "Bob"})
	if err != nil {
		t.Fatalf("Reconcile() ошибка: %v", err)
	}
	if user.LocationID != 1 {
		t.Errorf("LocationID = %d, хотели 1", user.LocationID)
	}
	if user.LocationName != "" {
		t.Errorf("LocationName = %q, хотели пустую строку", user.LocationName)
	}
}

func TestReconcile_StorageFailure(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())
	store.FailWith(errors.New("connection reset"))

	_, err := users.Reconcile(context.Background(), &identity.Identity{ObjectID: newObjectID()})
	if !errors.Is(err, ErrStorage) {
		t.Errorf("ошибка = %v, хотели ErrStorage", err)
	}
	if errors.Is(err, ErrConflict) {
		t.Errorf("ошибка = %v, не должна быть ErrConflict", err)
	}
	checkReleased(t, store)
}

// --- Конкурентный первый вход ---

// barrierFactory задерживает каждый вызов после поиска по object id,
// пока его не выполнят все участники: оба видят «нет пользователя».
type barrierFactory struct {
	inner repository.SessionFactory
	wg    *sync.WaitGroup
}

func (f barrierFactory) Open(ctx context.Context) (repository.Session, error) {
	s, err := f.inner.Open(ctx)
	if err != nil {
		return nil, err
	}
	return barrierSession{Session: s, wg: f.wg}, nil
}

type barrierSession struct {
	repository.Session
	wg *sync.WaitGroup
}

func (s barrierSession) Users() repository.AppUserRepository {
	return barrierUsers{AppUserRepository: s.Session.Users(), wg: s.wg}
}

type barrierUsers struct {
	repository.AppUserRepository
	wg *sync.WaitGroup
}

func (u barrierUsers) GetByObjectID(ctx context.Context, objectID string) (*model.AppUser, error) {
	user, err := u.AppUserRepository.GetByObjectID(ctx, objectID)
	u.wg.Done()
	u.wg.Wait()
	return user, err
}

func TestReconcile_ConcurrentFirstLogin(t *testing.T) {
	store := memory.NewStore()
	var barrier sync.WaitGroup
	barrier.Add(2)
	users := NewUserService(barrierFactory{inner: store, wg: &barrier}, testLogger())
	oid := newObjectID()

	var (
		wg      sync.WaitGroup
		results [2]*model.AppUser
		errs    [2]error
	)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = users.Reconcile(context.Background(), &identity.Identity{ObjectID: oid, Name: "Racer"})
		}()
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for i := range 2 {
		switch {
		case errs[i] == nil && results[i] != nil:
			succeeded++
		case errors.Is(errs[i], ErrStorage) && errors.Is(errs[i], ErrConflict):
			conflicted++
		default:
			t.Errorf("вызов %d: результат %+v, ошибка %v", i, results[i], errs[i])
		}
	}
	if succeeded != 1 || conflicted != 1 {
		t.Errorf("успешных = %d, конфликтов = %d; хотели 1 и 1", succeeded, conflicted)
	}
	if store.UserCount() != 1 {
		t.Errorf("UserCount() = %d, хотели 1", store.UserCount())
	}
	checkReleased(t, store)
}

// --- Администрирование пользователей ---

func strPtr(s string) *string { return &s }

func TestUpdateUser(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())
	locations := NewLocationService(store, testLogger())
	ctx := context.Background()

	loc, _ := locations.CreateLocation(ctx, "Pitten")
	user, _ := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID(), Name: "Carol"})

	updated, err := users.UpdateUser(ctx, user.ID, model.AppUserUpdate{
		Name: strPtr(" Carol King "), IsActive: false, IsAdmin: true, LocationID: 99,
	})
	if err != nil {
		t.Fatalf("UpdateUser() ошибка: %v", err)
	}
	if updated.Name != "Carol King" || updated.IsActive || !updated.IsAdmin {
		t.Errorf("после UpdateUser: %+v", updated)
	}
	// Висячая ссылка на площадку — пустое название, не ошибка
	if updated.LocationID != 99 || updated.LocationName != "" {
		t.Errorf("Location = %d/%q, хотели 99/\"\"", updated.LocationID, updated.LocationName)
	}

	updated, err = users.UpdateUser(ctx, user.ID, model.AppUserUpdate{Name: strPtr("Carol"), IsActive: true, LocationID: loc.ID})
	if err != nil {
		t.Fatalf("UpdateUser() ошибка: %v", err)
	}
	if updated.LocationName != "Pitten" {
		t.Errorf("LocationName = %q, хотели Pitten", updated.LocationName)
	}
}

func TestUpdateUser_WithoutNameKeepsName(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())
	ctx := context.Background()

	user, _ := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID(), Name: "Erin"})

	tests := []struct {
		name string
		upd  model.AppUserUpdate
	}{
		{name: "существующая площадка", upd: model.AppUserUpdate{IsActive: false, IsAdmin: true, LocationID: 1}},
		{name: "нулевая площадка", upd: model.AppUserUpdate{IsActive: true, LocationID: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := users.UpdateUser(ctx, user.ID, tt.upd)
			if err != nil {
				t.Fatalf("UpdateUser() ошибка: %v", err)
			}
			if updated.Name != "Erin" {
				t.Errorf("Name = %q, хотели Erin", updated.Name)
			}
			if updated.IsActive != tt.upd.IsActive || updated.IsAdmin != tt.upd.IsAdmin || updated.LocationID != tt.upd.LocationID {
				t.Errorf("после UpdateUser: %+v", updated)
			}
		})
	}
	checkReleased(t, store)
}

func TestUpdateUser_NotFound(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())

	_, err := users.UpdateUser(context.Background(), 12345, model.AppUserUpdate{Name: strPtr("Ghost"), LocationID: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, хотели ErrNotFound", err)
	}
	checkReleased(t, store)
}

func TestUpdateUser_Validation(t *testing.T) {
	users := NewUserService(memory.NewStore(), testLogger())

	tests := []struct {
		name string
		upd  model.AppUserUpdate
	}{
		{name: "пустое имя", upd: model.AppUserUpdate{Name: strPtr("  "), LocationID: 1}},
		{name: "длинное имя", upd: model.AppUserUpdate{Name: strPtr(strings.Repeat("a", 101)), LocationID: 1}},
		{name: "отрицательная площадка", upd: model.AppUserUpdate{LocationID: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := users.UpdateUser(context.Background(), 1, tt.upd); !errors.Is(err, ErrValidation) {
				t.Errorf("ошибка = %v, хотели ErrValidation", err)
			}
		})
	}
}

func TestGetUser_MissingReturnsNil(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())
	ctx := context.Background()

	user, err := users.GetUser(ctx, 404)
	if err != nil || user != nil {
		t.Errorf("GetUser() = %v, %v; хотели nil, nil", user, err)
	}
	byOID, err := users.GetUserByObjectID(ctx, newObjectID())
	if err != nil || byOID != nil {
		t.Errorf("GetUserByObjectID() = %v, %v; хотели nil, nil", byOID, err)
	}
}

func TestListUsers_OrderedByName(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())
	ctx := context.Background()

	for _, name := range []string{"Zoe", "Adam", "Mia"} {
		if _, err := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID(), Name: name}); err != nil {
			t.Fatalf("Reconcile(%s) ошибка: %v", name, err)
		}
	}

	list, err := users.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() ошибка: %v", err)
	}
	var names []string
	for _, u := range list {
		names = append(names, u.Name)
	}
	if strings.Join(names, ",") != "Adam,Mia,Zoe" {
		t.Errorf("порядок = %v, хотели [Adam Mia Zoe]", names)
	}
}

func TestAssignRole_Idempotent(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())
	roles := NewRoleService(store, testLogger())
	ctx := context.Background()

	user, _ := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID(), Name: "Eve"})
	role, err := roles.CreateRole(ctx, RoleInput{Name: "Operator"})
	if err != nil {
		t.Fatalf("CreateRole() ошибка: %v", err)
	}

	added, err := users.AssignRole(ctx, user.ID, role.ID)
	if err != nil || !added {
		t.Fatalf("первый AssignRole() = %v, %v; хотели true, nil", added, err)
	}
	added, err = users.AssignRole(ctx, user.ID, role.ID)
	if err != nil || added {
		t.Fatalf("повторный AssignRole() = %v, %v; хотели false, nil", added, err)
	}
	if n := store.UserRoleCount(user.ID); n != 1 {
		t.Errorf("строк user_roles = %d, хотели 1", n)
	}
	checkReleased(t, store)
}

func TestAssignRole_MissingEntities(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())
	roles := NewRoleService(store, testLogger())
	ctx := context.Background()

	user, _ := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID()})
	role, _ := roles.CreateRole(ctx, RoleInput{Name: "Operator"})

	if _, err := users.AssignRole(ctx, 9999, role.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("нет пользователя: ошибка = %v, хотели ErrNotFound", err)
	}
	if _, err := users.AssignRole(ctx, user.ID, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("нет роли: ошибка = %v, хотели ErrNotFound", err)
	}
	if _, err := users.AssignRoleByName(ctx, user.ID, "Missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("нет роли по имени: ошибка = %v, хотели ErrNotFound", err)
	}
}

func TestRemoveRole(t *testing.T) {
	store := memory.NewStore()
	users := NewUserService(store, testLogger())
	roles := NewRoleService(store, testLogger())
	ctx := context.Background()

	user, _ := users.Reconcile(ctx, &identity.Identity{ObjectID: newObjectID()})
	role, _ := roles.CreateRole(ctx, RoleInput{Name: "Operator"})

	// Роль не назначалась
	if err := users.RemoveRole(ctx, user.ID, role.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, хотели ErrNotFound", err)
	}

	if _, err := users.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AssignRole() ошибка: %v", err)
	}
	if err := users.RemoveRole(ctx, user.ID, role.ID); err != nil {
		t.Errorf("RemoveRole() ошибка: %v", err)
	}
	if n := store.UserRoleCount(user.ID); n != 0 {
		t.Errorf("строк user_roles = %d, хотели 0", n)
	}
	// Повторное снятие
	if err := users.RemoveRole(ctx, user.ID, role.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное снятие: ошибка = %v, хотели ErrNotFound", err)
	}
}
