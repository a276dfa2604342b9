package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/repository"
)

// --- Пользователи ---

type userRepo struct{ st conn }

// view дополняет пользователя вычисляемыми полями. Вызывается под блокировкой.
func (t *tables) userView(u model.AppUser) *model.AppUser {
	u.LocationName = t.locations[u.LocationID].Name
	u.MachineCount = 0
	for _, m := range t.machines {
		if m.AppUserID != nil && *m.AppUserID == u.ID {
			u.MachineCount++
		}
	}
	return &u
}

func (r *userRepo) List(_ context.Context) ([]*model.AppUser, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	result := make([]*model.AppUser, 0, len(r.st.data.users))
	for _, u := range r.st.data.users {
		result = append(result, r.st.data.userView(u))
	}
	slices.SortFunc(result, func(a, b *model.AppUser) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return result, nil
}

func (r *userRepo) GetByID(_ context.Context, id int) (*model.AppUser, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	u, ok := r.st.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.st.data.userView(u), nil
}

func (r *userRepo) GetByObjectID(_ context.Context, objectID string) (*model.AppUser, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	for _, u := range r.st.data.users {
		if u.ObjectID == objectID {
			return r.st.data.userView(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) Create(_ context.Context, u *model.AppUser) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	for _, existing := range r.st.data.users {
		if existing.ObjectID == u.ObjectID {
			return fmt.Errorf("%w: пользователь с таким object id уже существует", repository.ErrConflict)
		}
	}

	now := time.Now().UTC()
	u.ID = r.st.data.nextID()
	u.CreatedAt, u.UpdatedAt = now, now
	row := *u
	row.LocationName, row.MachineCount = "", 0
	r.st.data.users[u.ID] = row
	u.LocationName = r.st.data.locations[u.LocationID].Name
	r.st.wrote()
	return nil
}

func (r *userRepo) Update(_ context.Context, id int, upd model.AppUserUpdate) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	u, ok := r.st.data.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	u.IsActive, u.IsAdmin, u.LocationID = upd.IsActive, upd.IsAdmin, upd.LocationID
	u.UpdatedAt = time.Now().UTC()
	r.st.data.users[id] = u
	r.st.wrote()
	return nil
}

// --- Площадки ---

type locationRepo struct{ st conn }

func (t *tables) locationView(l model.Location) *model.Location {
	l.UserCount, l.MachineCount = 0, 0
	for _, u := range t.users {
		if u.LocationID == l.ID {
			l.UserCount++
		}
	}
	for _, m := range t.machines {
		if m.LocationID == l.ID {
			l.MachineCount++
		}
	}
	return &l
}

func (r *locationRepo) List(_ context.Context) ([]*model.Location, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	result := make([]*model.Location, 0, len(r.st.data.locations))
	for _, l := range r.st.data.locations {
		result = append(result, r.st.data.locationView(l))
	}
	slices.SortFunc(result, func(a, b *model.Location) int { return cmp.Compare(a.ID, b.ID) })
	return result, nil
}

func (r *locationRepo) GetByID(_ context.Context, id int) (*model.Location, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	l, ok := r.st.data.locations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.st.data.locationView(l), nil
}

func (r *locationRepo) FirstID(_ context.Context) (int, error) {
	if err := r.st.lock(); err != nil {
		return 0, err
	}
	defer r.st.unlock()

	first := 0
	for id := range r.st.data.locations {
		if first == 0 || id < first {
			first = id
		}
	}
	if first == 0 {
		return 0, repository.ErrNotFound
	}
	return first, nil
}

func (r *locationRepo) Create(_ context.Context, l *model.Location) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	l.ID = r.st.data.nextID()
	r.st.data.locations[l.ID] = model.Location{ID: l.ID, Name: l.Name}
	r.st.wrote()
	return nil
}

func (r *locationRepo) Update(_ context.Context, l *model.Location) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if _, ok := r.st.data.locations[l.ID]; !ok {
		return repository.ErrNotFound
	}
	r.st.data.locations[l.ID] = model.Location{ID: l.ID, Name: l.Name}
	r.st.wrote()
	return nil
}

func (r *locationRepo) Delete(_ context.Context, id int) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if _, ok := r.st.data.locations[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.st.data.locations, id)
	r.st.wrote()
	return nil
}

// --- Машины ---

type machineRepo struct{ st conn }

func (t *tables) machineView(m model.Machine) *model.Machine {
	m.LocationName = t.locations[m.LocationID].Name
	m.UserName = model.UnassignedUserName
	if m.AppUserID != nil {
		id := *m.AppUserID
		m.AppUserID = &id
		if u, ok := t.users[id]; ok {
			m.UserName = u.Name
		}
	}
	return &m
}

func (t *tables) checkMachineUser(m *model.Machine) error {
	if m.AppUserID == nil {
		return nil
	}
	if _, ok := t.users[*m.AppUserID]; !ok {
		return fmt.Errorf("%w: пользователь %d не существует", repository.ErrInvalidReference, *m.AppUserID)
	}
	return nil
}

func (r *machineRepo) List(_ context.Context) ([]*model.Machine, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	result := make([]*model.Machine, 0, len(r.st.data.machines))
	for _, m := range r.st.data.machines {
		result = append(result, r.st.data.machineView(m))
	}
	slices.SortFunc(result, func(a, b *model.Machine) int { return cmp.Compare(a.ID, b.ID) })
	return result, nil
}

func (r *machineRepo) GetByID(_ context.Context, id int) (*model.Machine, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	m, ok := r.st.data.machines[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.st.data.machineView(m), nil
}

func (r *machineRepo) Create(_ context.Context, m *model.Machine) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if err := r.st.data.checkMachineUser(m); err != nil {
		return err
	}
	m.ID = r.st.data.nextID()
	r.st.data.machines[m.ID] = machineRow(m)
	r.st.wrote()
	return nil
}

func (r *machineRepo) Update(_ context.Context, m *model.Machine) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if _, ok := r.st.data.machines[m.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := r.st.data.checkMachineUser(m); err != nil {
		return err
	}
	r.st.data.machines[m.ID] = machineRow(m)
	r.st.wrote()
	return nil
}

func (r *machineRepo) Delete(_ context.Context, id int) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if _, ok := r.st.data.machines[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.st.data.machines, id)
	r.st.wrote()
	return nil
}

// machineRow — хранимые колонки машины без вычисляемых полей.
func machineRow(m *model.Machine) model.Machine {
	row := model.Machine{ID: m.ID, Name: m.Name, LocationID: m.LocationID}
	if m.AppUserID != nil {
		id := *m.AppUserID
		row.AppUserID = &id
	}
	return row
}

// --- Внешние приложения ---

type appRepo struct{ st conn }

func (r *appRepo) List(_ context.Context) ([]*model.ExternalApplication, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	result := make([]*model.ExternalApplication, 0, len(r.st.data.apps))
	for _, a := range r.st.data.apps {
		result = append(result, &a)
	}
	slices.SortFunc(result, func(a, b *model.ExternalApplication) int {
		return cmp.Or(cmp.Compare(a.AppName, b.AppName), cmp.Compare(a.ID, b.ID))
	})
	return result, nil
}

func (r *appRepo) GetByID(_ context.Context, id int) (*model.ExternalApplication, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	a, ok := r.st.data.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *appRepo) Create(_ context.Context, a *model.ExternalApplication) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	a.ID = r.st.data.nextID()
	r.st.data.apps[a.ID] = *a
	r.st.wrote()
	return nil
}

func (r *appRepo) Update(_ context.Context, a *model.ExternalApplication) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if _, ok := r.st.data.apps[a.ID]; !ok {
		return repository.ErrNotFound
	}
	r.st.data.apps[a.ID] = *a
	r.st.wrote()
	return nil
}

func (r *appRepo) Delete(_ context.Context, id int) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if _, ok := r.st.data.apps[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.st.data.apps, id)
	r.st.wrote()
	return nil
}

// --- Разрешения ---

type permissionRepo struct{ st conn }

func (r *permissionRepo) List(_ context.Context) ([]*model.Permission, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	result := make([]*model.Permission, 0, len(r.st.data.permissions))
	for _, p := range r.st.data.permissions {
		result = append(result, &p)
	}
	slices.SortFunc(result, func(a, b *model.Permission) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (r *permissionRepo) GetByID(_ context.Context, id int) (*model.Permission, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	p, ok := r.st.data.permissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}
