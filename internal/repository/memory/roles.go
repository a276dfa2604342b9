package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/repository"
)

type roleRepo struct{ st conn }

// roleView возвращает роль с разрешениями, отсортированными по имени.
func (t *tables) roleView(r model.Role) *model.Role {
	r.Permissions = t.rolePermissions(r.ID)
	return &r
}

func (t *tables) rolePermissions(roleID int) []model.Permission {
	var perms []model.Permission
	for k := range t.rolePerms {
		if k.a == roleID {
			perms = append(perms, t.permissions[k.b])
		}
	}
	slices.SortFunc(perms, func(a, b model.Permission) int { return cmp.Compare(a.Name, b.Name) })
	return perms
}

func sortRoles(roles []*model.Role) {
	slices.SortFunc(roles, func(a, b *model.Role) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
}

func (t *tables) nameTaken(name string, exceptID int) bool {
	for _, r := range t.roles {
		if r.Name == name && r.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *roleRepo) List(_ context.Context) ([]*model.Role, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	result := make([]*model.Role, 0, len(r.st.data.roles))
	for _, role := range r.st.data.roles {
		result = append(result, r.st.data.roleView(role))
	}
	sortRoles(result)
	return result, nil
}

func (r *roleRepo) GetByID(_ context.Context, id int) (*model.Role, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	role, ok := r.st.data.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.st.data.roleView(role), nil
}

func (r *roleRepo) GetByName(_ context.Context, name string) (*model.Role, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	for _, role := range r.st.data.roles {
		if role.Name == name {
			return r.st.data.roleView(role), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *roleRepo) Create(_ context.Context, role *model.Role) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if r.st.data.nameTaken(role.Name, 0) {
		return fmt.Errorf("%w: роль %q уже существует", repository.ErrConflict, role.Name)
	}
	role.ID = r.st.data.nextID()
	r.st.data.roles[role.ID] = model.Role{ID: role.ID, Name: role.Name}
	r.st.wrote()
	return nil
}

func (r *roleRepo) Rename(_ context.Context, id int, name string) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if _, ok := r.st.data.roles[id]; !ok {
		return repository.ErrNotFound
	}
	if r.st.data.nameTaken(name, id) {
		return fmt.Errorf("%w: роль %q уже существует", repository.ErrConflict, name)
	}
	r.st.data.roles[id] = model.Role{ID: id, Name: name}
	r.st.wrote()
	return nil
}

// Delete удаляет роль и каскадно её связи.
func (r *roleRepo) Delete(_ context.Context, id int) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if _, ok := r.st.data.roles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.st.data.roles, id)
	for k := range r.st.data.rolePerms {
		if k.a == id {
			delete(r.st.data.rolePerms, k)
		}
	}
	for k := range r.st.data.userRoles {
		if k.b == id {
			delete(r.st.data.userRoles, k)
		}
	}
	r.st.wrote()
	return nil
}

func (r *roleRepo) ListPermissions(_ context.Context, roleID int) ([]model.Permission, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	return r.st.data.rolePermissions(roleID), nil
}

func (r *roleRepo) SetPermissions(_ context.Context, roleID int, permissionIDs []int) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	if _, ok := r.st.data.roles[roleID]; !ok {
		return fmt.Errorf("%w: роль %d не существует", repository.ErrInvalidReference, roleID)
	}
	for _, pid := range permissionIDs {
		if _, ok := r.st.data.permissions[pid]; !ok {
			return fmt.Errorf("%w: разрешение %d не существует", repository.ErrInvalidReference, pid)
		}
	}

	for k := range r.st.data.rolePerms {
		if k.a == roleID {
			delete(r.st.data.rolePerms, k)
		}
	}
	for _, pid := range permissionIDs {
		r.st.data.rolePerms[pair{roleID, pid}] = true
	}
	r.st.wrote()
	return nil
}

func (r *roleRepo) AddPermission(_ context.Context, roleID, permissionID int) (bool, error) {
	if err := r.st.lockWrite(); err != nil {
		return false, err
	}
	defer r.st.unlockWrite()

	_, roleOK := r.st.data.roles[roleID]
	_, permOK := r.st.data.permissions[permissionID]
	if !roleOK || !permOK {
		return false, fmt.Errorf("%w: роль %d или разрешение %d не существует",
			repository.ErrInvalidReference, roleID, permissionID)
	}

	k := pair{roleID, permissionID}
	if r.st.data.rolePerms[k] {
		return false, nil
	}
	r.st.data.rolePerms[k] = true
	r.st.wrote()
	return true, nil
}

func (r *roleRepo) RemovePermission(_ context.Context, roleID, permissionID int) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	k := pair{roleID, permissionID}
	if !r.st.data.rolePerms[k] {
		return repository.ErrNotFound
	}
	delete(r.st.data.rolePerms, k)
	r.st.wrote()
	return nil
}

func (r *roleRepo) ListForUser(_ context.Context, userID int) ([]*model.Role, error) {
	if err := r.st.lock(); err != nil {
		return nil, err
	}
	defer r.st.unlock()

	var result []*model.Role
	for k := range r.st.data.userRoles {
		if k.a != userID {
			continue
		}
		if role, ok := r.st.data.roles[k.b]; ok {
			result = append(result, r.st.data.roleView(role))
		}
	}
	sortRoles(result)
	return result, nil
}

func (r *roleRepo) AssignToUser(_ context.Context, userID, roleID int) (bool, error) {
	if err := r.st.lockWrite(); err != nil {
		return false, err
	}
	defer r.st.unlockWrite()

	_, userOK := r.st.data.users[userID]
	_, roleOK := r.st.data.roles[roleID]
	if !userOK || !roleOK {
		return false, fmt.Errorf("%w: пользователь %d или роль %d не существует",
			repository.ErrInvalidReference, userID, roleID)
	}

	k := pair{userID, roleID}
	if r.st.data.userRoles[k] {
		return false, nil
	}
	r.st.data.userRoles[k] = true
	r.st.wrote()
	return true, nil
}

func (r *roleRepo) RemoveFromUser(_ context.Context, userID, roleID int) error {
	if err := r.st.lockWrite(); err != nil {
		return err
	}
	defer r.st.unlockWrite()

	k := pair{userID, roleID}
	if !r.st.data.userRoles[k] {
		return repository.ErrNotFound
	}
	delete(r.st.data.userRoles, k)
	r.st.wrote()
	return nil
}

// UserRoleCount возвращает количество строк user_roles пользователя.
func (s *Store) UserRoleCount(userID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.data.userRoles {
		if k.a == userID {
			n++
		}
	}
	return n
}

// UserCount возвращает количество строк app_users.
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.users)
}
