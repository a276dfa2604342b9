package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/uportal/internal/domain/model"
)

// RoleRepository — интерфейс доступа к ролям и join-таблицам
// role_permissions и user_roles.
type RoleRepository interface {
	// List возвращает все роли с разрешениями, отсортированные по имени.
	List(ctx context.Context) ([]*model.Role, error)
	// GetByID возвращает роль с разрешениями.
	GetByID(ctx context.Context, id int) (*model.Role, error)
	// GetByName возвращает роль с разрешениями по имени.
	GetByName(ctx context.Context, name string) (*model.Role, error)
	// Create создаёт роль (без разрешений). Дубликат имени — ErrConflict.
	Create(ctx context.Context, r *model.Role) error
	// Rename изменяет имя роли.
	Rename(ctx context.Context, id int, name string) error
	// Delete удаляет роль вместе с её связями.
	Delete(ctx context.Context, id int) error

	// ListPermissions возвращает разрешения роли.
	ListPermissions(ctx context.Context, roleID int) ([]model.Permission, error)
	// SetPermissions заменяет набор разрешений роли.
	SetPermissions(ctx context.Context, roleID int, permissionIDs []int) error
	// AddPermission выдаёт разрешение роли. Повторная выдача — no-op (false).
	AddPermission(ctx context.Context, roleID, permissionID int) (bool, error)
	// RemovePermission отзывает разрешение. Отсутствие связи — ErrNotFound.
	RemovePermission(ctx context.Context, roleID, permissionID int) error

	// ListForUser возвращает роли пользователя с разрешениями.
	ListForUser(ctx context.Context, userID int) ([]*model.Role, error)
	// AssignToUser назначает роль пользователю. Повторное назначение — no-op (false).
	AssignToUser(ctx context.Context, userID, roleID int) (bool, error)
	// RemoveFromUser снимает роль. Отсутствие назначения — ErrNotFound.
	RemoveFromUser(ctx context.Context, userID, roleID int) error
}

// roleRepo — реализация RoleRepository.
type roleRepo struct {
	db DBTX
}

// NewRoleRepository создаёт репозиторий ролей.
func NewRoleRepository(db DBTX) RoleRepository {
	return &roleRepo{db: db}
}

func (r *roleRepo) List(ctx context.Context) ([]*model.Role, error) {
	return r.queryRoles(ctx, `SELECT id, name FROM roles ORDER BY name`)
}

func (r *roleRepo) GetByID(ctx context.Context, id int) (*model.Role, error) {
	return r.getOne(ctx, `SELECT id, name FROM roles WHERE id = $1`, id)
}

func (r *roleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	return r.getOne(ctx, `SELECT id, name FROM roles WHERE name = $1`, name)
}

func (r *roleRepo) getOne(ctx context.Context, query string, arg any) (*model.Role, error) {
	role := &model.Role{}
	if err := r.db.QueryRow(ctx, query, arg).Scan(&role.ID, &role.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения роли: %w", err)
	}
	if err := r.attachPermissions(ctx, []*model.Role{role}); err != nil {
		return nil, err
	}
	return role, nil
}

func (r *roleRepo) Create(ctx context.Context, role *model.Role) error {
	err := r.db.QueryRow(ctx, `INSERT INTO roles (name) VALUES ($1) RETURNING id`, role.Name).Scan(&role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: роль %q уже существует", ErrConflict, role.Name)
		}
		return fmt.Errorf("ошибка создания роли: %w", err)
	}
	return nil
}

func (r *roleRepo) Rename(ctx context.Context, id int, name string) error {
	tag, err := r.db.Exec(ctx, `UPDATE roles SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: роль %q уже существует", ErrConflict, name)
		}
		return fmt.Errorf("ошибка обновления роли: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *roleRepo) Delete(ctx context.Context, id int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления роли: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *roleRepo) ListPermissions(ctx context.Context, roleID int) ([]model.Permission, error) {
	role := &model.Role{ID: roleID}
	if err := r.attachPermissions(ctx, []*model.Role{role}); err != nil {
		return nil, err
	}
	return role.Permissions, nil
}

func (r *roleRepo) SetPermissions(ctx context.Context, roleID int, permissionIDs []int) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("ошибка очистки разрешений роли: %w", err)
	}
	if len(permissionIDs) == 0 {
		return nil
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT DISTINCT $1::int, unnest($2::int[])
		ON CONFLICT DO NOTHING`, roleID, permissionIDs)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: роль или разрешение не существует", ErrInvalidReference)
		}
		return fmt.Errorf("ошибка назначения разрешений роли: %w", err)
	}
	return nil
}

func (r *roleRepo) AddPermission(ctx context.Context, roleID, permissionID int) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, roleID, permissionID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("%w: роль %d или разрешение %d не существует", ErrInvalidReference, roleID, permissionID)
		}
		return false, fmt.Errorf("ошибка выдачи разрешения: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *roleRepo) RemovePermission(ctx context.Context, roleID, permissionID int) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("ошибка отзыва разрешения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *roleRepo) ListForUser(ctx context.Context, userID int) ([]*model.Role, error) {
	return r.queryRoles(ctx, `
		SELECT r.id, r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`, userID)
}

func (r *roleRepo) AssignToUser(ctx context.Context, userID, roleID int) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userID, roleID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("%w: пользователь %d или роль %d не существует", ErrInvalidReference, userID, roleID)
		}
		return false, fmt.Errorf("ошибка назначения роли: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *roleRepo) RemoveFromUser(ctx context.Context, userID, roleID int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("ошибка снятия роли: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// queryRoles выполняет выборку (id, name) и подгружает разрешения одним запросом.
func (r *roleRepo) queryRoles(ctx context.Context, query string, args ...any) ([]*model.Role, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка ролей: %w", err)
	}
	defer rows.Close()

	var roles []*model.Role
	for rows.Next() {
		role := &model.Role{}
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования роли: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Соединение одно на сессию: курсор закрывается до следующего запроса
	rows.Close()

	if err := r.attachPermissions(ctx, roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// attachPermissions заполняет Permissions у переданных ролей.
func (r *roleRepo) attachPermissions(ctx context.Context, roles []*model.Role) error {
	if len(roles) == 0 {
		return nil
	}

	byID := make(map[int]*model.Role, len(roles))
	ids := make([]int, 0, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
		ids = append(ids, role.ID)
	}

	rows, err := r.db.Query(ctx, `
		SELECT rp.role_id, p.id, p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1)
		ORDER BY p.name`, ids)
	if err != nil {
		return fmt.Errorf("ошибка получения разрешений ролей: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID int
		var p model.Permission
		if err := rows.Scan(&roleID, &p.ID, &p.Name); err != nil {
			return fmt.Errorf("ошибка сканирования разрешения: %w", err)
		}
		if role, ok := byID[roleID]; ok {
			role.Permissions = append(role.Permissions, p)
		}
	}
	return rows.Err()
}
