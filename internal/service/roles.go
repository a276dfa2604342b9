// roles.go — CRUD ролей, выдача разрешений ролям и каталог разрешений.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/domain/rbac"
	"github.com/bigkaa/uportal/internal/repository"
)

// maxRoleNameLength — максимальная длина имени роли (символов).
const maxRoleNameLength = 50

// RoleInput — данные для создания и изменения роли.
type RoleInput struct {
	Name string
	// PermissionIDs — полный набор разрешений роли.
	// При изменении nil оставляет разрешения как есть, пустой срез очищает.
	PermissionIDs []int
}

func (in *RoleInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || utf8.RuneCountInString(in.Name) > maxRoleNameLength {
		return validationError("имя роли обязательно и не длиннее %d символов", maxRoleNameLength)
	}
	for _, id := range in.PermissionIDs {
		if id < 1 {
			return validationError("некорректный id разрешения: %d", id)
		}
	}
	return nil
}

// RoleService — сервис ролей.
type RoleService struct {
	sessions repository.SessionFactory
	logger   *slog.Logger
}

// NewRoleService создаёт сервис ролей.
func NewRoleService(sessions repository.SessionFactory, logger *slog.Logger) *RoleService {
	return &RoleService{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "role_service")),
	}
}

// ListRoles возвращает все роли с разрешениями.
func (s *RoleService) ListRoles(ctx context.Context) ([]*model.Role, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	roles, err := sess.Roles().List(ctx)
	if err != nil {
		return nil, storageError(s.logger, "получение списка ролей", err)
	}
	return roles, nil
}

// GetRole возвращает роль с разрешениями или nil, если её нет.
func (s *RoleService) GetRole(ctx context.Context, id int) (*model.Role, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	role, err := sess.Roles().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(s.logger, "получение роли", err)
	}
	return role, nil
}

// CreateRole создаёт роль вместе с разрешениями в одной транзакции.
// Дубликат имени — ErrStorage + ErrConflict, неизвестное разрешение —
// ErrStorage + ErrInvalidReference.
func (s *RoleService) CreateRole(ctx context.Context, in RoleInput) (*model.Role, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	var created *model.Role
	err = sess.RunInTx(ctx, func(tx repository.Session) error {
		role := &model.Role{Name: in.Name}
		if err := tx.Roles().Create(ctx, role); err != nil {
			return err
		}
		if len(in.PermissionIDs) > 0 {
			if err := tx.Roles().SetPermissions(ctx, role.ID, in.PermissionIDs); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.Roles().GetByID(ctx, role.ID)
		return err
	})
	if err != nil {
		return nil, storageError(s.logger, "создание роли", err)
	}

	s.logger.Info("Роль создана",
		slog.Int("role_id", created.ID),
		slog.String("name", created.Name),
		slog.Int("permissions", len(created.Permissions)),
	)
	return created, nil
}

// UpdateRole переименовывает роль и, если PermissionIDs != nil, заменяет
// её разрешения. false — роли нет.
func (s *RoleService) UpdateRole(ctx context.Context, id int, in RoleInput) (bool, error) {
	if err := in.validate(); err != nil {
		return false, err
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	err = sess.RunInTx(ctx, func(tx repository.Session) error {
		if err := tx.Roles().Rename(ctx, id, in.Name); err != nil {
			return err
		}
		if in.PermissionIDs != nil {
			return tx.Roles().SetPermissions(ctx, id, in.PermissionIDs)
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageError(s.logger, "обновление роли", err)
	}

	s.logger.Info("Роль обновлена", slog.Int("role_id", id), slog.String("name", in.Name))
	return true, nil
}

// DeleteRole удаляет роль и её назначения. false — роли нет.
func (s *RoleService) DeleteRole(ctx context.Context, id int) (bool, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if err := sess.Roles().Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, storageError(s.logger, "удаление роли", err)
	}

	s.logger.Info("Роль удалена", slog.Int("role_id", id))
	return true, nil
}

// GetPermissionsForRole возвращает разрешения роли. Роли нет — ErrNotFound.
func (s *RoleService) GetPermissionsForRole(ctx context.Context, roleID int) ([]model.Permission, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	role, err := sess.Roles().GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError(s.logger, "получение роли", err)
	}
	return role.Permissions, nil
}

// AssignPermission выдаёт разрешение роли. Повторная выдача — no-op.
// Роли или разрешения нет — ErrNotFound.
func (s *RoleService) AssignPermission(ctx context.Context, roleID, permissionID int) (bool, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if _, err := sess.Roles().GetByID(ctx, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, storageError(s.logger, "получение роли", err)
	}
	if _, err := sess.Permissions().GetByID(ctx, permissionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, storageError(s.logger, "получение разрешения", err)
	}

	added, err := sess.Roles().AddPermission(ctx, roleID, permissionID)
	if err != nil {
		return false, storageError(s.logger, "выдача разрешения", err)
	}
	if added {
		s.logger.Info("Разрешение выдано роли",
			slog.Int("role_id", roleID),
			slog.Int("permission_id", permissionID),
		)
	}
	return added, nil
}

// RemovePermission отзывает разрешение у роли. Связи нет — ErrNotFound.
func (s *RoleService) RemovePermission(ctx context.Context, roleID, permissionID int) error {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if err := sess.Roles().RemovePermission(ctx, roleID, permissionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storageError(s.logger, "отзыв разрешения", err)
	}

	s.logger.Info("Разрешение отозвано у роли",
		slog.Int("role_id", roleID),
		slog.Int("permission_id", permissionID),
	)
	return nil
}

// PermissionService — чтение каталога разрешений.
type PermissionService struct {
	sessions repository.SessionFactory
	logger   *slog.Logger
}

// NewPermissionService создаёт сервис каталога разрешений.
func NewPermissionService(sessions repository.SessionFactory, logger *slog.Logger) *PermissionService {
	return &PermissionService{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "permission_service")),
	}
}

// ListPermissions возвращает все разрешения, отсортированные по имени.
func (s *PermissionService) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	perms, err := sess.Permissions().List(ctx)
	if err != nil {
		return nil, storageError(s.logger, "получение каталога разрешений", err)
	}
	return perms, nil
}

// CheckReady проверяет, что каталог разрешений засеян миграциями:
// все известные разрешения есть в базе и роль Administrator существует.
// Без них проверки прав закрыты для всех, поэтому неполный каталог — degraded.
// Реализует handlers.ReadinessChecker.
func (s *PermissionService) CheckReady(ctx context.Context) (string, string) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("сессия недоступна: %v", err)
	}
	defer sess.Release()

	perms, err := sess.Permissions().List(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("каталог разрешений недоступен: %v", err)
	}
	stored := make(map[string]bool, len(perms))
	for _, p := range perms {
		stored[p.Name] = true
	}
	var missing []string
	for _, name := range rbac.Catalogue() {
		if !stored[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "degraded", "нет разрешений: " + strings.Join(missing, ", ")
	}

	if _, err := sess.Roles().GetByName(ctx, rbac.RoleAdministrator); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "degraded", "нет роли " + rbac.RoleAdministrator
		}
		return "fail", fmt.Sprintf("роль %s недоступна: %v", rbac.RoleAdministrator, err)
	}

	return "ok", fmt.Sprintf("разрешений: %d", len(perms))
}
