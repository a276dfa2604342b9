// authorization.go — вычисление решений авторизации:
// пользователь → роли → объединение разрешений.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/domain/rbac"
	"github.com/bigkaa/uportal/internal/repository"
)

// AuthorizationService — проверки разрешений и ролей. Только чтение.
//
// Проверки HasPermission/HasRole для несуществующего пользователя возвращают
// false без ошибки (fail closed), а RolesFor и PermissionsFor — ErrNotFound.
type AuthorizationService struct {
	sessions repository.SessionFactory
	logger   *slog.Logger
}

// NewAuthorizationService создаёт сервис авторизации.
func NewAuthorizationService(sessions repository.SessionFactory, logger *slog.Logger) *AuthorizationService {
	return &AuthorizationService{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "authorization_service")),
	}
}

// HasPermission проверяет, даёт ли хотя бы одна роль пользователя разрешение name.
func (s *AuthorizationService) HasPermission(ctx context.Context, userID int, name string) (bool, error) {
	roles, err := s.rolesOf(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		authzChecksTotal.WithLabelValues("permission", authzDenied).Inc()
		return false, nil
	}
	if err != nil {
		authzChecksTotal.WithLabelValues("permission", authzError).Inc()
		return false, err
	}

	allowed := rbac.HasPermission(roles, name)
	authzChecksTotal.WithLabelValues("permission", decision(allowed)).Inc()
	return allowed, nil
}

// HasRole проверяет наличие у пользователя роли с именем name.
func (s *AuthorizationService) HasRole(ctx context.Context, userID int, name string) (bool, error) {
	roles, err := s.rolesOf(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		authzChecksTotal.WithLabelValues("role", authzDenied).Inc()
		return false, nil
	}
	if err != nil {
		authzChecksTotal.WithLabelValues("role", authzError).Inc()
		return false, err
	}

	has := rbac.HasRole(roles, name)
	authzChecksTotal.WithLabelValues("role", decision(has)).Inc()
	return has, nil
}

// RolesFor возвращает роли пользователя с разрешениями.
// Несуществующий пользователь — ErrNotFound.
func (s *AuthorizationService) RolesFor(ctx context.Context, userID int) ([]*model.Role, error) {
	return s.rolesOf(ctx, userID)
}

// PermissionsFor возвращает отсортированные имена всех разрешений пользователя.
// Несуществующий пользователь — ErrNotFound.
func (s *AuthorizationService) PermissionsFor(ctx context.Context, userID int) ([]string, error) {
	roles, err := s.rolesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	return rbac.PermissionNames(roles), nil
}

// rolesOf загружает роли пользователя в одной сессии.
func (s *AuthorizationService) rolesOf(ctx context.Context, userID int) ([]*model.Role, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if _, err := sess.Users().GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError(s.logger, "получение пользователя", err)
	}

	roles, err := sess.Roles().ListForUser(ctx, userID)
	if err != nil {
		return nil, storageError(s.logger, "получение ролей пользователя", err)
	}
	return roles, nil
}

func decision(ok bool) string {
	if ok {
		return authzAllowed
	}
	return authzDenied
}
