// Пакет service — бизнес-логика UPortal.
// users.go — сверка внешней идентичности и администрирование пользователей.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/identity"
	"github.com/bigkaa/uportal/internal/repository"
)

const (
	// UnknownUserName — имя нового пользователя, если IdP не передал name.
	UnknownUserName = "Unknown User"
	// maxUserNameLength — максимальная длина имени пользователя (символов).
	maxUserNameLength = 100
	// placeholderLocationID — площадка нового пользователя при пустой таблице locations.
	// Мягкая ссылка: существование не проверяется.
	placeholderLocationID = 1
)

// UserService — сервис пользователей портала.
type UserService struct {
	sessions repository.SessionFactory
	logger   *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(sessions repository.SessionFactory, logger *slog.Logger) *UserService {
	return &UserService{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// Reconcile находит локального пользователя по object id внешней идентичности
// или создаёт его при первом входе.
//
// Существующий пользователь возвращается без изменений: имя, флаги и площадка
// не обновляются из IdP. За вызов выполняется не более одной вставки.
// Проигравшая конкурентная вставка возвращает ErrStorage + ErrConflict.
func (s *UserService) Reconcile(ctx context.Context, id *identity.Identity) (*model.AppUser, error) {
	if id == nil {
		reconcileTotal.WithLabelValues(reconcileInvalid).Inc()
		return nil, validationError("идентичность не передана")
	}
	if strings.TrimSpace(id.ObjectID) == "" {
		reconcileTotal.WithLabelValues(reconcileInvalid).Inc()
		return nil, validationError("отсутствует object id идентичности")
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		reconcileTotal.WithLabelValues(reconcileError).Inc()
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	existing, err := sess.Users().GetByObjectID(ctx, id.ObjectID)
	switch {
	case err == nil:
		reconcileTotal.WithLabelValues(reconcileExisting).Inc()
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		reconcileTotal.WithLabelValues(reconcileError).Inc()
		return nil, storageError(s.logger, "поиск пользователя по object id", err)
	}

	locationID, err := sess.Locations().FirstID(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		locationID = placeholderLocationID
	} else if err != nil {
		reconcileTotal.WithLabelValues(reconcileError).Inc()
		return nil, storageError(s.logger, "выбор площадки по умолчанию", err)
	}

	user := &model.AppUser{
		ObjectID:   id.ObjectID,
		Name:       newUserName(id.Name),
		IsActive:   true,
		IsAdmin:    false,
		LocationID: locationID,
	}
	if err := sess.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			reconcileTotal.WithLabelValues(reconcileConflict).Inc()
		} else {
			reconcileTotal.WithLabelValues(reconcileError).Inc()
		}
		return nil, storageError(s.logger, "создание пользователя", err)
	}

	reconcileTotal.WithLabelValues(reconcileCreated).Inc()
	s.logger.Info("Создан пользователь при первом входе",
		slog.Int("user_id", user.ID),
		slog.String("object_id", user.ObjectID),
		slog.Int("location_id", user.LocationID),
	)
	return user, nil
}

// newUserName возвращает имя нового пользователя, усечённое до допустимой длины.
func newUserName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return UnknownUserName
	}
	return truncateRunes(name, maxUserNameLength)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ListUsers возвращает всех пользователей, отсортированных по имени.
func (s *UserService) ListUsers(ctx context.Context) ([]*model.AppUser, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	users, err := sess.Users().List(ctx)
	if err != nil {
		return nil, storageError(s.logger, "получение списка пользователей", err)
	}
	return users, nil
}

// GetUser возвращает пользователя по ID или nil, если его нет.
func (s *UserService) GetUser(ctx context.Context, id int) (*model.AppUser, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	user, err := sess.Users().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(s.logger, "получение пользователя", err)
	}
	return user, nil
}

// GetUserByObjectID возвращает пользователя по object id или nil, если его нет.
func (s *UserService) GetUserByObjectID(ctx context.Context, objectID string) (*model.AppUser, error) {
	if objectID == "" {
		return nil, validationError("object id не задан")
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	user, err := sess.Users().GetByObjectID(ctx, objectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(s.logger, "получение пользователя по object id", err)
	}
	return user, nil
}

// UpdateUser изменяет пользователя и возвращает обновлённую запись.
// В отличие от остальных CRUD-сервисов, отсутствие пользователя — ErrNotFound, а не false.
func (s *UserService) UpdateUser(ctx context.Context, id int, upd model.AppUserUpdate) (*model.AppUser, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, validationError("имя пользователя не может быть пустым")
		}
		if utf8.RuneCountInString(name) > maxUserNameLength {
			return nil, validationError("имя пользователя длиннее %d символов", maxUserNameLength)
		}
		upd.Name = &name
	}
	// Площадка — мягкая ссылка: существование не проверяется
	if upd.LocationID < 0 {
		return nil, validationError("location_id не может быть отрицательным")
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if err := sess.Users().Update(ctx, id, upd); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError(s.logger, "обновление пользователя", err)
	}

	user, err := sess.Users().GetByID(ctx, id)
	if err != nil {
		return nil, storageError(s.logger, "получение пользователя", err)
	}

	s.logger.Info("Пользователь обновлён",
		slog.Int("user_id", id),
		slog.Bool("is_active", upd.IsActive),
		slog.Int("location_id", upd.LocationID),
	)
	return user, nil
}

// AssignRole назначает роль пользователю. Повторное назначение — no-op.
// Возвращает true, если назначение создано этим вызовом.
func (s *UserService) AssignRole(ctx context.Context, userID, roleID int) (bool, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if err := s.requireUser(ctx, sess, userID); err != nil {
		return false, err
	}
	if _, err := sess.Roles().GetByID(ctx, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, storageError(s.logger, "получение роли", err)
	}

	return s.assign(ctx, sess, userID, roleID)
}

// AssignRoleByName назначает роль по имени. Используется для bootstrap-администраторов.
func (s *UserService) AssignRoleByName(ctx context.Context, userID int, roleName string) (bool, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if err := s.requireUser(ctx, sess, userID); err != nil {
		return false, err
	}
	role, err := sess.Roles().GetByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, storageError(s.logger, "получение роли по имени", err)
	}

	return s.assign(ctx, sess, userID, role.ID)
}

func (s *UserService) assign(ctx context.Context, sess repository.Session, userID, roleID int) (bool, error) {
	added, err := sess.Roles().AssignToUser(ctx, userID, roleID)
	if err != nil {
		return false, storageError(s.logger, "назначение роли", err)
	}
	if added {
		s.logger.Info("Роль назначена пользователю",
			slog.Int("user_id", userID),
			slog.Int("role_id", roleID),
		)
	}
	return added, nil
}

// RemoveRole снимает роль с пользователя. Отсутствие назначения — ErrNotFound.
func (s *UserService) RemoveRole(ctx context.Context, userID, roleID int) error {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if err := sess.Roles().RemoveFromUser(ctx, userID, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storageError(s.logger, "снятие роли", err)
	}

	s.logger.Info("Роль снята с пользователя",
		slog.Int("user_id", userID),
		slog.Int("role_id", roleID),
	)
	return nil
}

// requireUser возвращает ErrNotFound, если пользователя нет.
func (s *UserService) requireUser(ctx context.Context, sess repository.Session, userID int) error {
	if _, err := sess.Users().GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storageError(s.logger, "получение пользователя", err)
	}
	return nil
}
