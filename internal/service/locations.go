// locations.go — CRUD площадок.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/repository"
)

// Ограничения длины названий площадок и машин (символов).
const (
	minEntityNameLength = 2
	maxEntityNameLength = 100
)

// LocationService — сервис площадок.
type LocationService struct {
	sessions repository.SessionFactory
	logger   *slog.Logger
}

// NewLocationService создаёт сервис площадок.
func NewLocationService(sessions repository.SessionFactory, logger *slog.Logger) *LocationService {
	return &LocationService{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "location_service")),
	}
}

// ListLocations возвращает все площадки со счётчиками пользователей и машин.
func (s *LocationService) ListLocations(ctx context.Context) ([]*model.Location, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	locations, err := sess.Locations().List(ctx)
	if err != nil {
		return nil, storageError(s.logger, "получение списка площадок", err)
	}
	return locations, nil
}

// GetLocation возвращает площадку или nil, если её нет.
func (s *LocationService) GetLocation(ctx context.Context, id int) (*model.Location, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	loc, err := sess.Locations().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(s.logger, "получение площадки", err)
	}
	return loc, nil
}

// CreateLocation создаёт площадку.
func (s *LocationService) CreateLocation(ctx context.Context, name string) (*model.Location, error) {
	name, err := validateEntityName("название площадки", name)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	loc := &model.Location{Name: name}
	if err := sess.Locations().Create(ctx, loc); err != nil {
		return nil, storageError(s.logger, "создание площадки", err)
	}

	s.logger.Info("Площадка создана", slog.Int("location_id", loc.ID), slog.String("name", loc.Name))
	return loc, nil
}

// UpdateLocation переименовывает площадку. false — площадки нет.
func (s *LocationService) UpdateLocation(ctx context.Context, id int, name string) (bool, error) {
	name, err := validateEntityName("название площадки", name)
	if err != nil {
		return false, err
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if err := sess.Locations().Update(ctx, &model.Location{ID: id, Name: name}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, storageError(s.logger, "обновление площадки", err)
	}
	return true, nil
}

// DeleteLocation удаляет площадку. false — площадки нет.
// Пользователи и машины удалённой площадки остаются с висячей ссылкой.
func (s *LocationService) DeleteLocation(ctx context.Context, id int) (bool, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if err := sess.Locations().Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, storageError(s.logger, "удаление площадки", err)
	}

	s.logger.Info("Площадка удалена", slog.Int("location_id", id))
	return true, nil
}

// validateEntityName обрезает пробелы и проверяет длину названия.
func validateEntityName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < minEntityNameLength || n > maxEntityNameLength {
		return "", validationError("%s: длина должна быть от %d до %d символов",
			field, minEntityNameLength, maxEntityNameLength)
	}
	return name, nil
}
