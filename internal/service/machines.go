// machines.go — CRUD машин.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/repository"
)

// MachineInput — данные для создания и изменения машины.
type MachineInput struct {
	Name       string
	LocationID int
	// AppUserID — закреплённый пользователь, nil — машина свободна
	AppUserID *int
}

func (in *MachineInput) validate() error {
	name, err := validateEntityName("название машины", in.Name)
	if err != nil {
		return err
	}
	in.Name = name
	if in.LocationID < 1 {
		return validationError("location_id должен быть не меньше 1")
	}
	if in.AppUserID != nil && *in.AppUserID < 1 {
		return validationError("app_user_id должен быть не меньше 1")
	}
	return nil
}

// MachineService — сервис машин.
type MachineService struct {
	sessions repository.SessionFactory
	logger   *slog.Logger
}

// NewMachineService создаёт сервис машин.
func NewMachineService(sessions repository.SessionFactory, logger *slog.Logger) *MachineService {
	return &MachineService{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "machine_service")),
	}
}

// ListMachines возвращает все машины с названием площадки и именем пользователя.
func (s *MachineService) ListMachines(ctx context.Context) ([]*model.Machine, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	machines, err := sess.Machines().List(ctx)
	if err != nil {
		return nil, storageError(s.logger, "получение списка машин", err)
	}
	return machines, nil
}

// GetMachine возвращает машину или nil, если её нет.
func (s *MachineService) GetMachine(ctx context.Context, id int) (*model.Machine, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	m, err := sess.Machines().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(s.logger, "получение машины", err)
	}
	return m, nil
}

// CreateMachine создаёт машину и возвращает её с вычисляемыми полями.
func (s *MachineService) CreateMachine(ctx context.Context, in MachineInput) (*model.Machine, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	m := &model.Machine{Name: in.Name, LocationID: in.LocationID, AppUserID: in.AppUserID}
	if err := sess.Machines().Create(ctx, m); err != nil {
		return nil, storageError(s.logger, "создание машины", err)
	}

	// Перечитываем, чтобы получить название площадки и имя пользователя
	created, err := sess.Machines().GetByID(ctx, m.ID)
	if err != nil {
		return nil, storageError(s.logger, "получение машины", err)
	}

	s.logger.Info("Машина создана", slog.Int("machine_id", created.ID), slog.String("name", created.Name))
	return created, nil
}

// UpdateMachine изменяет машину. false — машины нет.
func (s *MachineService) UpdateMachine(ctx context.Context, id int, in MachineInput) (bool, error) {
	if err := in.validate(); err != nil {
		return false, err
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	m := &model.Machine{ID: id, Name: in.Name, LocationID: in.LocationID, AppUserID: in.AppUserID}
	if err := sess.Machines().Update(ctx, m); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, storageError(s.logger, "обновление машины", err)
	}
	return true, nil
}

// DeleteMachine удаляет машину. false — машины нет.
func (s *MachineService) DeleteMachine(ctx context.Context, id int) (bool, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return false, storageError(s.logger, "открытие сессии", err)
	}
	defer sess.Release()

	if err := sess.Machines().Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, storageError(s.logger, "удаление машины", err)
	}

	s.logger.Info("Машина удалена", slog.Int("machine_id", id))
	return true, nil
}
