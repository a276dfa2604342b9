package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/uportal/internal/domain/model"
)

// MachineRepository — интерфейс CRUD для таблицы machines.
type MachineRepository interface {
	// List возвращает все машины с названием площадки и именем пользователя.
	List(ctx context.Context) ([]*model.Machine, error)
	// GetByID возвращает машину по ID.
	GetByID(ctx context.Context, id int) (*model.Machine, error)
	// Create создаёт машину. Несуществующий пользователь — ErrInvalidReference.
	Create(ctx context.Context, m *model.Machine) error
	// Update изменяет машину.
	Update(ctx context.Context, m *model.Machine) error
	// Delete удаляет машину.
	Delete(ctx context.Context, id int) error
}

// machineRepo — реализация MachineRepository.
type machineRepo struct {
	db DBTX
}

// NewMachineRepository создаёт репозиторий машин.
func NewMachineRepository(db DBTX) MachineRepository {
	return &machineRepo{db: db}
}

const machineSelect = `
	SELECT m.id, m.name, m.location_id, COALESCE(l.name, ''), m.app_user_id, u.name
	FROM machines m
	LEFT JOIN locations l ON l.id = m.location_id
	LEFT JOIN app_users u ON u.id = m.app_user_id`

func scanMachine(row pgx.Row) (*model.Machine, error) {
	m := &model.Machine{}
	var userName *string
	if err := row.Scan(&m.ID, &m.Name, &m.LocationID, &m.LocationName, &m.AppUserID, &userName); err != nil {
		return nil, err
	}
	m.UserName = model.UnassignedUserName
	if userName != nil {
		m.UserName = *userName
	}
	return m, nil
}

func (r *machineRepo) List(ctx context.Context) ([]*model.Machine, error) {
	rows, err := r.db.Query(ctx, machineSelect+` ORDER BY m.id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка машин: %w", err)
	}
	defer rows.Close()

	var result []*model.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования машины: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *machineRepo) GetByID(ctx context.Context, id int) (*model.Machine, error) {
	m, err := scanMachine(r.db.QueryRow(ctx, machineSelect+` WHERE m.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения машины: %w", err)
	}
	return m, nil
}

func (r *machineRepo) Create(ctx context.Context, m *model.Machine) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO machines (name, location_id, app_user_id) VALUES ($1, $2, $3) RETURNING id`,
		m.Name, m.LocationID, m.AppUserID,
	).Scan(&m.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: пользователь %d не существует", ErrInvalidReference, derefInt(m.AppUserID))
		}
		return fmt.Errorf("ошибка создания машины: %w", err)
	}
	return nil
}

func (r *machineRepo) Update(ctx context.Context, m *model.Machine) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE machines SET name = $2, location_id = $3, app_user_id = $4 WHERE id = $1`,
		m.ID, m.Name, m.LocationID, m.AppUserID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: пользователь %d не существует", ErrInvalidReference, derefInt(m.AppUserID))
		}
		return fmt.Errorf("ошибка обновления машины: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *machineRepo) Delete(ctx context.Context, id int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM machines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления машины: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
