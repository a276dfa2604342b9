package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/uportal/internal/domain/model"
)

// LocationRepository — интерфейс CRUD для таблицы locations.
type LocationRepository interface {
	// List возвращает все площадки со счётчиками пользователей и машин.
	List(ctx context.Context) ([]*model.Location, error)
	// GetByID возвращает площадку по ID.
	GetByID(ctx context.Context, id int) (*model.Location, error)
	// FirstID возвращает наименьший ID площадки. Пустая таблица — ErrNotFound.
	FirstID(ctx context.Context) (int, error)
	// Create создаёт площадку и заполняет ID.
	Create(ctx context.Context, l *model.Location) error
	// Update переименовывает площадку.
	Update(ctx context.Context, l *model.Location) error
	// Delete удаляет площадку.
	Delete(ctx context.Context, id int) error
}

// locationRepo — реализация LocationRepository.
type locationRepo struct {
	db DBTX
}

// NewLocationRepository создаёт репозиторий площадок.
func NewLocationRepository(db DBTX) LocationRepository {
	return &locationRepo{db: db}
}

const locationSelect = `
	SELECT l.id, l.name,
		(SELECT COUNT(*) FROM app_users u WHERE u.location_id = l.id),
		(SELECT COUNT(*) FROM machines m WHERE m.location_id = l.id)
	FROM locations l`

func scanLocation(row pgx.Row) (*model.Location, error) {
	l := &model.Location{}
	err := row.Scan(&l.ID, &l.Name, &l.UserCount, &l.MachineCount)
	return l, err
}

func (r *locationRepo) List(ctx context.Context) ([]*model.Location, error) {
	rows, err := r.db.Query(ctx, locationSelect+` ORDER BY l.id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка площадок: %w", err)
	}
	defer rows.Close()

	var result []*model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования площадки: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (r *locationRepo) GetByID(ctx context.Context, id int) (*model.Location, error) {
	l, err := scanLocation(r.db.QueryRow(ctx, locationSelect+` WHERE l.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения площадки: %w", err)
	}
	return l, nil
}

func (r *locationRepo) FirstID(ctx context.Context) (int, error) {
	var id int
	err := r.db.QueryRow(ctx, `SELECT id FROM locations ORDER BY id LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка получения первой площадки: %w", err)
	}
	return id, nil
}

func (r *locationRepo) Create(ctx context.Context, l *model.Location) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO locations (name) VALUES ($1) RETURNING id`, l.Name,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания площадки: %w", err)
	}
	return nil
}

func (r *locationRepo) Update(ctx context.Context, l *model.Location) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET name = $2 WHERE id = $1`, l.ID, l.Name)
	if err != nil {
		return fmt.Errorf("ошибка обновления площадки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *locationRepo) Delete(ctx context.Context, id int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления площадки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
