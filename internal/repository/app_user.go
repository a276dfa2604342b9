package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/uportal/internal/domain/model"
)

// AppUserRepository — интерфейс доступа к таблице app_users.
type AppUserRepository interface {
	// List возвращает всех пользователей, отсортированных по имени.
	List(ctx context.Context) ([]*model.AppUser, error)
	// GetByID возвращает пользователя по ID.
	GetByID(ctx context.Context, id int) (*model.AppUser, error)
	// GetByObjectID возвращает пользователя по object id из IdP.
	GetByObjectID(ctx context.Context, objectID string) (*model.AppUser, error)
	// Create создаёт пользователя. Дубликат object id — ErrConflict.
	Create(ctx context.Context, u *model.AppUser) error
	// Update изменяет редактируемые поля пользователя.
	Update(ctx context.Context, id int, upd model.AppUserUpdate) error
}

// appUserRepo — реализация AppUserRepository.
type appUserRepo struct {
	db DBTX
}

// NewAppUserRepository создаёт репозиторий пользователей.
func NewAppUserRepository(db DBTX) AppUserRepository {
	return &appUserRepo{db: db}
}

// Название площадки подтягивается через LEFT JOIN: висячий location_id
// даёт пустую строку, а не ошибку.
const appUserSelect = `
	SELECT u.id, u.object_id, u.name, u.is_active, u.is_admin, u.location_id,
		COALESCE(l.name, ''),
		(SELECT COUNT(*) FROM machines m WHERE m.app_user_id = u.id),
		u.created_at, u.updated_at
	FROM app_users u
	LEFT JOIN locations l ON l.id = u.location_id`

func scanAppUser(row pgx.Row) (*model.AppUser, error) {
	u := &model.AppUser{}
	err := row.Scan(
		&u.ID, &u.ObjectID, &u.Name, &u.IsActive, &u.IsAdmin, &u.LocationID,
		&u.LocationName, &u.MachineCount, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func (r *appUserRepo) List(ctx context.Context) ([]*model.AppUser, error) {
	rows, err := r.db.Query(ctx, appUserSelect+` ORDER BY u.name, u.id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.AppUser
	for rows.Next() {
		u, err := scanAppUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *appUserRepo) GetByID(ctx context.Context, id int) (*model.AppUser, error) {
	u, err := scanAppUser(r.db.QueryRow(ctx, appUserSelect+` WHERE u.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *appUserRepo) GetByObjectID(ctx context.Context, objectID string) (*model.AppUser, error) {
	u, err := scanAppUser(r.db.QueryRow(ctx, appUserSelect+` WHERE u.object_id = $1`, objectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя по object id: %w", err)
	}
	return u, nil
}

func (r *appUserRepo) Create(ctx context.Context, u *model.AppUser) error {
	query := `
		INSERT INTO app_users (object_id, name, is_active, is_admin, location_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at,
			COALESCE((SELECT l.name FROM locations l WHERE l.id = location_id), '')`

	err := r.db.QueryRow(ctx, query,
		u.ObjectID, u.Name, u.IsActive, u.IsAdmin, u.LocationID,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.LocationName)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь с таким object id уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *appUserRepo) Update(ctx context.Context, id int, upd model.AppUserUpdate) error {
	query := `
		UPDATE app_users
		SET name = COALESCE($2, name), is_active = $3, is_admin = $4, location_id = $5, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, upd.Name, upd.IsActive, upd.IsAdmin, upd.LocationID)
	if err != nil {
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
