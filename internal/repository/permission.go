package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/uportal/internal/domain/model"
)

// PermissionRepository — чтение каталога разрешений.
// Каталог заполняется миграциями.
type PermissionRepository interface {
	// List возвращает все разрешения, отсортированные по имени.
	List(ctx context.Context) ([]*model.Permission, error)
	// GetByID возвращает разрешение по ID.
	GetByID(ctx context.Context, id int) (*model.Permission, error)
}

// permissionRepo — реализация PermissionRepository.
type permissionRepo struct {
	db DBTX
}

// NewPermissionRepository создаёт репозиторий разрешений.
func NewPermissionRepository(db DBTX) PermissionRepository {
	return &permissionRepo{db: db}
}

func (r *permissionRepo) List(ctx context.Context) ([]*model.Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка разрешений: %w", err)
	}
	defer rows.Close()

	var result []*model.Permission
	for rows.Next() {
		p := &model.Permission{}
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования разрешения: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *permissionRepo) GetByID(ctx context.Context, id int) (*model.Permission, error) {
	p := &model.Permission{}
	err := r.db.QueryRow(ctx, `SELECT id, name FROM permissions WHERE id = $1`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения разрешения: %w", err)
	}
	return p, nil
}
