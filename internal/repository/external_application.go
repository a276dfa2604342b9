package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/uportal/internal/domain/model"
)

// ExternalApplicationRepository — интерфейс CRUD для таблицы external_applications.
type ExternalApplicationRepository interface {
	// List возвращает все приложения, отсортированные по имени.
	List(ctx context.Context) ([]*model.ExternalApplication, error)
	GetByID(ctx context.Context, id int) (*model.ExternalApplication, error)
	Create(ctx context.Context, a *model.ExternalApplication) error
	Update(ctx context.Context, a *model.ExternalApplication) error
	Delete(ctx context.Context, id int) error
}

// externalAppRepo — реализация ExternalApplicationRepository.
type externalAppRepo struct {
	db DBTX
}

// NewExternalApplicationRepository создаёт репозиторий внешних приложений.
func NewExternalApplicationRepository(db DBTX) ExternalApplicationRepository {
	return &externalAppRepo{db: db}
}

const externalAppColumns = `id, app_name, app_url, icon_name`

func (r *externalAppRepo) List(ctx context.Context) ([]*model.ExternalApplication, error) {
	query := fmt.Sprintf(`SELECT %s FROM external_applications ORDER BY app_name, id`, externalAppColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка приложений: %w", err)
	}
	defer rows.Close()

	var result []*model.ExternalApplication
	for rows.Next() {
		a := &model.ExternalApplication{}
		if err := rows.Scan(&a.ID, &a.AppName, &a.AppURL, &a.IconName); err != nil {
			return nil, fmt.Errorf("ошибка сканирования приложения: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *externalAppRepo) GetByID(ctx context.Context, id int) (*model.ExternalApplication, error) {
	query := fmt.Sprintf(`SELECT %s FROM external_applications WHERE id = $1`, externalAppColumns)

	a := &model.ExternalApplication{}
	err := r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.AppName, &a.AppURL, &a.IconName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения приложения: %w", err)
	}
	return a, nil
}

func (r *externalAppRepo) Create(ctx context.Context, a *model.ExternalApplication) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO external_applications (app_name, app_url, icon_name) VALUES ($1, $2, $3) RETURNING id`,
		a.AppName, a.AppURL, a.IconName,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания приложения: %w", err)
	}
	return nil
}

func (r *externalAppRepo) Update(ctx context.Context, a *model.ExternalApplication) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE external_applications SET app_name = $2, app_url = $3, icon_name = $4 WHERE id = $1`,
		a.ID, a.AppName, a.AppURL, a.IconName,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления приложения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *externalAppRepo) Delete(ctx context.Context, id int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM external_applications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления приложения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
