// Пакет model — доменные модели UPortal.
package model

import "time"

// AppUser — локальный пользователь портала.
// Создаётся при первом входе через внешний IdP, никогда не удаляется.
type AppUser struct {
	// ID — внутренний числовой идентификатор
	ID int
	// ObjectID — идентификатор пользователя во внешнем IdP (уникальный)
	ObjectID string
	// Name — отображаемое имя (до 100 символов)
	Name string
	// IsActive — активна ли учётная запись
	IsActive bool
	// IsAdmin — устаревший флаг администратора, заменён ролями
	IsAdmin bool
	// LocationID — мягкая ссылка на площадку, может указывать на несуществующую запись
	LocationID int
	// LocationName — название площадки; пусто, если площадки нет
	LocationName string
	// MachineCount — количество закреплённых машин (вычисляемое)
	MachineCount int
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// AppUserUpdate — изменяемые администратором поля пользователя.
// Name == nil оставляет сохранённое имя.
type AppUserUpdate struct {
	Name       *string
	IsActive   bool
	IsAdmin    bool
	LocationID int
}
