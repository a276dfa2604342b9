package model

// UnassignedUserName — отображаемое имя для машины без пользователя.
const UnassignedUserName = "Unassigned"

// Machine — физическая машина на площадке.
type Machine struct {
	// ID — идентификатор машины
	ID int
	// Name — название (2..100 символов)
	Name string
	// LocationID — мягкая ссылка на площадку (обязательна, ≥ 1)
	LocationID int
	// LocationName — название площадки; пусто, если площадки нет
	LocationName string
	// AppUserID — закреплённый пользователь (nil — машина свободна)
	AppUserID *int
	// UserName — имя закреплённого пользователя или UnassignedUserName
	UserName string
}
