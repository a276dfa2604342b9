package model

// Location — площадка (завод, офис).
type Location struct {
	// ID — идентификатор площадки
	ID int
	// Name — название (2..100 символов)
	Name string
	// UserCount — количество пользователей площадки (вычисляемое)
	UserCount int
	// MachineCount — количество машин площадки (вычисляемое)
	MachineCount int
}
