package model

// Role — именованный набор разрешений. Иерархии ролей нет.
type Role struct {
	// ID — идентификатор роли
	ID int
	// Name — уникальное имя (до 50 символов)
	Name string
	// Permissions — разрешения роли, отсортированы по имени
	Permissions []Permission
}

// PermissionNames возвращает имена разрешений роли.
func (r *Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// Permission — право из плоского пространства имён (например, ManageUsers).
type Permission struct {
	ID   int
	Name string
}
