package model

// ExternalApplication — ярлык внешнего приложения на стартовой странице.
// Связей с другими сущностями нет.
type ExternalApplication struct {
	ID       int
	AppName  string
	AppURL   string
	IconName string
}
