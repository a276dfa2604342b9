// Пакет identity — внешняя идентичность пользователя из claims токена IdP.
package identity

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Имена claims, из которых извлекается идентификатор пользователя.
const (
	// ClaimObjectID — короткая форма object id (Azure AD / Entra ID v2).
	ClaimObjectID = "oid"
	// ClaimObjectIDLong — длинная форма object id (WS-Federation, токены v1).
	ClaimObjectIDLong = "http://schemas.microsoft.com/identity/claims/objectidentifier"
	// ClaimName — отображаемое имя.
	ClaimName = "name"
)

// Identity — аутентифицированная внешняя идентичность после входа через IdP.
type Identity struct {
	// ObjectID — неизменяемый идентификатор пользователя в IdP
	ObjectID string
	// Name — отображаемое имя (может быть пустым)
	Name string
}

// Claims — claims bearer-токена, используемые для идентификации.
// Совместим с jwt.ParseWithClaims.
type Claims struct {
	jwt.RegisteredClaims
	ObjectID     string `json:"oid,omitempty"`
	ObjectIDLong string `json:"http://schemas.microsoft.com/identity/claims/objectidentifier,omitempty"`
	Name         string `json:"name,omitempty"`
}

// Identity формирует Identity из claims.
// Object id берётся из oid, затем из длинной формы, затем из sub.
// Пустой ObjectID означает, что идентифицировать пользователя нельзя.
func (c *Claims) Identity() *Identity {
	oid := firstNonEmpty(c.ObjectID, c.ObjectIDLong, c.Subject)
	return &Identity{
		ObjectID: oid,
		Name:     strings.TrimSpace(c.Name),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
