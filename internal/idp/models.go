// Пакет idp — HTTP-клиент к OpenID Connect провайдеру (Entra ID, Keycloak).
// models.go — документы, публикуемые провайдером.
package idp

// DiscoveryDocument — часть /.well-known/openid-configuration, нужная порталу.
type DiscoveryDocument struct {
	Issuer                string   `json:"issuer"`
	JWKSURI               string   `json:"jwks_uri"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	SigningAlgValues      []string `json:"id_token_signing_alg_values_supported"`
}

// SupportsRS256 проверяет, объявляет ли провайдер подпись RS256.
// Пустой список трактуется как RS256 (значение по умолчанию OIDC).
func (d *DiscoveryDocument) SupportsRS256() bool {
	if len(d.SigningAlgValues) == 0 {
		return true
	}
	for _, alg := range d.SigningAlgValues {
		if alg == "RS256" {
			return true
		}
	}
	return false
}
