// client.go — HTTP-клиент к OIDC провайдеру.
// Получает discovery-документ и набор ключей JWKS, проверяет готовность IdP
// для /health/ready.
package idp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
)

// discoveryPath — путь discovery-документа относительно issuer.
const discoveryPath = "/.well-known/openid-configuration"

// ErrNoKeys — JWKS провайдера пуст.
var ErrNoKeys = errors.New("JWKS не содержит ключей")

// Client — HTTP-клиент к OIDC провайдеру.
type Client struct {
	issuer  string // issuer без trailing slash
	jwksURL string // JWKS endpoint

	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент к OIDC провайдеру.
// issuer — например, https://login.microsoftonline.com/<tenant>/v2.0.
// httpClient может содержать TLS конфигурацию (см. NewHTTPClient).
func New(issuer, jwksURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		issuer:     strings.TrimRight(issuer, "/"),
		jwksURL:    jwksURL,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "idp_client")),
	}
}

// NewHTTPClient создаёт HTTP-клиент с таймаутом и, если caCertPath задан,
// с дополнительным CA-сертификатом в пуле доверия.
func NewHTTPClient(caCertPath string, timeout time.Duration) (*http.Client, error) {
	if caCertPath == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата %s: %w", caCertPath, err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("CA-сертификат %s не содержит PEM-блоков", caCertPath)
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// Discovery загружает discovery-документ провайдера.
func (c *Client) Discovery(ctx context.Context) (*DiscoveryDocument, error) {
	var doc DiscoveryDocument
	if err := c.getJSON(ctx, c.issuer+discoveryPath, &doc); err != nil {
		return nil, fmt.Errorf("Discovery: %w", err)
	}
	if doc.Issuer != "" && strings.TrimRight(doc.Issuer, "/") != c.issuer {
		return nil, fmt.Errorf("Discovery: issuer %q не совпадает с настроенным %q", doc.Issuer, c.issuer)
	}
	return &doc, nil
}

// KeySet загружает JWKS провайдера.
func (c *Client) KeySet(ctx context.Context) (*jwkset.JWKSMarshal, error) {
	var set jwkset.JWKSMarshal
	if err := c.getJSON(ctx, c.jwksURL, &set); err != nil {
		return nil, fmt.Errorf("KeySet: %w", err)
	}
	return &set, nil
}

// VerifyConfiguration сверяет настройки портала с discovery-документом.
// Расхождения логируются предупреждением: IdP может публиковать ключи
// по нескольким адресам, и запуск не блокируется.
func (c *Client) VerifyConfiguration(ctx context.Context) error {
	doc, err := c.Discovery(ctx)
	if err != nil {
		return err
	}
	if doc.JWKSURI != "" && doc.JWKSURI != c.jwksURL {
		c.logger.Warn("JWKS URL отличается от объявленного провайдером",
			slog.String("configured", c.jwksURL),
			slog.String("discovered", doc.JWKSURI),
		)
	}
	if !doc.SupportsRS256() {
		c.logger.Warn("Провайдер не объявляет подпись RS256",
			slog.Any("algorithms", doc.SigningAlgValues),
		)
	}
	return nil
}

// --- HTTP helpers ---

// getJSON выполняет GET и декодирует JSON ответ в target.
func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("IdP вернул статус %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("декодирование ответа IdP: %w", err)
	}
	return nil
}

// JWKSURL возвращает адрес набора ключей подписи.
func (c *Client) JWKSURL() string {
	return c.jwksURL
}

// CountKeys загружает JWKS и возвращает число ключей.
// Пустой набор — ErrNoKeys: ни один токен не пройдёт проверку подписи.
func (c *Client) CountKeys(ctx context.Context) (int, error) {
	set, err := c.KeySet(ctx)
	if err != nil {
		return 0, err
	}
	if len(set.Keys) == 0 {
		return 0, ErrNoKeys
	}
	return len(set.Keys), nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность JWKS провайдера.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady(ctx context.Context) (string, string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := c.CountKeys(ctx)
	switch {
	case errors.Is(err, ErrNoKeys):
		return "degraded", "JWKS не содержит ключей"
	case err != nil:
		return "fail", fmt.Sprintf("IdP недоступен: %v", err)
	}
	return "ok", fmt.Sprintf("JWKS доступен (%d ключей)", n)
}
