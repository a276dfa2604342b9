// dephealth.go — мониторинг зависимостей UPortal через topologymetrics SDK.
//
// Зависимости:
//   - postgresql — SQL checker через существующий pgxpool (pool mode, critical)
//   - idp-jwks — набор ключей подписи токенов (critical). Проверяется тем же
//     клиентом, что и readiness: с CA из UP_OIDC_CA_CERT_PATH и требованием
//     хотя бы одного ключа. Пустой JWKS для UPortal равен недоступному IdP.
//
// Метрики app_dependency_* отдаются на /metrics вместе с остальными.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// KeySource — источник ключей подписи (idp.Client).
type KeySource interface {
	JWKSURL() string
	CountKeys(ctx context.Context) (int, error)
}

// jwksChecker проверяет IdP для topologymetrics.
type jwksChecker struct {
	keys KeySource
}

// Check реализует dephealth.HealthChecker.
func (c jwksChecker) Check(ctx context.Context, _ dephealth.Endpoint) error {
	_, err := c.keys.CountKeys(ctx)
	return err
}

// Type реализует dephealth.HealthChecker.
func (jwksChecker) Type() string { return string(dephealth.TypeHTTP) }

// DephealthConfig — параметры мониторинга.
type DephealthConfig struct {
	// Group — имя группы в метриках (UP_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB поверх pgxpool (stdlib.OpenDBFromPool)
	DB *sql.DB
	// DatabaseURL — URL PostgreSQL для лейблов, не для подключения
	DatabaseURL string
	// Keys — источник JWKS
	Keys KeySource
	// Interval — интервал проверок (UP_DEPHEALTH_CHECK_INTERVAL)
	Interval time.Duration
	// Registerer — registry метрик; nil — глобальный
	Registerer prometheus.Registerer
}

// DephealthService — фоновые проверки зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт мониторинг зависимостей вершины serviceID.
func NewDephealthService(serviceID string, cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.DatabaseURL),
			dephealth.CheckInterval(cfg.Interval),
			dephealth.Critical(true),
		),
		dephealth.AddDependency("idp-jwks", dephealth.TypeHTTP,
			jwksChecker{keys: cfg.Keys},
			dephealth.FromURL(cfg.Keys.JWKSURL()),
			dephealth.CheckInterval(cfg.Interval),
			dephealth.Critical(true),
		),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(serviceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодические проверки.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (postgresql, idp-jwks)")
	return ds.dh.Start(ctx)
}

// Stop останавливает проверки.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}
