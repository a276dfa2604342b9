// Точка входа UPortal — администрирование пользователей, площадок, машин,
// внешних приложений и ролей.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт сервисный слой, JWT middleware и API handlers,
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/uportal/internal/api/handlers"
	"github.com/bigkaa/uportal/internal/api/middleware"
	"github.com/bigkaa/uportal/internal/api/openapi"
	"github.com/bigkaa/uportal/internal/config"
	"github.com/bigkaa/uportal/internal/database"
	"github.com/bigkaa/uportal/internal/idp"
	"github.com/bigkaa/uportal/internal/repository"
	"github.com/bigkaa/uportal/internal/server"
	"github.com/bigkaa/uportal/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("UPortal запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("UP_DEPHEALTH_GROUP") == "" {
		logger.Warn("UP_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД (схема, каталог разрешений, справочные данные)
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент IdP: discovery и readiness JWKS
	idpHTTPClient, err := idp.NewHTTPClient(cfg.OIDCCACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка загрузки CA-сертификата", slog.String("error", err.Error()))
		os.Exit(1)
	}
	idpClient := idp.New(cfg.OIDCIssuer, cfg.OIDCJWKSURL, idpHTTPClient, logger)

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.JWKSClientTimeout)
	if err := idpClient.VerifyConfiguration(verifyCtx); err != nil {
		// IdP может быть ещё недоступен: JWKS догрузится фоновым обновлением
		logger.Warn("Не удалось проверить конфигурацию IdP",
			slog.String("issuer", cfg.OIDCIssuer),
			slog.String("error", err.Error()),
		)
	}
	cancel()

	// 6. Services
	sessions := repository.NewSessionFactory(pool)
	svc := handlers.Services{
		Users:        service.NewUserService(sessions, logger),
		Authz:        service.NewAuthorizationService(sessions, logger),
		Locations:    service.NewLocationService(sessions, logger),
		Machines:     service.NewMachineService(sessions, logger),
		Applications: service.NewExternalApplicationService(sessions, logger),
		Roles:        service.NewRoleService(sessions, logger),
		Permissions:  service.NewPermissionService(sessions, logger),
	}

	// 7. Readiness checkers (схема PostgreSQL, JWKS IdP, каталог разрешений) и API handler
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), idpClient, svc.Permissions)
	apiHandler := handlers.NewAPIHandler(healthHandler, svc, logger)

	// 8. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.OIDCJWKSURL,
		cfg.OIDCCACertPath,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		svc.Users,
		middleware.AuthOptions{
			Issuer:          cfg.OIDCIssuer,
			Audience:        cfg.OIDCAudience,
			Leeway:          cfg.JWTLeeway,
			CacheSize:       cfg.IdentityCacheSize,
			CacheTTL:        cfg.IdentityCacheTTL,
			BootstrapAdmins: cfg.BootstrapAdmins,
		},
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.OIDCJWKSURL),
		slog.String("issuer", cfg.OIDCIssuer),
		slog.Int("bootstrap_admins", len(cfg.BootstrapAdmins)),
	)

	// 9. OpenAPI документ (валидация запросов и /api/v1/openapi.json)
	doc, err := openapi.Load()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI документа", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL + IdP)
	dephealthSvc, dephealthErr := service.NewDephealthService("uportal", service.DephealthConfig{
		Group:       cfg.DephealthGroup,
		DB:          pgDB,
		DatabaseURL: cfg.DatabaseURL(),
		Keys:        idpClient,
		Interval:    cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. Создание и запуск HTTP-сервера
	srv, err := server.New(cfg, logger, apiHandler, doc, jwtAuth, svc.Authz)
	if err != nil {
		logger.Error("Ошибка создания HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
	runErr := srv.Run()

	// 12. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	logger.Info("UPortal остановлен")
}
