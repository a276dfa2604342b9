// Пакет server — HTTP-сервер UPortal с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/uportal/internal/api/handlers"
	"github.com/bigkaa/uportal/internal/api/middleware"
	"github.com/bigkaa/uportal/internal/api/openapi"
	"github.com/bigkaa/uportal/internal/config"
	"github.com/bigkaa/uportal/internal/domain/rbac"
)

// Server — HTTP-сервер UPortal.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	doc *openapi3.T,
	jwtAuth *middleware.JWTAuth,
	authz middleware.PermissionChecker,
) (*Server, error) {
	router, err := NewRouter(logger, handler, doc, jwtAuth, authz)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}, nil
}

// NewRouter собирает маршруты API.
// Health, metrics и OpenAPI документ публичные: их опрашивают Kubernetes
// и Prometheus напрямую. Остальное требует bearer-токен и разрешение.
func NewRouter(
	logger *slog.Logger,
	h *handlers.APIHandler,
	doc *openapi3.T,
	jwtAuth *middleware.JWTAuth,
	authz middleware.PermissionChecker,
) (http.Handler, error) {
	validate, err := middleware.RequestValidator(doc, logger)
	if err != nil {
		return nil, err
	}
	specHandler, err := openapi.Handler(doc)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)
	router.Method(http.MethodGet, "/api/v1/openapi.json", specHandler)

	perm := func(name string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(authz, name)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(jwtAuth.Middleware())
		r.Use(validate)

		r.Get("/me", h.GetCurrentUser)
		r.Get("/me/permissions", h.GetCurrentUserPermissions)

		r.With(perm(rbac.PermViewUsers)).Get("/users", h.ListUsers)
		r.With(perm(rbac.PermViewUsers)).Get("/users/{id}", h.GetUser)
		r.With(perm(rbac.PermEditUsers)).Put("/users/{id}", h.UpdateUser)
		r.With(perm(rbac.PermViewRoles)).Get("/users/{id}/roles", h.ListUserRoles)
		r.With(perm(rbac.PermAssignRoles)).Put("/users/{id}/roles/{roleId}", h.AssignUserRole)
		r.With(perm(rbac.PermAssignRoles)).Delete("/users/{id}/roles/{roleId}", h.RemoveUserRole)

		r.With(perm(rbac.PermViewLocations)).Get("/locations", h.ListLocations)
		r.With(perm(rbac.PermViewLocations)).Get("/locations/{id}", h.GetLocation)
		r.With(perm(rbac.PermManageLocations)).Post("/locations", h.CreateLocation)
		r.With(perm(rbac.PermManageLocations)).Put("/locations/{id}", h.UpdateLocation)
		r.With(perm(rbac.PermManageLocations)).Delete("/locations/{id}", h.DeleteLocation)

		r.With(perm(rbac.PermViewMachines)).Get("/machines", h.ListMachines)
		r.With(perm(rbac.PermViewMachines)).Get("/machines/{id}", h.GetMachine)
		r.With(perm(rbac.PermManageMachines)).Post("/machines", h.CreateMachine)
		r.With(perm(rbac.PermManageMachines)).Put("/machines/{id}", h.UpdateMachine)
		r.With(perm(rbac.PermManageMachines)).Delete("/machines/{id}", h.DeleteMachine)

		r.With(perm(rbac.PermViewExternalApplications)).Get("/external-applications", h.ListExternalApplications)
		r.With(perm(rbac.PermViewExternalApplications)).Get("/external-applications/{id}", h.GetExternalApplication)
		r.With(perm(rbac.PermManageExternalApplications)).Post("/external-applications", h.CreateExternalApplication)
		r.With(perm(rbac.PermManageExternalApplications)).Put("/external-applications/{id}", h.UpdateExternalApplication)
		r.With(perm(rbac.PermManageExternalApplications)).Delete("/external-applications/{id}", h.DeleteExternalApplication)

		r.With(perm(rbac.PermViewRoles)).Get("/roles", h.ListRoles)
		r.With(perm(rbac.PermViewRoles)).Get("/roles/{id}", h.GetRole)
		r.With(perm(rbac.PermManageRoles)).Post("/roles", h.CreateRole)
		r.With(perm(rbac.PermManageRoles)).Put("/roles/{id}", h.UpdateRole)
		r.With(perm(rbac.PermManageRoles)).Delete("/roles/{id}", h.DeleteRole)
		r.With(perm(rbac.PermViewRoles)).Get("/roles/{id}/permissions", h.ListRolePermissions)
		r.With(perm(rbac.PermManageRoles)).Put("/roles/{id}/permissions/{permissionId}", h.AssignRolePermission)
		r.With(perm(rbac.PermManageRoles)).Delete("/roles/{id}/permissions/{permissionId}", h.RemoveRolePermission)

		r.With(perm(rbac.PermViewPermissions)).Get("/permissions", h.ListPermissions)
	})

	return router, nil
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
