// handler.go — основной обработчик API UPortal.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
// Права доступа проверяются до вызова обработчика (middleware.RequirePermission).
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/uportal/internal/api/errors"
	"github.com/bigkaa/uportal/internal/service"
)

// APIHandler — основной обработчик API UPortal.
type APIHandler struct {
	health       *HealthHandler
	users        *service.UserService
	authz        *service.AuthorizationService
	locations    *service.LocationService
	machines     *service.MachineService
	applications *service.ExternalApplicationService
	roles        *service.RoleService
	permissions  *service.PermissionService
	logger       *slog.Logger
}

// Services — набор сервисов, с которыми работает API.
type Services struct {
	Users        *service.UserService
	Authz        *service.AuthorizationService
	Locations    *service.LocationService
	Machines     *service.MachineService
	Applications *service.ExternalApplicationService
	Roles        *service.RoleService
	Permissions  *service.PermissionService
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:       health,
		users:        svc.Users,
		authz:        svc.Authz,
		locations:    svc.Locations,
		machines:     svc.Machines,
		applications: svc.Applications,
		roles:        svc.Roles,
		permissions:  svc.Permissions,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// pathInt извлекает целочисленный параметр пути. При ошибке пишет 400
// и возвращает false.
func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	var v int
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil || v < 1 {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s", name))
		return 0, false
	}
	return v, true
}

// decodeJSON декодирует тело запроса. Неизвестные поля отклоняются.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// what — имя сущности для сообщения 404.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, what string) {
	if !apierrors.FromService(w, err, what) {
		h.logger.Error("Ошибка обработки запроса", slog.String("error", err.Error()))
	}
}
