// health.go — liveness, readiness и /metrics.
//
// Readiness UPortal складывается из проверок:
//   - postgresql — подключение и версия схемы (database.ReadinessChecker)
//   - idp — JWKS провайдера: без ключей не пройдёт ни один вход (idp.Client)
//   - catalogue — каталог разрешений засеян: иначе все проверки прав закрыты
//     (service.PermissionService)
package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/uportal/internal/config"
)

const (
	serviceName = "uportal"

	// readinessTimeout — общий бюджет на все проверки readiness.
	readinessTimeout = 5 * time.Second

	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// statusRank упорядочивает статусы: итог readiness — худший из проверок.
var statusRank = map[string]int{statusOK: 0, statusDegraded: 1, statusFail: 2}

// ReadinessChecker — проверка одной зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady(ctx context.Context) (status string, message string)
}

type readinessCheck struct {
	name    string
	checker ReadinessChecker
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checks  []readinessCheck
	metrics http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// nil-проверка в readiness считается fail.
func NewHealthHandler(db, idp, catalogue ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checks: []readinessCheck{
			{name: "postgresql", checker: db},
			{name: "idp", checker: idp},
			{name: "catalogue", checker: catalogue},
		},
		metrics: promhttp.Handler(),
	}
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

func newHealthResponse() healthResponse {
	return healthResponse{
		Status:    statusOK,
		Service:   serviceName,
		Version:   config.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// HealthLive — liveness: процесс отвечает.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newHealthResponse())
}

// HealthReady — readiness. Проверки идут параллельно;
// 503 только при fail, degraded трафик не снимает.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	results := make([]checkResult, len(h.checks))
	var wg sync.WaitGroup
	for i, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runCheck(ctx, c.checker)
		}()
	}
	wg.Wait()

	resp := newHealthResponse()
	resp.Checks = make(map[string]checkResult, len(h.checks))
	for i, c := range h.checks {
		resp.Checks[c.name] = results[i]
		if statusRank[results[i].Status] > statusRank[resp.Status] {
			resp.Status = results[i].Status
		}
	}

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// runCheck выполняет проверку; неизвестный статус приравнивается к fail.
func runCheck(ctx context.Context, c ReadinessChecker) checkResult {
	if c == nil {
		return checkResult{Status: statusFail, Message: "не инициализирован"}
	}
	status, msg := c.CheckReady(ctx)
	if _, ok := statusRank[status]; !ok {
		return checkResult{Status: statusFail, Message: "неизвестный статус " + status + ": " + msg}
	}
	return checkResult{Status: status, Message: msg}
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
