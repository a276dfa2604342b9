// metrics.go — Prometheus-метрики сервисного слоя.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы сверки идентичности.
const (
	reconcileExisting = "existing"
	reconcileCreated  = "created"
	reconcileInvalid  = "invalid"
	reconcileConflict = "conflict"
	reconcileError    = "error"
)

// Исходы проверок авторизации.
const (
	authzAllowed = "allowed"
	authzDenied  = "denied"
	authzError   = "error"
)

var (
	// reconcileTotal — количество сверок внешней идентичности по исходу.
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "up_reconcile_total",
			Help: "Количество сверок внешней идентичности с локальным пользователем",
		},
		[]string{"result"},
	)

	// authzChecksTotal — количество проверок разрешений и ролей по исходу.
	authzChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "up_authz_checks_total",
			Help: "Количество проверок разрешений и ролей пользователя",
		},
		[]string{"check", "result"},
	)
)
