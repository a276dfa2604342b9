// auth.go — JWT middleware аутентификации и авторизации UPortal.
// Проверяет bearer-токен IdP по JWKS, сопоставляет идентичность с локальным
// пользователем (создавая его при первом входе) и проверяет разрешения.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/uportal/internal/api/errors"
	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/domain/rbac"
	"github.com/bigkaa/uportal/internal/identity"
	"github.com/bigkaa/uportal/internal/idp"
	"github.com/bigkaa/uportal/internal/service"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyUserID — ID локального пользователя в контексте запроса.
	ContextKeyUserID contextKey = "user_id"
	// ContextKeyIdentity — внешняя идентичность из токена.
	ContextKeyIdentity contextKey = "identity"
)

// Метрики кэша идентичностей.
var (
	identityCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "up_identity_cache_hits_total",
		Help: "Количество попаданий в кэш object id → user id.",
	})
	identityCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "up_identity_cache_misses_total",
		Help: "Количество промахов кэша object id → user id.",
	})
)

// UserReconciler сопоставляет идентичность с локальным пользователем.
// Реализуется service.UserService.
type UserReconciler interface {
	Reconcile(ctx context.Context, id *identity.Identity) (*model.AppUser, error)
	AssignRoleByName(ctx context.Context, userID int, roleName string) (bool, error)
}

// PermissionChecker проверяет разрешения пользователя.
// Реализуется service.AuthorizationService.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int, name string) (bool, error)
}

// AuthOptions — параметры проверки токенов.
type AuthOptions struct {
	// Issuer — ожидаемый iss (пусто — не проверяется)
	Issuer string
	// Audience — ожидаемый aud (пусто — не проверяется)
	Audience string
	// Leeway — допустимое отклонение часов
	Leeway time.Duration
	// CacheSize и CacheTTL — кэш object id → user id
	CacheSize int
	CacheTTL  time.Duration
	// BootstrapAdmins — object id, получающие роль Administrator при входе
	BootstrapAdmins []string
}

// JWTAuth — middleware JWT-аутентификации через JWKS IdP.
type JWTAuth struct {
	jwks            keyfunc.Keyfunc
	users           UserReconciler
	opts            AuthOptions
	bootstrapAdmins map[string]bool
	cache           *expirable.LRU[string, int]
	logger          *slog.Logger
}

// NewJWTAuth создаёт JWT middleware с JWKS из IdP.
// jwksURL — URL JWKS endpoint, caCertPath — опциональный CA для TLS.
// jwksClientTimeout и jwksRefreshInterval — UP_JWKS_CLIENT_TIMEOUT и UP_JWKS_REFRESH_INTERVAL.
func NewJWTAuth(
	jwksURL string,
	caCertPath string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	users UserReconciler,
	opts AuthOptions,
	logger *slog.Logger,
) (*JWTAuth, error) {
	httpClient, err := idp.NewHTTPClient(caCertPath, jwksClientTimeout)
	if err != nil {
		return nil, err
	}
	if caCertPath != "" {
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	// NoErrorReturnFirstHTTPReq — стартуем, даже если IdP ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, users, opts, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, users UserReconciler, opts AuthOptions, logger *slog.Logger) *JWTAuth {
	if opts.CacheSize < 1 {
		opts.CacheSize = 1024
	}
	admins := make(map[string]bool, len(opts.BootstrapAdmins))
	for _, oid := range opts.BootstrapAdmins {
		admins[oid] = true
	}
	return &JWTAuth{
		jwks:            kf,
		users:           users,
		opts:            opts,
		bootstrapAdmins: admins,
		cache:           expirable.NewLRU[string, int](opts.CacheSize, nil, opts.CacheTTL),
		logger:          logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware JWT-аутентификации.
// Валидирует подпись (RS256), извлекает идентичность, сопоставляет её
// с локальным пользователем и помещает его ID в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			claims := &identity.Claims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.opts.Leeway),
			}
			if j.opts.Issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.opts.Issuer))
			}
			if j.opts.Audience != "" {
				parserOpts = append(parserOpts, jwt.WithAudience(j.opts.Audience))
			}

			token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			id := claims.Identity()
			if id.ObjectID == "" {
				apierrors.Unauthorized(w, "В токене нет идентификатора пользователя")
				return
			}

			userID, err := j.resolveUser(r.Context(), id)
			if err != nil {
				if errors.Is(err, service.ErrValidation) {
					apierrors.Unauthorized(w, "Некорректная идентичность в токене")
					return
				}
				j.logger.Error("Ошибка сопоставления пользователя",
					slog.String("object_id", id.ObjectID),
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w, "Не удалось определить пользователя")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
			ctx = context.WithValue(ctx, ContextKeyIdentity, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveUser возвращает ID локального пользователя: из кэша или через Reconcile.
// Связь object id → user id неизменна, поэтому кэш не инвалидируется.
func (j *JWTAuth) resolveUser(ctx context.Context, id *identity.Identity) (int, error) {
	if userID, ok := j.cache.Get(id.ObjectID); ok {
		identityCacheHitsTotal.Inc()
		return userID, nil
	}
	identityCacheMissesTotal.Inc()

	user, err := j.users.Reconcile(ctx, id)
	if errors.Is(err, service.ErrConflict) {
		// Параллельный первый вход: запись уже создал другой запрос
		user, err = j.users.Reconcile(ctx, id)
	}
	if err != nil {
		return 0, err
	}

	if j.bootstrapAdmins[id.ObjectID] {
		added, err := j.users.AssignRoleByName(ctx, user.ID, rbac.RoleAdministrator)
		if err != nil {
			// Без записи в кэш выдача повторится при следующем запросе
			j.logger.Warn("Не удалось выдать роль администратора",
				slog.Int("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			return user.ID, nil
		}
		if added {
			j.logger.Info("Выдана роль администратора",
				slog.Int("user_id", user.ID),
				slog.String("object_id", id.ObjectID),
			)
		}
	}

	j.cache.Add(id.ObjectID, user.ID)
	return user.ID, nil
}

// RequirePermission возвращает middleware, требующий разрешение name.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequirePermission(checker PermissionChecker, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				apierrors.Unauthorized(w, "Пользователь не аутентифицирован")
				return
			}

			allowed, err := checker.HasPermission(r.Context(), userID, name)
			if err != nil {
				apierrors.InternalError(w, "Ошибка проверки прав доступа")
				return
			}
			if !allowed {
				apierrors.Forbidden(w, "Недостаточно прав: требуется разрешение "+name)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// UserIDFromContext извлекает ID локального пользователя из контекста.
func UserIDFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(ContextKeyUserID).(int)
	return id, ok
}

// IdentityFromContext извлекает внешнюю идентичность из контекста.
// Возвращает nil, если её нет.
func IdentityFromContext(ctx context.Context) *identity.Identity {
	id, _ := ctx.Value(ContextKeyIdentity).(*identity.Identity)
	return id
}

// WithUserID помещает ID пользователя в контекст.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}
