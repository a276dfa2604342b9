// Пакет config — загрузка и валидация конфигурации UPortal
// из переменных окружения (опционально — из .env файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации UPortal.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальное количество соединений в пуле
	DBMaxConns int

	// --- OIDC (Identity Provider) ---

	// Ожидаемый issuer токенов
	OIDCIssuer string
	// URL JWKS endpoint (авто-вычисляется из issuer, если не задан)
	OIDCJWKSURL string
	// Ожидаемый audience (пусто — не проверяется)
	OIDCAudience string
	// Путь к CA-сертификату для JWKS (опционально)
	OIDCCACertPath string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Допустимое отклонение часов при проверке JWT
	JWTLeeway time.Duration

	// --- Кэш идентичностей ---

	// Размер LRU-кэша object id → user id
	IdentityCacheSize int
	// TTL записей кэша
	IdentityCacheTTL time.Duration

	// Object id пользователей, получающих роль Administrator при входе
	BootstrapAdmins []string

	// --- topologymetrics ---

	// Группа в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Перед чтением окружения подгружается .env (UP_ENV_FILE или ./.env), если файл есть.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// UP_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("UP_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("UP_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("UP_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// UP_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("UP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("UP_LOG_LEVEL: %w", err)
	}

	// UP_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("UP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("UP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("UP_DB_HOST"); err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("UP_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("UP_DB_PORT: %w", err)
	}

	if cfg.DBName, err = getEnvRequired("UP_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("UP_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("UP_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("UP_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("UP_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("UP_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("UP_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("UP_DB_MAX_CONNS: значение %d должно быть больше 0", cfg.DBMaxConns)
	}

	// --- OIDC ---

	// UP_OIDC_ISSUER — обязательный (например, https://login.microsoftonline.com/<tenant>/v2.0)
	cfg.OIDCIssuer, err = getEnvRequired("UP_OIDC_ISSUER")
	if err != nil {
		return nil, err
	}
	cfg.OIDCIssuer = strings.TrimRight(cfg.OIDCIssuer, "/")

	// UP_OIDC_JWKS_URL — для Azure AD ключи лежат в <tenant>/discovery/v2.0/keys
	cfg.OIDCJWKSURL = getEnvDefault("UP_OIDC_JWKS_URL", defaultJWKSURL(cfg.OIDCIssuer))

	cfg.OIDCAudience = getEnvDefault("UP_OIDC_AUDIENCE", "")
	cfg.OIDCCACertPath = getEnvDefault("UP_OIDC_CA_CERT_PATH", "")

	cfg.JWKSRefreshInterval, err = getEnvDuration("UP_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("UP_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.JWKSClientTimeout, err = getEnvDuration("UP_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("UP_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	cfg.JWTLeeway, err = getEnvDuration("UP_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("UP_JWT_LEEWAY: %w", err)
	}

	// --- Кэш идентичностей ---

	cfg.IdentityCacheSize, err = getEnvInt("UP_IDENTITY_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("UP_IDENTITY_CACHE_SIZE: %w", err)
	}
	if cfg.IdentityCacheSize < 1 || cfg.IdentityCacheSize > 1_000_000 {
		return nil, fmt.Errorf("UP_IDENTITY_CACHE_SIZE: значение %d вне допустимого диапазона 1-1000000", cfg.IdentityCacheSize)
	}

	cfg.IdentityCacheTTL, err = getEnvDuration("UP_IDENTITY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("UP_IDENTITY_CACHE_TTL: %w", err)
	}

	cfg.BootstrapAdmins = parseCSV(getEnvDefault("UP_BOOTSTRAP_ADMINS", ""))

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("UP_DEPHEALTH_GROUP", "uportal")

	cfg.DephealthCheckInterval, err = getEnvDuration("UP_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("UP_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("UP_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("UP_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL (формат key=value для pgx).
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s pool_max_conns=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode, c.DBMaxConns,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля — для лейблов метрик.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает переменные из .env. Уже заданные переменные окружения
// не перезаписываются. Явно указанный UP_ENV_FILE обязан существовать.
func loadEnvFile() error {
	if path := os.Getenv("UP_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("UP_ENV_FILE: ошибка чтения %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка чтения .env: %w", err)
	}
	return nil
}

// defaultJWKSURL вычисляет JWKS URL из issuer.
// Azure AD v2: https://login.microsoftonline.com/<tenant>/v2.0 → .../<tenant>/discovery/v2.0/keys
func defaultJWKSURL(issuer string) string {
	if base, ok := strings.CutSuffix(issuer, "/v2.0"); ok {
		return base + "/discovery/v2.0/keys"
	}
	return issuer + "/discovery/v2.0/keys"
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
