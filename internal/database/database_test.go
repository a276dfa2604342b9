package database

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/uportal/internal/config"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
// Возвращает конфиг, указывающий на контейнер.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("uportal_test"),
		postgres.WithUsername("uportal"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("UP_DB_HOST", host)
	t.Setenv("UP_DB_PORT", port.Port())
	t.Setenv("UP_DB_NAME", "uportal_test")
	t.Setenv("UP_DB_USER", "uportal")
	t.Setenv("UP_DB_PASSWORD", "test-password")
	t.Setenv("UP_DB_SSL_MODE", "disable")
	t.Setenv("UP_OIDC_ISSUER", "https://idp.test/tenant/v2.0")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestMigrateURL_EscapesCredentials(t *testing.T) {
	cfg := &config.Config{
		DBHost: "db", DBPort: 5432, DBName: "uportal",
		DBUser: "up", DBPassword: "p@ss/word", DBSSLMode: "disable",
	}
	got := migrateURL(cfg)
	if !strings.HasPrefix(got, "pgx5://up:p%40ss%2Fword@db:5432/uportal") {
		t.Errorf("migrateURL() = %q", got)
	}
	if !strings.HasSuffix(got, "?sslmode=disable") {
		t.Errorf("migrateURL() = %q, ожидается sslmode=disable", got)
	}
}

// TestConnect проверяет подключение к PostgreSQL через pgxpool.
func TestConnect(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()

	pool, err := Connect(ctx, cfg, testLogger())
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("pool.Ping() вернул ошибку: %v", err)
	}
}

// TestMigrate проверяет применение миграций и начальные данные.
func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}

	// Повторное применение — должно быть без ошибки (ErrNoChange)
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	tables := []string{
		"locations",
		"app_users",
		"machines",
		"external_applications",
		"roles",
		"permissions",
		"role_permissions",
		"user_roles",
	}

	for _, table := range tables {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}

	// Справочные данные
	counts := map[string]int{
		`SELECT COUNT(*) FROM locations`:   7,
		`SELECT COUNT(*) FROM machines`:    21,
		`SELECT COUNT(*) FROM permissions`: 17,
		`SELECT COUNT(*) FROM role_permissions rp JOIN roles r ON r.id = rp.role_id WHERE r.name = 'Administrator'`: 17,
	}
	for query, want := range counts {
		var got int
		if err := pool.QueryRow(ctx, query).Scan(&got); err != nil {
			t.Fatalf("Ошибка запроса %q: %v", query, err)
		}
		if got != want {
			t.Errorf("%s = %d, ожидали %d", query, got, want)
		}
	}
}

// TestReadinessChecker проверяет ReadinessChecker.
func TestReadinessChecker(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()

	pool, err := Connect(ctx, cfg, testLogger())
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	checker := NewReadinessChecker(pool)

	// До миграций таблицы schema_migrations нет
	if status, msg := checker.CheckReady(ctx); status != "fail" {
		t.Errorf("CheckReady() до миграций status = %q, message = %q; ожидали fail", status, msg)
	}

	if err := Migrate(cfg, testLogger()); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	status, msg := checker.CheckReady(ctx)
	if status != "ok" || !strings.Contains(msg, "схема v2") {
		t.Errorf("CheckReady() status = %q, message = %q; ожидали ok и схему v2", status, msg)
	}

	// Незавершённая миграция
	if _, err := pool.Exec(ctx, `UPDATE schema_migrations SET dirty = true`); err != nil {
		t.Fatal(err)
	}
	if status, msg := checker.CheckReady(ctx); status != "fail" {
		t.Errorf("CheckReady() dirty status = %q, message = %q; ожидали fail", status, msg)
	}
}

func TestLatestSchemaVersion(t *testing.T) {
	got, err := LatestSchemaVersion()
	if err != nil {
		t.Fatalf("LatestSchemaVersion() ошибка: %v", err)
	}
	if got != 2 {
		t.Errorf("LatestSchemaVersion() = %d, ожидали 2", got)
	}
}
