// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrInvalidReference — ссылка на несуществующую запись (нарушение FK).
	ErrInvalidReference = errors.New("ссылка на несуществующую запись")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется *pgxpool.Pool, *pgxpool.Conn и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Session — рабочая область одного вызова сервиса: одно соединение
// из пула на всё время вызова. После использования вызывается Release.
type Session interface {
	Users() AppUserRepository
	Locations() LocationRepository
	Machines() MachineRepository
	ExternalApplications() ExternalApplicationRepository
	Roles() RoleRepository
	Permissions() PermissionRepository

	// RunInTx выполняет fn в транзакции. Репозитории сессии tx
	// работают внутри транзакции; ошибка fn откатывает все изменения.
	RunInTx(ctx context.Context, fn func(tx Session) error) error

	// Release возвращает соединение в пул. Повторный вызов — no-op.
	Release()
}

// SessionFactory открывает сессии. Внедряется в сервисы через конструктор.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// PoolSessionFactory — SessionFactory поверх pgxpool.
type PoolSessionFactory struct {
	pool *pgxpool.Pool
}

// NewSessionFactory создаёт фабрику сессий поверх пула подключений.
func NewSessionFactory(pool *pgxpool.Pool) *PoolSessionFactory {
	return &PoolSessionFactory{pool: pool}
}

// Open захватывает соединение из пула.
func (f *PoolSessionFactory) Open(ctx context.Context) (Session, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения соединения из пула: %w", err)
	}
	return &pgSession{
		db:       conn,
		txRunner: NewTxRunner(conn),
		release:  conn.Release,
	}, nil
}

// pgSession — сессия на захваченном соединении или внутри транзакции.
// У транзакционной сессии txRunner и release равны nil.
type pgSession struct {
	db       DBTX
	txRunner *TxRunner
	release  func()
}

func (s *pgSession) Users() AppUserRepository { return NewAppUserRepository(s.db) }

func (s *pgSession) Locations() LocationRepository { return NewLocationRepository(s.db) }

func (s *pgSession) Machines() MachineRepository { return NewMachineRepository(s.db) }

func (s *pgSession) ExternalApplications() ExternalApplicationRepository {
	return NewExternalApplicationRepository(s.db)
}

func (s *pgSession) Roles() RoleRepository { return NewRoleRepository(s.db) }

func (s *pgSession) Permissions() PermissionRepository { return NewPermissionRepository(s.db) }

func (s *pgSession) RunInTx(ctx context.Context, fn func(tx Session) error) error {
	// Уже внутри транзакции — вложенных не открываем
	if s.txRunner == nil {
		return fn(s)
	}
	return s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgSession{db: tx})
	})
}

func (s *pgSession) Release() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// txBeginner — источник транзакций (*pgxpool.Pool или *pgxpool.Conn).
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	db txBeginner
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(db txBeginner) *TxRunner {
	return &TxRunner{db: db}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается.
// При успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == "23505" // unique_violation
}

// isForeignKeyViolation проверяет, является ли ошибка нарушением внешнего ключа.
func isForeignKeyViolation(err error) bool {
	return pgErrorCode(err) == "23503" // foreign_key_violation
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
