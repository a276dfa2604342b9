// Пакет memory — реализация repository.SessionFactory в памяти.
// Повторяет ограничения схемы PostgreSQL (уникальность, FK join-таблиц,
// мягкие ссылки на площадки) и используется в unit-тестах сервисов.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/bigkaa/uportal/internal/domain/model"
	"github.com/bigkaa/uportal/internal/domain/rbac"
	"github.com/bigkaa/uportal/internal/repository"
)

// pair — ключ строки join-таблицы.
type pair struct{ a, b int }

// tables — состояние «базы данных».
type tables struct {
	users       map[int]model.AppUser
	locations   map[int]model.Location
	machines    map[int]model.Machine
	apps        map[int]model.ExternalApplication
	roles       map[int]model.Role
	permissions map[int]model.Permission
	rolePerms   map[pair]bool
	userRoles   map[pair]bool
	seq         int
}

func newTables() *tables {
	return &tables{
		users:       make(map[int]model.AppUser),
		locations:   make(map[int]model.Location),
		machines:    make(map[int]model.Machine),
		apps:        make(map[int]model.ExternalApplication),
		roles:       make(map[int]model.Role),
		permissions: make(map[int]model.Permission),
		rolePerms:   make(map[pair]bool),
		userRoles:   make(map[pair]bool),
	}
}

func (t *tables) clone() *tables {
	return &tables{
		users:       maps.Clone(t.users),
		locations:   maps.Clone(t.locations),
		machines:    maps.Clone(t.machines),
		apps:        maps.Clone(t.apps),
		roles:       maps.Clone(t.roles),
		permissions: maps.Clone(t.permissions),
		rolePerms:   maps.Clone(t.rolePerms),
		userRoles:   maps.Clone(t.userRoles),
		seq:         t.seq,
	}
}

// nextID — общий счётчик идентификаторов для всех таблиц.
func (t *tables) nextID() int {
	t.seq++
	return t.seq
}

// Store — хранилище в памяти. Безопасно для конкурентного использования.
//
// Транзакция держит txMu до конца и при ошибке откатывает всё состояние к
// снимку, поэтому запись вне транзакции тоже берёт txMu: она ждёт окончания
// транзакции и не теряется при её откате. Чтение берёт только mu.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *tables

	fail error

	opened   atomic.Int64
	released atomic.Int64
	writes   atomic.Int64
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{data: newTables()}
}

// Open открывает сессию. Реализует repository.SessionFactory.
// FailWith на открытие не влияет: ошибки возвращают операции сессии.
func (s *Store) Open(_ context.Context) (repository.Session, error) {
	s.opened.Add(1)
	return &session{store: s}, nil
}

// FailWith заставляет все последующие операции возвращать err (nil — отключить).
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// OpenSessions возвращает количество открытых и не освобождённых сессий.
func (s *Store) OpenSessions() int {
	return int(s.opened.Load() - s.released.Load())
}

// Opened возвращает количество сессий, открытых за всё время.
func (s *Store) Opened() int {
	return int(s.opened.Load())
}

// Writes возвращает количество выполненных изменяющих операций.
func (s *Store) Writes() int {
	return int(s.writes.Load())
}

// AddPermission добавляет разрешение в каталог и возвращает его ID.
func (s *Store) AddPermission(name string) int {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.addPermission(name)
}

func (s *Store) addPermission(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.data.permissions {
		if p.Name == name {
			return p.ID
		}
	}
	id := s.data.nextID()
	s.data.permissions[id] = model.Permission{ID: id, Name: name}
	return id
}

// SeedCatalogue заполняет каталог разрешений и роль Administrator со всеми
// разрешениями, как это делают миграции. Возвращает ID роли.
func (s *Store) SeedCatalogue() int {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	permIDs := make([]int, 0)
	for _, name := range rbac.Catalogue() {
		permIDs = append(permIDs, s.addPermission(name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	roleID := s.data.nextID()
	s.data.roles[roleID] = model.Role{ID: roleID, Name: rbac.RoleAdministrator}
	for _, pid := range permIDs {
		s.data.rolePerms[pair{roleID, pid}] = true
	}
	return roleID
}

// session — сессия хранилища. Внутри транзакции inTx == true.
type session struct {
	store    *Store
	inTx     bool
	released atomic.Bool
}

var _ repository.Session = (*session)(nil)

func (s *session) conn() conn { return conn{Store: s.store, inTx: s.inTx} }

func (s *session) Users() repository.AppUserRepository { return &userRepo{st: s.conn()} }

func (s *session) Locations() repository.LocationRepository { return &locationRepo{st: s.conn()} }

func (s *session) Machines() repository.MachineRepository { return &machineRepo{st: s.conn()} }

func (s *session) ExternalApplications() repository.ExternalApplicationRepository {
	return &appRepo{st: s.conn()}
}

func (s *session) Roles() repository.RoleRepository { return &roleRepo{st: s.conn()} }

func (s *session) Permissions() repository.PermissionRepository {
	return &permissionRepo{st: s.conn()}
}

// RunInTx сериализует транзакции и откатывает состояние при ошибке fn.
func (s *session) RunInTx(_ context.Context, fn func(tx repository.Session) error) error {
	if s.inTx {
		return fn(s)
	}

	s.store.txMu.Lock()
	defer s.store.txMu.Unlock()

	s.store.mu.Lock()
	snapshot := s.store.data.clone()
	s.store.mu.Unlock()

	if err := fn(&session{store: s.store, inTx: true}); err != nil {
		s.store.mu.Lock()
		s.store.data = snapshot
		s.store.mu.Unlock()
		return err
	}
	return nil
}

func (s *session) Release() {
	if s.inTx {
		return
	}
	if s.released.CompareAndSwap(false, true) {
		s.store.released.Add(1)
	}
}

// lock захватывает хранилище; при включённом FailWith возвращает ошибку.
func (s *Store) lock() error {
	s.mu.Lock()
	if s.fail != nil {
		err := s.fail
		s.mu.Unlock()
		return fmt.Errorf("memory: %w", err)
	}
	return nil
}

func (s *Store) unlock() { s.mu.Unlock() }

func (s *Store) wrote() { s.writes.Add(1) }

// conn — хранилище с точки зрения репозитория: внутри транзакции txMu
// уже захвачен.
type conn struct {
	*Store
	inTx bool
}

// lockWrite захватывает хранилище для записи.
func (c conn) lockWrite() error {
	if !c.inTx {
		c.txMu.Lock()
	}
	if err := c.lock(); err != nil {
		if !c.inTx {
			c.txMu.Unlock()
		}
		return err
	}
	return nil
}

func (c conn) unlockWrite() {
	c.unlock()
	if !c.inTx {
		c.txMu.Unlock()
	}
}
