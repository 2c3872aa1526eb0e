package memory

import (
	"context"
	"errors"
	"maps"
	"sync"

	"savings-lockbox/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrTxDone    = errors.New("memory: transaction already finished")
	ErrForeignTx = errors.New("memory: transaction was not started by this store")
	ErrNoSQL     = errors.New("memory: SQL is not supported")
)

// Store keeps lockboxes, ledger accounts and their history in process memory.
// Transactions are serialized: Begin waits until the previous transaction
// commits or rolls back, and writes are staged until Commit.
type Store struct {
	writer chan struct{}

	mu    sync.RWMutex
	state *state
	audit []domain.AuditLog
}

type state struct {
	lockboxes   map[domain.Address]domain.LockBox
	accounts    map[domain.Address]uint64
	idempotency map[string]domain.IdempotencyLog
	movements   []domain.Movement
}

func (s *state) clone() *state {
	return &state{
		lockboxes:   maps.Clone(s.lockboxes),
		accounts:    maps.Clone(s.accounts),
		idempotency: maps.Clone(s.idempotency),
		movements:   s.movements[:len(s.movements):len(s.movements)],
	}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		writer: make(chan struct{}, 1),
		state: &state{
			lockboxes:   make(map[domain.Address]domain.LockBox),
			accounts:    make(map[domain.Address]uint64),
			idempotency: make(map[string]domain.IdempotencyLog),
		},
	}
}

// Begin waits for exclusive write access and returns a transaction over a
// private copy of the committed state.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	staged := s.state.clone()
	s.mu.RUnlock()

	return &Tx{store: s, staged: staged}, nil
}

// view runs fn against committed state, or against tx's staged state when
// tx is non-nil.
func (s *Store) view(tx pgx.Tx, fn func(*state) error) error {
	if tx != nil {
		t, err := s.own(tx)
		if err != nil {
			return err
		}
		return fn(t.staged)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// stage runs fn against tx's staged state.
func (s *Store) stage(tx pgx.Tx, fn func(*state) error) error {
	t, err := s.own(tx)
	if err != nil {
		return err
	}
	return fn(t.staged)
}

func (s *Store) own(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, ErrForeignTx
	}
	if t.done {
		return nil, ErrTxDone
	}
	return t, nil
}

// Tx is a pgx.Tx over staged in-memory state. Only Commit and Rollback are
// meaningful; the SQL methods fail with ErrNoSQL.
type Tx struct {
	store  *Store
	staged *state
	done   bool
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.store.mu.Lock()
	t.store.state = t.staged
	t.store.mu.Unlock()
	t.finish()
	return nil
}

// Rollback discards staged writes. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.done = true
	t.staged = nil
	<-t.store.writer
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, ErrNoSQL }
func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, ErrNoSQL
}
func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, ErrNoSQL
}
func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, ErrNoSQL
}
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, ErrNoSQL
}
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return errRow{} }
func (t *Tx) Conn() *pgx.Conn                                             { return nil }

type errRow struct{}

func (errRow) Scan(dest ...any) error { return ErrNoSQL }

// Transactor implements ports.DBTransactor.
type Transactor struct {
	store *Store
}

func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.store.Begin(ctx)
}

// HealthCheck implements ports.HealthChecker; the store is always reachable.
type HealthCheck struct{}

func (HealthCheck) Ping(ctx context.Context) error { return nil }
func (HealthCheck) Name() string                   { return "memory" }
