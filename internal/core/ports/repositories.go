package ports

import (
	"context"
	"errors"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/vault"

	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// ErrConflict is wrapped by Create when the record, or its unique address, already exists.
var ErrConflict = errors.New("record already exists")

// LockBoxRepository defines persistence operations for lockboxes.
// Methods accepting pgx.Tx run inside the instruction's unit of work;
// GetForUpdate serializes access per owner until the tx ends.
// Get and GetForUpdate return nil, nil when the owner has no lockbox.
type LockBoxRepository interface {
	Get(ctx context.Context, owner domain.Address) (*domain.LockBox, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, owner domain.Address) (*domain.LockBox, error)
	Create(ctx context.Context, tx pgx.Tx, lb *domain.LockBox) error
	Update(ctx context.Context, tx pgx.Tx, lb *domain.LockBox) error
	Delete(ctx context.Context, tx pgx.Tx, owner domain.Address) error
	List(ctx context.Context, params LockBoxListParams) ([]domain.LockBox, int64, error)
}

// MaxPage bounds list pagination so the row offset always fits in an int.
const MaxPage = 100_000

// LockBoxListParams holds filter + pagination for listing lockboxes.
type LockBoxListParams struct {
	Active        *bool
	ReachedTarget *bool
	Page          int
	PageSize      int
}

// LedgerRepository is the value-holding ledger. Transfer verifies the
// authorization against the source account and fails with
// vault.ErrLedgerUnauthorized or vault.ErrLedgerInsufficientFunds.
type LedgerRepository interface {
	Transfer(ctx context.Context, tx pgx.Tx, from, to domain.Address, amount uint64, auth vault.Authorization) error
	// Balance reads inside tx when it is non-nil.
	Balance(ctx context.Context, tx pgx.Tx, addr domain.Address) (uint64, error)
	// Credit mints amount into addr and returns the new balance.
	Credit(ctx context.Context, tx pgx.Tx, addr domain.Address, amount uint64) (uint64, error)
}

// MovementRepository stores the history of settled lockbox transfers.
type MovementRepository interface {
	Create(ctx context.Context, tx pgx.Tx, m *domain.Movement) error
	List(ctx context.Context, params MovementListParams) ([]domain.Movement, int64, error)
	Totals(ctx context.Context, owner domain.Address) (*domain.MovementTotals, error)
}

// MovementListParams holds filter + pagination for listing movements.
type MovementListParams struct {
	Owner    domain.Address
	Kind     *domain.MovementKind
	From     *int64 // Unix timestamp
	To       *int64 // Unix timestamp
	Page     int
	PageSize int
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
