package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const lockboxColumns = `owner, address, target_amount, current_balance, has_reached_target, is_active, nonce, created_at`

// LockBoxRepo implements ports.LockBoxRepository.
type LockBoxRepo struct {
	pool Pool
}

// NewLockBoxRepo creates a new LockBoxRepo.
func NewLockBoxRepo(pool Pool) *LockBoxRepo {
	return &LockBoxRepo{pool: pool}
}

// Get fetches a lockbox by owner without locking.
func (r *LockBoxRepo) Get(ctx context.Context, owner domain.Address) (*domain.LockBox, error) {
	query := `SELECT ` + lockboxColumns + ` FROM lockboxes WHERE owner = $1`

	lb, err := scanLockBox(r.pool.QueryRow(ctx, query, owner.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lockbox: %w", err)
	}
	return lb, nil
}

// GetForUpdate fetches a lockbox by owner and locks its row until tx ends.
// This MUST be called within a transaction.
func (r *LockBoxRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, owner domain.Address) (*domain.LockBox, error) {
	query := `SELECT ` + lockboxColumns + ` FROM lockboxes WHERE owner = $1 FOR UPDATE`

	lb, err := scanLockBox(tx.QueryRow(ctx, query, owner.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lockbox for update: %w", err)
	}
	return lb, nil
}

// Create inserts a new lockbox.
func (r *LockBoxRepo) Create(ctx context.Context, tx pgx.Tx, lb *domain.LockBox) error {
	query := `INSERT INTO lockboxes (` + lockboxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		lb.Owner.String(), lb.Address.String(), lb.TargetAmount, lb.CurrentBalance,
		lb.HasReachedTarget, lb.IsActive, int16(lb.Nonce), lb.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert lockbox: %w: %s", ports.ErrConflict, pgErr.ConstraintName)
		}
		return fmt.Errorf("insert lockbox: %w", err)
	}
	return nil
}

// Update persists the mutable fields of a lockbox. Owner, target, nonce
// and creation time are never rewritten.
func (r *LockBoxRepo) Update(ctx context.Context, tx pgx.Tx, lb *domain.LockBox) error {
	query := `UPDATE lockboxes
		SET current_balance = $1, has_reached_target = $2, is_active = $3, updated_at = NOW()
		WHERE owner = $4`

	tag, err := tx.Exec(ctx, query, lb.CurrentBalance, lb.HasReachedTarget, lb.IsActive, lb.Owner.String())
	if err != nil {
		return fmt.Errorf("update lockbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lockbox not found: %s", lb.Owner)
	}
	return nil
}

// Delete removes a lockbox record.
func (r *LockBoxRepo) Delete(ctx context.Context, tx pgx.Tx, owner domain.Address) error {
	tag, err := tx.Exec(ctx, `DELETE FROM lockboxes WHERE owner = $1`, owner.String())
	if err != nil {
		return fmt.Errorf("delete lockbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lockbox not found: %s", owner)
	}
	return nil
}

// List fetches lockboxes with filtering and pagination, newest first.
func (r *LockBoxRepo) List(ctx context.Context, params ports.LockBoxListParams) ([]domain.LockBox, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *params.Active)
		argIdx++
	}
	if params.ReachedTarget != nil {
		conditions = append(conditions, fmt.Sprintf("has_reached_target = $%d", argIdx))
		args = append(args, *params.ReachedTarget)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM lockboxes %s", where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count lockboxes: %w", err)
	}

	page, pageSize := normalizePage(params.Page, params.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM lockboxes %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		lockboxColumns, where, argIdx, argIdx+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list lockboxes: %w", err)
	}
	defer rows.Close()

	var result []domain.LockBox
	for rows.Next() {
		lb, err := scanLockBox(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lockbox: %w", err)
		}
		result = append(result, *lb)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate lockboxes: %w", err)
	}
	return result, total, nil
}

func scanLockBox(row pgx.Row) (*domain.LockBox, error) {
	var (
		owner, address string
		nonce          int16
		createdAt      time.Time
	)
	lb := &domain.LockBox{}
	err := row.Scan(
		&owner, &address, &lb.TargetAmount, &lb.CurrentBalance,
		&lb.HasReachedTarget, &lb.IsActive, &nonce, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if lb.Owner, err = domain.ParseAddress(owner); err != nil {
		return nil, fmt.Errorf("owner column: %w", err)
	}
	if lb.Address, err = domain.ParseAddress(address); err != nil {
		return nil, fmt.Errorf("address column: %w", err)
	}
	lb.Nonce = uint8(nonce)
	lb.CreatedAt = createdAt.UTC()
	return lb, nil
}

// normalizePage clamps page to [1, ports.MaxPage] and pageSize to [1, 100],
// default 20.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > ports.MaxPage {
		page = ports.MaxPage
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
