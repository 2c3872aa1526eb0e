package postgres

import (
	"context"
	"fmt"
	"strings"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// MovementRepo implements ports.MovementRepository.
type MovementRepo struct {
	pool Pool
}

// NewMovementRepo creates a new MovementRepo.
func NewMovementRepo(pool Pool) *MovementRepo {
	return &MovementRepo{pool: pool}
}

// Create inserts a movement within a database transaction.
func (r *MovementRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.Movement) error {
	query := `INSERT INTO movements (id, owner, kind, amount, balance_after, source, destination, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		m.ID, m.Owner.String(), string(m.Kind), m.Amount, m.BalanceAfter,
		m.Source.String(), m.Destination.String(), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// List fetches an owner's movements with filtering and pagination, newest first.
func (r *MovementRepo) List(ctx context.Context, params ports.MovementListParams) ([]domain.Movement, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("owner = $%d", argIdx))
	args = append(args, params.Owner.String())
	argIdx++

	if params.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, string(*params.Kind))
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= to_timestamp($%d)", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= to_timestamp($%d)", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM movements %s", where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}

	page, pageSize := normalizePage(params.Page, params.PageSize)
	query := fmt.Sprintf(`SELECT id, owner, kind, amount, balance_after, source, destination, created_at
		FROM movements %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var result []domain.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan movement: %w", err)
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate movements: %w", err)
	}
	return result, total, nil
}

// Totals aggregates an owner's movements. Closing and emergency movements
// count as withdrawals.
func (r *MovementRepo) Totals(ctx context.Context, owner domain.Address) (*domain.MovementTotals, error) {
	query := `SELECT
		COALESCE(SUM(amount) FILTER (WHERE kind = 'DEPOSIT'), 0)::BIGINT AS deposited,
		COALESCE(SUM(amount) FILTER (WHERE kind IN ('WITHDRAW', 'EMERGENCY_WITHDRAW', 'CLOSE')), 0)::BIGINT AS withdrawn,
		COUNT(*) FILTER (WHERE kind = 'DEPOSIT') AS deposits,
		COUNT(*) FILTER (WHERE kind = 'WITHDRAW') AS withdrawals,
		COUNT(*) FILTER (WHERE kind IN ('EMERGENCY_WITHDRAW', 'CLOSE')) AS emergencies
		FROM movements WHERE owner = $1`

	totals := &domain.MovementTotals{Owner: owner}
	err := r.pool.QueryRow(ctx, query, owner.String()).Scan(
		&totals.Deposited, &totals.Withdrawn,
		&totals.DepositCount, &totals.WithdrawCount, &totals.EmergencyCount,
	)
	if err != nil {
		return nil, fmt.Errorf("get movement totals: %w", err)
	}
	return totals, nil
}

func scanMovement(row pgx.Row) (*domain.Movement, error) {
	var owner, kind, source, destination string
	m := &domain.Movement{}
	if err := row.Scan(&m.ID, &owner, &kind, &m.Amount, &m.BalanceAfter, &source, &destination, &m.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if m.Owner, err = domain.ParseAddress(owner); err != nil {
		return nil, fmt.Errorf("owner column: %w", err)
	}
	if m.Source, err = domain.ParseAddress(source); err != nil {
		return nil, fmt.Errorf("source column: %w", err)
	}
	if m.Destination, err = domain.ParseAddress(destination); err != nil {
		return nil, fmt.Errorf("destination column: %w", err)
	}
	m.Kind = domain.MovementKind(kind)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
