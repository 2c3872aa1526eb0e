package postgres

import (
	"context"
	"errors"
	"fmt"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/vault"

	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository over the ledger_accounts table.
// A missing row is an account with zero balance.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Transfer debits from and credits to inside tx after verifying auth.
// This MUST be called within a transaction.
func (r *LedgerRepo) Transfer(ctx context.Context, tx pgx.Tx, from, to domain.Address, amount uint64, auth vault.Authorization) error {
	if err := auth.Verify(from); err != nil {
		return err
	}

	var balance uint64
	err := tx.QueryRow(ctx,
		`SELECT balance FROM ledger_accounts WHERE address = $1 FOR UPDATE`,
		from.String(),
	).Scan(&balance)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lock source account: %w", err)
	}
	if balance < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", vault.ErrLedgerInsufficientFunds, from, balance, amount)
	}
	if amount == 0 {
		return nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE ledger_accounts SET balance = balance - $1, updated_at = NOW() WHERE address = $2`,
		amount, from.String(),
	); err != nil {
		return fmt.Errorf("debit source account: %w", err)
	}

	if _, err := r.credit(ctx, tx, to, amount); err != nil {
		return fmt.Errorf("credit destination account: %w", err)
	}
	return nil
}

// Balance returns the balance of addr, read inside tx when it is non-nil.
func (r *LedgerRepo) Balance(ctx context.Context, tx pgx.Tx, addr domain.Address) (uint64, error) {
	var balance uint64
	err := reader(r.pool, tx).QueryRow(ctx,
		`SELECT balance FROM ledger_accounts WHERE address = $1`,
		addr.String(),
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get ledger balance: %w", err)
	}
	return balance, nil
}

// Credit mints amount into addr.
func (r *LedgerRepo) Credit(ctx context.Context, tx pgx.Tx, addr domain.Address, amount uint64) (uint64, error) {
	balance, err := r.credit(ctx, reader(r.pool, tx), addr, amount)
	if err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepo) credit(ctx context.Context, q rowQuerier, addr domain.Address, amount uint64) (uint64, error) {
	var balance uint64
	err := q.QueryRow(ctx,
		`INSERT INTO ledger_accounts (address, balance) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET balance = ledger_accounts.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance`,
		addr.String(), amount,
	).Scan(&balance)
	return balance, err
}
