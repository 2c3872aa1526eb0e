package memory

import (
	"context"
	"fmt"
	"math/bits"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/vault"

	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository over the store's accounts.
type LedgerRepo struct {
	store *Store
}

func NewLedgerRepo(store *Store) *LedgerRepo {
	return &LedgerRepo{store: store}
}

// Transfer moves amount inside tx after verifying auth against from.
func (r *LedgerRepo) Transfer(ctx context.Context, tx pgx.Tx, from, to domain.Address, amount uint64, auth vault.Authorization) error {
	if err := auth.Verify(from); err != nil {
		return err
	}
	return r.store.stage(tx, func(s *state) error {
		balance := s.accounts[from]
		if balance < amount {
			return fmt.Errorf("%w: %s holds %d, needs %d", vault.ErrLedgerInsufficientFunds, from, balance, amount)
		}
		if amount == 0 {
			return nil
		}
		if from == to {
			return nil
		}
		credited, carry := bits.Add64(s.accounts[to], amount, 0)
		if carry != 0 {
			return fmt.Errorf("credit destination account: balance of %s overflows", to)
		}
		s.accounts[from] = balance - amount
		s.accounts[to] = credited
		return nil
	})
}

func (r *LedgerRepo) Balance(ctx context.Context, tx pgx.Tx, addr domain.Address) (uint64, error) {
	var balance uint64
	err := r.store.view(tx, func(s *state) error {
		balance = s.accounts[addr]
		return nil
	})
	return balance, err
}

// Credit mints amount into addr. A nil tx commits immediately.
func (r *LedgerRepo) Credit(ctx context.Context, tx pgx.Tx, addr domain.Address, amount uint64) (uint64, error) {
	if tx == nil {
		own, err := r.store.Begin(ctx)
		if err != nil {
			return 0, err
		}
		defer own.Rollback(ctx) //nolint:errcheck

		balance, err := r.Credit(ctx, own, addr, amount)
		if err != nil {
			return 0, err
		}
		return balance, own.Commit(ctx)
	}

	var balance uint64
	err := r.store.stage(tx, func(s *state) error {
		next, carry := bits.Add64(s.accounts[addr], amount, 0)
		if carry != 0 {
			return fmt.Errorf("credit account: balance of %s overflows", addr)
		}
		s.accounts[addr] = next
		balance = next
		return nil
	})
	return balance, err
}
