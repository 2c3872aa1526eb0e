package memory

import (
	"context"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// MovementRepo implements ports.MovementRepository.
type MovementRepo struct {
	store *Store
}

func NewMovementRepo(store *Store) *MovementRepo {
	return &MovementRepo{store: store}
}

func (r *MovementRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.Movement) error {
	return r.store.stage(tx, func(s *state) error {
		s.movements = append(s.movements, *m)
		return nil
	})
}

// List returns an owner's movements newest first.
func (r *MovementRepo) List(ctx context.Context, params ports.MovementListParams) ([]domain.Movement, int64, error) {
	var result []domain.Movement
	_ = r.store.view(nil, func(s *state) error {
		for i := len(s.movements) - 1; i >= 0; i-- {
			m := s.movements[i]
			if m.Owner != params.Owner {
				continue
			}
			if params.Kind != nil && m.Kind != *params.Kind {
				continue
			}
			if params.From != nil && m.CreatedAt.Unix() < *params.From {
				continue
			}
			if params.To != nil && m.CreatedAt.Unix() > *params.To {
				continue
			}
			result = append(result, m)
		}
		return nil
	})

	page, total := paginate(result, params.Page, params.PageSize)
	return page, total, nil
}

func (r *MovementRepo) Totals(ctx context.Context, owner domain.Address) (*domain.MovementTotals, error) {
	totals := &domain.MovementTotals{Owner: owner}
	_ = r.store.view(nil, func(s *state) error {
		for _, m := range s.movements {
			if m.Owner != owner {
				continue
			}
			switch m.Kind {
			case domain.MovementKindDeposit:
				totals.Deposited += m.Amount
				totals.DepositCount++
			case domain.MovementKindWithdraw:
				totals.Withdrawn += m.Amount
				totals.WithdrawCount++
			case domain.MovementKindEmergencyWithdraw, domain.MovementKindClose:
				totals.Withdrawn += m.Amount
				totals.EmergencyCount++
			}
		}
		return nil
	})
	return totals, nil
}
