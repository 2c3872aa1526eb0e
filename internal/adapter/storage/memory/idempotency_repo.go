package memory

import (
	"context"
	"fmt"

	"savings-lockbox/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	store *Store
}

func NewIdempotencyRepo(store *Store) *IdempotencyRepo {
	return &IdempotencyRepo{store: store}
}

func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	return r.store.stage(tx, func(s *state) error {
		if _, ok := s.idempotency[log.Key]; ok {
			return fmt.Errorf("idempotency key %q already exists", log.Key)
		}
		s.idempotency[log.Key] = *log
		return nil
	})
}

// Get returns nil, nil when key is unknown.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	var log *domain.IdempotencyLog
	_ = r.store.view(nil, func(s *state) error {
		if found, ok := s.idempotency[key]; ok {
			log = &found
		}
		return nil
	})
	return log, nil
}
