package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

var (
	errLockBoxNotFound  = errors.New("lockbox not found")
	errDuplicateOwner   = fmt.Errorf("%w: lockbox owner", ports.ErrConflict)
	errDuplicateAddress = fmt.Errorf("%w: lockbox address", ports.ErrConflict)
)

// LockBoxRepo implements ports.LockBoxRepository.
type LockBoxRepo struct {
	store *Store
}

func NewLockBoxRepo(store *Store) *LockBoxRepo {
	return &LockBoxRepo{store: store}
}

func (r *LockBoxRepo) Get(ctx context.Context, owner domain.Address) (*domain.LockBox, error) {
	var lb *domain.LockBox
	err := r.store.view(nil, func(s *state) error {
		if found, ok := s.lockboxes[owner]; ok {
			lb = &found
		}
		return nil
	})
	return lb, err
}

// GetForUpdate reads inside tx. The store serializes transactions, so the
// record cannot change until tx ends.
func (r *LockBoxRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, owner domain.Address) (*domain.LockBox, error) {
	var lb *domain.LockBox
	err := r.store.view(tx, func(s *state) error {
		if found, ok := s.lockboxes[owner]; ok {
			lb = &found
		}
		return nil
	})
	return lb, err
}

func (r *LockBoxRepo) Create(ctx context.Context, tx pgx.Tx, lb *domain.LockBox) error {
	return r.store.stage(tx, func(s *state) error {
		if _, ok := s.lockboxes[lb.Owner]; ok {
			return errDuplicateOwner
		}
		for _, existing := range s.lockboxes {
			if existing.Address == lb.Address {
				return errDuplicateAddress
			}
		}
		s.lockboxes[lb.Owner] = *lb
		return nil
	})
}

func (r *LockBoxRepo) Update(ctx context.Context, tx pgx.Tx, lb *domain.LockBox) error {
	return r.store.stage(tx, func(s *state) error {
		existing, ok := s.lockboxes[lb.Owner]
		if !ok {
			return errLockBoxNotFound
		}
		existing.CurrentBalance = lb.CurrentBalance
		existing.HasReachedTarget = lb.HasReachedTarget
		existing.IsActive = lb.IsActive
		s.lockboxes[lb.Owner] = existing
		return nil
	})
}

func (r *LockBoxRepo) Delete(ctx context.Context, tx pgx.Tx, owner domain.Address) error {
	return r.store.stage(tx, func(s *state) error {
		if _, ok := s.lockboxes[owner]; !ok {
			return errLockBoxNotFound
		}
		delete(s.lockboxes, owner)
		return nil
	})
}

// List returns lockboxes newest first.
func (r *LockBoxRepo) List(ctx context.Context, params ports.LockBoxListParams) ([]domain.LockBox, int64, error) {
	var result []domain.LockBox
	_ = r.store.view(nil, func(s *state) error {
		for _, lb := range s.lockboxes {
			if params.Active != nil && lb.IsActive != *params.Active {
				continue
			}
			if params.ReachedTarget != nil && lb.HasReachedTarget != *params.ReachedTarget {
				continue
			}
			result = append(result, lb)
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].Owner.String() < result[j].Owner.String()
	})

	page, total := paginate(result, params.Page, params.PageSize)
	return page, total, nil
}

func paginate[T any](items []T, page, pageSize int) ([]T, int64) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if page <= 0 {
		page = 1
	}
	total := int64(len(items))
	// Compare before multiplying so a huge page cannot overflow the offset.
	if page-1 > len(items)/pageSize {
		return []T{}, total
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}, total
	}
	end := min(start+pageSize, len(items))
	return items[start:end], total
}
