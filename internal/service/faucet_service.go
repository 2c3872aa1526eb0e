package service

import (
	"context"
	"fmt"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"
	"savings-lockbox/pkg/apperror"

	"github.com/rs/zerolog"
)

// FaucetServiceImpl implements ports.FaucetService. It mints test funds on
// deployments where the faucet is enabled.
type FaucetServiceImpl struct {
	ledgerRepo ports.LedgerRepository
	enabled    bool
	maxAmount  uint64
	log        zerolog.Logger
}

// NewFaucetService creates a new FaucetServiceImpl. A maxAmount of 0 means no cap.
func NewFaucetService(ledgerRepo ports.LedgerRepository, enabled bool, maxAmount uint64, log zerolog.Logger) *FaucetServiceImpl {
	return &FaucetServiceImpl{
		ledgerRepo: ledgerRepo,
		enabled:    enabled,
		maxAmount:  maxAmount,
		log:        log,
	}
}

// Airdrop credits amount to addr and returns the resulting balance.
func (s *FaucetServiceImpl) Airdrop(ctx context.Context, addr domain.Address, amount uint64) (uint64, error) {
	if !s.enabled {
		return 0, apperror.ErrFaucetDisabled()
	}
	if addr.IsZero() {
		return 0, apperror.ErrInvalidAddress()
	}
	if amount == 0 {
		return 0, apperror.Validation("amount must be greater than zero")
	}
	if s.maxAmount > 0 && amount > s.maxAmount {
		return 0, apperror.Validation(fmt.Sprintf("amount exceeds faucet limit of %d", s.maxAmount))
	}

	balance, err := s.ledgerRepo.Credit(ctx, nil, addr, amount)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("credit account: %w", err))
	}

	s.log.Info().
		Str("address", addr.String()).
		Uint64("amount", amount).
		Uint64("balance", balance).
		Msg("faucet airdrop credited")

	return balance, nil
}
