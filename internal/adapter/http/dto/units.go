package dto

import (
	"errors"
	"math/big"
	"time"

	"savings-lockbox/internal/core/domain"
	"savings-lockbox/internal/core/ports"

	"github.com/shopspring/decimal"
)

// UnitDecimals is the number of base units per whole token (lamport-style).
const UnitDecimals = 9

var hundred = decimal.NewFromInt(100)

var (
	errNegativeAmount = errors.New("amount must not be negative")
	errTooPrecise     = errors.New("amount has more than 9 decimal places")
	errAmountTooLarge = errors.New("amount does not fit in 64 bits")
)

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// FormatUnits renders a base-unit amount in whole tokens, e.g. 1500000000 -> "1.5".
func FormatUnits(amount uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -UnitDecimals).String()
}

// ParseUnits converts a whole-token string such as "1.5" into base units.
func ParseUnits(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, errNegativeAmount
	}
	base := d.Shift(UnitDecimals)
	if !base.Equal(base.Truncate(0)) {
		return 0, errTooPrecise
	}
	bi := base.BigInt()
	if !bi.IsUint64() {
		return 0, errAmountTooLarge
	}
	return bi.Uint64(), nil
}

// ProgressPercent returns balance/target as a percentage with two decimals.
// It may exceed 100 once the target is passed.
func ProgressPercent(balance, target uint64) string {
	if target == 0 {
		return "0.00"
	}
	return decimalFromUint64(balance).Mul(hundred).Div(decimalFromUint64(target)).StringFixed(2)
}

// ToLockBoxResponse builds the response view of a snapshot.
func ToLockBoxResponse(snap *ports.LockBoxSnapshot) LockBoxResponse {
	lb := snap.LockBox
	resp := LockBoxResponse{
		Owner:            lb.Owner.String(),
		Address:          lb.Address.String(),
		Custody:          snap.Custody.String(),
		TargetAmount:     lb.TargetAmount,
		CurrentBalance:   lb.CurrentBalance,
		CustodyBalance:   snap.CustodyBalance,
		Remaining:        lb.Remaining(),
		ProgressPercent:  ProgressPercent(lb.CurrentBalance, lb.TargetAmount),
		TargetDisplay:    FormatUnits(lb.TargetAmount),
		BalanceDisplay:   FormatUnits(lb.CurrentBalance),
		HasReachedTarget: lb.HasReachedTarget,
		IsActive:         lb.IsActive,
		Nonce:            lb.Nonce,
		CreatedAt:        lb.CreatedAt.UTC().Format(time.RFC3339),
		TargetReached:    snap.TargetReached,
		Closed:           snap.Closed,
	}
	if snap.Movement != nil {
		m := ToMovementResponse(snap.Movement)
		resp.Movement = &m
	}
	return resp
}

// ToLockBoxSummary builds the list view of a lockbox.
func ToLockBoxSummary(lb *domain.LockBox) LockBoxSummary {
	return LockBoxSummary{
		Owner:            lb.Owner.String(),
		Address:          lb.Address.String(),
		TargetAmount:     lb.TargetAmount,
		CurrentBalance:   lb.CurrentBalance,
		ProgressPercent:  ProgressPercent(lb.CurrentBalance, lb.TargetAmount),
		HasReachedTarget: lb.HasReachedTarget,
		IsActive:         lb.IsActive,
		CreatedAt:        lb.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ToMovementResponse builds the response view of a movement.
func ToMovementResponse(m *domain.Movement) MovementResponse {
	return MovementResponse{
		ID:           m.ID.String(),
		Kind:         string(m.Kind),
		Amount:       m.Amount,
		BalanceAfter: m.BalanceAfter,
		Source:       m.Source.String(),
		Destination:  m.Destination.String(),
		CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ToStatsResponse builds the response view of movement totals.
func ToStatsResponse(t *domain.MovementTotals) StatsResponse {
	return StatsResponse{
		Deposited:      t.Deposited,
		Withdrawn:      t.Withdrawn,
		Net:            t.Net(),
		NetDisplay:     FormatUnits(t.Net()),
		DepositCount:   t.DepositCount,
		WithdrawCount:  t.WithdrawCount,
		EmergencyCount: t.EmergencyCount,
	}
}
