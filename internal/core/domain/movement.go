package domain

import (
	"time"

	"github.com/google/uuid"
)

// MovementKind is the instruction that produced a movement.
type MovementKind string

const (
	MovementKindDeposit           MovementKind = "DEPOSIT"
	MovementKindWithdraw          MovementKind = "WITHDRAW"
	MovementKindEmergencyWithdraw MovementKind = "EMERGENCY_WITHDRAW"
	MovementKindClose             MovementKind = "CLOSE"
)

// IsOutflow reports whether the movement left the custody account.
func (k MovementKind) IsOutflow() bool {
	return k == MovementKindWithdraw || k == MovementKindEmergencyWithdraw || k == MovementKindClose
}

// Movement is an immutable record of one settled transfer made on behalf of a lockbox.
type Movement struct {
	ID           uuid.UUID    `json:"id"`
	Owner        Address      `json:"owner"`
	Kind         MovementKind `json:"kind"`
	Amount       uint64       `json:"amount"`
	BalanceAfter uint64       `json:"balance_after"`
	Source       Address      `json:"source"`
	Destination  Address      `json:"destination"`
	CreatedAt    time.Time    `json:"created_at"`
}

// MovementTotals aggregates an owner's movements.
type MovementTotals struct {
	Owner          Address `json:"owner"`
	Deposited      uint64  `json:"deposited"`
	Withdrawn      uint64  `json:"withdrawn"`
	DepositCount   int64   `json:"deposit_count"`
	WithdrawCount  int64   `json:"withdraw_count"`
	EmergencyCount int64   `json:"emergency_count"`
}

// Net returns deposited minus withdrawn, clamped at zero.
func (t MovementTotals) Net() uint64 {
	if t.Withdrawn > t.Deposited {
		return 0
	}
	return t.Deposited - t.Withdrawn
}
