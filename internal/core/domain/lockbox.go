package domain

import "time"

// EmergencyPolicy selects how an emergency withdrawal terminates a lockbox.
type EmergencyPolicy string

const (
	// EmergencyPolicyDeactivate drains the tracked balance and keeps the record, inactive.
	EmergencyPolicyDeactivate EmergencyPolicy = "deactivate"
	// EmergencyPolicyClose drains the custody account's actual balance and deletes the record.
	EmergencyPolicyClose EmergencyPolicy = "close"
)

// Valid reports whether p is a known policy.
func (p EmergencyPolicy) Valid() bool {
	return p == EmergencyPolicyDeactivate || p == EmergencyPolicyClose
}

// LockBox is a single-owner savings vault. There is at most one per owner.
type LockBox struct {
	Owner            Address   `json:"owner"`
	TargetAmount     uint64    `json:"target_amount"`
	CurrentBalance   uint64    `json:"current_balance"`
	CreatedAt        time.Time `json:"created_at"`
	HasReachedTarget bool      `json:"has_reached_target"`
	IsActive         bool      `json:"is_active"`
	Nonce            uint8     `json:"nonce"` // canonical nonce of Address

	// Address is the derived address of this record. It is never an authority.
	Address Address `json:"address"`
}

// Remaining returns how much is still missing to reach the target.
func (lb *LockBox) Remaining() uint64 {
	if lb.CurrentBalance >= lb.TargetAmount {
		return 0
	}
	return lb.TargetAmount - lb.CurrentBalance
}

// CanWithdraw reports whether the owner may withdraw at all.
func (lb *LockBox) CanWithdraw() bool {
	return lb.HasReachedTarget && lb.CurrentBalance > 0
}

// Clone returns a copy safe to mutate.
func (lb *LockBox) Clone() *LockBox {
	if lb == nil {
		return nil
	}
	c := *lb
	return &c
}
