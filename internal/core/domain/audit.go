package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionLogin             AuditAction = "LOGIN"
	AuditActionInitialize        AuditAction = "INITIALIZE"
	AuditActionDeposit           AuditAction = "DEPOSIT"
	AuditActionWithdraw          AuditAction = "WITHDRAW"
	AuditActionEmergencyWithdraw AuditAction = "EMERGENCY_WITHDRAW"
	AuditActionAirdrop           AuditAction = "AIRDROP"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Owner        *Address    `json:"owner,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
