package dto

// LoginRequest is a signed login challenge.
// The signed message is lockbox-login|ADDRESS|TIMESTAMP|NONCE.
type LoginRequest struct {
	Address   string `json:"address" binding:"required,address"`
	Timestamp int64  `json:"timestamp" binding:"required"`
	Nonce     string `json:"nonce" binding:"required,max=64,safe_id"`
	Signature string `json:"signature" binding:"required,max=128"` // base58
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Owner  string `json:"owner"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// InitializeRequest is the request body for lockbox creation.
// Amounts are pointers so that an explicit zero reaches the vault rules.
type InitializeRequest struct {
	TargetAmount *uint64 `json:"target_amount" binding:"required"`
}

// AmountRequest is the request body for deposit and withdraw.
type AmountRequest struct {
	Amount *uint64 `json:"amount" binding:"required"`
	Owner  string  `json:"owner,omitempty" binding:"omitempty,address"` // defaults to the caller
}

// EmergencyRequest is the optional request body for emergency withdrawal.
type EmergencyRequest struct {
	Owner string `json:"owner,omitempty" binding:"omitempty,address"`
}

// AirdropRequest is the request body for the development faucet.
type AirdropRequest struct {
	Address string  `json:"address,omitempty" binding:"omitempty,address"` // defaults to the caller
	Amount  *uint64 `json:"amount" binding:"required"`
}

// AirdropResponse reports the credited account.
type AirdropResponse struct {
	Address        string `json:"address"`
	Balance        uint64 `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

// LockBoxResponse is the public view of a lockbox.
type LockBoxResponse struct {
	Owner            string            `json:"owner"`
	Address          string            `json:"address"`
	Custody          string            `json:"custody"`
	TargetAmount     uint64            `json:"target_amount"`
	CurrentBalance   uint64            `json:"current_balance"`
	CustodyBalance   uint64            `json:"custody_balance"`
	Remaining        uint64            `json:"remaining"`
	ProgressPercent  string            `json:"progress_percent"`
	TargetDisplay    string            `json:"target_display"`
	BalanceDisplay   string            `json:"balance_display"`
	HasReachedTarget bool              `json:"has_reached_target"`
	IsActive         bool              `json:"is_active"`
	Nonce            uint8             `json:"nonce"`
	CreatedAt        string            `json:"created_at"`
	TargetReached    bool              `json:"target_reached,omitempty"` // set by this instruction
	Closed           bool              `json:"closed,omitempty"`
	Movement         *MovementResponse `json:"movement,omitempty"`
}

// LockBoxSummary is a lockbox as listed, without custody details.
type LockBoxSummary struct {
	Owner            string `json:"owner"`
	Address          string `json:"address"`
	TargetAmount     uint64 `json:"target_amount"`
	CurrentBalance   uint64 `json:"current_balance"`
	ProgressPercent  string `json:"progress_percent"`
	HasReachedTarget bool   `json:"has_reached_target"`
	IsActive         bool   `json:"is_active"`
	CreatedAt        string `json:"created_at"`
}

// LockBoxListResponse wraps a paginated lockbox list.
type LockBoxListResponse struct {
	Items      []LockBoxSummary `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// MovementResponse is one settled transfer.
type MovementResponse struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Amount       uint64 `json:"amount"`
	BalanceAfter uint64 `json:"balance_after"`
	Source       string `json:"source"`
	Destination  string `json:"destination"`
	CreatedAt    string `json:"created_at"`
}

// MovementListResponse wraps a paginated movement list.
type MovementListResponse struct {
	Items      []MovementResponse `json:"items"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}

// StatsResponse aggregates an owner's movements.
type StatsResponse struct {
	Deposited      uint64 `json:"deposited"`
	Withdrawn      uint64 `json:"withdrawn"`
	Net            uint64 `json:"net"`
	NetDisplay     string `json:"net_display"`
	DepositCount   int64  `json:"deposit_count"`
	WithdrawCount  int64  `json:"withdraw_count"`
	EmergencyCount int64  `json:"emergency_count"`
}
