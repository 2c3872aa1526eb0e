package ports

import (
	"context"
	"time"

	"savings-lockbox/internal/core/domain"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// SignatureService verifies owner signatures and signs outgoing payloads.
type SignatureService interface {
	// VerifyEd25519 checks an ed25519 signature made by the key behind addr.
	VerifyEd25519(addr domain.Address, message []byte, signature []byte) bool
	// Sign returns the hex HMAC-SHA256 of payload.
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(owner domain.Address) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Owner domain.Address
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, owner string, nonce string, ttl time.Duration) (bool, error)
}

// MetricsRecorder receives instruction and transfer observations.
type MetricsRecorder interface {
	ObserveInstruction(instruction string, outcome string, start time.Time)
	ObserveTransfer(kind domain.MovementKind, amount uint64)
	IncTargetReached()
}

// --- Service Ports (Business Logic) ---

// LockBoxService runs lockbox instructions inside a storage transaction.
type LockBoxService interface {
	Initialize(ctx context.Context, req InitializeRequest) (*LockBoxSnapshot, error)
	Deposit(ctx context.Context, req AmountRequest) (*LockBoxSnapshot, error)
	Withdraw(ctx context.Context, req AmountRequest) (*LockBoxSnapshot, error)
	EmergencyWithdraw(ctx context.Context, req EmergencyRequest) (*LockBoxSnapshot, error)
	Get(ctx context.Context, owner domain.Address) (*LockBoxSnapshot, error)
	List(ctx context.Context, params LockBoxListParams) ([]domain.LockBox, int64, error)
	ListMovements(ctx context.Context, params MovementListParams) ([]domain.Movement, int64, error)
	Stats(ctx context.Context, owner domain.Address) (*domain.MovementTotals, error)
}

// InitializeRequest holds validated input for lockbox creation.
type InitializeRequest struct {
	Caller         domain.Address
	TargetAmount   uint64
	IdempotencyKey string
}

// AmountRequest holds validated input for deposit and withdraw.
// Owner selects the lockbox; it defaults to Caller.
type AmountRequest struct {
	Caller         domain.Address
	Owner          domain.Address
	Amount         uint64
	IdempotencyKey string
}

// EmergencyRequest holds validated input for emergency withdrawal.
type EmergencyRequest struct {
	Caller         domain.Address
	Owner          domain.Address
	IdempotencyKey string
}

// LockBoxSnapshot is the state of a lockbox after an instruction, together
// with its custody account.
type LockBoxSnapshot struct {
	LockBox        domain.LockBox   `json:"lockbox"`
	Custody        domain.Address   `json:"custody"`
	CustodyBalance uint64           `json:"custody_balance"`
	Movement       *domain.Movement `json:"movement,omitempty"`
	TargetReached  bool             `json:"target_reached"` // latched by this instruction
	Closed         bool             `json:"closed"`

	// Replayed marks a response served from the idempotency log.
	Replayed bool `json:"-"`
}

// AuthService defines authentication business logic.
type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (string, time.Time, error) // token, expiry, error
}

// LoginRequest is a signed login challenge built by the client.
type LoginRequest struct {
	Address   domain.Address
	Timestamp int64
	Nonce     string
	Signature []byte
	ClientIP  string
}

// FaucetService credits ledger accounts on development deployments.
type FaucetService interface {
	Airdrop(ctx context.Context, addr domain.Address, amount uint64) (uint64, error) // new balance
}

// NotificationService delivers lockbox lifecycle events.
type NotificationService interface {
	Notify(ctx context.Context, event LockBoxEvent) error
}

// LockBoxEvent is a lifecycle notification.
type LockBoxEvent struct {
	Type    string
	LockBox domain.LockBox
	Amount  uint64
}

// AuditService records security-relevant actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
