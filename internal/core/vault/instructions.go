package vault

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"savings-lockbox/internal/core/domain"
)

// Instruction failures. Each is returned before any transfer is issued,
// except ErrBalanceUnderflow which guards the post-transfer subtraction.
var (
	ErrInvalidTargetAmount  = errors.New("target amount must be greater than zero")
	ErrInvalidDepositAmount = errors.New("deposit amount must be greater than zero")
	ErrTargetNotReached     = errors.New("target not reached yet")
	ErrVaultInactive        = errors.New("vault has been deactivated")
	ErrUnauthorized         = errors.New("only the owner can perform this action")
	ErrInsufficientBalance  = errors.New("insufficient balance in vault")
	ErrBalanceOverflow      = errors.New("deposit would overflow the vault balance")
	ErrBalanceUnderflow     = errors.New("withdrawal would underflow the vault balance")
	ErrLockBoxExists        = errors.New("lockbox already exists")
	ErrLockBoxNotFound      = errors.New("lockbox not found")
)

// Transferer moves value between ledger accounts. Implementations are bound
// to the caller's unit of work, so a failed instruction leaves no transfer behind.
type Transferer interface {
	Transfer(from, to domain.Address, amount uint64, auth Authorization) error
	Balance(addr domain.Address) (uint64, error)
}

// Program holds the state transitions of a lockbox. Handlers never mutate
// their input; they return a new snapshot or one error.
type Program struct {
	id domain.Address
}

func NewProgram(id domain.Address) *Program {
	return &Program{id: id}
}

// ID returns the program id that scopes every derived address.
func (p *Program) ID() domain.Address {
	return p.id
}

// Custody returns the custody address and nonce of a lockbox.
func (p *Program) Custody(lb *domain.LockBox) (domain.Address, uint8, error) {
	return DeriveCustodyAddress(p.id, lb.Address)
}

// Initialize creates caller's lockbox. existing is the current record, if any.
func (p *Program) Initialize(existing *domain.LockBox, caller domain.Address, target uint64, now time.Time) (*domain.LockBox, error) {
	if existing != nil {
		return nil, ErrLockBoxExists
	}
	if target == 0 {
		return nil, ErrInvalidTargetAmount
	}

	addr, nonce, err := DeriveLockBoxAddress(p.id, caller)
	if err != nil {
		return nil, fmt.Errorf("deriving lockbox address: %w", err)
	}

	return &domain.LockBox{
		Owner:            caller,
		TargetAmount:     target,
		CurrentBalance:   0,
		CreatedAt:        now.UTC().Truncate(time.Second),
		HasReachedTarget: false,
		IsActive:         true,
		Nonce:            nonce,
		Address:          addr,
	}, nil
}

// Deposit moves amount from the owner into custody and latches the target when reached.
func (p *Program) Deposit(lb *domain.LockBox, caller domain.Address, amount uint64, ledger Transferer) (*domain.LockBox, error) {
	if lb == nil {
		return nil, ErrLockBoxNotFound
	}
	if caller != lb.Owner {
		return nil, ErrUnauthorized
	}
	if amount == 0 {
		return nil, ErrInvalidDepositAmount
	}
	if !lb.IsActive {
		return nil, ErrVaultInactive
	}
	newBalance, carry := bits.Add64(lb.CurrentBalance, amount, 0)
	if carry != 0 {
		return nil, ErrBalanceOverflow
	}

	custody, _, err := p.Custody(lb)
	if err != nil {
		return nil, fmt.Errorf("deriving custody address: %w", err)
	}
	if err := ledger.Transfer(lb.Owner, custody, amount, SignerAuthority(caller)); err != nil {
		return nil, fmt.Errorf("deposit transfer: %w", err)
	}

	next := lb.Clone()
	next.CurrentBalance = newBalance
	if next.CurrentBalance >= next.TargetAmount {
		next.HasReachedTarget = true
	}
	return next, nil
}

// Withdraw moves amount from custody back to the owner once the target has been reached.
func (p *Program) Withdraw(lb *domain.LockBox, caller domain.Address, amount uint64, ledger Transferer) (*domain.LockBox, error) {
	if lb == nil {
		return nil, ErrLockBoxNotFound
	}
	if caller != lb.Owner {
		return nil, ErrUnauthorized
	}
	if !lb.HasReachedTarget {
		return nil, ErrTargetNotReached
	}
	if amount > lb.CurrentBalance {
		return nil, ErrInsufficientBalance
	}
	// A deactivated vault holds nothing, so only a zero withdrawal reaches here.
	if !lb.IsActive {
		return nil, ErrVaultInactive
	}

	if err := p.release(lb, amount, ledger); err != nil {
		return nil, fmt.Errorf("withdraw transfer: %w", err)
	}

	remaining, borrow := bits.Sub64(lb.CurrentBalance, amount, 0)
	if borrow != 0 {
		return nil, ErrBalanceUnderflow
	}
	next := lb.Clone()
	next.CurrentBalance = remaining
	return next, nil
}

// EmergencyResult is the outcome of an emergency withdrawal.
type EmergencyResult struct {
	LockBox *domain.LockBox // final snapshot
	Amount  uint64
	Closed  bool // record must be deleted
}

// EmergencyWithdraw drains the vault and terminates it according to policy.
func (p *Program) EmergencyWithdraw(lb *domain.LockBox, caller domain.Address, policy domain.EmergencyPolicy, ledger Transferer) (*EmergencyResult, error) {
	if lb == nil {
		return nil, ErrLockBoxNotFound
	}
	if caller != lb.Owner {
		return nil, ErrUnauthorized
	}
	if !lb.IsActive {
		return nil, ErrVaultInactive
	}

	switch policy {
	case domain.EmergencyPolicyClose:
		return p.closeAndReclaim(lb, ledger)
	case domain.EmergencyPolicyDeactivate, "":
		return p.deactivate(lb, ledger)
	default:
		return nil, fmt.Errorf("unknown emergency policy %q", policy)
	}
}

func (p *Program) deactivate(lb *domain.LockBox, ledger Transferer) (*EmergencyResult, error) {
	amount := lb.CurrentBalance
	if amount == 0 {
		return nil, ErrInsufficientBalance
	}

	if err := p.release(lb, amount, ledger); err != nil {
		return nil, fmt.Errorf("emergency transfer: %w", err)
	}

	next := lb.Clone()
	next.CurrentBalance = 0
	next.IsActive = false
	return &EmergencyResult{LockBox: next, Amount: amount}, nil
}

// closeAndReclaim drains the actual custody balance, which may exceed the
// tracked balance when value was sent to custody outside Deposit.
func (p *Program) closeAndReclaim(lb *domain.LockBox, ledger Transferer) (*EmergencyResult, error) {
	custody, _, err := p.Custody(lb)
	if err != nil {
		return nil, fmt.Errorf("deriving custody address: %w", err)
	}
	amount, err := ledger.Balance(custody)
	if err != nil {
		return nil, fmt.Errorf("reading custody balance: %w", err)
	}
	if amount == 0 {
		return nil, ErrInsufficientBalance
	}

	if err := p.release(lb, amount, ledger); err != nil {
		return nil, fmt.Errorf("close transfer: %w", err)
	}

	next := lb.Clone()
	next.CurrentBalance = 0
	next.IsActive = false
	return &EmergencyResult{LockBox: next, Amount: amount, Closed: true}, nil
}

// release transfers amount from custody to the owner under a delegation
// proof built from the lockbox address and custody nonce. A custody account
// that cannot cover amount is reported as ErrInsufficientBalance.
func (p *Program) release(lb *domain.LockBox, amount uint64, ledger Transferer) error {
	custody, nonce, err := p.Custody(lb)
	if err != nil {
		return fmt.Errorf("deriving custody address: %w", err)
	}
	auth := DelegatedAuthority(p.id, custodySeeds(lb.Address), nonce)
	err = ledger.Transfer(custody, lb.Owner, amount, auth)
	if errors.Is(err, ErrLedgerInsufficientFunds) {
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	}
	return err
}
