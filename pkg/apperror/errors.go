package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, apperror.ErrVaultInactive()) matches any instance.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- LockBox instructions (LBX) ----

func ErrInvalidTargetAmount() *AppError {
	return New("LBX_001", "Target amount must be greater than zero", http.StatusBadRequest)
}

func ErrInvalidDepositAmount() *AppError {
	return New("LBX_002", "Deposit amount must be greater than zero", http.StatusBadRequest)
}

func ErrTargetNotReached() *AppError {
	return New("LBX_003", "Target not reached yet. Current balance is below the target amount", http.StatusForbidden)
}

func ErrVaultInactive() *AppError {
	return New("LBX_004", "This vault has been deactivated and is no longer accessible", http.StatusConflict)
}

func ErrUnauthorized() *AppError {
	return New("LBX_005", "Unauthorized: only the owner can perform this action", http.StatusForbidden)
}

func ErrInsufficientBalance() *AppError {
	return New("LBX_006", "Insufficient balance in vault for withdrawal", http.StatusUnprocessableEntity)
}

func ErrBalanceOverflow() *AppError {
	return New("LBX_007", "Deposit would overflow the vault balance", http.StatusUnprocessableEntity)
}

func ErrLockBoxExists() *AppError {
	return New("LBX_008", "A lockbox already exists for this owner", http.StatusConflict)
}

func ErrLockBoxNotFound() *AppError {
	return New("LBX_009", "Lockbox not found", http.StatusNotFound)
}

func ErrTransferRejected(err error) *AppError {
	return Wrap("LBX_010", "Transfer rejected by ledger", http.StatusUnprocessableEntity, err)
}

// ErrBalanceUnderflow guards the subtraction after a successful withdrawal
// transfer. Preconditions make it unreachable.
func ErrBalanceUnderflow() *AppError {
	return New("LBX_011", "Withdrawal would underflow the vault balance", http.StatusInternalServerError)
}

// ---- Security & Authentication (SEC) ----

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

func ErrInvalidAddress() *AppError {
	return New("SEC_005", "Invalid address", http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrFaucetDisabled() *AppError {
	return New("AUTH_005", "Faucet is disabled on this deployment", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("REQ_001", message, http.StatusBadRequest)
}

// ErrPayloadTooLarge rejects request bodies above the configured limit.
func ErrPayloadTooLarge() *AppError {
	return New("REQ_002", "Request body too large", http.StatusRequestEntityTooLarge)
}
