package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("LBX_006", "Insufficient balance", http.StatusUnprocessableEntity),
			expected: "[LBX_006] Insufficient balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("LBX_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("deposit: %w", ErrVaultInactive())

	assert.True(t, errors.Is(wrapped, ErrVaultInactive()))
	assert.False(t, errors.Is(wrapped, ErrUnauthorized()))
}

func TestLockBoxErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidTargetAmount", ErrInvalidTargetAmount(), "LBX_001", 400},
		{"InvalidDepositAmount", ErrInvalidDepositAmount(), "LBX_002", 400},
		{"TargetNotReached", ErrTargetNotReached(), "LBX_003", 403},
		{"VaultInactive", ErrVaultInactive(), "LBX_004", 409},
		{"Unauthorized", ErrUnauthorized(), "LBX_005", 403},
		{"InsufficientBalance", ErrInsufficientBalance(), "LBX_006", 422},
		{"BalanceOverflow", ErrBalanceOverflow(), "LBX_007", 422},
		{"LockBoxExists", ErrLockBoxExists(), "LBX_008", 409},
		{"LockBoxNotFound", ErrLockBoxNotFound(), "LBX_009", 404},
		{"TransferRejected", ErrTransferRejected(errors.New("x")), "LBX_010", 422},
		{"BalanceUnderflow", ErrBalanceUnderflow(), "LBX_011", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestSecurityErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidSignature", ErrInvalidSignature(), "SEC_002", 401},
		{"TimestampExpired", ErrTimestampExpired(), "SEC_003", 403},
		{"NonceUsed", ErrNonceUsed(), "SEC_004", 403},
		{"InvalidAddress", ErrInvalidAddress(), "SEC_005", 400},
		{"InvalidToken", ErrInvalidToken(), "AUTH_003", 401},
		{"FaucetDisabled", ErrFaucetDisabled(), "AUTH_005", 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("pg: connection closed")
	dbErr := ErrDatabaseError(inner)
	assert.Equal(t, "SYS_001", dbErr.Code)
	assert.Equal(t, 500, dbErr.HTTPStatus)
	assert.True(t, errors.Is(dbErr, inner))

	lockErr := ErrLockTimeout(inner)
	assert.Equal(t, "SYS_002", lockErr.Code)
	assert.Equal(t, 503, lockErr.HTTPStatus)
}

func TestRateLimitError(t *testing.T) {
	err := ErrRateLimitExceeded()
	assert.Equal(t, "RATE_001", err.Code)
	assert.Equal(t, 429, err.HTTPStatus)
}

func TestTransferRejected_WrapsCause(t *testing.T) {
	cause := errors.New("ledger: insufficient funds")
	err := ErrTransferRejected(cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "ledger: insufficient funds")
}

func TestRequestErrors(t *testing.T) {
	v := Validation("amount is required")
	assert.Equal(t, "REQ_001", v.Code)
	assert.Equal(t, 400, v.HTTPStatus)
	assert.Equal(t, "amount is required", v.Message)

	big := ErrPayloadTooLarge()
	assert.Equal(t, "REQ_002", big.Code)
	assert.Equal(t, 413, big.HTTPStatus)
}
