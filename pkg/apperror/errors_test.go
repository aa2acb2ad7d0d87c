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
			appErr:   New("TX_003", "Insufficient balance.", http.StatusPaymentRequired),
			expected: "[TX_003] Insufficient balance.",
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
	appErr := New("TX_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "WAL_002", CodeOf(fmt.Errorf("show: %w", ErrWalletNotFound())))
	assert.Equal(t, "", CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestWalletAndKeyErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"DuplicateWallet", ErrDuplicateWallet(), "WAL_001", 409},
		{"WalletNotFound", ErrWalletNotFound(), "WAL_002", 404},
		{"KeyFormat", ErrKeyFormat(errors.New("bad base58")), "KEY_001", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestTransferErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidAmount", ErrInvalidAmount(), "TX_001", 400},
		{"InvalidAddress", ErrInvalidAddress(), "TX_002", 400},
		{"InsufficientFunds", ErrInsufficientFunds(), "TX_003", 402},
		{"TransferFailed", ErrTransferFailed(errors.New("rpc down")), "TX_004", 502},
		{"InvalidPriority", ErrInvalidPriority(), "FEE_001", 400},
		{"BalanceQuery", ErrBalanceQuery(errors.New("timeout")), "CHAIN_001", 502},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestSwapErrors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *AppError
		code string
	}{
		{"NoQuote", ErrNoQuote(cause), "SWAP_001"},
		{"SwapBuild", ErrSwapBuild(cause), "SWAP_002"},
		{"TransactionFormat", ErrTransactionFormat(cause), "SWAP_003"},
		{"Submission", ErrSubmission(cause), "SWAP_004"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.True(t, errors.Is(tt.err, cause))
		})
	}

	assert.Equal(t, "SWAP_005", ErrInvalidSlippage().Code)
	assert.Contains(t, ErrInvalidAsset("BONK?").Message, "BONK?")
}

func TestUserFacingMessages(t *testing.T) {
	assert.Equal(t, "You already have a wallet.", ErrDuplicateWallet().Message)
	assert.Equal(t, "No wallet found. Please create one using `/wallet new`.", ErrWalletNotFound().Message)
	assert.Equal(t, "Insufficient balance.", ErrInsufficientFunds().Message)
	assert.Equal(t, "Invalid Solana wallet address.", ErrInvalidAddress().Message)
	assert.Equal(t, "An error occurred while processing your withdrawal.", ErrTransferFailed(nil).Message)
}

func TestSecurityErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidSignature", ErrInvalidSignature(), "SEC_001", 401},
		{"TimestampExpired", ErrTimestampExpired(), "SEC_002", 403},
		{"NonceUsed", ErrNonceUsed(), "SEC_003", 403},
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

	encErr := ErrEncryptionFailure(inner)
	assert.Equal(t, "SYS_003", encErr.Code)
	assert.Equal(t, 500, encErr.HTTPStatus)
}

func TestRateLimitError(t *testing.T) {
	err := ErrRateLimitExceeded()
	assert.Equal(t, "RATE_001", err.Code)
	assert.Equal(t, 429, err.HTTPStatus)
}
