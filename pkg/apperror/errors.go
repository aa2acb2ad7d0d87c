package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error carrying a stable code and the message shown to the user.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (never shown to the user)
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

// CodeOf returns the code of the first AppError in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Wallet (WAL) ----

func ErrDuplicateWallet() *AppError {
	return New("WAL_001", "You already have a wallet.", http.StatusConflict)
}

func ErrWalletNotFound() *AppError {
	return New("WAL_002", "No wallet found. Please create one using `/wallet new`.", http.StatusNotFound)
}

// ---- Key custody (KEY) ----

func ErrKeyFormat(err error) *AppError {
	return Wrap("KEY_001", "Stored key material could not be read. Please contact support.", http.StatusInternalServerError, err)
}

// ---- Transfers (TX) ----

func ErrInvalidAmount() *AppError {
	return New("TX_001", "Invalid amount. Please enter a positive number.", http.StatusBadRequest)
}

func ErrInvalidAddress() *AppError {
	return New("TX_002", "Invalid Solana wallet address.", http.StatusBadRequest)
}

func ErrInsufficientFunds() *AppError {
	return New("TX_003", "Insufficient balance.", http.StatusPaymentRequired)
}

func ErrTransferFailed(err error) *AppError {
	return Wrap("TX_004", "An error occurred while processing your withdrawal.", http.StatusBadGateway, err)
}

// ---- Fee policy (FEE) ----

func ErrInvalidPriority() *AppError {
	return New("FEE_001", "Usage: `/fee <priority>` (e.g., a number or one of the following: very_high, high, medium)", http.StatusBadRequest)
}

// ---- Chain reads (CHAIN) ----

func ErrBalanceQuery(err error) *AppError {
	return Wrap("CHAIN_001", "An error occurred while fetching your wallet balance. Please try again later.", http.StatusBadGateway, err)
}

// ---- Swaps (SWAP) ----

func ErrNoQuote(err error) *AppError {
	return Wrap("SWAP_001", "No route found for this swap.", http.StatusBadGateway, err)
}

func ErrSwapBuild(err error) *AppError {
	return Wrap("SWAP_002", "The aggregator could not build a swap transaction.", http.StatusBadGateway, err)
}

func ErrTransactionFormat(err error) *AppError {
	return Wrap("SWAP_003", "The swap transaction could not be decoded or signed.", http.StatusBadGateway, err)
}

func ErrSubmission(err error) *AppError {
	return Wrap("SWAP_004", "The transaction could not be submitted to the network.", http.StatusBadGateway, err)
}

func ErrInvalidSlippage() *AppError {
	return New("SWAP_005", "Slippage must be a whole number of basis points between 1 and 10000.", http.StatusBadRequest)
}

func ErrInvalidAsset(asset string) *AppError {
	return New("SWAP_006", fmt.Sprintf("Unknown asset %q. Use SOL, USDC or a token mint address.", asset), http.StatusBadRequest)
}

// ---- Gateway security (SEC) ----

func ErrInvalidSignature() *AppError {
	return New("SEC_001", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_002", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_003", "Nonce has already been used", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "You're sending commands too quickly. Please wait a moment.", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Another request for your wallet is still running. Please try again.", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "An error occurred while processing your request. Please try again.", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("REQ_001", message, http.StatusBadRequest)
}
