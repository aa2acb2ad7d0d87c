package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"custodial-wallet-engine/internal/core/domain"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// KeyCustody generates custodial keypairs and converts them to and from their sealed form.
type KeyCustody interface {
	Generate() (solana.PrivateKey, error)
	Seal(key solana.PrivateKey) (string, error)
	Open(sealed string) (solana.PrivateKey, error)
	ExportHex(sealed string) (string, error)
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}

// TokenCache is a short-lived byte cache for price/metadata lookups.
type TokenCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil on miss
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// UserLocker serializes operations that mutate one user's wallet.
// The returned unlock func must be called exactly once.
type UserLocker interface {
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

// Notifier delivers a text message to a chat user. Delivery failures are
// handled by the implementation and never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, userID string, text string)
}

// AuditService records audit entries without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// WalletService covers wallet show, new and export.
type WalletService interface {
	Show(ctx context.Context, userID string) (*WalletView, error)
	Create(ctx context.Context, userID string) (*domain.Wallet, error)
	Export(ctx context.Context, userID string) (string, error)
}

// WalletView is what `wallet show` reports.
type WalletView struct {
	PublicKey string
	Balance   string
	FeeSOL    string
	Stale     bool // chain read failed, Balance is the cached figure
}

// BalanceReconciler refreshes the cached balance from the chain.
type BalanceReconciler interface {
	Refresh(ctx context.Context, wallet *domain.Wallet) (string, error)
}

// FeeService resolves and persists the per-wallet priority fee.
type FeeService interface {
	ResolvePriority(input string) (decimal.Decimal, error)
	Apply(ctx context.Context, wallet *domain.Wallet, fee decimal.Decimal) (decimal.Decimal, error)
	SetPriority(ctx context.Context, userID string, input string) (decimal.Decimal, error)
}

// TransferService withdraws native SOL from a custodial wallet.
type TransferService interface {
	Withdraw(ctx context.Context, userID, destination, amount string) (*domain.Transfer, error)
}

// SwapService runs a swap through the aggregator state machine.
type SwapService interface {
	Swap(ctx context.Context, req SwapRequest) (*domain.Swap, error)
}

// SwapRequest holds the raw swap arguments of one user command.
type SwapRequest struct {
	UserID      string
	InputAsset  string
	OutputAsset string
	Amount      string
	SlippageBps int
}

// PortfolioService looks up token price and metadata.
// Report returns (nil, nil) when any part of the data is unavailable.
type PortfolioService interface {
	Report(ctx context.Context, tokenAddress string) (*domain.TokenReport, error)
}
