package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is the custodial wallet held for one chat user.
type Wallet struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	PublicKey       string    `json:"public_key"` // base58 address
	EncryptedSecret string    `json:"-"`          // sealed private key, never expose raw
	Balance         string    `json:"balance"`    // cached display balance in SOL, 4 fractional digits
	FeeLamports     uint64    `json:"fee_lamports"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewWallet returns a wallet with a zero cached balance and no priority fee.
func NewWallet(userID, publicKey, encryptedSecret string, now time.Time) *Wallet {
	return &Wallet{
		ID:              uuid.New(),
		UserID:          userID,
		PublicKey:       publicKey,
		EncryptedSecret: encryptedSecret,
		Balance:         FormatSOL(decimal.Zero),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CachedBalance parses the cached display balance. An empty value counts as zero.
func (w *Wallet) CachedBalance() (decimal.Decimal, error) {
	if w.Balance == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(w.Balance)
}

// FeeSOL returns the persisted priority fee in SOL.
func (w *Wallet) FeeSOL() decimal.Decimal {
	return LamportsToSOL(w.FeeLamports)
}
