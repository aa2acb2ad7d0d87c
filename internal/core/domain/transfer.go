package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferStatus represents the lifecycle state of a withdrawal.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusConfirmed TransferStatus = "CONFIRMED"
	TransferStatusFailed    TransferStatus = "FAILED"
)

// Transfer records a native SOL withdrawal from a custodial wallet. A PENDING row is
// written before submission so an interrupted withdrawal can be reconciled by signature.
type Transfer struct {
	ID          uuid.UUID      `json:"id"`
	UserID      string         `json:"user_id"`
	Destination string         `json:"destination"`
	Amount      string         `json:"amount"` // display SOL
	Lamports    uint64         `json:"lamports"`
	Signature   string         `json:"signature,omitempty"`
	Status      TransferStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ConfirmedAt *time.Time     `json:"confirmed_at,omitempty"`
}

// IsTerminal returns true if the transfer is in a final state.
func (t *Transfer) IsTerminal() bool {
	return t.Status == TransferStatusConfirmed || t.Status == TransferStatusFailed
}
