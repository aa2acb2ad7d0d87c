package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionWalletCreate  AuditAction = "WALLET_CREATE"
	AuditActionKeyExport     AuditAction = "KEY_EXPORT"
	AuditActionWithdraw      AuditAction = "WITHDRAW"
	AuditActionFeeUpdate     AuditAction = "FEE_UPDATE"
	AuditActionSwap          AuditAction = "SWAP"
	AuditActionGatewayReject AuditAction = "GATEWAY_REJECT"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	UserID       string      `json:"user_id"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time   `json:"created_at"`
}
