package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"custodial-wallet-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for custodial wallets.
// FindByUser returns (nil, nil) when the user has no wallet.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	FindByUser(ctx context.Context, userID string) (*domain.Wallet, error)
	Save(ctx context.Context, wallet *domain.Wallet) error
	FindByUserForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, userID string, balance string) error
}

// TransferRepository persists withdrawal records.
type TransferRepository interface {
	Create(ctx context.Context, transfer *domain.Transfer) error
	SetSignature(ctx context.Context, id uuid.UUID, signature string) error
	MarkConfirmed(ctx context.Context, tx pgx.Tx, id uuid.UUID, confirmedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error)
}

// SwapRepository persists swap state on every transition.
type SwapRepository interface {
	Create(ctx context.Context, swap *domain.Swap) error
	Update(ctx context.Context, swap *domain.Swap) error
}

// AuditRepository appends audit log rows.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
