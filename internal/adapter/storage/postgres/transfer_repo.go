package postgres

import (
	"context"
	"fmt"
	"time"

	"custodial-wallet-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransferRepo implements ports.TransferRepository.
type TransferRepo struct {
	pool Pool
}

// NewTransferRepo creates a new TransferRepo.
func NewTransferRepo(pool Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

// Create inserts a transfer, normally in PENDING state before submission.
func (r *TransferRepo) Create(ctx context.Context, t *domain.Transfer) error {
	query := `INSERT INTO transfers (id, user_id, destination, amount, lamports, signature, status, error, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.UserID, t.Destination, t.Amount, t.Lamports,
		nullString(t.Signature), string(t.Status), nullString(t.Error),
		t.CreatedAt, t.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// SetSignature records the signature as soon as the chain accepted the transaction.
func (r *TransferRepo) SetSignature(ctx context.Context, id uuid.UUID, signature string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE transfers SET signature = $1 WHERE id = $2`, signature, id)
	if err != nil {
		return fmt.Errorf("set transfer signature: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer not found: %s", id)
	}
	return nil
}

// MarkConfirmed flips a PENDING transfer to CONFIRMED inside the debit transaction.
func (r *TransferRepo) MarkConfirmed(ctx context.Context, tx pgx.Tx, id uuid.UUID, confirmedAt time.Time) error {
	query := `UPDATE transfers SET status = $1, confirmed_at = $2 WHERE id = $3 AND status = $4`

	tag, err := tx.Exec(ctx, query,
		string(domain.TransferStatusConfirmed), confirmedAt, id, string(domain.TransferStatusPending),
	)
	if err != nil {
		return fmt.Errorf("confirm transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending transfer not found: %s", id)
	}
	return nil
}

// MarkFailed flips a PENDING transfer to FAILED with the reason.
func (r *TransferRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE transfers SET status = $1, error = $2 WHERE id = $3 AND status = $4`

	_, err := r.pool.Exec(ctx, query,
		string(domain.TransferStatusFailed), reason, id, string(domain.TransferStatusPending),
	)
	if err != nil {
		return fmt.Errorf("fail transfer: %w", err)
	}
	return nil
}

// ListPending returns transfers still PENDING that were created before olderThan,
// oldest first. Operators use it to reconcile withdrawals interrupted by a crash.
func (r *TransferRepo) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error) {
	query := `SELECT id, user_id, destination, amount, lamports, COALESCE(signature, ''), status, COALESCE(error, ''), created_at, confirmed_at
		FROM transfers WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3`

	rows, err := r.pool.Query(ctx, query, string(domain.TransferStatusPending), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	defer rows.Close()

	var out []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		var status string
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Destination, &t.Amount, &t.Lamports,
			&t.Signature, &status, &t.Error, &t.CreatedAt, &t.ConfirmedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending transfer: %w", err)
		}
		t.Status = domain.TransferStatus(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending transfers: %w", err)
	}
	return out, nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
