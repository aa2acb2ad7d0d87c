package postgres

import (
	"context"
	"errors"
	"fmt"

	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, user_id, public_key, encrypted_secret, balance, fee_lamports, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet. A second wallet for the same user or key is rejected
// by the unique constraints and reported as a duplicate.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.UserID, w.PublicKey, w.EncryptedSecret,
		w.Balance, w.FeeLamports, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			dup := apperror.ErrDuplicateWallet()
			dup.Err = err
			return dup
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// FindByUser fetches the wallet of a user (non-locking read).
func (r *WalletRepo) FindByUser(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by user: %w", err)
	}
	return w, nil
}

// FindByUserForUpdate fetches the wallet with a row lock.
// This MUST be called within a transaction.
func (r *WalletRepo) FindByUserForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by user: %w", err)
	}
	return w, nil
}

// Save persists the mutable fields of a wallet. Last writer wins; callers hold the user lock.
func (r *WalletRepo) Save(ctx context.Context, w *domain.Wallet) error {
	query := `UPDATE wallets SET balance = $1, fee_lamports = $2, updated_at = $3 WHERE user_id = $4`

	tag, err := r.pool.Exec(ctx, query, w.Balance, w.FeeLamports, w.UpdatedAt, w.UserID)
	if err != nil {
		return fmt.Errorf("save wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", w.UserID)
	}
	return nil
}

// UpdateBalance updates the cached balance within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, userID string, balance string) error {
	query := `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE user_id = $2`

	tag, err := tx.Exec(ctx, query, balance, userID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	return nil
}

// scanWallet returns (nil, nil) when the row does not exist.
func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.UserID, &w.PublicKey, &w.EncryptedSecret,
		&w.Balance, &w.FeeLamports, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
