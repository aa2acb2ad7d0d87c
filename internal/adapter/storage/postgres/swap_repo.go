package postgres

import (
	"context"
	"fmt"

	"custodial-wallet-engine/internal/core/domain"
)

// SwapRepo implements ports.SwapRepository.
type SwapRepo struct {
	pool Pool
}

// NewSwapRepo creates a new SwapRepo.
func NewSwapRepo(pool Pool) *SwapRepo {
	return &SwapRepo{pool: pool}
}

// Create inserts a swap in its REQUESTED state.
func (r *SwapRepo) Create(ctx context.Context, s *domain.Swap) error {
	query := `INSERT INTO swaps (id, user_id, input_mint, output_mint, amount, amount_in, slippage_bps,
			quoted_out, state, signature, error_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.InputMint, s.OutputMint, s.Amount, s.AmountIn, int32(s.SlippageBps),
		nullString(s.QuotedOut), string(s.State), nullString(s.Signature), nullString(s.ErrorCode),
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert swap: %w", err)
	}
	return nil
}

// Update writes the current state of a swap.
func (r *SwapRepo) Update(ctx context.Context, s *domain.Swap) error {
	query := `UPDATE swaps SET state = $1, quoted_out = $2, signature = $3, error_code = $4, updated_at = $5
		WHERE id = $6`

	tag, err := r.pool.Exec(ctx, query,
		string(s.State), nullString(s.QuotedOut), nullString(s.Signature), nullString(s.ErrorCode),
		s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update swap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("swap not found: %s", s.ID)
	}
	return nil
}
