package service

import (
	"context"
	"fmt"
	"time"

	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/pkg/apperror"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

// Reconciler implements ports.BalanceReconciler. Callers hold the user lock.
type Reconciler struct {
	chain   ports.ChainClient
	wallets ports.WalletRepository
	log     zerolog.Logger
	now     func() time.Time
}

func NewReconciler(chain ports.ChainClient, wallets ports.WalletRepository, log zerolog.Logger) *Reconciler {
	return &Reconciler{chain: chain, wallets: wallets, log: log, now: time.Now}
}

// Refresh reads the chain balance and persists it only when the display value changed.
// On failure the wallet is left untouched.
func (r *Reconciler) Refresh(ctx context.Context, w *domain.Wallet) (string, error) {
	pk, err := solana.PublicKeyFromBase58(w.PublicKey)
	if err != nil {
		return "", apperror.ErrBalanceQuery(fmt.Errorf("parse public key: %w", err))
	}

	lamports, err := r.chain.GetBalance(ctx, pk)
	if err != nil {
		return "", apperror.ErrBalanceQuery(err)
	}

	display := domain.FormatLamports(lamports)
	if display == w.Balance {
		return display, nil
	}

	prev, prevUpdated := w.Balance, w.UpdatedAt
	w.Balance = display
	w.UpdatedAt = r.now().UTC()
	if err := r.wallets.Save(ctx, w); err != nil {
		w.Balance, w.UpdatedAt = prev, prevUpdated
		return "", dbError(err)
	}

	r.log.Debug().
		Str("user_id", w.UserID).
		Str("previous", prev).
		Str("balance", display).
		Msg("cached balance reconciled")
	return display, nil
}
