package service

import (
	"context"
	"time"

	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	wallets    ports.WalletRepository
	custody    ports.KeyCustody
	reconciler ports.BalanceReconciler
	locker     ports.UserLocker
	audit      ports.AuditService
	log        zerolog.Logger
	now        func() time.Time
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	wallets ports.WalletRepository,
	custody ports.KeyCustody,
	reconciler ports.BalanceReconciler,
	locker ports.UserLocker,
	audit ports.AuditService,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		wallets:    wallets,
		custody:    custody,
		reconciler: reconciler,
		locker:     locker,
		audit:      audit,
		log:        log,
		now:        time.Now,
	}
}

// Show refreshes the cached balance from the chain under the user lock. When the
// chain read fails the cached figure is returned with Stale set.
func (s *WalletServiceImpl) Show(ctx context.Context, userID string) (*ports.WalletView, error) {
	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	w, err := s.findWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &ports.WalletView{
		PublicKey: w.PublicKey,
		Balance:   w.Balance,
		FeeSOL:    domain.FormatSOL(w.FeeSOL()),
	}

	balance, err := s.reconciler.Refresh(ctx, w)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("balance refresh failed, showing cached balance")
		view.Stale = true
		return view, nil
	}
	view.Balance = balance
	return view, nil
}

// Create generates, seals and stores a keypair. A second call for the same user
// fails with WAL_001 and leaves the stored wallet unchanged.
func (s *WalletServiceImpl) Create(ctx context.Context, userID string) (*domain.Wallet, error) {
	existing, err := s.wallets.FindByUser(ctx, userID)
	if err != nil {
		return nil, dbError(err)
	}
	if existing != nil {
		return nil, apperror.ErrDuplicateWallet()
	}

	key, err := s.custody.Generate()
	if err != nil {
		return nil, err
	}
	sealed, err := s.custody.Seal(key)
	if err != nil {
		return nil, err
	}

	w := domain.NewWallet(userID, key.PublicKey().String(), sealed, s.now().UTC())
	if err := s.wallets.Create(ctx, w); err != nil {
		return nil, dbError(err)
	}

	s.audit.Log(ctx, &domain.AuditLog{
		UserID:       userID,
		Action:       domain.AuditActionWalletCreate,
		ResourceType: "wallet",
		ResourceID:   w.PublicKey,
		CreatedAt:    w.CreatedAt,
	})
	s.log.Info().Str("user_id", userID).Str("public_key", w.PublicKey).Msg("wallet created")
	return w, nil
}

// Export returns the private key as hex. Every call is audited.
func (s *WalletServiceImpl) Export(ctx context.Context, userID string) (string, error) {
	w, err := s.findWallet(ctx, userID)
	if err != nil {
		return "", err
	}

	out, err := s.custody.ExportHex(w.EncryptedSecret)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("key export failed")
		return "", err
	}

	s.audit.Log(ctx, &domain.AuditLog{
		UserID:       userID,
		Action:       domain.AuditActionKeyExport,
		ResourceType: "wallet",
		ResourceID:   w.PublicKey,
		CreatedAt:    s.now().UTC(),
	})
	s.log.Warn().Str("user_id", userID).Msg("private key exported")
	return out, nil
}

func (s *WalletServiceImpl) findWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	w, err := s.wallets.FindByUser(ctx, userID)
	if err != nil {
		return nil, dbError(err)
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}
