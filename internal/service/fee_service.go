package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultFeeTiers are the named priorities in SOL.
var DefaultFeeTiers = map[string]string{
	"very_high": "0.01",
	"high":      "0.005",
	"medium":    "0.001",
}

// FeeServiceImpl implements ports.FeeService.
type FeeServiceImpl struct {
	tiers   map[string]decimal.Decimal
	wallets ports.WalletRepository
	locker  ports.UserLocker
	audit   ports.AuditService
	log     zerolog.Logger
	now     func() time.Time
}

// NewFeeService parses the configured tiers. Tier names are matched case-insensitively.
func NewFeeService(tiers map[string]string, wallets ports.WalletRepository, locker ports.UserLocker, audit ports.AuditService, log zerolog.Logger) (*FeeServiceImpl, error) {
	if len(tiers) == 0 {
		tiers = DefaultFeeTiers
	}
	parsed := make(map[string]decimal.Decimal, len(tiers))
	for name, v := range tiers {
		d, err := decimal.NewFromString(v)
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("fee tier %q: invalid amount %q", name, v)
		}
		parsed[strings.ToLower(name)] = d
	}
	return &FeeServiceImpl{
		tiers:   parsed,
		wallets: wallets,
		locker:  locker,
		audit:   audit,
		log:     log,
		now:     time.Now,
	}, nil
}

// ResolvePriority accepts a positive number of SOL or a tier name.
func (s *FeeServiceImpl) ResolvePriority(input string) (decimal.Decimal, error) {
	input = strings.TrimSpace(input)
	if fee, ok := s.tiers[strings.ToLower(input)]; ok {
		return fee, nil
	}
	fee, err := decimal.NewFromString(input)
	if err != nil || !fee.IsPositive() {
		return decimal.Zero, apperror.ErrInvalidPriority()
	}
	return fee, nil
}

// Apply persists fee on the wallet as lamports. The caller holds the user lock.
// The returned value is what was stored, after truncation to whole lamports.
func (s *FeeServiceImpl) Apply(ctx context.Context, w *domain.Wallet, fee decimal.Decimal) (decimal.Decimal, error) {
	lamports, err := domain.SOLToLamports(fee)
	if err != nil || lamports == 0 {
		return decimal.Zero, apperror.ErrInvalidPriority()
	}

	prev, prevUpdated := w.FeeLamports, w.UpdatedAt
	w.FeeLamports = lamports
	w.UpdatedAt = s.now().UTC()
	if err := s.wallets.Save(ctx, w); err != nil {
		w.FeeLamports, w.UpdatedAt = prev, prevUpdated
		return decimal.Zero, dbError(err)
	}
	return w.FeeSOL(), nil
}

// SetPriority resolves input and applies it to the user's wallet under the user lock.
func (s *FeeServiceImpl) SetPriority(ctx context.Context, userID string, input string) (decimal.Decimal, error) {
	fee, err := s.ResolvePriority(input)
	if err != nil {
		return decimal.Zero, err
	}

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	w, err := s.wallets.FindByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, dbError(err)
	}
	if w == nil {
		return decimal.Zero, apperror.ErrWalletNotFound()
	}

	applied, err := s.Apply(ctx, w, fee)
	if err != nil {
		return decimal.Zero, err
	}

	s.audit.Log(ctx, &domain.AuditLog{
		UserID:       userID,
		Action:       domain.AuditActionFeeUpdate,
		ResourceType: "wallet",
		ResourceID:   w.PublicKey,
		Details:      fmt.Sprintf(`{"fee_lamports":%d}`, w.FeeLamports),
		CreatedAt:    w.UpdatedAt,
	})
	s.log.Info().Str("user_id", userID).Uint64("fee_lamports", w.FeeLamports).Msg("priority fee updated")
	return applied, nil
}
