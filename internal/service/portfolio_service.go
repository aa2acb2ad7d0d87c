package service

import (
	"context"
	"strings"

	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PortfolioServiceImpl implements ports.PortfolioService.
type PortfolioServiceImpl struct {
	tokens ports.TokenInfoProvider
	log    zerolog.Logger
}

// NewPortfolioService creates a new PortfolioServiceImpl.
func NewPortfolioService(tokens ports.TokenInfoProvider, log zerolog.Logger) *PortfolioServiceImpl {
	return &PortfolioServiceImpl{tokens: tokens, log: log}
}

// Report fetches metadata, price and supply figures concurrently. If any of the three
// is unavailable the whole report is (nil, nil) so nothing partial is rendered.
func (s *PortfolioServiceImpl) Report(ctx context.Context, tokenAddress string) (*domain.TokenReport, error) {
	address := strings.TrimSpace(tokenAddress)
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return nil, nil
	}

	var (
		info     *domain.TokenInfo
		price    *domain.TokenPrice
		extended *domain.TokenExtendedInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		info, err = s.tokens.GetInfo(gctx, address)
		return err
	})
	g.Go(func() (err error) {
		price, err = s.tokens.GetPrice(gctx, address)
		return err
	})
	g.Go(func() (err error) {
		extended, err = s.tokens.GetExtendedInfo(gctx, address)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Warn().Err(err).Str("token", address).Msg("token data unavailable")
		return nil, nil
	}
	if info == nil || price == nil || extended == nil {
		return nil, nil
	}

	return &domain.TokenReport{Info: *info, Price: *price, Extended: *extended}, nil
}
