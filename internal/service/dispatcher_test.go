package service

import (
	"context"
	"errors"
	"testing"

	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/internal/core/ports/mocks"
	"custodial-wallet-engine/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type dispatcherDeps struct {
	d         *Dispatcher
	wallets   *mocks.MockWalletService
	fees      *mocks.MockFeeService
	transfers *mocks.MockTransferService
	swaps     *mocks.MockSwapService
	portfolio *mocks.MockPortfolioService
	notifier  *notifyRecorder
}

func setupDispatcher(t *testing.T) *dispatcherDeps {
	ctrl := gomock.NewController(t)
	deps := &dispatcherDeps{
		wallets:   mocks.NewMockWalletService(ctrl),
		fees:      mocks.NewMockFeeService(ctrl),
		transfers: mocks.NewMockTransferService(ctrl),
		swaps:     mocks.NewMockSwapService(ctrl),
		portfolio: mocks.NewMockPortfolioService(ctrl),
		notifier:  &notifyRecorder{},
	}
	deps.d = NewDispatcher(deps.wallets, deps.fees, deps.transfers, deps.swaps, deps.portfolio, deps.notifier, newTestLogger())
	return deps
}

func (deps *dispatcherDeps) run(content string) string {
	replies := deps.d.Dispatch(context.Background(), Command{UserID: "user-1", Username: "alice", Content: content})
	if len(replies) != 1 {
		return ""
	}
	return replies[0]
}

func TestDispatch_WalletShow(t *testing.T) {
	for _, content := range []string{"/wallet show", "wallet show", "  /WALLET Show  "} {
		t.Run(content, func(t *testing.T) {
			deps := setupDispatcher(t)
			deps.wallets.EXPECT().Show(gomock.Any(), "user-1").Return(&ports.WalletView{PublicKey: "PK", Balance: "2.5000"}, nil)

			reply := deps.run(content)
			assert.Equal(t, "Hey @alice, here’s your wallet info:\nPublic Key: `PK`\nBalance: 2.5000 SOL", reply)
			assert.Equal(t, []string{reply}, deps.notifier.messages)
		})
	}
}

func TestDispatch_WalletShow_Stale(t *testing.T) {
	deps := setupDispatcher(t)
	deps.wallets.EXPECT().Show(gomock.Any(), "user-1").Return(&ports.WalletView{PublicKey: "PK", Balance: "1.0000", Stale: true}, nil)

	assert.Contains(t, deps.run("wallet show"), "last known value")
}

func TestDispatch_WalletNewAndExport(t *testing.T) {
	deps := setupDispatcher(t)
	deps.wallets.EXPECT().Create(gomock.Any(), "user-1").Return(&domain.Wallet{PublicKey: "PK"}, nil)
	deps.wallets.EXPECT().Export(gomock.Any(), "user-1").Return("abcdef", nil)

	assert.Equal(t, "Hey @alice, your new wallet has been created!\nPublic Key: `PK`", deps.run("/wallet new"))
	assert.Equal(t, "Hey @alice, your Private Key: `abcdef`", deps.run("/wallet export"))
}

func TestDispatch_Withdraw(t *testing.T) {
	deps := setupDispatcher(t)
	deps.transfers.EXPECT().Withdraw(gomock.Any(), "user-1", destAddress, "0.5").Return(&domain.Transfer{}, nil)

	assert.Equal(t, "Hey @alice, successfully withdrew 0.5 SOL to "+destAddress+".", deps.run("/wallet withdraw "+destAddress+" 0.5"))
}

func TestDispatch_UsageMessages(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"/wallet withdraw", withdrawUsage},
		{"/wallet withdraw " + destAddress, withdrawUsage},
		{"/portfolio", portfolioUsage},
		{"/swap SOL USDC 1", swapUsage},
		{"/fee", apperror.ErrInvalidPriority().Message},
		{"/wallet", helpMessage},
		{"/wallet burn", helpMessage},
		{"/hello", helpMessage},
		{"", helpMessage},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			deps := setupDispatcher(t)
			assert.Equal(t, tt.want, deps.run(tt.content))
		})
	}
}

func TestDispatch_Fee(t *testing.T) {
	deps := setupDispatcher(t)
	deps.fees.EXPECT().SetPriority(gomock.Any(), "user-1", "very_high").Return(decimal.RequireFromString("0.01"), nil)

	assert.Equal(t, `Priority fee set to 0.0100 SOL based on the selected priority: "0.01".`, deps.run("/fee very_high"))
}

func TestDispatch_ErrorsBecomeMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"app error", apperror.ErrWalletNotFound(), "No wallet found. Please create one using `/wallet new`."},
		{"wrapped app error", errors.Join(errors.New("ctx"), apperror.ErrInsufficientFunds()), "Insufficient balance."},
		{"unknown error", errors.New("nil pointer somewhere"), genericError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := setupDispatcher(t)
			deps.wallets.EXPECT().Export(gomock.Any(), "user-1").Return("", tt.err)

			assert.Equal(t, tt.want, deps.run("/wallet export"))
			require.Len(t, deps.notifier.messages, 1)
		})
	}
}

func TestDispatch_Portfolio(t *testing.T) {
	deps := setupDispatcher(t)
	deps.portfolio.EXPECT().Report(gomock.Any(), bonkMint).Return(&domain.TokenReport{
		Info:     domain.TokenInfo{Name: "Bonk", Symbol: "BONK"},
		Price:    domain.TokenPrice{Price: 0.000021, Variation24h: -3.5},
		Extended: domain.TokenExtendedInfo{MarketCap: 1400000000, FDV: 1500000000, Holders: 812000},
	}, nil)

	reply := deps.run("/portfolio " + bonkMint)
	assert.Contains(t, reply, "Bonk (BONK)")
	assert.Contains(t, reply, "Price: $0.000021 (24h -3.50%)")
	assert.Contains(t, reply, "Market cap: $1400000000")
	assert.Contains(t, reply, "Holders: 812000")
}

func TestDispatch_PortfolioNoData(t *testing.T) {
	deps := setupDispatcher(t)
	deps.portfolio.EXPECT().Report(gomock.Any(), bonkMint).Return(nil, nil)

	assert.Equal(t, noTokenData, deps.run("portfolio "+bonkMint))
}

func TestDispatch_Swap(t *testing.T) {
	deps := setupDispatcher(t)
	deps.swaps.EXPECT().Swap(gomock.Any(), ports.SwapRequest{
		UserID: "user-1", InputAsset: "SOL", OutputAsset: "USDC", Amount: "1", SlippageBps: 50,
	}).Return(&domain.Swap{State: domain.SwapStateConfirmed, Signature: "SIG"}, nil)

	assert.Equal(t, "Hey @alice, your swap is complete.\nSignature: `SIG`", deps.run("/swap SOL USDC 1 50"))
}

func TestDispatch_SwapPending(t *testing.T) {
	deps := setupDispatcher(t)
	deps.swaps.EXPECT().Swap(gomock.Any(), gomock.Any()).Return(&domain.Swap{State: domain.SwapStateSubmitted, Signature: "SIG"}, nil)

	assert.Contains(t, deps.run("/swap SOL USDC 1 50"), "not confirmed yet")
}

func TestDispatch_SwapBadSlippage(t *testing.T) {
	deps := setupDispatcher(t)

	assert.Equal(t, apperror.ErrInvalidSlippage().Message, deps.run("/swap SOL USDC 1 half"))
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "wallet withdraw", commandName([]string{"Wallet", "WITHDRAW", "x"}))
	assert.Equal(t, "fee", commandName([]string{"fee"}))
	assert.Equal(t, "unknown", commandName([]string{"drop", "table"}))
	assert.Equal(t, "unknown", commandName(nil))
}
