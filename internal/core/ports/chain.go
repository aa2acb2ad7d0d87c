package ports

//go:generate mockgen -source=chain.go -destination=mocks/mock_chain.go -package=mocks

import (
	"context"
	"encoding/json"

	"custodial-wallet-engine/internal/core/domain"

	"github.com/gagliardetto/solana-go"
)

// ChainClient is the subset of the Solana JSON-RPC API the engine needs.
type ChainClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
	TokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
}

// SignatureStatus is the chain's view of a submitted transaction.
type SignatureStatus struct {
	Found              bool
	ConfirmationStatus string // processed, confirmed, finalized
	Err                string // set when the transaction failed on chain
}

// Confirmed reports whether the transaction reached confirmed or finalized commitment.
func (s *SignatureStatus) Confirmed() bool {
	return s != nil && s.Found && s.Err == "" &&
		(s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized")
}

// Failed reports whether the chain rejected the transaction.
func (s *SignatureStatus) Failed() bool {
	return s != nil && s.Found && s.Err != ""
}

// QuoteRequest asks the aggregator for a route. Amount is in smallest units.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps uint16
}

// Quote is an aggregator route. Raw is echoed back verbatim when building the swap.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       string
	OutAmount      string
	PriceImpactPct string
	Raw            json.RawMessage
}

// Aggregator quotes and builds swap transactions.
type Aggregator interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	// BuildSwap returns the base64 encoded unsigned transaction.
	BuildSwap(ctx context.Context, quote *Quote, userPublicKey string, prioritizationFeeLamports uint64) (string, error)
}

// TokenInfoProvider is the price/metadata collaborator.
type TokenInfoProvider interface {
	GetInfo(ctx context.Context, address string) (*domain.TokenInfo, error)
	GetPrice(ctx context.Context, address string) (*domain.TokenPrice, error)
	GetExtendedInfo(ctx context.Context, address string) (*domain.TokenExtendedInfo, error)
}
