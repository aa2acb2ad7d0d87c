package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"custodial-wallet-engine/internal/adapter/metrics"
	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/pkg/apperror"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxSlippageBps = 10_000

// SwapConfig holds the swap orchestrator knobs.
type SwapConfig struct {
	SubmitTimeout time.Duration
	Confirm       ConfirmPolicy
}

// SwapServiceImpl implements ports.SwapService.
//
// A swap walks REQUESTED, QUOTED, BUILT, SIGNED, SUBMITTED, CONFIRMED. Every step is
// persisted and announced to the user. Any failure moves it to FAILED with the error
// code of the step. The cached wallet balance is never touched; the next balance
// refresh picks up the result.
type SwapServiceImpl struct {
	wallets    ports.WalletRepository
	swaps      ports.SwapRepository
	custody    ports.KeyCustody
	chain      ports.ChainClient
	aggregator ports.Aggregator
	notifier   ports.Notifier
	audit      ports.AuditService
	cfg        SwapConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewSwapService creates a new SwapServiceImpl.
func NewSwapService(
	wallets ports.WalletRepository,
	swaps ports.SwapRepository,
	custody ports.KeyCustody,
	chain ports.ChainClient,
	aggregator ports.Aggregator,
	notifier ports.Notifier,
	audit ports.AuditService,
	cfg SwapConfig,
	log zerolog.Logger,
) *SwapServiceImpl {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 90 * time.Second
	}
	return &SwapServiceImpl{
		wallets:    wallets,
		swaps:      swaps,
		custody:    custody,
		chain:      chain,
		aggregator: aggregator,
		notifier:   notifier,
		audit:      audit,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Swap runs one swap to completion. A swap still unconfirmed when polling ends is
// returned in SUBMITTED with its signature and no error.
func (s *SwapServiceImpl) Swap(ctx context.Context, req ports.SwapRequest) (*domain.Swap, error) {
	inputMint, err := parseMint(req.InputAsset)
	if err != nil {
		return nil, err
	}
	outputMint, err := parseMint(req.OutputAsset)
	if err != nil {
		return nil, err
	}
	if inputMint.Equals(outputMint) {
		return nil, apperror.Validation("Input and output assets must be different.")
	}
	if req.SlippageBps < 1 || req.SlippageBps > maxSlippageBps {
		return nil, apperror.ErrInvalidSlippage()
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	w, err := s.wallets.FindByUser(ctx, req.UserID)
	if err != nil {
		return nil, dbError(err)
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	owner, err := solana.PublicKeyFromBase58(w.PublicKey)
	if err != nil {
		return nil, apperror.ErrKeyFormat(fmt.Errorf("stored public key: %w", err))
	}
	key, err := s.custody.Open(w.EncryptedSecret)
	if err != nil {
		return nil, err
	}

	// Looked up before Create so amount_in is stored with the row.
	decimals, decErr := s.decimals(ctx, inputMint)
	var amountIn uint64
	if decErr == nil {
		amountIn, _ = domain.ToBaseUnits(amount, decimals)
	}

	now := s.now().UTC()
	swap := &domain.Swap{
		ID:          uuid.New(),
		UserID:      req.UserID,
		InputMint:   inputMint.String(),
		OutputMint:  outputMint.String(),
		Amount:      amount.String(),
		AmountIn:    amountIn,
		SlippageBps: uint16(req.SlippageBps),
		State:       domain.SwapStateRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.swaps.Create(ctx, swap); err != nil {
		return nil, dbError(err)
	}

	log := s.log.With().Str("user_id", req.UserID).Str("swap_id", swap.ID.String()).Logger()
	s.notify(ctx, swap, fmt.Sprintf("Swap requested: %s %s for %s (slippage %d bps).",
		swap.Amount, assetLabel(req.InputAsset), assetLabel(req.OutputAsset), req.SlippageBps))

	if decErr != nil {
		return swap, s.fail(ctx, swap, apperror.ErrNoQuote(fmt.Errorf("input token decimals: %w", decErr)))
	}
	if amountIn == 0 {
		return swap, s.fail(ctx, swap, apperror.ErrInvalidAmount())
	}

	// REQUESTED -> QUOTED
	quote, err := s.aggregator.Quote(ctx, ports.QuoteRequest{
		InputMint:   swap.InputMint,
		OutputMint:  swap.OutputMint,
		Amount:      amountIn,
		SlippageBps: swap.SlippageBps,
	})
	if err != nil {
		return swap, s.fail(ctx, swap, apperror.ErrNoQuote(err))
	}
	swap.QuotedOut = quote.OutAmount
	s.advance(ctx, swap, domain.SwapStateQuoted, fmt.Sprintf("Quote received: about %s %s.",
		s.displayOut(ctx, outputMint, quote.OutAmount), assetLabel(req.OutputAsset)))

	// QUOTED -> BUILT
	encoded, err := s.aggregator.BuildSwap(ctx, quote, owner.String(), w.FeeLamports)
	if err != nil {
		return swap, s.fail(ctx, swap, apperror.ErrSwapBuild(err))
	}
	s.advance(ctx, swap, domain.SwapStateBuilt, "Swap transaction built.")

	// BUILT -> SIGNED
	tx, err := decodeTransaction(encoded)
	if err != nil {
		return swap, s.fail(ctx, swap, apperror.ErrTransactionFormat(err))
	}
	if err := cosign(tx, owner, key); err != nil {
		return swap, s.fail(ctx, swap, apperror.ErrTransactionFormat(err))
	}
	s.advance(ctx, swap, domain.SwapStateSigned, "Swap transaction signed.")

	// SIGNED -> SUBMITTED. Not cancellable from here on.
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SubmitTimeout)
	defer cancel()

	sig, err := s.chain.SendTransaction(submitCtx, tx)
	if err != nil {
		return swap, s.fail(submitCtx, swap, apperror.ErrSubmission(err))
	}
	swap.Signature = sig.String()
	s.advance(submitCtx, swap, domain.SwapStateSubmitted, "Swap submitted: "+swap.Signature)
	log.Info().Str("signature", swap.Signature).Uint64("amount_in", amountIn).Msg("swap submitted")

	s.audit.Log(ctx, &domain.AuditLog{
		UserID:       req.UserID,
		Action:       domain.AuditActionSwap,
		ResourceType: "swap",
		ResourceID:   swap.ID.String(),
		Details:      fmt.Sprintf(`{"input_mint":%q,"output_mint":%q,"amount_in":%d,"signature":%q}`, swap.InputMint, swap.OutputMint, amountIn, swap.Signature),
		CreatedAt:    s.now().UTC(),
	})

	// SUBMITTED -> CONFIRMED
	err = awaitConfirmation(submitCtx, s.chain, sig, s.cfg.Confirm)
	var rejected *ChainRejectedError
	switch {
	case err == nil:
		s.advance(submitCtx, swap, domain.SwapStateConfirmed, "Swap confirmed: "+swap.Signature)
		log.Info().Str("signature", swap.Signature).Msg("swap confirmed")
	case errors.As(err, &rejected):
		return swap, s.fail(submitCtx, swap, apperror.ErrSubmission(err))
	default:
		log.Warn().Err(err).Str("signature", swap.Signature).Msg("swap not confirmed before polling ended")
		metrics.SwapsTotal.WithLabelValues(string(domain.SwapStateSubmitted)).Inc()
	}
	return swap, nil
}

// advance records a transition. A persistence failure is logged and the swap continues,
// since the chain side cannot be rolled back.
func (s *SwapServiceImpl) advance(ctx context.Context, swap *domain.Swap, next domain.SwapState, message string) {
	if err := swap.Advance(next, s.now().UTC()); err != nil {
		s.log.Error().Err(err).Str("swap_id", swap.ID.String()).Msg("invalid swap transition")
		return
	}
	if err := s.swaps.Update(ctx, swap); err != nil {
		s.log.Error().Err(err).Str("swap_id", swap.ID.String()).Str("state", string(next)).Msg("failed to persist swap state")
	}
	if next == domain.SwapStateConfirmed {
		metrics.SwapsTotal.WithLabelValues(string(next)).Inc()
	}
	s.notify(ctx, swap, message)
}

func (s *SwapServiceImpl) fail(ctx context.Context, swap *domain.Swap, cause *apperror.AppError) error {
	from := swap.State
	swap.Fail(cause.Code, s.now().UTC())
	if err := s.swaps.Update(context.WithoutCancel(ctx), swap); err != nil {
		s.log.Error().Err(err).Str("swap_id", swap.ID.String()).Msg("failed to persist swap failure")
	}
	s.log.Warn().
		Err(cause).
		Str("user_id", swap.UserID).
		Str("swap_id", swap.ID.String()).
		Str("from_state", string(from)).
		Str("code", cause.Code).
		Msg("swap failed")
	metrics.SwapsTotal.WithLabelValues(string(domain.SwapStateFailed)).Inc()
	return cause
}

func (s *SwapServiceImpl) notify(ctx context.Context, swap *domain.Swap, message string) {
	s.notifier.Notify(ctx, swap.UserID, message)
}

func (s *SwapServiceImpl) decimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	if mint.String() == domain.NativeMint {
		return domain.SOLDecimals, nil
	}
	return s.chain.TokenDecimals(ctx, mint)
}

// displayOut renders the quoted output in display units, or raw units if the
// output decimals cannot be read.
func (s *SwapServiceImpl) displayOut(ctx context.Context, mint solana.PublicKey, raw string) string {
	units, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	decimals, err := s.decimals(ctx, mint)
	if err != nil {
		s.log.Debug().Err(err).Str("mint", mint.String()).Msg("output decimals unavailable")
		return raw + " base units of"
	}
	return units.Shift(-int32(decimals)).String()
}

func parseMint(asset string) (solana.PublicKey, error) {
	mint, err := solana.PublicKeyFromBase58(domain.ResolveAsset(asset))
	if err != nil {
		return solana.PublicKey{}, apperror.ErrInvalidAsset(asset)
	}
	return mint, nil
}

func assetLabel(asset string) string {
	if domain.ResolveAsset(asset) != strings.TrimSpace(asset) {
		return strings.ToUpper(strings.TrimSpace(asset))
	}
	return strings.TrimSpace(asset)
}

// decodeTransaction parses the base64 wire transaction returned by the aggregator.
func decodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// cosign places the wallet's signature in its signer slot. Placeholder signatures from
// the aggregator keep their positions.
func cosign(tx *solana.Transaction, owner solana.PublicKey, key solana.PrivateKey) error {
	required := int(tx.Message.Header.NumRequiredSignatures)
	slot := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(owner) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return fmt.Errorf("wallet %s is not a signer of the transaction", owner)
	}

	content, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	sig, err := key.Sign(content)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	if len(tx.Signatures) != required {
		sigs := make([]solana.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	tx.Signatures[slot] = sig
	return nil
}
