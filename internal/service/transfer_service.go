package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"custodial-wallet-engine/internal/adapter/metrics"
	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/pkg/apperror"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// transferComputeUnits covers a system transfer plus the two compute budget instructions.
const transferComputeUnits uint32 = 1_000

// recoverBatch caps how many PENDING transfers one recovery pass looks at.
const recoverBatch = 100

// TransferConfig holds the transfer engine knobs.
type TransferConfig struct {
	VerifyOnchainBalance bool
	SubmitTimeout        time.Duration
	Confirm              ConfirmPolicy
}

// TransferServiceImpl implements ports.TransferService.
type TransferServiceImpl struct {
	wallets    ports.WalletRepository
	transfers  ports.TransferRepository
	transactor ports.DBTransactor
	custody    ports.KeyCustody
	chain      ports.ChainClient
	locker     ports.UserLocker
	audit      ports.AuditService
	cfg        TransferConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	wallets ports.WalletRepository,
	transfers ports.TransferRepository,
	transactor ports.DBTransactor,
	custody ports.KeyCustody,
	chain ports.ChainClient,
	locker ports.UserLocker,
	audit ports.AuditService,
	cfg TransferConfig,
	log zerolog.Logger,
) *TransferServiceImpl {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 90 * time.Second
	}
	return &TransferServiceImpl{
		wallets:    wallets,
		transfers:  transfers,
		transactor: transactor,
		custody:    custody,
		chain:      chain,
		locker:     locker,
		audit:      audit,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Withdraw sends amount SOL from the user's custodial wallet to destination.
//
// The whole sequence runs under the user lock. Validation happens before the signer
// is opened. The cached balance is debited only after the chain confirms, inside a
// database transaction that also marks the transfer CONFIRMED. Once the transaction
// is handed to the RPC node the caller's cancellation no longer applies.
func (s *TransferServiceImpl) Withdraw(ctx context.Context, userID, destination, amountInput string) (*domain.Transfer, error) {
	amount, lamports, err := parseSOLAmount(amountInput)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	w, err := s.wallets.FindByUser(ctx, userID)
	if err != nil {
		return nil, dbError(err)
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	cached, err := w.CachedBalance()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("parse cached balance %q: %w", w.Balance, err))
	}
	if amount.GreaterThan(cached) {
		return nil, apperror.ErrInsufficientFunds()
	}

	dest, err := solana.PublicKeyFromBase58(strings.TrimSpace(destination))
	if err != nil {
		return nil, apperror.ErrInvalidAddress()
	}
	from, err := solana.PublicKeyFromBase58(w.PublicKey)
	if err != nil {
		return nil, apperror.ErrKeyFormat(fmt.Errorf("stored public key: %w", err))
	}

	if s.cfg.VerifyOnchainBalance {
		onchain, err := s.chain.GetBalance(ctx, from)
		if err != nil {
			return nil, apperror.ErrBalanceQuery(err)
		}
		if onchain < lamports || onchain-lamports < w.FeeLamports {
			s.log.Warn().
				Str("user_id", userID).
				Str("cached", w.Balance).
				Uint64("onchain_lamports", onchain).
				Uint64("lamports", lamports).
				Msg("cached balance ahead of chain, withdrawal rejected")
			return nil, apperror.ErrInsufficientFunds()
		}
	}

	key, err := s.custody.Open(w.EncryptedSecret)
	if err != nil {
		return nil, err
	}
	if !key.PublicKey().Equals(from) {
		return nil, apperror.ErrKeyFormat(errors.New("sealed key does not match wallet address"))
	}

	record := &domain.Transfer{
		ID:          uuid.New(),
		UserID:      userID,
		Destination: dest.String(),
		Amount:      amount.String(),
		Lamports:    lamports,
		Status:      domain.TransferStatusPending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.transfers.Create(ctx, record); err != nil {
		return nil, dbError(err)
	}

	blockhash, err := s.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, s.fail(ctx, record, apperror.ErrTransferFailed(fmt.Errorf("latest blockhash: %w", err)))
	}
	tx, err := buildTransfer(from, dest, lamports, w.FeeLamports, blockhash)
	if err != nil {
		return nil, s.fail(ctx, record, apperror.ErrTransferFailed(err))
	}
	if _, err := tx.Sign(signerFor(from, key)); err != nil {
		return nil, s.fail(ctx, record, apperror.ErrTransferFailed(fmt.Errorf("sign: %w", err)))
	}

	record.Signature = tx.Signatures[0].String()
	if err := s.transfers.SetSignature(ctx, record.ID, record.Signature); err != nil {
		return nil, s.fail(ctx, record, dbError(err))
	}

	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SubmitTimeout)
	defer cancel()

	log := s.log.With().Str("user_id", userID).Str("transfer_id", record.ID.String()).Str("signature", record.Signature).Logger()

	if _, err := s.chain.SendTransaction(submitCtx, tx); err != nil {
		return nil, s.fail(submitCtx, record, apperror.ErrTransferFailed(fmt.Errorf("send: %w", err)))
	}
	log.Info().Uint64("lamports", lamports).Str("destination", record.Destination).Msg("withdrawal submitted")

	if err := awaitConfirmation(submitCtx, s.chain, tx.Signatures[0], s.cfg.Confirm); err != nil {
		if errors.Is(err, errNotConfirmed) || errors.Is(err, context.DeadlineExceeded) {
			// Leave the row PENDING with its signature. Recovery settles it later.
			log.Warn().Err(err).Msg("withdrawal not confirmed in time")
			metrics.WithdrawalsTotal.WithLabelValues("UNCONFIRMED").Inc()
			return nil, apperror.ErrTransferFailed(err)
		}
		return nil, s.fail(submitCtx, record, apperror.ErrTransferFailed(err))
	}

	if err := s.debit(submitCtx, record); err != nil {
		log.Error().Err(err).Msg("withdrawal confirmed on chain but debit failed")
		return nil, err
	}

	s.audit.Log(ctx, &domain.AuditLog{
		UserID:       userID,
		Action:       domain.AuditActionWithdraw,
		ResourceType: "transfer",
		ResourceID:   record.ID.String(),
		Details:      fmt.Sprintf(`{"destination":%q,"lamports":%d,"signature":%q}`, record.Destination, lamports, record.Signature),
		CreatedAt:    s.now().UTC(),
	})
	metrics.WithdrawalsTotal.WithLabelValues(string(domain.TransferStatusConfirmed)).Inc()
	log.Info().Msg("withdrawal confirmed")
	return record, nil
}

// debit subtracts a confirmed transfer from the cached balance and marks it CONFIRMED,
// both in one database transaction with the wallet row locked.
func (s *TransferServiceImpl) debit(ctx context.Context, t *domain.Transfer) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.wallets.FindByUserForUpdate(ctx, dbTx, t.UserID)
	if err != nil {
		return dbError(err)
	}
	if w == nil {
		return apperror.ErrWalletNotFound()
	}
	cached, err := w.CachedBalance()
	if err != nil {
		return apperror.InternalError(fmt.Errorf("parse cached balance %q: %w", w.Balance, err))
	}

	amount, err := decimal.NewFromString(t.Amount)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("parse transfer amount %q: %w", t.Amount, err))
	}
	remaining := cached.Sub(amount)
	if remaining.IsNegative() {
		s.log.Warn().Str("user_id", t.UserID).Str("cached", w.Balance).Str("amount", t.Amount).Msg("debit exceeds cached balance, clamping to zero")
		remaining = decimal.Zero
	}

	if err := s.wallets.UpdateBalance(ctx, dbTx, t.UserID, domain.FormatSOL(remaining)); err != nil {
		return dbError(err)
	}
	confirmedAt := s.now().UTC()
	if err := s.transfers.MarkConfirmed(ctx, dbTx, t.ID, confirmedAt); err != nil {
		return dbError(err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	t.Status = domain.TransferStatusConfirmed
	t.ConfirmedAt = &confirmedAt
	return nil
}

// fail marks the transfer FAILED and returns cause.
func (s *TransferServiceImpl) fail(ctx context.Context, t *domain.Transfer, cause error) error {
	t.Status = domain.TransferStatusFailed
	t.Error = cause.Error()
	if err := s.transfers.MarkFailed(context.WithoutCancel(ctx), t.ID, t.Error); err != nil {
		s.log.Error().Err(err).Str("transfer_id", t.ID.String()).Msg("failed to mark transfer failed")
	}
	s.log.Warn().Err(cause).Str("user_id", t.UserID).Str("transfer_id", t.ID.String()).Msg("withdrawal failed")
	metrics.WithdrawalsTotal.WithLabelValues(string(domain.TransferStatusFailed)).Inc()
	return cause
}

// RecoverPending settles PENDING transfers older than olderThan: confirmed ones are
// debited, rejected or never-submitted ones are marked FAILED. Transfers the chain
// has not seen yet are left alone. It returns how many transfers were settled.
func (s *TransferServiceImpl) RecoverPending(ctx context.Context, olderThan time.Duration) (int, error) {
	pending, err := s.transfers.ListPending(ctx, s.now().Add(-olderThan), recoverBatch)
	if err != nil {
		return 0, dbError(err)
	}

	settled := 0
	for i := range pending {
		t := &pending[i]
		ok, err := s.recoverOne(ctx, t)
		if err != nil {
			s.log.Error().Err(err).Str("transfer_id", t.ID.String()).Msg("transfer recovery failed")
			continue
		}
		if ok {
			settled++
		}
	}
	return settled, nil
}

func (s *TransferServiceImpl) recoverOne(ctx context.Context, t *domain.Transfer) (bool, error) {
	unlock, err := s.locker.Lock(ctx, t.UserID)
	if err != nil {
		return false, err
	}
	defer unlock()

	if t.Signature == "" {
		return true, s.transfers.MarkFailed(ctx, t.ID, "abandoned before submission")
	}
	sig, err := solana.SignatureFromBase58(t.Signature)
	if err != nil {
		return true, s.transfers.MarkFailed(ctx, t.ID, "unreadable signature")
	}

	status, err := s.chain.GetSignatureStatus(ctx, sig)
	if err != nil {
		return false, err
	}
	switch {
	case status.Confirmed():
		if err := s.debit(ctx, t); err != nil {
			return false, err
		}
		s.log.Info().Str("transfer_id", t.ID.String()).Str("signature", t.Signature).Msg("pending transfer confirmed by recovery")
		return true, nil
	case status.Failed():
		return true, s.transfers.MarkFailed(ctx, t.ID, (&ChainRejectedError{Reason: status.Err}).Error())
	default:
		return false, nil
	}
}

// parseSOLAmount accepts a positive decimal of at least one lamport.
func parseSOLAmount(input string) (decimal.Decimal, uint64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, 0, apperror.ErrInvalidAmount()
	}
	lamports, err := domain.SOLToLamports(amount)
	if err != nil || lamports == 0 {
		return decimal.Zero, 0, apperror.ErrInvalidAmount()
	}
	return amount, lamports, nil
}

// buildTransfer creates the system transfer. A non-zero fee is paid as a priority fee
// through compute budget instructions placed ahead of the transfer.
func buildTransfer(from, to solana.PublicKey, lamports, feeLamports uint64, blockhash solana.Hash) (*solana.Transaction, error) {
	var ixs []solana.Instruction
	if feeLamports > 0 {
		if feeLamports > math.MaxUint64/1_000_000 {
			return nil, fmt.Errorf("priority fee %d lamports is too large", feeLamports)
		}
		microLamports := feeLamports * 1_000_000 / uint64(transferComputeUnits)
		ixs = append(ixs,
			computebudget.NewSetComputeUnitLimitInstruction(transferComputeUnits).Build(),
			computebudget.NewSetComputeUnitPriceInstruction(microLamports).Build(),
		)
	}
	ixs = append(ixs, system.NewTransferInstruction(lamports, from, to).Build())

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(from))
	if err != nil {
		return nil, fmt.Errorf("build transfer: %w", err)
	}
	return tx, nil
}

func signerFor(owner solana.PublicKey, key solana.PrivateKey) func(solana.PublicKey) *solana.PrivateKey {
	return func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(owner) {
			return &key
		}
		return nil
	}
}
