package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custodial-wallet-engine/internal/core/ports"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
)

// errNotConfirmed means polling ran out before the chain reported confirmation.
var errNotConfirmed = errors.New("transaction not confirmed yet")

// ChainRejectedError carries the on-chain failure of a landed transaction.
type ChainRejectedError struct {
	Reason string
}

func (e *ChainRejectedError) Error() string {
	return "transaction failed on chain: " + e.Reason
}

// ConfirmPolicy bounds signature status polling.
type ConfirmPolicy struct {
	Attempts int
	Interval time.Duration
}

func (p ConfirmPolicy) backoff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(attempts-1)),
		ctx,
	)
}

// awaitConfirmation polls the signature until it is confirmed, rejected, or the policy
// runs out. RPC errors count as an attempt and are retried. The error is errNotConfirmed,
// *ChainRejectedError or the context error.
func awaitConfirmation(ctx context.Context, chain ports.ChainClient, sig solana.Signature, policy ConfirmPolicy) error {
	var lastErr error
	op := func() error {
		status, err := chain.GetSignatureStatus(ctx, sig)
		if err != nil {
			lastErr = err
			return err
		}
		switch {
		case status.Failed():
			return backoff.Permanent(&ChainRejectedError{Reason: status.Err})
		case status.Confirmed():
			return nil
		default:
			lastErr = nil
			return errNotConfirmed
		}
	}

	err := backoff.Retry(op, policy.backoff(ctx))
	if err == nil {
		return nil
	}

	var rejected *ChainRejectedError
	switch {
	case errors.As(err, &rejected):
		return rejected
	case ctx.Err() != nil:
		return ctx.Err()
	case lastErr != nil:
		return fmt.Errorf("%w: last status query failed: %v", errNotConfirmed, lastErr)
	default:
		return errNotConfirmed
	}
}
