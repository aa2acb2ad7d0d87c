// Package chain adapts the Solana JSON-RPC API to ports.ChainClient.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"custodial-wallet-engine/config"
	"custodial-wallet-engine/internal/core/ports"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client implements ports.ChainClient and ports.HealthChecker on top of solana-go's RPC client.
type Client struct {
	rpc           *rpc.Client
	commitment    rpc.CommitmentType
	timeout       time.Duration
	skipPreflight bool
	maxRetries    uint
}

// NewClient creates a chain client for the configured RPC endpoint.
func NewClient(cfg config.SolanaConfig) *Client {
	return NewClientWithRPC(rpc.New(cfg.RPCURL), cfg)
}

// NewClientWithRPC wraps an existing RPC client.
func NewClientWithRPC(client *rpc.Client, cfg config.SolanaConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		rpc:           client,
		commitment:    ParseCommitment(cfg.Commitment),
		timeout:       timeout,
		skipPreflight: cfg.SkipPreflight,
		maxRetries:    cfg.MaxRetries,
	}
}

// ParseCommitment maps a config string to a commitment level. Unknown values mean confirmed.
func ParseCommitment(s string) rpc.CommitmentType {
	switch s {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// GetBalance returns the lamport balance of account at the configured commitment.
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpc.GetBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("getBalance %s: %w", account, err)
	}
	return out.Value, nil
}

// LatestBlockhash returns a recent blockhash for building transactions.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash: empty result")
	}
	return out.Value.Blockhash, nil
}

// SendTransaction submits a signed transaction. Preflight and node-side retries follow config.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxRetries := c.maxRetries
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sendTransaction: %w", err)
	}
	return sig, nil
}

// GetSignatureStatus looks up one signature, including transaction history.
func (c *Client) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*ports.SignatureStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses %s: %w", sig, err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return &ports.SignatureStatus{Found: false}, nil
	}

	st := out.Value[0]
	status := &ports.SignatureStatus{
		Found:              true,
		ConfirmationStatus: string(st.ConfirmationStatus),
	}
	if st.Err != nil {
		status.Err = describeTxError(st.Err)
	}
	return status, nil
}

// TokenDecimals returns the decimals of an SPL mint via getTokenSupply.
func (c *Client) TokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpc.GetTokenSupply(ctx, mint, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("getTokenSupply %s: %w", mint, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("getTokenSupply %s: empty result", mint)
	}
	return out.Value.Decimals, nil
}

// Ping checks the RPC node's health.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("getHealth: %w", err)
	}
	if status != "ok" {
		return fmt.Errorf("getHealth: node reports %q", status)
	}
	return nil
}

// Name returns the dependency name.
func (c *Client) Name() string {
	return "solana-rpc"
}

func describeTxError(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
