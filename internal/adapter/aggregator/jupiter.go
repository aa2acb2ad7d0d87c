// Package aggregator talks to the Jupiter v6 swap API.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"custodial-wallet-engine/config"
	"custodial-wallet-engine/internal/core/ports"
)

var (
	// ErrEmptyQuote means the aggregator found no route with a positive output.
	ErrEmptyQuote = errors.New("jupiter returned no usable route")
	// ErrMissingTransaction means the swap response carried no transaction.
	ErrMissingTransaction = errors.New("jupiter swap response has no swapTransaction")
)

// maxErrorBody caps how much of an error response is kept for logs.
const maxErrorBody = 512

// quoteResponse holds the fields of /v6/quote the engine reads. The full body is kept raw.
type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Jupiter implements ports.Aggregator.
type Jupiter struct {
	base string
	http *http.Client
}

// NewJupiter creates a Jupiter client from config.
func NewJupiter(cfg config.JupiterConfig) *Jupiter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewJupiterWithClient(cfg.BaseURL, &http.Client{Timeout: timeout})
}

// NewJupiterWithClient creates a Jupiter client with a custom HTTP client.
func NewJupiterWithClient(base string, client *http.Client) *Jupiter {
	return &Jupiter{base: strings.TrimRight(base, "/"), http: client}
}

// Quote asks for the best route. req.Amount is in smallest units of the input mint.
func (j *Jupiter) Quote(ctx context.Context, req ports.QuoteRequest) (*ports.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(int(req.SlippageBps)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, j.base+"/v6/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}

	raw, err := j.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}

	var out quoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode jupiter quote: %w", err)
	}
	if out.OutAmount == "" || out.OutAmount == "0" {
		return nil, ErrEmptyQuote
	}

	return &ports.Quote{
		InputMint:      out.InputMint,
		OutputMint:     out.OutputMint,
		InAmount:       out.InAmount,
		OutAmount:      out.OutAmount,
		PriceImpactPct: out.PriceImpactPct,
		Raw:            json.RawMessage(raw),
	}, nil
}

// BuildSwap turns a quote into an unsigned, base64 encoded transaction for userPublicKey.
func (j *Jupiter) BuildSwap(ctx context.Context, quote *ports.Quote, userPublicKey string, prioritizationFeeLamports uint64) (string, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return "", errors.New("jupiter swap: quote is empty")
	}

	body, err := json.Marshal(swapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             userPublicKey,
		WrapAndUnwrapSol:          true,
		PrioritizationFeeLamports: prioritizationFeeLamports,
	})
	if err != nil {
		return "", fmt.Errorf("encode swap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.base+"/v6/swap", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build swap request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	raw, err := j.do(httpReq)
	if err != nil {
		return "", fmt.Errorf("jupiter swap: %w", err)
	}

	var out swapResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode jupiter swap: %w", err)
	}
	if out.SwapTransaction == "" {
		return "", ErrMissingTransaction
	}
	return out.SwapTransaction, nil
}

func (j *Jupiter) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := j.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
