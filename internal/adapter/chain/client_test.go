package chain

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"custodial-wallet-engine/config"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeRPC answers JSON-RPC calls with canned results (or errors) keyed by method.
type fakeRPC struct {
	mu      sync.Mutex
	results map[string]string
	errors  map[string]string
	calls   []rpcCall
}

func newFakeRPC(t *testing.T, f *fakeRPC) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		f.mu.Lock()
		f.calls = append(f.calls, rpcCall{Method: req.Method, Params: req.Params})
		result, ok := f.results[req.Method]
		errMsg, isErr := f.errors[req.Method]
		f.mu.Unlock()

		id := string(req.ID)
		if id == "" {
			id = "1"
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case isErr:
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":`+id+`,"error":{"code":-32002,"message":"`+errMsg+`"}}`)
		case ok:
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":`+id+`,"result":`+result+`}`)
		default:
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":`+id+`,"error":{"code":-32601,"message":"method not found"}}`)
		}
	}))
	t.Cleanup(srv.Close)

	return NewClientWithRPC(rpc.New(srv.URL), config.SolanaConfig{
		Commitment:     "confirmed",
		RequestTimeout: 2 * time.Second,
		SkipPreflight:  true,
		MaxRetries:     3,
	})
}

func (f *fakeRPC) lastCall(method string) *rpcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return &f.calls[i]
		}
	}
	return nil
}

func TestParseCommitment(t *testing.T) {
	assert.Equal(t, rpc.CommitmentProcessed, ParseCommitment("processed"))
	assert.Equal(t, rpc.CommitmentFinalized, ParseCommitment("finalized"))
	assert.Equal(t, rpc.CommitmentConfirmed, ParseCommitment("confirmed"))
	assert.Equal(t, rpc.CommitmentConfirmed, ParseCommitment("bogus"))
}

func TestClient_GetBalance(t *testing.T) {
	f := &fakeRPC{results: map[string]string{
		"getBalance": `{"context":{"slot":10},"value":2500000000}`,
	}}
	c := newFakeRPC(t, f)
	account := solana.NewWallet().PublicKey()

	lamports, err := c.GetBalance(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), lamports)

	call := f.lastCall("getBalance")
	require.NotNil(t, call)
	require.Len(t, call.Params, 2)
	assert.JSONEq(t, `"`+account.String()+`"`, string(call.Params[0]))
	assert.Contains(t, string(call.Params[1]), "confirmed")
}

func TestClient_GetBalance_Error(t *testing.T) {
	f := &fakeRPC{errors: map[string]string{"getBalance": "node is behind"}}
	c := newFakeRPC(t, f)

	_, err := c.GetBalance(context.Background(), solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "getBalance")
}

func TestClient_LatestBlockhash(t *testing.T) {
	hash := solana.Hash{7, 7, 7}
	f := &fakeRPC{results: map[string]string{
		"getLatestBlockhash": `{"context":{"slot":10},"value":{"blockhash":"` + hash.String() + `","lastValidBlockHeight":300}}`,
	}}
	c := newFakeRPC(t, f)

	got, err := c.LatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash, got)
}

func TestClient_SendTransaction(t *testing.T) {
	want := solana.Signature{1, 2, 3, 4}
	f := &fakeRPC{results: map[string]string{
		"sendTransaction": `"` + want.String() + `"`,
	}}
	c := newFakeRPC(t, f)

	payer := solana.NewWallet().PrivateKey
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1000, payer.PublicKey(), solana.NewWallet().PublicKey()).Build(),
		},
		solana.Hash{1},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	require.NoError(t, err)

	sig, err := c.SendTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, want, sig)

	call := f.lastCall("sendTransaction")
	require.NotNil(t, call)
	require.Len(t, call.Params, 2)
	var opts map[string]interface{}
	require.NoError(t, json.Unmarshal(call.Params[1], &opts))
	assert.Equal(t, true, opts["skipPreflight"])
	assert.Equal(t, float64(3), opts["maxRetries"])
}

func TestClient_GetSignatureStatus(t *testing.T) {
	tests := []struct {
		name      string
		result    string
		found     bool
		confirmed bool
		failed    bool
	}{
		{"unknown", `{"context":{"slot":1},"value":[null]}`, false, false, false},
		{"processed", `{"context":{"slot":1},"value":[{"slot":1,"confirmations":0,"err":null,"confirmationStatus":"processed"}]}`, true, false, false},
		{"confirmed", `{"context":{"slot":1},"value":[{"slot":1,"confirmations":1,"err":null,"confirmationStatus":"confirmed"}]}`, true, true, false},
		{"finalized", `{"context":{"slot":1},"value":[{"slot":1,"confirmations":null,"err":null,"confirmationStatus":"finalized"}]}`, true, true, false},
		{"failed", `{"context":{"slot":1},"value":[{"slot":1,"confirmations":null,"err":{"InstructionError":[0,{"Custom":1}]},"confirmationStatus":"finalized"}]}`, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeRPC(t, &fakeRPC{results: map[string]string{"getSignatureStatuses": tt.result}})

			st, err := c.GetSignatureStatus(context.Background(), solana.Signature{9})
			require.NoError(t, err)
			assert.Equal(t, tt.found, st.Found)
			assert.Equal(t, tt.confirmed, st.Confirmed())
			assert.Equal(t, tt.failed, st.Failed())
			if tt.failed {
				assert.Contains(t, st.Err, "InstructionError")
			}
		})
	}
}

func TestClient_TokenDecimals(t *testing.T) {
	f := &fakeRPC{results: map[string]string{
		"getTokenSupply": `{"context":{"slot":1},"value":{"amount":"1000000","decimals":6,"uiAmount":1.0,"uiAmountString":"1"}}`,
	}}
	c := newFakeRPC(t, f)

	d, err := c.TokenDecimals(context.Background(), solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)
}

func TestClient_Ping(t *testing.T) {
	c := newFakeRPC(t, &fakeRPC{results: map[string]string{"getHealth": `"ok"`}})
	assert.Equal(t, "solana-rpc", c.Name())
	assert.NoError(t, c.Ping(context.Background()))

	c = newFakeRPC(t, &fakeRPC{errors: map[string]string{"getHealth": "Node is behind by 42 slots"}})
	assert.Error(t, c.Ping(context.Background()))
}
