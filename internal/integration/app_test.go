// Package integration runs the full engine behind the real router: gateway auth,
// rate limiting, dispatcher, services and Redis stores, with in-memory persistence,
// an in-memory ledger chain and httptest stand-ins for Jupiter and DEXTools.
package integration

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"custodial-wallet-engine/internal/adapter/aggregator"
	"custodial-wallet-engine/internal/adapter/http/handler"
	"custodial-wallet-engine/internal/adapter/http/middleware"
	"custodial-wallet-engine/internal/adapter/lock"
	redisStore "custodial-wallet-engine/internal/adapter/storage/redis"
	"custodial-wallet-engine/internal/adapter/tokeninfo"
	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	gatewaySecret = "integration-gateway-secret"
	masterKey     = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
)

// swapPool receives the lamport the fake aggregator's swap transaction moves.
var swapPool = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

type testApp struct {
	server    *httptest.Server
	redis     *miniredis.Miniredis
	chain     *ledgerChain
	wallets   *inMemoryWalletRepo
	transfers *inMemoryTransferRepo
	swaps     *inMemorySwapRepo
	audit     *inMemoryAuditRepo
	notifier  *recordingNotifier
	transfer  *service.TransferServiceImpl
	dextools  *atomic.Int64
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zerolog.Nop()

	app := &testApp{
		redis:     mr,
		chain:     newLedgerChain(),
		wallets:   newInMemoryWalletRepo(),
		transfers: newInMemoryTransferRepo(),
		swaps:     newInMemorySwapRepo(),
		audit:     &inMemoryAuditRepo{},
		notifier:  newRecordingNotifier(),
		dextools:  &atomic.Int64{},
	}

	jupiter := httptest.NewServer(jupiterHandler(t))
	t.Cleanup(jupiter.Close)
	dex := httptest.NewServer(dextoolsHandler(app.dextools))
	t.Cleanup(dex.Close)

	enc, err := service.NewAESEncryptionService(masterKey)
	require.NoError(t, err)
	custody := service.NewCustodyService(enc)
	auditSvc := service.NewAuditService(app.audit, log)
	locker := lock.NewMemoryLock(10 * time.Second)
	confirm := service.ConfirmPolicy{Attempts: 3, Interval: 10 * time.Millisecond}

	reconciler := service.NewReconciler(app.chain, app.wallets, log)
	walletSvc := service.NewWalletService(app.wallets, custody, reconciler, locker, auditSvc, log)
	feeSvc, err := service.NewFeeService(nil, app.wallets, locker, auditSvc, log)
	require.NoError(t, err)
	app.transfer = service.NewTransferService(app.wallets, app.transfers, inMemoryTransactor{}, custody, app.chain, locker, auditSvc,
		service.TransferConfig{VerifyOnchainBalance: true, SubmitTimeout: 5 * time.Second, Confirm: confirm}, log)
	swapSvc := service.NewSwapService(app.wallets, app.swaps, custody, app.chain,
		aggregator.NewJupiterWithClient(jupiter.URL, jupiter.Client()), app.notifier, auditSvc,
		service.SwapConfig{SubmitTimeout: 5 * time.Second, Confirm: confirm}, log)
	tokens := tokeninfo.NewDEXToolsWithClient(dex.URL, "dex-key", dex.Client(), redisStore.NewTokenCache(rdb), time.Minute, log)
	portfolioSvc := service.NewPortfolioService(tokens, log)

	dispatcher := service.NewDispatcher(walletSvc, feeSvc, app.transfer, swapSvc, portfolioSvc, app.notifier, log)

	router := handler.SetupRouter(handler.RouterDeps{
		Dispatcher:     dispatcher,
		SigSvc:         service.NewHMACSignatureService(),
		NonceStore:     redisStore.NewNonceStore(rdb),
		GatewaySecret:  gatewaySecret,
		Gateway:        handler.GatewayLimits{TimestampWindow: time.Minute, CommandsPerMin: 100},
		RateLimitStore: redisStore.NewRateLimitStore(rdb),
		AuditSvc:       auditSvc,
		HealthCheckers: []ports.HealthChecker{redisStore.NewHealthCheck(rdb)},
		Mode:           gin.TestMode,
		Logger:         log,
	})

	app.server = httptest.NewServer(router)
	t.Cleanup(app.server.Close)
	return app
}

// command sends one signed gateway request and returns the status and replies.
func (a *testApp) command(t *testing.T, userID, content string) (int, []string) {
	t.Helper()
	return a.commandWithSecret(t, gatewaySecret, userID, content)
}

func (a *testApp) commandWithSecret(t *testing.T, secret, userID, content string) (int, []string) {
	t.Helper()

	body, err := json.Marshal(map[string]string{"user_id": userID, "username": "user" + userID, "content": content})
	require.NoError(t, err)

	sig := service.NewHMACSignatureService()
	ts := time.Now().Unix()
	nonce := uuid.NewString()
	canonical := sig.BuildCanonicalString(http.MethodPost, "/api/v1/commands", ts, nonce, string(body))

	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/api/v1/commands", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderSignature, sig.Sign(secret, canonical))
	req.Header.Set(middleware.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(middleware.HeaderNonce, nonce)

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Data struct {
			Replies []string `json:"replies"`
		} `json:"data"`
	}
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out.Data.Replies
}

// reply sends a command that must succeed at the HTTP level and returns its single reply.
func (a *testApp) reply(t *testing.T, userID, content string) string {
	t.Helper()
	status, replies := a.command(t, userID, content)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, replies, 1)
	return replies[0]
}

// createWallet runs /wallet new and returns the address from the reply.
func (a *testApp) createWallet(t *testing.T, userID string) solana.PublicKey {
	t.Helper()
	reply := a.reply(t, userID, "/wallet new")
	require.Contains(t, reply, "your new wallet has been created")
	return solana.MustPublicKeyFromBase58(between(t, reply, "`"))
}

// audited waits for the asynchronous audit writer to have recorded want.
func (a *testApp) audited(t *testing.T, want ...domain.AuditAction) {
	t.Helper()
	require.Eventually(t, func() bool {
		got := a.audit.actions()
		for _, action := range want {
			if !slices.Contains(got, action) {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond, "audit actions %v not recorded", want)
}

// between returns the text between the first pair of delim.
func between(t *testing.T, s, delim string) string {
	t.Helper()
	parts := strings.SplitN(s, delim, 3)
	require.Len(t, parts, 3, "no %q delimited value in %q", delim, s)
	return parts[1]
}

// --- Fake Jupiter ---

func jupiterHandler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v6/quote", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"inputMint":      q.Get("inputMint"),
			"outputMint":     q.Get("outputMint"),
			"inAmount":       q.Get("amount"),
			"outAmount":      "150250000",
			"priceImpactPct": "0.01",
			"slippageBps":    q.Get("slippageBps"),
		})
	})
	mux.HandleFunc("/v6/swap", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserPublicKey string `json:"userPublicKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		user, err := solana.PublicKeyFromBase58(req.UserPublicKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tx, err := solana.NewTransaction(
			[]solana.Instruction{system.NewTransferInstruction(1, user, swapPool).Build()},
			solana.Hash{7, 7, 7},
			solana.TransactionPayer(user),
		)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		raw, err := tx.MarshalBinary()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"swapTransaction":      base64.StdEncoding.EncodeToString(raw),
			"lastValidBlockHeight": 1000,
		})
	})
	return mux
}

// --- Fake DEXTools ---

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func dextoolsHandler(requests *atomic.Int64) http.Handler {
	payloads := map[string]string{
		"/v2/token/solana/" + bonkMint:            `{"address":"` + bonkMint + `","name":"Bonk","symbol":"BONK","decimals":5}`,
		"/v2/token/solana/" + bonkMint + "/price": `{"price":0.0000215,"priceChain":0.00000014,"variation24h":-3.456}`,
		"/v2/token/solana/" + bonkMint + "/info":  `{"circulatingSupply":68000000000000,"totalSupply":88000000000000,"mcap":1462000000,"fdv":1892000000,"holders":812345}`,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("x-api-key") != "dex-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		data, ok := payloads[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statusCode":200,"data":` + data + `}`))
	})
}
