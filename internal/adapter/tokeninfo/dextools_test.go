package tokeninfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"custodial-wallet-engine/config"
	"custodial-wallet-engine/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const bonk = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

// memCache is a trivial ports.TokenCache.
type memCache map[string][]byte

func (m memCache) Get(_ context.Context, key string) ([]byte, error) { return m[key], nil }
func (m memCache) Set(_ context.Context, key string, v []byte, _ time.Duration) error {
	m[key] = v
	return nil
}

func newServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))

		switch r.URL.Path {
		case "/v2/token/solana/" + bonk:
			_, _ = w.Write([]byte(`{"statusCode":200,"data":{"address":"` + bonk + `","name":"Bonk","symbol":"Bonk","decimals":5}}`))
		case "/v2/token/solana/" + bonk + "/price":
			_, _ = w.Write([]byte(`{"statusCode":200,"data":{"price":0.0000215,"priceChain":1.5e-7,"variation24h":-3.2}}`))
		case "/v2/token/solana/" + bonk + "/info":
			_, _ = w.Write([]byte(`{"statusCode":200,"data":{"circulatingSupply":6.9e13,"totalSupply":8.8e13,"mcap":1.4e9,"fdv":1.9e9,"holders":812345}}`))
		case "/v2/token/solana/empty/price":
			_, _ = w.Write([]byte(`{"statusCode":200,"data":null}`))
		case "/v2/token/solana/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestDEXTools_Endpoints(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	defer srv.Close()

	d := NewDEXToolsWithClient(srv.URL, "secret-key", srv.Client(), nil, 0, zerolog.Nop())
	ctx := context.Background()

	info, err := d.GetInfo(ctx, bonk)
	require.NoError(t, err)
	assert.Equal(t, "Bonk", info.Name)
	assert.Equal(t, 5, info.Decimals)

	price, err := d.GetPrice(ctx, bonk)
	require.NoError(t, err)
	assert.InDelta(t, 0.0000215, price.Price, 1e-12)
	assert.InDelta(t, -3.2, price.Variation24h, 1e-9)

	ext, err := d.GetExtendedInfo(ctx, bonk)
	require.NoError(t, err)
	assert.Equal(t, int64(812345), ext.Holders)
	assert.InDelta(t, 1.4e9, ext.MarketCap, 1)
}

func TestDEXTools_NotFound(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	defer srv.Close()

	d := NewDEXToolsWithClient(srv.URL, "secret-key", srv.Client(), nil, 0, zerolog.Nop())

	_, err := d.GetInfo(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.GetPrice(context.Background(), "empty")
	assert.ErrorIs(t, err, ErrNotFound, "null data counts as missing")

	_, err = d.GetInfo(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestDEXTools_Cache(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	defer srv.Close()

	cache := memCache{}
	d := NewDEXToolsWithClient(srv.URL, "secret-key", srv.Client(), cache, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		price, err := d.GetPrice(context.Background(), bonk)
		require.NoError(t, err)
		assert.InDelta(t, 0.0000215, price.Price, 1e-12)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Contains(t, cache, "price:"+bonk)
}

func TestDEXTools_CacheErrorsAreIgnored(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	defer srv.Close()

	ctrl := gomock.NewController(t)
	cache := mocks.NewMockTokenCache(ctrl)
	cache.EXPECT().Get(gomock.Any(), "token:"+bonk).Return(nil, assert.AnError)
	cache.EXPECT().Set(gomock.Any(), "token:"+bonk, gomock.Any(), time.Minute).Return(assert.AnError)

	d := NewDEXToolsWithClient(srv.URL, "secret-key", srv.Client(), cache, time.Minute, zerolog.Nop())
	info, err := d.GetInfo(context.Background(), bonk)
	require.NoError(t, err)
	assert.Equal(t, "Bonk", info.Symbol)
}

func TestNewDEXTools_FromConfig(t *testing.T) {
	d := NewDEXTools(config.DEXToolsConfig{BaseURL: "https://example.test/trial/", APIKey: "k"}, nil, zerolog.Nop())
	assert.Equal(t, "https://example.test/trial", d.base)
	assert.Equal(t, 10*time.Second, d.http.Timeout)
}
