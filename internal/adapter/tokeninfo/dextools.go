// Package tokeninfo fetches token metadata and prices from DEXTools.
package tokeninfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"custodial-wallet-engine/config"
	"custodial-wallet-engine/internal/core/domain"
	"custodial-wallet-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when DEXTools has no data for the token.
var ErrNotFound = errors.New("dextools: token not found")

const (
	endpointInfo     = ""
	endpointPrice    = "price"
	endpointExtended = "info"
)

// envelope is the wrapper DEXTools puts around every payload.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
}

// DEXTools implements ports.TokenInfoProvider. Responses are cached when a cache is set.
type DEXTools struct {
	base   string
	apiKey string
	http   *http.Client
	cache  ports.TokenCache
	ttl    time.Duration
	log    zerolog.Logger
}

// NewDEXTools creates a client. cache may be nil.
func NewDEXTools(cfg config.DEXToolsConfig, cache ports.TokenCache, log zerolog.Logger) *DEXTools {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewDEXToolsWithClient(cfg.BaseURL, cfg.APIKey, &http.Client{Timeout: timeout}, cache, cfg.CacheTTL, log)
}

// NewDEXToolsWithClient creates a client with a custom HTTP client.
func NewDEXToolsWithClient(base, apiKey string, client *http.Client, cache ports.TokenCache, ttl time.Duration, log zerolog.Logger) *DEXTools {
	return &DEXTools{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   client,
		cache:  cache,
		ttl:    ttl,
		log:    log,
	}
}

func (d *DEXTools) GetInfo(ctx context.Context, address string) (*domain.TokenInfo, error) {
	var out domain.TokenInfo
	if err := d.fetch(ctx, endpointInfo, address, &out); err != nil {
		return nil, err
	}
	if out.Address == "" {
		out.Address = address
	}
	return &out, nil
}

func (d *DEXTools) GetPrice(ctx context.Context, address string) (*domain.TokenPrice, error) {
	var out domain.TokenPrice
	if err := d.fetch(ctx, endpointPrice, address, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DEXTools) GetExtendedInfo(ctx context.Context, address string) (*domain.TokenExtendedInfo, error) {
	var out domain.TokenExtendedInfo
	if err := d.fetch(ctx, endpointExtended, address, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DEXTools) fetch(ctx context.Context, endpoint, address string, out interface{}) error {
	key := cacheKey(endpoint, address)

	if d.cache != nil {
		cached, err := d.cache.Get(ctx, key)
		if err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("token cache read failed")
		} else if cached != nil {
			return json.Unmarshal(cached, out)
		}
	}

	data, err := d.get(ctx, endpoint, address)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode dextools %s: %w", endpointName(endpoint), err)
	}

	if d.cache != nil && d.ttl > 0 {
		if err := d.cache.Set(ctx, key, data, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("token cache write failed")
		}
	}
	return nil
}

// get returns the unwrapped data field of one endpoint.
func (d *DEXTools) get(ctx context.Context, endpoint, address string) ([]byte, error) {
	u := d.base + "/v2/token/solana/" + url.PathEscape(address)
	if endpoint != "" {
		u += "/" + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build dextools request: %w", err)
	}
	req.Header.Set("x-api-key", d.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dextools %s: %w", endpointName(endpoint), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read dextools body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("dextools %s: status %d", endpointName(endpoint), resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode dextools envelope: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, ErrNotFound
	}
	return env.Data, nil
}

func cacheKey(endpoint, address string) string {
	return endpointName(endpoint) + ":" + address
}

func endpointName(endpoint string) string {
	if endpoint == "" {
		return "token"
	}
	return endpoint
}
