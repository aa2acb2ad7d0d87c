package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"custodial-wallet-engine/config"
	"custodial-wallet-engine/internal/adapter/metrics"
	"custodial-wallet-engine/internal/core/ports"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookNotifier POSTs each message to the bot front end. Bodies are signed
// with HMAC-SHA256 over "<timestamp>.<body>" using the gateway secret.
type WebhookNotifier struct {
	url         string
	secret      string
	sig         ports.SignatureService
	client      HTTPClient
	maxAttempts int
	interval    time.Duration
	log         zerolog.Logger
	now         func() time.Time

	mu     sync.Mutex
	queues map[string][]pending
	wg     sync.WaitGroup
}

type pending struct {
	ctx  context.Context
	body []byte
}

// NewWebhookNotifier creates a webhook notifier. client defaults to a 10s http.Client.
func NewWebhookNotifier(cfg config.NotifyConfig, secret string, sig ports.SignatureService, client HTTPClient, log zerolog.Logger) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &WebhookNotifier{
		url:         cfg.WebhookURL,
		secret:      secret,
		sig:         sig,
		client:      client,
		maxAttempts: attempts,
		interval:    cfg.RetryBackoff,
		log:         log,
		now:         time.Now,
		queues:      make(map[string][]pending),
	}
}

// Notify queues delivery in the background and returns immediately.
// Messages for one user are delivered in call order; a message is retried
// until it succeeds or gives up before the next one for that user is sent.
func (n *WebhookNotifier) Notify(ctx context.Context, userID string, text string) {
	body, err := json.Marshal(Message{UserID: userID, Text: text, SentAt: n.now().UTC()})
	if err != nil {
		n.log.Error().Err(err).Str("user_id", userID).Msg("notify: failed to marshal message")
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	q, running := n.queues[userID]
	n.queues[userID] = append(q, pending{ctx: context.WithoutCancel(ctx), body: body})
	if !running {
		n.wg.Add(1)
		go n.drain(userID)
	}
}

// drain is the single worker for userID. It exits once the user's queue is
// empty; the next Notify for that user starts a fresh one.
func (n *WebhookNotifier) drain(userID string) {
	defer n.wg.Done()
	for {
		n.mu.Lock()
		q := n.queues[userID]
		if len(q) == 0 {
			delete(n.queues, userID)
			n.mu.Unlock()
			return
		}
		next := q[0]
		n.queues[userID] = q[1:]
		n.mu.Unlock()

		n.deliver(next.ctx, userID, next.body)
	}
}

// Close waits for in-flight deliveries.
func (n *WebhookNotifier) Close() error {
	n.wg.Wait()
	return nil
}

func (n *WebhookNotifier) deliver(ctx context.Context, userID string, body []byte) {
	attempt := 0
	op := func() error {
		attempt++
		return n.post(ctx, body)
	}

	err := backoff.Retry(op, backoff.WithContext(n.policy(), ctx))
	if err != nil {
		n.log.Error().Err(err).Str("user_id", userID).Int("attempts", attempt).Msg("notify: webhook delivery failed")
		metrics.NotificationsTotal.WithLabelValues("webhook", "failed").Inc()
		return
	}
	n.log.Debug().Str("user_id", userID).Int("attempts", attempt).Msg("notify: webhook delivered")
	metrics.NotificationsTotal.WithLabelValues("webhook", "ok").Inc()
}

func (n *WebhookNotifier) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if n.interval > 0 {
		b.InitialInterval = n.interval
	}
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(n.maxAttempts-1))
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	ts := strconv.FormatInt(n.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Gateway-Signature", n.sig.Sign(n.secret, ts+"."+string(body)))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("webhook rejected with status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}
