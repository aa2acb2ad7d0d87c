// Package notify delivers chat replies to the bot front end.
package notify

import (
	"fmt"
	"time"

	"custodial-wallet-engine/config"
	"custodial-wallet-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

// Message is the payload every backend delivers.
type Message struct {
	UserID string    `json:"user_id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// Closer is implemented by backends that hold connections or in-flight work.
type Closer interface {
	Close() error
}

// New selects the backend named by cfg.Backend.
func New(cfg config.NotifyConfig, secret string, sig ports.SignatureService, log zerolog.Logger) (ports.Notifier, error) {
	switch cfg.Backend {
	case "", "log":
		return NewLogNotifier(log), nil
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("notify: webhook backend needs notify.webhook_url")
		}
		return NewWebhookNotifier(cfg, secret, sig, nil, log), nil
	case "amqp":
		return NewAMQPNotifier(cfg, log)
	default:
		return nil, fmt.Errorf("notify: unknown backend %q", cfg.Backend)
	}
}
