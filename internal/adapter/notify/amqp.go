package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"custodial-wallet-engine/config"
	"custodial-wallet-engine/internal/adapter/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// channel is the part of *amqp.Channel the notifier uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes messages to a durable RabbitMQ queue consumed by the bot.
type AMQPNotifier struct {
	conn  *amqp.Connection
	ch    channel
	queue string
	log   zerolog.Logger
	now   func() time.Time
}

// NewAMQPNotifier dials RabbitMQ and declares the queue.
func NewAMQPNotifier(cfg config.NotifyConfig, log zerolog.Logger) (*AMQPNotifier, error) {
	if cfg.AMQPURL == "" {
		return nil, errors.New("notify: amqp backend needs notify.amqp_url")
	}
	queue := cfg.AMQPQueue
	if queue == "" {
		queue = "wallet.notifications"
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	n := newAMQPNotifier(ch, queue, log)
	n.conn = conn
	return n, nil
}

func newAMQPNotifier(ch channel, queue string, log zerolog.Logger) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, queue: queue, log: log, now: time.Now}
}

// Notify publishes synchronously. Failures are logged.
func (n *AMQPNotifier) Notify(ctx context.Context, userID string, text string) {
	body, err := json.Marshal(Message{UserID: userID, Text: text, SentAt: n.now().UTC()})
	if err != nil {
		n.log.Error().Err(err).Str("user_id", userID).Msg("notify: failed to marshal message")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = n.ch.PublishWithContext(pubCtx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.now(),
		Body:         body,
	})
	if err != nil {
		n.log.Error().Err(err).Str("user_id", userID).Str("queue", n.queue).Msg("notify: amqp publish failed")
		metrics.NotificationsTotal.WithLabelValues("amqp", "failed").Inc()
		return
	}
	metrics.NotificationsTotal.WithLabelValues("amqp", "ok").Inc()
}

// Close closes the channel and the connection.
func (n *AMQPNotifier) Close() error {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
