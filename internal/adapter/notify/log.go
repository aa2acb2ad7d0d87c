package notify

import (
	"context"

	"custodial-wallet-engine/internal/adapter/metrics"

	"github.com/rs/zerolog"
)

// LogNotifier writes replies to the log. Used when no chat front end is attached.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, userID string, text string) {
	n.log.Info().Str("user_id", userID).Str("text", text).Msg("notify")
	metrics.NotificationsTotal.WithLabelValues("log", "ok").Inc()
}
