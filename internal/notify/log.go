package notify

import (
	"context"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/logger"
)

// LogSender only writes the message to the log. Used in dev.
type LogSender struct{}

func (LogSender) Name() string { return "log" }

func (LogSender) Send(ctx context.Context, m domain.Message) error {
	logger.Info(ctx, "outgoing message",
		"channel", m.Channel,
		"to", m.To,
		"subject", m.Subject,
		"event", m.Event,
		"body_length", len(m.Body),
	)
	logger.Debug(ctx, "outgoing message body", "body", m.Body)
	return nil
}
