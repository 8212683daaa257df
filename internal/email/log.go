package email

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogSender writes emails to the logger instead of delivering them.
// Used in development and when no provider is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(ctx context.Context, email *Email) (string, error) {
	if len(email.To) == 0 {
		return "", ErrNoRecipient
	}

	id := "log-" + uuid.NewString()
	l.logger.InfoContext(ctx, "email (not delivered)",
		"message_id", id,
		"to", email.To,
		"reply_to", email.ReplyTo,
		"subject", email.Subject,
		"tags", email.Tags,
		"text", email.TextBody,
	)
	return id, nil
}
