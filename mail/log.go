package mail

import (
	"context"

	auth "github.com/goliatone/go-portal-auth"
)

// LogMailer writes messages to the logger instead of delivering them.
// Used when no SMTP relay is configured.
type LogMailer struct {
	logger auth.Logger
}

func NewLogMailer(logger auth.Logger) *LogMailer {
	if logger == nil {
		logger = nopLogger{}
	}
	return &LogMailer{logger: logger}
}

// Send implements auth.Mailer
func (m *LogMailer) Send(ctx context.Context, msg auth.MailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.Info("mail not delivered, no relay configured",
		"to", msg.To,
		"cc", msg.CC,
		"subject", msg.Subject,
		"html", msg.HTML,
		"body", msg.Body,
	)
	return nil
}
