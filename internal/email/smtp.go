package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // optional - some servers allow unauthenticated relay
	Password string // optional
	From     string // default sender address
	FromName string // optional sender display name
}

// SMTPSender implements Sender using go-mail.
// TLS mode is chosen from the port; auth is used when credentials are set.
type SMTPSender struct {
	config *SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender creates an SMTP sender from a config struct.
func NewSMTPSender(config *SMTPConfig, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		config: config,
		logger: logger,
	}
}

// Send sends an email via SMTP using go-mail.
func (s *SMTPSender) Send(ctx context.Context, email *Email) (string, error) {
	msg, messageID, err := s.buildMessage(email)
	if err != nil {
		return "", err
	}

	client, err := mail.NewClient(s.config.Host, s.buildClientOptions(30*time.Second)...)
	if err != nil {
		return "", fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		s.logger.Error("smtp: failed to send email", "error", err, "subject", email.Subject)
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Debug("smtp: email sent", "to", email.To, "message_id", messageID)
	return messageID, nil
}

// buildMessage assembles the MIME message. SMTP servers do not report a
// message ID back, so one is generated and set on the message.
func (s *SMTPSender) buildMessage(email *Email) (*mail.Msg, string, error) {
	if len(email.To) == 0 {
		return nil, "", ErrNoRecipient
	}

	msg := mail.NewMsg()

	from := email.From
	if from == "" {
		if s.config.FromName != "" {
			from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
		} else {
			from = s.config.From
		}
	}
	if err := msg.From(from); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidFromAddress, err)
	}

	if err := msg.To(email.To...); err != nil {
		return nil, "", fmt.Errorf("invalid to address: %w", err)
	}

	if email.ReplyTo != "" {
		if err := msg.ReplyTo(email.ReplyTo); err != nil {
			return nil, "", fmt.Errorf("invalid reply-to address: %w", err)
		}
	}

	msg.Subject(email.Subject)

	// Prefer HTML with text fallback, or just text
	if email.HTMLBody != "" && email.TextBody != "" {
		msg.SetBodyString(mail.TypeTextPlain, email.TextBody)
		msg.AddAlternativeString(mail.TypeTextHTML, email.HTMLBody)
	} else if email.HTMLBody != "" {
		msg.SetBodyString(mail.TypeTextHTML, email.HTMLBody)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, email.TextBody)
	}

	for key, value := range email.Headers {
		msg.SetGenHeader(mail.Header(key), value)
	}
	if len(email.Tags) > 0 {
		msg.SetGenHeader(mail.Header("X-Tags"), strings.Join(email.Tags, ","))
	}

	messageID := uuid.NewString()
	domain := "ledgerline.local"
	if at := strings.LastIndex(s.config.From, "@"); at >= 0 {
		domain = s.config.From[at+1:]
	}
	msg.SetMessageIDWithValue(messageID + "@" + domain)

	return msg, messageID, nil
}

// buildClientOptions returns go-mail client options based on configuration.
func (s *SMTPSender) buildClientOptions(timeout time.Duration) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTimeout(timeout),
	}

	switch s.config.Port {
	case 465:
		// Implicit TLS (SMTPS)
		opts = append(opts, mail.WithSSL())
	case 587:
		// STARTTLS (submission port)
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		// Port 25, or local catchers like Mailpit on 1025
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if s.config.Username != "" && s.config.Password != "" {
		opts = append(opts,
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		)
	}

	return opts
}

// TestConnection verifies SMTP connectivity and authentication without sending email.
func (s *SMTPSender) TestConnection(ctx context.Context) error {
	client, err := mail.NewClient(s.config.Host, s.buildClientOptions(10*time.Second)...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer client.Close()

	return nil
}
