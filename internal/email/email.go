package email

import "context"

// Email represents an email message to be sent.
type Email struct {
	To       []string          // Recipient email addresses
	From     string            // Sender email address
	ReplyTo  string            // Reply-To address (optional)
	Subject  string            // Email subject
	TextBody string            // Plain text body
	HTMLBody string            // HTML body (optional)
	Tags     []string          // Provider tags for filtering and analytics (optional)
	Headers  map[string]string // Custom headers (optional)
}

// Sender defines the interface for sending emails.
// Implementations can use SMTP, Postmark, or just log.
type Sender interface {
	// Send sends an email message.
	// Returns the message ID from the email provider (if available).
	Send(ctx context.Context, email *Email) (string, error)
}

// SendResult reports the outcome of a delivery attempt.
type SendResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`    // Provider's message ID
	Error   string `json:"error,omitempty"` // Delivery error, if any
}
