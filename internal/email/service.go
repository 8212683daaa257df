package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templateNames = []string{
	"reminder.html",
	"invoice.html",
	"payment_receipt.html",
	"payment_notification.html",
	"payment_failed.html",
}

var templateFuncs = template.FuncMap{
	"money": FormatMoney,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("January 2, 2006")
	},
}

// Rendered is a composed email ready to hand to a Sender.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Service handles email composition and sending
type Service struct {
	sender      Sender
	fromAddress string
	fromName    string
	templates   map[string]*template.Template
	logger      *slog.Logger
}

// NewService creates a new email service. Each content template is parsed
// into its own clone of the shared layout.
func NewService(sender Sender, fromAddress, fromName string, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	layout, err := template.New("email").Funcs(templateFuncs).ParseFS(templatesFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email layout: %w", err)
	}

	templates := make(map[string]*template.Template, len(templateNames))
	for _, name := range templateNames {
		t, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone email layout: %w", err)
		}
		if _, err := t.ParseFS(templatesFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("failed to parse email template %s: %w", name, err)
		}
		templates[name] = t
	}

	return &Service{
		sender:      sender,
		fromAddress: fromAddress,
		fromName:    fromName,
		templates:   templates,
		logger:      logger,
	}, nil
}

// RenderReminder composes a reminder without sending it.
func (s *Service) RenderReminder(data ReminderEmail) (Rendered, error) {
	if _, ok := reminderCopy(data); !ok {
		return Rendered{}, ErrTemplateNotFound("reminder/" + string(data.Type))
	}
	return s.render(data)
}

// SendReminder sends a payment reminder to the invoice's client.
func (s *Service) SendReminder(ctx context.Context, data ReminderEmail) (SendResult, error) {
	rendered, err := s.RenderReminder(data)
	if err != nil {
		return SendResult{Error: err.Error()}, fmt.Errorf("failed to render reminder template: %w", err)
	}
	return s.deliver(ctx, rendered, data.ClientEmail, data.FreelancerEmail, []string{"reminder", string(data.Type)})
}

// SendInvoice sends a newly issued invoice to the client.
func (s *Service) SendInvoice(ctx context.Context, data InvoiceEmail) (SendResult, error) {
	return s.renderAndDeliver(ctx, data, data.ClientEmail, data.FreelancerEmail, "invoice")
}

// SendPaymentReceipt confirms a payment to the client.
func (s *Service) SendPaymentReceipt(ctx context.Context, data PaymentReceiptEmail) (SendResult, error) {
	return s.renderAndDeliver(ctx, data, data.ClientEmail, data.FreelancerEmail, "payment-receipt")
}

// SendPaymentNotification tells the freelancer about an incoming payment.
func (s *Service) SendPaymentNotification(ctx context.Context, data PaymentNotificationEmail) (SendResult, error) {
	return s.renderAndDeliver(ctx, data, data.FreelancerEmail, "", "payment-notification")
}

// SendPaymentFailed tells the client their payment failed, with a retry link.
func (s *Service) SendPaymentFailed(ctx context.Context, data PaymentFailedEmail) (SendResult, error) {
	return s.renderAndDeliver(ctx, data, data.ClientEmail, data.FreelancerEmail, "payment-failed")
}

func (s *Service) renderAndDeliver(ctx context.Context, data EmailTemplate, to, replyTo, tag string) (SendResult, error) {
	rendered, err := s.render(data)
	if err != nil {
		return SendResult{Error: err.Error()}, fmt.Errorf("failed to render %s template: %w", tag, err)
	}
	return s.deliver(ctx, rendered, to, replyTo, []string{tag})
}

// deliver hands a rendered email to the sender. A sender error is returned
// and also reflected in the result so callers can store it.
func (s *Service) deliver(ctx context.Context, rendered Rendered, to, replyTo string, tags []string) (SendResult, error) {
	if to == "" {
		return SendResult{Error: ErrNoRecipient.Error()}, ErrNoRecipient
	}

	email := &Email{
		To:       []string{to},
		From:     s.from(),
		ReplyTo:  replyTo,
		Subject:  rendered.Subject,
		HTMLBody: rendered.HTML,
		TextBody: rendered.Text,
		Tags:     tags,
	}

	id, err := s.sender.Send(ctx, email)
	if err != nil {
		s.logger.WarnContext(ctx, "email delivery failed", "subject", rendered.Subject, "tags", tags, "error", err)
		return SendResult{Success: false, Error: err.Error()}, fmt.Errorf("failed to send email: %w", err)
	}

	return SendResult{Success: true, ID: id}, nil
}

func (s *Service) from() string {
	if s.fromName == "" {
		return s.fromAddress
	}
	return fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
}

// Helper method to render a template
func (s *Service) render(data EmailTemplate) (Rendered, error) {
	name := data.TemplateName()
	tmpl, ok := s.templates[name]
	if !ok {
		return Rendered{}, ErrTemplateNotFound(name)
	}

	var htmlBuf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&htmlBuf, "email_layout", data); err != nil {
		return Rendered{}, fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	htmlBody := htmlBuf.String()
	return Rendered{
		Subject: data.Subject(),
		HTML:    htmlBody,
		Text:    generatePlainText(htmlBody),
	}, nil
}

// generatePlainText creates a simple plain text version from HTML
func generatePlainText(html string) string {
	text := html

	// Drop the document head so the <title> does not leak into the body.
	if start := strings.Index(text, "<head>"); start >= 0 {
		if end := strings.Index(text, "</head>"); end > start {
			text = text[:start] + text[end+len("</head>"):]
		}
	}

	text = strings.ReplaceAll(text, "<br>", "\n")
	text = strings.ReplaceAll(text, "<br/>", "\n")
	text = strings.ReplaceAll(text, "<br />", "\n")
	text = strings.ReplaceAll(text, "</p>", "\n\n")
	text = strings.ReplaceAll(text, "</div>", "\n")
	text = strings.ReplaceAll(text, "</tr>", "\n")
	text = strings.ReplaceAll(text, "</td>", " ")
	text = strings.ReplaceAll(text, "</h1>", "\n\n")
	text = strings.ReplaceAll(text, "</h2>", "\n\n")
	text = strings.ReplaceAll(text, "</h3>", "\n\n")

	for strings.Contains(text, "<") && strings.Contains(text, ">") {
		start := strings.Index(text, "<")
		end := strings.Index(text[start:], ">")
		if start >= 0 && end > 0 {
			text = text[:start] + text[start+end+1:]
		} else {
			break
		}
	}

	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&#34;", "\"")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&amp;", "&")

	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}
