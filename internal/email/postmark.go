package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const postmarkAPIURL = "https://api.postmarkapp.com"

// PostmarkSender implements the Sender interface using Postmark API
type PostmarkSender struct {
	apiKey        string
	baseURL       string
	messageStream string
	client        *http.Client
}

type postmarkEmail struct {
	From          string            `json:"From"`
	To            string            `json:"To"`
	ReplyTo       string            `json:"ReplyTo,omitempty"`
	Subject       string            `json:"Subject"`
	HtmlBody      string            `json:"HtmlBody,omitempty"`
	TextBody      string            `json:"TextBody,omitempty"`
	Tag           string            `json:"Tag,omitempty"`
	Metadata      map[string]string `json:"Metadata,omitempty"`
	Headers       []postmarkHeader  `json:"Headers,omitempty"`
	MessageStream string            `json:"MessageStream,omitempty"`
}

type postmarkHeader struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type postmarkResponse struct {
	To        string `json:"To"`
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// PostmarkOption configures a PostmarkSender.
type PostmarkOption func(*PostmarkSender)

// WithPostmarkBaseURL points the sender at a different API host.
func WithPostmarkBaseURL(url string) PostmarkOption {
	return func(p *PostmarkSender) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithMessageStream selects a Postmark message stream (default "outbound").
func WithMessageStream(stream string) PostmarkOption {
	return func(p *PostmarkSender) { p.messageStream = stream }
}

// NewPostmarkSender creates a new Postmark email sender
func NewPostmarkSender(apiKey string, opts ...PostmarkOption) *PostmarkSender {
	p := &PostmarkSender{
		apiKey:        apiKey,
		baseURL:       postmarkAPIURL,
		messageStream: "outbound",
		client:        &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send sends an email via Postmark. Postmark accepts a single tag; the
// first tag becomes the Tag and the full list is kept in Metadata.
func (p *PostmarkSender) Send(ctx context.Context, email *Email) (string, error) {
	if len(email.To) == 0 {
		return "", ErrNoRecipient
	}

	payload := postmarkEmail{
		From:          email.From,
		To:            strings.Join(email.To, ","),
		ReplyTo:       email.ReplyTo,
		Subject:       email.Subject,
		HtmlBody:      email.HTMLBody,
		TextBody:      email.TextBody,
		MessageStream: p.messageStream,
	}

	if len(email.Tags) > 0 {
		payload.Tag = email.Tags[0]
		payload.Metadata = map[string]string{"tags": strings.Join(email.Tags, ",")}
	}

	if len(email.Headers) > 0 {
		headers := make([]postmarkHeader, 0, len(email.Headers))
		for name, value := range email.Headers {
			headers = append(headers, postmarkHeader{Name: name, Value: value})
		}
		payload.Headers = headers
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result postmarkResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("postmark API error (status %d): %s", resp.StatusCode, string(body))
		}
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if result.ErrorCode != 0 || resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("postmark error %d (status %d): %s", result.ErrorCode, resp.StatusCode, result.Message)
	}

	return result.MessageID, nil
}
