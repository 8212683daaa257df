package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// StreamName is the JetStream stream holding every ledgerline subject.
const StreamName = "LEDGERLINE_EVENTS"

// NATSConfig configures the connection.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
}

// NATSPublisher publishes events to NATS, through JetStream when the server
// has it enabled and plain core NATS otherwise.
type NATSPublisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *slog.Logger
}

// NewNATSPublisher connects to NATS and makes sure the event stream exists.
func NewNATSPublisher(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if cfg.Name == "" {
		cfg.Name = "ledgerline"
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(10 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("nats error", "error", err)
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := &NATSPublisher{conn: conn, logger: logger}

	js, err := conn.JetStream()
	if err == nil {
		if err = ensureStream(js); err == nil {
			p.js = js
		}
	}
	if err != nil {
		logger.Warn("jetstream unavailable, publishing with core nats", "error", err)
	}

	logger.Info("connected to nats", "url", cfg.URL, "jetstream", p.js != nil)
	return p, nil
}

func ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:        StreamName,
		Description: "Invoice payment and reminder events",
		Subjects:    []string{"invoice.>", "reminder.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Discard:     nats.DiscardOld,
	})
	return err
}

// Publish sends data wrapped in an Event envelope.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data any) error {
	if p.conn == nil || !p.conn.IsConnected() {
		p.logger.Warn("nats not connected, skipping event publish", "subject", subject)
		return nil
	}

	event := NewEvent(subject, data)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if p.js != nil {
		msg := nats.NewMsg(subject)
		msg.Data = payload
		msg.Header.Set(nats.MsgIdHdr, event.ID)
		ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", subject, err)
		}
		p.logger.DebugContext(ctx, "published event", "subject", subject, "stream", ack.Stream, "sequence", ack.Sequence)
		return nil
	}

	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
