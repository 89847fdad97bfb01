package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ent0n29/pitwall/internal/memory"
)

// NATSPublisher publishes new headlines to a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// Message is the payload sent for each headline.
type Message struct {
	Item      memory.NewsItem `json:"item"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
}

func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	nc, err := nats.Connect(url,
		nats.Name("pitwall-news"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to nats", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats connection lost", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: nc, subject: subject, logger: logger}, nil
}

// PublishBatch publishes each item and flushes once. It stops at the first
// failure.
func (p *NATSPublisher) PublishBatch(ctx context.Context, items []memory.NewsItem) error {
	now := time.Now().UTC()
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(Message{Item: it, Timestamp: now, Source: "pitwall", Version: "1.0"})
		if err != nil {
			return fmt.Errorf("marshal news message: %w", err)
		}
		if err := p.conn.Publish(p.subject, data); err != nil {
			return fmt.Errorf("publish news: %w", err)
		}
	}
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	p.logger.Debug("published news", "subject", p.subject, "items", len(items))
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
