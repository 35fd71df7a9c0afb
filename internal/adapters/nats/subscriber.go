package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pinmap/internal/core/ports"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
// Each process gets its own ephemeral consumer, so every instance sees
// every change.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
	log  *slog.Logger
}

// NewSubscriber connects to NATS with JetStream enabled. A nil logger uses
// the default.
func NewSubscriber(url string, logger *slog.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := connect(url)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, log: logger.With("component", "pins-subscriber")}, nil
}

// SubscribePinsChanged delivers changes published from now on to handler.
// Messages that fail to decode are terminated; handler errors are retried.
func (s *Subscriber) SubscribePinsChanged(ctx context.Context, handler func(ctx context.Context, change ports.PinsChange) error) error {
	sub, err := s.js.Subscribe(pinsSubjects, func(msg *nats.Msg) {
		var change ports.PinsChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			s.log.Warn("dropping malformed pins change", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, change); err != nil {
			meta, _ := msg.Metadata()
			attempt := uint64(0)
			if meta != nil {
				attempt = meta.NumDelivered
			}
			s.log.Warn("pins change handler failed, redelivering", "action", change.Action, "attempt", attempt, "error", err)
			_ = msg.NakWithDelay(time.Second)
			return
		}
		_ = msg.Ack()
	},
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", pinsSubjects, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
