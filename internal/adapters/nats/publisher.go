package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pinmap/internal/core/ports"
)

const (
	pinsStream        = "PINS_CHANGED"
	pinsSubjectPrefix = "pins.changed."
	pinsSubjects      = "pins.changed.>"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and makes sure the pins stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      pinsStream,
		Subjects:  []string{pinsSubjects},
		Retention: nats.LimitsPolicy,
		MaxAge:    1 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishPinsChanged publishes change on pins.changed.<action>.
func (p *Publisher) PublishPinsChanged(ctx context.Context, change ports.PinsChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(pinsSubjectPrefix+change.Action, data, nats.Context(ctx))
	return err
}

// Connected reports whether the connection is currently up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

func connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("pinmap"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}
