// Package nats provides a thin JetStream publishing client.
package nats

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string // connection name reported to the server
	ConnectWait   time.Duration
	MaxReconnects int
}

// Client publishes durable events to JetStream.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect dials the NATS server and initializes the JetStream context.
func Connect(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
	}
	if cfg.ConnectWait > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectWait))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to connect to NATS")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to create JetStream context")
	}

	return &Client{conn: conn, js: js}, nil
}

// Publish writes one message to a subject, waiting for the JetStream ack.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return errors.Wrap(err, errors.ErrCodeUnavailable, "failed to publish event")
	}
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Drain()
}
