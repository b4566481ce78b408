package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opentraffic/analyst/internal/core/domain"
)

// Subjects and headers used on the bus.
const (
	SourceStream        = "ANALYST_SOURCES"
	SourceSubjectPrefix = "analyst.source."
	StateSubjectPrefix  = "analyst.state."

	// OpHeader marks a source message as a replacement or a deletion.
	OpHeader = "Analyst-Op"
	OpSet    = "set"
	OpDelete = "delete"
)

// Publisher implements ports.ResultPublisher and ports.StateSink.
// Published sources go to a JetStream stream keeping the last message per
// subject, so late subscribers receive the current result. State signals
// are fire-and-forget core NATS messages.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure stream exists
	cfg := nats.StreamConfig{
		Name:              SourceStream,
		Subjects:          []string{SourceSubjectPrefix + ">"},
		Retention:         nats.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            24 * time.Hour,
		Storage:           nats.MemoryStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// SetDataSource publishes fc as the current value of the named source.
func (p *Publisher) SetDataSource(ctx context.Context, name string, fc *domain.FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(SourceSubjectPrefix + name)
	msg.Header.Set(OpHeader, OpSet)
	msg.Data = data
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	return err
}

// DeleteDataSource publishes a deletion marker for the named source.
func (p *Publisher) DeleteDataSource(ctx context.Context, name string) error {
	msg := nats.NewMsg(SourceSubjectPrefix + name)
	msg.Header.Set(OpHeader, OpDelete)
	_, err := p.js.PublishMsg(msg, nats.Context(ctx))
	return err
}

// Emit publishes a state signal on analyst.state.<kind>.
func (p *Publisher) Emit(_ context.Context, s domain.Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.conn.Publish(StateSubjectPrefix+string(s.Kind), data)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("analyst"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
