package natsadapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/opentraffic/analyst/internal/core/domain"
)

// SourceUpdate is a change of a published data source.
type SourceUpdate struct {
	Name    string          `json:"name"`
	Deleted bool            `json:"deleted"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Subscriber follows published sources and state signals.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewSubscriber creates a subscriber on an existing connection.
func NewSubscriber(conn *nats.Conn) (*Subscriber, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeSources delivers the current value of every source, then each
// later change. The returned func stops the subscription.
func (s *Subscriber) SubscribeSources(handler func(SourceUpdate)) (func(), error) {
	sub, err := s.js.Subscribe(SourceSubjectPrefix+">", func(msg *nats.Msg) {
		handler(decodeSourceUpdate(msg))
	},
		nats.OrderedConsumer(),
		nats.DeliverLastPerSubject(),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe sources: %w", err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// SubscribeSignals delivers state signals as they are emitted.
func (s *Subscriber) SubscribeSignals(handler func(domain.Signal)) (func(), error) {
	sub, err := s.conn.Subscribe(StateSubjectPrefix+">", func(msg *nats.Msg) {
		var sig domain.Signal
		if err := json.Unmarshal(msg.Data, &sig); err != nil {
			return
		}
		handler(sig)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe signals: %w", err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func decodeSourceUpdate(msg *nats.Msg) SourceUpdate {
	u := SourceUpdate{Name: strings.TrimPrefix(msg.Subject, SourceSubjectPrefix)}
	if msg.Header.Get(OpHeader) == OpDelete {
		u.Deleted = true
		return u
	}
	u.Data = json.RawMessage(msg.Data)
	return u
}

// Connected reports whether the underlying connection is up.
func (s *Subscriber) Connected() bool {
	return s.conn.IsConnected()
}
