package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	natsadapter "github.com/opentraffic/analyst/internal/adapters/nats"
	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/pkg/metrics"
)

// Relay streams published sources and state signals.
type Relay interface {
	SubscribeSources(handler func(natsadapter.SourceUpdate)) (func(), error)
	SubscribeSignals(handler func(domain.Signal)) (func(), error)
}

// wsMessage is sent from client to subscribe/unsubscribe to channels.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "sources" | "signals"
}

type wsEvent struct {
	Type   string                   `json:"type"`
	Source *natsadapter.SourceUpdate `json:"source,omitempty"`
	Signal *domain.Signal            `json:"signal,omitempty"`
}

const (
	channelSources = "sources"
	channelSignals = "signals"
)

// WebSocketHandler returns a handler that upgrades to WebSocket
// and relays source changes and state signals to connected clients.
// Clients send JSON: {"action":"subscribe","channel":"signals"}
// New connections are subscribed to both channels.
func WebSocketHandler(relay Relay) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)

		var mu sync.Mutex
		subs := make(map[string]func())

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(channel string) error {
			var (
				stop func()
				err  error
			)
			switch channel {
			case channelSources:
				stop, err = relay.SubscribeSources(func(u natsadapter.SourceUpdate) {
					_ = writeJSON(wsEvent{Type: "source", Source: &u})
				})
			case channelSignals:
				stop, err = relay.SubscribeSignals(func(s domain.Signal) {
					_ = writeJSON(wsEvent{Type: "signal", Signal: &s})
				})
			}
			if err != nil {
				return err
			}
			subs[channel] = stop
			return nil
		}

		for _, ch := range []string{channelSources, channelSignals} {
			if err := subscribe(ch); err != nil {
				slog.Error("ws default subscribe failed", "channel", ch, "error", err)
				return
			}
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if m.Channel != channelSources && m.Channel != channelSignals {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[m.Channel]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "channel": m.Channel})
					continue
				}
				if err := subscribe(m.Channel); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "channel": m.Channel})

			case "unsubscribe":
				if stop, exists := subs[m.Channel]; exists {
					stop()
					delete(subs, m.Channel)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": m.Channel})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + m.Channel})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, stop := range subs {
			stop()
		}
		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
