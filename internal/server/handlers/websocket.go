package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, this should be more restrictive
		return true
	},
}

// trendClient relays task lifecycle events from the event bus to one
// connected dashboard.
type trendClient struct {
	conn      *websocket.Conn
	send      chan []byte
	subs      []*nats.Subscription
	cfg       WebSocketConfig
	logger    *slog.Logger
	closeOnce sync.Once
}

// TrendWebSocketHandler streams trend recomputation events
// (trend.computed, trend.task.failed) to dashboard clients so they can
// refresh without polling.
func TrendWebSocketHandler(natsConn *nats.Conn, eventsTopic string, logger *slog.Logger) http.HandlerFunc {
	cfg := DefaultWebSocketConfig()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("failed to upgrade to websocket", "error", err)
			return
		}

		client := &trendClient{
			conn:   conn,
			send:   make(chan []byte, 256),
			cfg:    cfg,
			logger: logger,
		}

		sub, err := natsConn.Subscribe(eventsTopic+".>", func(msg *nats.Msg) {
			envelope, err := json.Marshal(map[string]interface{}{
				"subject": msg.Subject,
				"data":    json.RawMessage(msg.Data),
				"time":    time.Now(),
			})
			if err != nil {
				return
			}
			select {
			case client.send <- envelope:
			default:
				// Slow consumer; drop rather than block the bus.
			}
		})
		if err != nil {
			logger.Error("failed to subscribe to trend events", "error", err)
			conn.Close()
			return
		}
		client.subs = append(client.subs, sub)

		go client.writePump()
		go client.readPump()

		logger.Info("new websocket connection", "remote", r.RemoteAddr)
	}
}

// writePump pushes queued events and keeps the connection alive with
// pings.
func (c *trendClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so pongs and close frames are
// processed; clients are not expected to send anything else.
func (c *trendClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *trendClient) close() {
	c.closeOnce.Do(func() {
		for _, sub := range c.subs {
			sub.Unsubscribe()
		}
		c.conn.Close()
	})
}
