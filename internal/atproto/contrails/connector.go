package contrails

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// pingInterval paces keepalive pings; a connection that produces neither
	// data nor a pong for two intervals is considered dead.
	pingInterval = 20 * time.Second
	pongWait     = 40 * time.Second
	writeWait    = 10 * time.Second

	// closedRetryDelay applies after an abnormal close frame,
	// errorRetryDelay after everything else. A graceful server close
	// reconnects immediately.
	closedRetryDelay = 5 * time.Second
	errorRetryDelay  = 10 * time.Second
)

// Connector maintains the WebSocket subscription to one feed's Contrails
// stream, reconnecting until its context is canceled.
type Connector struct {
	consumer *Consumer
	feedID   string
	wsURL    string
}

// NewConnector creates a connector for one feed stream.
func NewConnector(consumer *Consumer, feedID, wsURL string) *Connector {
	return &Connector{
		consumer: consumer,
		feedID:   feedID,
		wsURL:    wsURL,
	}
}

// Start consumes the stream until ctx is canceled, reconnecting on errors.
func (c *Connector) Start(ctx context.Context) error {
	slog.Info("Starting Contrails stream", "feed", c.feedID, "url", c.wsURL)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Contrails stream shutting down", "feed", c.feedID)
			return ctx.Err()
		default:
			if err := c.connect(ctx); err != nil {
				c.awaitReconnect(ctx, err)
			}
		}
	}
}

// connect establishes the WebSocket connection and processes events until the
// connection drops.
func (c *Connector) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Contrails: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			slog.Warn("Failed to close stream connection", "feed", c.feedID, "error", closeErr)
		}
	}()

	slog.Info("Connected to Contrails stream", "feed", c.feedID)

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("Failed to set read deadline", "feed", c.feedID, "error", err)
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn("Failed to set read deadline in pong handler", "feed", c.feedID, "error", err)
		}
		return nil
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	var closeOnce sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
					slog.Warn("Failed to ping Contrails stream", "feed", c.feedID, "error", err)
					closeOnce.Do(func() { close(done) })
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return errors.New("connection closed by ping failure")
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			closeOnce.Do(func() { close(done) })
			return fmt.Errorf("read error: %w", err)
		}

		var event Event
		if err := json.Unmarshal(message, &event); err != nil {
			slog.Error("Failed to parse Contrails event", "feed", c.feedID, "error", err)
			continue
		}

		if err := c.consumer.HandleEvent(c.feedID, &event); err != nil {
			slog.Error("Skipping stream event", "feed", c.feedID, "error", err)
			// Keep reading; one bad event never takes the stream down.
		}
	}
}

// awaitReconnect sleeps according to how the connection ended before the next
// dial attempt.
func (c *Connector) awaitReconnect(ctx context.Context, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway {
			slog.Info("Contrails stream closed gracefully, reconnecting", "feed", c.feedID)
			return
		}
		slog.Warn("Contrails stream closed unexpectedly", "feed", c.feedID, "error", err, "retry", closedRetryDelay)
		c.sleep(ctx, closedRetryDelay)
		return
	}

	slog.Error("Contrails stream error", "feed", c.feedID, "error", err, "retry", errorRetryDelay)
	c.sleep(ctx, errorRetryDelay)
}

func (c *Connector) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
