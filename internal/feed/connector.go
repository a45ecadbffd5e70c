// Package feed maintains OKX v5 WebSocket connections for market data and
// private order updates.
package feed

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/pkg/types"
)

const (
	reconnectDelay    = 5 * time.Second
	heartbeatInterval = 25 * time.Second
	readTimeout       = 40 * time.Second
)

// Channel identifies one subscription.
type Channel struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId,omitempty"`
}

// Callbacks receive decoded feed events. Handlers run on the read loop
// goroutine and must not block.
type Callbacks struct {
	OnTick        func(types.Tick)
	OnOrderUpdate func(types.OrderUpdate)
	// OnRaw receives payloads of channels without a dedicated handler.
	OnRaw func(channel string, data json.RawMessage)
	// OnReconnect fires before each redial attempt.
	OnReconnect func()
}

// Connector manages one WebSocket endpoint: it dials, authenticates when
// credentials are present, subscribes, heartbeats, and reconnects with a
// fixed delay until its context is cancelled. Subscriptions are replayed
// after every reconnect.
type Connector struct {
	logger   *zap.Logger
	url      string
	channels []Channel
	cb       Callbacks

	apiKey     string
	secretKey  string
	passphrase string

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NewPublicConnector creates a connector for unauthenticated channels.
func NewPublicConnector(logger *zap.Logger, url string, channels []Channel, cb Callbacks) *Connector {
	return &Connector{logger: logger, url: url, channels: channels, cb: cb}
}

// NewPrivateConnector creates a connector that logs in before subscribing.
func NewPrivateConnector(logger *zap.Logger, url string, cfg types.OKXConfig, channels []Channel, cb Callbacks) *Connector {
	return &Connector{
		logger:     logger,
		url:        url,
		channels:   channels,
		cb:         cb,
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		passphrase: cfg.Passphrase,
	}
}

// Run connects and serves the feed until ctx is cancelled. Every session
// failure is retried after a fixed delay.
func (c *Connector) Run(ctx context.Context) {
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("Feed session ended",
				zap.String("url", c.url),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
		if c.cb.OnReconnect != nil {
			c.cb.OnReconnect()
		}
	}
}

func (c *Connector) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.url, err)
	}
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	defer conn.Close()

	c.logger.Info("Feed connected", zap.String("url", c.url))

	if c.apiKey != "" {
		if err := c.login(); err != nil {
			return err
		}
		// subscribe happens once the login event arrives
	} else if err := c.subscribe(); err != nil {
		return err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.heartbeat(sessionCtx)

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := c.handleMessage(raw); err != nil {
			return err
		}
	}
}

// heartbeat sends the application-level "ping" the venue expects; missing it
// gets idle connections dropped server-side.
func (c *Connector) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeText("ping"); err != nil {
				c.logger.Warn("Heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Connector) login() error {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + "GET" + "/users/self/verify"))
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	payload := map[string]any{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     c.apiKey,
			"passphrase": c.passphrase,
			"timestamp":  timestamp,
			"sign":       sign,
		}},
	}
	return c.writeJSON(payload)
}

func (c *Connector) subscribe() error {
	if len(c.channels) == 0 {
		return nil
	}
	return c.writeJSON(map[string]any{
		"op":   "subscribe",
		"args": c.channels,
	})
}

type wsEvent struct {
	Event string          `json:"event"`
	Code  string          `json:"code"`
	Msg   string          `json:"msg"`
	Arg   *Channel        `json:"arg"`
	Data  json.RawMessage `json:"data"`
}

func (c *Connector) handleMessage(raw []byte) error {
	switch string(raw) {
	case "ping":
		return c.writeText("pong")
	case "pong":
		return nil
	}

	var ev wsEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.logger.Debug("Ignoring unparseable feed message", zap.ByteString("raw", raw))
		return nil
	}

	if ev.Event != "" {
		switch ev.Event {
		case "login":
			if ev.Code != "0" {
				return fmt.Errorf("login failed: %s (%s)", ev.Msg, ev.Code)
			}
			c.logger.Info("Feed login succeeded", zap.String("url", c.url))
			return c.subscribe()
		case "subscribe":
			if ev.Arg != nil {
				c.logger.Info("Subscribed",
					zap.String("channel", ev.Arg.Channel),
					zap.String("instId", ev.Arg.InstID),
				)
			}
		case "error":
			c.logger.Error("Feed error event",
				zap.String("code", ev.Code),
				zap.String("msg", ev.Msg),
			)
		}
		return nil
	}

	if ev.Arg == nil || len(ev.Data) == 0 {
		return nil
	}
	switch ev.Arg.Channel {
	case "tickers":
		c.dispatchTicker(ev.Data)
	case "orders":
		c.dispatchOrder(ev.Data)
	default:
		if c.cb.OnRaw != nil {
			c.cb.OnRaw(ev.Arg.Channel, ev.Data)
		}
	}
	return nil
}

func (c *Connector) dispatchTicker(data json.RawMessage) {
	if c.cb.OnTick == nil {
		return
	}
	var rows []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
		TS     string `json:"ts"`
	}
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return
	}
	row := rows[0]
	price, err := decimal.NewFromString(row.Last)
	if err != nil {
		c.logger.Warn("Unparseable ticker price", zap.String("last", row.Last))
		return
	}
	ts, err := decimal.NewFromString(row.TS)
	if err != nil {
		return
	}
	c.cb.OnTick(types.Tick{
		InstID:    row.InstID,
		Price:     price.InexactFloat64(),
		Timestamp: ts.IntPart(),
	})
}

func (c *Connector) dispatchOrder(data json.RawMessage) {
	if c.cb.OnOrderUpdate == nil {
		return
	}
	var rows []struct {
		OrdID  string `json:"ordId"`
		InstID string `json:"instId"`
		State  string `json:"state"`
		Side   string `json:"side"`
		AvgPx  string `json:"avgPx"`
		UTime  string `json:"uTime"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return
	}
	for _, row := range rows {
		var ts int64
		if d, err := decimal.NewFromString(row.UTime); err == nil {
			ts = d.IntPart()
		}
		c.cb.OnOrderUpdate(types.OrderUpdate{
			OrderID:   row.OrdID,
			InstID:    row.InstID,
			State:     row.State,
			Side:      row.Side,
			FillPrice: row.AvgPx,
			Timestamp: ts,
		})
	}
}

func (c *Connector) writeJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, raw)
}

func (c *Connector) writeText(s string) error {
	return c.write(websocket.TextMessage, []byte(s))
}

func (c *Connector) write(msgType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(msgType, payload)
}
