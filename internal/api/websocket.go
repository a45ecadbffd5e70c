package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// Event channels browser clients can subscribe to.
const (
	ChannelTicks   = "ticks"
	ChannelFills   = "fills"
	ChannelMarkers = "markers"
	ChannelReviews = "reviews"
)

// Client is one connected browser WebSocket session. The subscription set
// is written from the read pump and read from broadcast goroutines, so it
// sits behind its own lock.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu   sync.Mutex
	subs map[string]bool
}

func (c *Client) subscribe(channel string) {
	c.mu.Lock()
	c.subs[channel] = true
	c.mu.Unlock()
}

func (c *Client) unsubscribe(channel string) {
	c.mu.Lock()
	delete(c.subs, channel)
	c.mu.Unlock()
}

func (c *Client) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[channel]
}

// Message is the browser-facing WebSocket envelope.
type Message struct {
	Type      string      `json:"type"` // request, response, event
	Channel   string      `json:"channel,omitempty"`
	Method    string      `json:"method,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket upgrades the connection and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, 256),
		subs: map[string]bool{
			// new clients see everything until they narrow the set
			ChannelTicks:   true,
			ChannelFills:   true,
			ChannelMarkers: true,
			ChannelReviews: true,
		},
	}

	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.WSClients.Inc()
	}
	s.logger.Info("WebSocket client connected", zap.String("id", client.ID))

	go s.readPump(client)
	go s.writePump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.WSClients.Dec()
		}
		client.Conn.Close()
		s.logger.Info("WebSocket client disconnected", zap.String("id", client.ID))
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("Invalid WebSocket message", zap.Error(err))
			continue
		}
		s.handleClientMessage(client, &msg)
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleClientMessage(client *Client, msg *Message) {
	response := &Message{
		Type:      "response",
		Method:    msg.Method,
		Timestamp: time.Now().UnixMilli(),
	}

	switch msg.Method {
	case "ping":
		response.Payload = map[string]string{"pong": "ok"}

	case "subscribe":
		if msg.Channel == "" {
			response.Error = "Missing channel"
			break
		}
		client.subscribe(msg.Channel)
		response.Payload = map[string]string{"subscribed": msg.Channel}

	case "unsubscribe":
		if msg.Channel == "" {
			response.Error = "Missing channel"
			break
		}
		client.unsubscribe(msg.Channel)
		response.Payload = map[string]string{"unsubscribed": msg.Channel}

	case "status":
		if s.agent != nil {
			response.Payload = s.agent.Snapshot()
		} else {
			response.Error = "Agent not running"
		}

	default:
		response.Error = "Unknown method"
	}

	raw, _ := json.Marshal(response)
	select {
	case client.Send <- raw:
	default:
	}
}

// BroadcastTick pushes a market tick to subscribed clients.
func (s *Server) BroadcastTick(tick types.Tick) {
	s.broadcast(ChannelTicks, &Message{
		Type:      "event",
		Channel:   ChannelTicks,
		Payload:   tick,
		Timestamp: time.Now().UnixMilli(),
	})
}

// BroadcastOrderUpdate pushes a private fill event to subscribed clients.
func (s *Server) BroadcastOrderUpdate(update types.OrderUpdate) {
	s.broadcast(ChannelFills, &Message{
		Type:      "event",
		Channel:   ChannelFills,
		Payload:   update,
		Timestamp: time.Now().UnixMilli(),
	})
}

// BroadcastMarker pushes a trade marker to subscribed clients.
func (s *Server) BroadcastMarker(marker types.TradeMarker) {
	s.broadcast(ChannelMarkers, &Message{
		Type:      "event",
		Channel:   ChannelMarkers,
		Payload:   marker,
		Timestamp: time.Now().UnixMilli(),
	})
}

// BroadcastReview pushes a self-review outcome to subscribed clients.
func (s *Server) BroadcastReview(suggestion interface{}) {
	s.broadcast(ChannelReviews, &Message{
		Type:      "event",
		Channel:   ChannelReviews,
		Payload:   suggestion,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) broadcast(channel string, msg *Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		if !client.subscribed(channel) {
			continue
		}
		select {
		case client.Send <- raw:
		default:
			// client buffer full, drop rather than block the feed
		}
	}
}
