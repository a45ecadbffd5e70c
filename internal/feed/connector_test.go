package feed_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/feed"
	"github.com/quantpilot/trading-backend/pkg/types"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPublicConnectorSubscribesAndDispatchesTicks(t *testing.T) {
	ticks := make(chan types.Tick, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// first message must be the subscription
		var sub struct {
			Op   string         `json:"op"`
			Args []feed.Channel `json:"args"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("Reading subscribe failed: %v", err)
			return
		}
		if sub.Op != "subscribe" || len(sub.Args) != 1 || sub.Args[0].Channel != "tickers" {
			t.Errorf("Unexpected subscribe payload: %+v", sub)
			return
		}

		ack := `{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(ack)); err != nil {
			return
		}
		tick := `{"arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"},"data":[{"instId":"BTC-USDT-SWAP","last":"65000.5","ts":"1700000000000"}]}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tick)); err != nil {
			return
		}
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := feed.NewPublicConnector(zap.NewNop(), wsURL(srv),
		[]feed.Channel{{Channel: "tickers", InstID: "BTC-USDT-SWAP"}},
		feed.Callbacks{OnTick: func(tk types.Tick) { ticks <- tk }},
	)
	go c.Run(ctx)

	select {
	case tk := <-ticks:
		if tk.Price != 65000.5 || tk.Timestamp != 1700000000000 {
			t.Errorf("Unexpected tick: %+v", tk)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for tick")
	}
}

func TestPrivateConnectorLogsInBeforeSubscribing(t *testing.T) {
	orders := make(chan types.OrderUpdate, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var login map[string]json.RawMessage
		if err := conn.ReadJSON(&login); err != nil {
			return
		}
		var op string
		json.Unmarshal(login["op"], &op)
		if op != "login" {
			t.Errorf("Expected login first, got %s", op)
			return
		}
		var args []map[string]string
		json.Unmarshal(login["args"], &args)
		if len(args) != 1 || args[0]["sign"] == "" || args[0]["apiKey"] != "key" {
			t.Errorf("Login payload incomplete: %v", args)
			return
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"login","code":"0"}`)); err != nil {
			return
		}

		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub["op"] != "subscribe" {
			t.Errorf("Expected subscribe after login, got %v", sub["op"])
			return
		}

		fill := `{"arg":{"channel":"orders","instId":"BTC-USDT-SWAP"},"data":[{"ordId":"42","instId":"BTC-USDT-SWAP","state":"filled","side":"buy","avgPx":"65001.2","uTime":"1700000001000"}]}`
		conn.WriteMessage(websocket.TextMessage, []byte(fill))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := feed.NewPrivateConnector(zap.NewNop(), wsURL(srv),
		types.OKXConfig{APIKey: "key", SecretKey: "secret", Passphrase: "pass"},
		[]feed.Channel{{Channel: "orders", InstID: "BTC-USDT-SWAP"}},
		feed.Callbacks{OnOrderUpdate: func(u types.OrderUpdate) { orders <- u }},
	)
	go c.Run(ctx)

	select {
	case u := <-orders:
		if u.OrderID != "42" || u.State != "filled" || u.FillPrice != "65001.2" {
			t.Errorf("Unexpected order update: %+v", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for order update")
	}
}

func TestConnectorAnswersServerPing(t *testing.T) {
	gotPong := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
			return
		}
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(raw) == "pong" {
				select {
				case gotPong <- struct{}{}:
				default:
				}
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := feed.NewPublicConnector(zap.NewNop(), wsURL(srv), nil, feed.Callbacks{})
	go c.Run(ctx)

	select {
	case <-gotPong:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for pong")
	}
}
