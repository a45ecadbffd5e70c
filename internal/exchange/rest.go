// Package exchange implements the OKX v5 REST client used for order
// execution, account setup, and historical candle backfill.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/pkg/types"
)

const (
	pathPlaceOrder      = "/api/v5/trade/order"
	pathSetPositionMode = "/api/v5/account/set-position-mode"
	pathSetLeverage     = "/api/v5/account/set-leverage"
	pathBalance         = "/api/v5/account/balance"
	pathHistoryCandles  = "/api/v5/market/history-candles"
)

// Client is an authenticated OKX v5 REST client. Prices and sizes cross the
// wire as decimal strings; floats only appear after parsing.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secretKey  string
	passphrase string
	simulated  bool
}

// NewClient creates a REST client from exchange configuration.
func NewClient(logger *zap.Logger, cfg types.OKXConfig) *Client {
	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    cfg.RESTURL,
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		passphrase: cfg.Passphrase,
		simulated:  cfg.Simulated,
	}
}

// envelope is the common OKX response wrapper.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// OrderRequest describes a market or limit order.
type OrderRequest struct {
	InstID  string          `json:"instId"`
	TdMode  string          `json:"tdMode"`
	Side    types.OrderSide `json:"side"`
	OrdType string          `json:"ordType"`
	Size    decimal.Decimal `json:"sz"`
	PosSide string          `json:"posSide"`
	Price   decimal.Decimal `json:"px,omitempty"`
}

// OrderAck is the exchange's acknowledgement of an accepted order.
type OrderAck struct {
	OrderID string `json:"ordId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

// PlaceOrder submits an order. Any outcome other than full acceptance is an
// error: callers must treat an error as "nothing happened" and leave their
// state untouched.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	body := map[string]string{
		"instId":  req.InstID,
		"tdMode":  req.TdMode,
		"side":    string(req.Side),
		"ordType": req.OrdType,
		"sz":      req.Size.String(),
		"posSide": req.PosSide,
	}
	if req.OrdType == "limit" {
		body["px"] = req.Price.String()
	}

	var acks []OrderAck
	if err := c.do(ctx, http.MethodPost, pathPlaceOrder, body, &acks); err != nil {
		return nil, err
	}
	if len(acks) == 0 {
		return nil, fmt.Errorf("order response carried no acknowledgement")
	}
	ack := acks[0]
	if ack.SCode != "" && ack.SCode != "0" {
		return nil, fmt.Errorf("order rejected: %s (%s)", ack.SMsg, ack.SCode)
	}
	c.logger.Info("Order accepted",
		zap.String("instId", req.InstID),
		zap.String("side", string(req.Side)),
		zap.String("size", req.Size.String()),
		zap.String("ordId", ack.OrderID),
	)
	return &ack, nil
}

// SetPositionModeLongShort switches the account to two-way position mode.
func (c *Client) SetPositionModeLongShort(ctx context.Context) error {
	body := map[string]string{"posMode": "long_short_mode"}
	return c.do(ctx, http.MethodPost, pathSetPositionMode, body, nil)
}

// SetLeverage configures leverage for an instrument.
func (c *Client) SetLeverage(ctx context.Context, instID string, leverage int, mgnMode string) error {
	body := map[string]string{
		"instId":  instID,
		"lever":   fmt.Sprintf("%d", leverage),
		"mgnMode": mgnMode,
	}
	return c.do(ctx, http.MethodPost, pathSetLeverage, body, nil)
}

// Balance returns the available equity of the given currency.
func (c *Client) Balance(ctx context.Context, ccy string) (decimal.Decimal, error) {
	var data []struct {
		Details []struct {
			Ccy string `json:"ccy"`
			Eq  string `json:"eq"`
		} `json:"details"`
	}
	path := fmt.Sprintf("%s?ccy=%s", pathBalance, ccy)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return decimal.Zero, err
	}
	for _, acct := range data {
		for _, d := range acct.Details {
			if d.Ccy == ccy {
				eq, err := decimal.NewFromString(d.Eq)
				if err != nil {
					return decimal.Zero, fmt.Errorf("parsing equity %q: %w", d.Eq, err)
				}
				return eq, nil
			}
		}
	}
	return decimal.Zero, fmt.Errorf("no balance entry for %s", ccy)
}

// HistoryCandles pages backwards through the history endpoint until maxBars
// candles are collected or history runs out, returning them ascending.
func (c *Client) HistoryCandles(ctx context.Context, instID, bar string, pageLimit, maxBars int) ([]types.Candle, error) {
	if pageLimit < 1 || pageLimit > 100 {
		pageLimit = 100
	}

	var rows [][]string
	after := ""
	for len(rows) < maxBars {
		path := fmt.Sprintf("%s?instId=%s&bar=%s&limit=%d", pathHistoryCandles, instID, bar, pageLimit)
		if after != "" {
			path += "&after=" + after
		}

		var page [][]string
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		rows = append(rows, page...)
		if len(page) < pageLimit {
			break
		}
		after = page[len(page)-1][0]

		// stay under the public endpoint's rate limit
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	candles := make([]types.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := parseCandleRow(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	// endpoint returns newest first
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	c.logger.Info("Historical candles loaded",
		zap.String("instId", instID),
		zap.String("bar", bar),
		zap.Int("count", len(candles)),
	)
	return candles, nil
}

// parseCandleRow converts one [ts, o, h, l, c, vol, ...] row.
func parseCandleRow(row []string) (types.Candle, error) {
	if len(row) < 6 {
		return types.Candle{}, fmt.Errorf("candle row has %d fields, want at least 6", len(row))
	}
	ts, err := decimal.NewFromString(row[0])
	if err != nil {
		return types.Candle{}, fmt.Errorf("parsing candle timestamp %q: %w", row[0], err)
	}
	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		d, err := decimal.NewFromString(row[i+1])
		if err != nil {
			return types.Candle{}, fmt.Errorf("parsing candle field %q: %w", row[i+1], err)
		}
		fields[i] = d.InexactFloat64()
	}
	return types.Candle{
		Timestamp: ts.IntPart(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

// do performs one signed request and decodes the data payload into out.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(timestamp, method, path, payload))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passphrase)
	if c.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding response envelope: %w", err)
	}
	if env.Code != "0" {
		return fmt.Errorf("%s %s: exchange error %s: %s", method, path, env.Code, env.Msg)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}

// sign produces the OK-ACCESS-SIGN header value.
func (c *Client) sign(timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + method + path))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
