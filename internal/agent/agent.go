// Package agent runs the live trading loop: it watches the tick feed for
// bar closes, evaluates the active strategy on closed candles, places
// orders, and persists its position state across restarts.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/exchange"
	"github.com/quantpilot/trading-backend/internal/strategy"
	"github.com/quantpilot/trading-backend/pkg/types"
)

// OrderPlacer submits orders to the exchange.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderAck, error)
}

// CandleSource provides the authoritative closed-candle series.
type CandleSource interface {
	Candles() []types.Candle
	LatestTimestamp() int64
}

// Snapshot is a point-in-time view of the agent for status endpoints.
type Snapshot struct {
	Position      types.PositionState `json:"position"`
	EntryPrice    float64             `json:"entryPrice"`
	StrategyID    int                 `json:"strategyId"`
	StrategyName  string              `json:"strategyName"`
	Leverage      int                 `json:"leverage"`
	RiskPercent   float64             `json:"riskPercent"`
	LastEvaluated int64               `json:"lastEvaluated"`
	Markers       []types.TradeMarker `json:"markers"`
}

// Agent is the live execution loop. All state transitions run under one
// mutex: ticks, manual commands, and strategy switches are serialized.
type Agent struct {
	logger *zap.Logger
	mu     sync.Mutex

	instID     string
	tradeMode  string
	orderSize  decimal.Decimal
	minBars    int
	intervalMs int64

	registry *strategy.Registry
	candles  CandleSource
	orders   OrderPlacer
	states   *StateStore

	state         types.AgentState
	active        strategy.Strategy
	lastEvaluated int64

	reviewCh chan struct{}
	reviewFn func(context.Context)

	now func() time.Time
}

// NewAgent restores persisted state and arms the agent against the current
// candle history: the newest stored candle counts as already evaluated so a
// restart never re-fires on an old bar close.
func NewAgent(logger *zap.Logger, cfg types.TradingConfig, instID, tradeMode string, bar time.Duration, registry *strategy.Registry, candles CandleSource, orders OrderPlacer, states *StateStore) (*Agent, error) {
	if bar <= 0 {
		return nil, fmt.Errorf("bar interval must be positive, got %v", bar)
	}

	defaults := types.AgentState{
		Position:    types.PositionFlat,
		StrategyID:  cfg.InitialStrategyID,
		Leverage:    cfg.Leverage,
		RiskPercent: cfg.RiskPercent,
	}
	state := states.Load(defaults)

	a := &Agent{
		logger:     logger,
		instID:     instID,
		tradeMode:  tradeMode,
		orderSize:  decimal.NewFromFloat(cfg.OrderSize),
		minBars:    cfg.MinBars,
		intervalMs: bar.Milliseconds(),
		registry:   registry,
		candles:    candles,
		orders:     orders,
		states:     states,
		state:      state,
		reviewCh:   make(chan struct{}, 1),
		now:        time.Now,
	}

	active, err := registry.Get(state.StrategyID)
	if err != nil {
		logger.Warn("Persisted strategy unknown, standing by",
			zap.Int("strategyId", state.StrategyID),
		)
		active, _ = registry.Get(0)
		a.state.StrategyID = 0
	}
	a.active = active
	a.lastEvaluated = candles.LatestTimestamp()

	a.appendMarker(types.MarkerNote, 0, "System Start")
	if err := states.Save(a.state); err != nil {
		logger.Warn("Failed to persist startup state", zap.Error(err))
	}

	logger.Info("Agent ready",
		zap.String("instId", instID),
		zap.String("strategy", active.Name()),
		zap.Int("leverage", state.Leverage),
		zap.Float64("riskPercent", state.RiskPercent),
	)
	return a, nil
}

// Run serves the coalesced review trigger until ctx is cancelled. Bar closes
// request a review; a request arriving while one is pending folds into it.
func (a *Agent) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.reviewCh:
			a.mu.Lock()
			fn := a.reviewFn
			a.mu.Unlock()
			if fn != nil {
				fn(ctx)
			}
		}
	}
}

// SetReviewFunc registers the callback fired after each bar-close
// evaluation. The callback runs on the agent's Run goroutine, never on the
// tick path.
func (a *Agent) SetReviewFunc(fn func(context.Context)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reviewFn = fn
}

// OnTick inspects a tick for a bar close. A tick belonging to a newer
// interval bucket than the newest stored candle means that candle is closed
// and exactly one evaluation runs for it. Ticks inside the current bucket do
// nothing.
func (a *Agent) OnTick(ctx context.Context, tick types.Tick) {
	a.mu.Lock()
	defer a.mu.Unlock()

	latest := a.candles.LatestTimestamp()
	if latest == 0 {
		return
	}
	bucket := tick.Timestamp - tick.Timestamp%a.intervalMs
	if bucket <= latest {
		return
	}
	if a.lastEvaluated == latest {
		return
	}

	series := a.candles.Candles()
	if len(series) == 0 {
		// reload failed: leave the close unprocessed so the next tick retries
		a.logger.Warn("Candle reload came back empty, deferring bar close")
		return
	}
	a.lastEvaluated = latest
	a.logger.Info("Bar close detected",
		zap.Int64("closedCandle", latest),
		zap.Int64("tickBucket", bucket),
	)

	a.evaluate(ctx, series)

	select {
	case a.reviewCh <- struct{}{}:
	default:
	}
}

func (a *Agent) evaluate(ctx context.Context, series []types.Candle) {
	if a.active.ID() == 0 {
		return
	}
	if len(series) < a.minBars {
		a.logger.Info("Not enough candles to evaluate",
			zap.Int("have", len(series)),
			zap.Int("need", a.minBars),
		)
		return
	}

	signals := a.active.CalculateSignals(series)
	last := signals[len(signals)-1]
	candle := series[len(series)-1]

	switch {
	case last == types.SignalEnterLong && a.state.Position == types.PositionFlat:
		a.submit(ctx, types.OrderSideBuy, candle, fmt.Sprintf("%s Long", a.active.Name()))
	case last == types.SignalExitLong && a.state.Position == types.PositionLong:
		a.submit(ctx, types.OrderSideSell, candle, fmt.Sprintf("%s Exit", a.active.Name()))
	}
}

// submit places a market order and mutates state only after the exchange
// accepts it. A rejected or failed order changes nothing.
func (a *Agent) submit(ctx context.Context, side types.OrderSide, candle types.Candle, label string) {
	_, err := a.orders.PlaceOrder(ctx, exchange.OrderRequest{
		InstID:  a.instID,
		TdMode:  a.tradeMode,
		Side:    side,
		OrdType: "market",
		Size:    a.orderSize,
		PosSide: "long",
	})
	if err != nil {
		a.logger.Error("Order failed, state unchanged",
			zap.String("side", string(side)),
			zap.Error(err),
		)
		return
	}

	if side == types.OrderSideBuy {
		a.state.Position = types.PositionLong
		a.state.EntryPrice = candle.Close
		a.appendMarkerAt(candle.Timestamp, types.MarkerEntry, candle.Close, label)
	} else {
		a.state.Position = types.PositionFlat
		a.state.EntryPrice = 0
		a.appendMarkerAt(candle.Timestamp, types.MarkerExit, candle.Close, label)
	}
	if err := a.states.Save(a.state); err != nil {
		a.logger.Error("Failed to persist state after fill", zap.Error(err))
	}
}

// SwitchStrategy activates a different catalog strategy. The open position,
// if any, is kept: the new strategy's next exit signal will close it.
func (a *Agent) SwitchStrategy(id int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, err := a.registry.Get(id)
	if err != nil {
		return "", err
	}
	a.active = next
	a.state.StrategyID = id
	a.appendMarker(types.MarkerNote, 0, fmt.Sprintf("Start: %s", next.Name()))
	if err := a.states.Save(a.state); err != nil {
		a.logger.Warn("Failed to persist strategy switch", zap.Error(err))
	}
	a.logger.Info("Strategy switched", zap.Int("strategyId", id), zap.String("strategy", next.Name()))
	return fmt.Sprintf("Now trading with %s.", next.Name()), nil
}

// SetRisk updates leverage and risk percent used for future entries.
func (a *Agent) SetRisk(leverage int, riskPercent float64) (string, error) {
	if leverage < 1 {
		return "", fmt.Errorf("leverage must be >= 1, got %d", leverage)
	}
	if riskPercent <= 0 || riskPercent > 100 {
		return "", fmt.Errorf("risk percent must be in (0, 100], got %v", riskPercent)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Leverage = leverage
	a.state.RiskPercent = riskPercent
	if err := a.states.Save(a.state); err != nil {
		a.logger.Warn("Failed to persist risk settings", zap.Error(err))
	}
	return fmt.Sprintf("Risk updated: leverage %dx, %.1f%% of equity per entry.", leverage, riskPercent), nil
}

// PanicSell closes any open position immediately at market.
func (a *Agent) PanicSell(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.Position == types.PositionFlat {
		return "No open position to close.", nil
	}
	_, err := a.orders.PlaceOrder(ctx, exchange.OrderRequest{
		InstID:  a.instID,
		TdMode:  a.tradeMode,
		Side:    types.OrderSideSell,
		OrdType: "market",
		Size:    a.orderSize,
		PosSide: "long",
	})
	if err != nil {
		return "", fmt.Errorf("emergency exit failed: %w", err)
	}
	a.state.Position = types.PositionFlat
	a.state.EntryPrice = 0
	a.appendMarker(types.MarkerNote, 0, "PANIC SELL")
	if err := a.states.Save(a.state); err != nil {
		a.logger.Error("Failed to persist state after panic sell", zap.Error(err))
	}
	a.logger.Warn("Emergency exit executed")
	return "Emergency exit order accepted; position closed.", nil
}

// StatusReport summarizes current market conditions in a sentence for
// operators and chat surfaces.
func (a *Agent) StatusReport() string {
	series := a.candles.Candles()
	if len(series) < 21 {
		return fmt.Sprintf("Collecting data: %d candles so far, indicators need at least 21.", len(series))
	}

	close := make([]float64, len(series))
	for i, c := range series {
		close[i] = c.Close
	}
	rsi := talib.Rsi(close, 14)
	ma5 := talib.Sma(close, 5)
	ma20 := talib.Sma(close, 20)

	last := len(series) - 1
	trend := "falling"
	if ma5[last] > ma20[last] {
		trend = "rising"
	}
	rsiStatus := "neutral"
	switch {
	case rsi[last] > 70:
		rsiStatus = "overbought"
	case rsi[last] < 30:
		rsiStatus = "oversold"
	}
	return fmt.Sprintf("Tracking %d candles. RSI %.2f (%s); MA5 %.2f vs MA20 %.2f, trend %s.",
		len(series), rsi[last], rsiStatus, ma5[last], ma20[last], trend)
}

// Snapshot returns a copy of the live state.
func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	markers := make([]types.TradeMarker, len(a.state.Markers))
	copy(markers, a.state.Markers)
	return Snapshot{
		Position:      a.state.Position,
		EntryPrice:    a.state.EntryPrice,
		StrategyID:    a.state.StrategyID,
		StrategyName:  a.active.Name(),
		Leverage:      a.state.Leverage,
		RiskPercent:   a.state.RiskPercent,
		LastEvaluated: a.lastEvaluated,
		Markers:       markers,
	}
}

// ActiveStrategyID returns the current strategy ID.
func (a *Agent) ActiveStrategyID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.StrategyID
}

func (a *Agent) appendMarker(side types.MarkerSide, price float64, label string) {
	a.appendMarkerAt(a.now().UnixMilli(), side, price, label)
}

func (a *Agent) appendMarkerAt(ts int64, side types.MarkerSide, price float64, label string) {
	a.state.Markers = append(a.state.Markers, types.TradeMarker{
		Timestamp: ts,
		Side:      side,
		Price:     price,
		Label:     label,
	})
	if len(a.state.Markers) > maxMarkers {
		a.state.Markers = a.state.Markers[len(a.state.Markers)-maxMarkers:]
	}
}
