// Package types provides shared type definitions for the trading backend.
package types

import "time"

// Signal is a per-bar trade directive produced by a strategy.
type Signal int

const (
	SignalNone      Signal = 0
	SignalEnterLong Signal = 1
	SignalExitLong  Signal = -1
)

// PositionState is the position side of a simulation or the live agent.
// Short positions are not modeled.
type PositionState int

const (
	PositionFlat PositionState = 0
	PositionLong PositionState = 1
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// MarkerSide distinguishes entry and exit trade markers.
type MarkerSide string

const (
	MarkerEntry MarkerSide = "entry"
	MarkerExit  MarkerSide = "exit"
	// MarkerNote flags system annotations such as startup or strategy
	// switches, not position transitions.
	MarkerNote MarkerSide = "note"
)

// MarketTrend classifies the recent price direction of the instrument.
type MarketTrend string

const (
	TrendUp    MarketTrend = "uptrend"
	TrendDown  MarketTrend = "downtrend"
	TrendRange MarketTrend = "range-bound"
)

// Candle is a single fixed-duration OHLCV bar. Timestamp is a millisecond
// Unix epoch; series handed to the simulator must be strictly ascending.
type Candle struct {
	Timestamp int64   `json:"ts"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"vol"`
}

// Time returns the candle's timestamp as a time.Time.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// RiskConfig is a leverage / position-sizing configuration. Immutable once
// chosen for a run; the optimizer searches a finite grid of these.
type RiskConfig struct {
	Leverage    int     `json:"leverage"`
	RiskPercent float64 `json:"riskPercent"` // percent of equity per entry, (0,100]
}

// RiskFraction returns RiskPercent as a fraction in (0,1].
func (rc RiskConfig) RiskFraction() float64 {
	return rc.RiskPercent / 100.0
}

// EquityPoint is one point of a backtest equity curve. Value is the
// mark-to-market equity at that candle, except at an exit candle where it is
// the post-exit realized equity. MFE/MAE are only set on exit points.
type EquityPoint struct {
	Timestamp int64   `json:"time"`
	Value     float64 `json:"value"`
	MFE       float64 `json:"mfe"`
	MAE       float64 `json:"mae"`
}

// TradeMarker is an append-only audit/visualization record of one position
// transition.
type TradeMarker struct {
	Timestamp int64      `json:"time"`
	Side      MarkerSide `json:"side"`
	Price     float64    `json:"price"`
	Label     string     `json:"text"`
}

// TradePoint is the equity sampled at one transition, indexed by trade
// sequence number.
type TradePoint struct {
	TradeNum int     `json:"tradeNum"`
	Value    float64 `json:"value"`
}

// BacktestSummary is the headline result of one simulation run.
type BacktestSummary struct {
	FinalEquity float64 `json:"finalEquity"`
	TradeCount  int     `json:"tradeCount"`
	ROI         float64 `json:"roi"`
	MDD         float64 `json:"mdd"`
}

// BacktestResult is the full artifact of one (strategy, risk configuration)
// simulation. Treated as immutable once produced.
type BacktestResult struct {
	Summary          BacktestSummary `json:"summary"`
	EquityCurve      []EquityPoint   `json:"equityCurve"`
	TradeMarkers     []TradeMarker   `json:"tradeMarkers"`
	EquityOverTrades []TradePoint    `json:"equityOverTrades"`
	Config           *RiskConfig     `json:"config,omitempty"`
}

// StrategyScore is one entry of a strategy ranking over a trailing window.
type StrategyScore struct {
	StrategyID   int     `json:"strategyId"`
	StrategyName string  `json:"strategyName"`
	ROI          float64 `json:"roi"`
	MDD          float64 `json:"mdd"`
	Trades       int     `json:"trades"`
	FinalEquity  float64 `json:"finalEquity"`
}

// StrategyPerf is the optimized headline performance of one strategy,
// produced by the batch grid search and kept for listing and recommendation.
type StrategyPerf struct {
	StrategyID  int     `json:"id"`
	Name        string  `json:"name"`
	RiskLevel   string  `json:"riskLevel"`
	TotalReturn float64 `json:"totalReturn"`
	MDD         float64 `json:"mdd"`
}

// AgentState is the persisted state of the live agent. It is written
// atomically after every mutation so a crash loses at most the in-flight
// mutation.
type AgentState struct {
	Position    PositionState `json:"position"`
	EntryPrice  float64       `json:"entryPrice"`
	Leverage    int           `json:"leverage"`
	RiskPercent float64       `json:"riskPercent"`
	StrategyID  int           `json:"strategyId"`
	Markers     []TradeMarker `json:"markers"`
}

// Tick is one market price update delivered by a feed connection.
type Tick struct {
	InstID    string  `json:"instId"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"ts"`
}

// OrderUpdate is a private-feed order state change.
type OrderUpdate struct {
	OrderID   string `json:"ordId"`
	InstID    string `json:"instId"`
	State     string `json:"state"`
	Side      string `json:"side"`
	FillPrice string `json:"avgPx"`
	Timestamp int64  `json:"ts"`
}
