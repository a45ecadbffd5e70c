// Package backtest provides the bar-replay simulation engine.
//
// The engine replays a candle series against a precomputed signal series and
// produces an equity curve, trade markers, and summary statistics. Position
// sizing is taken from realized equity only; open positions are marked to
// market in the curve but never feed back into sizing.
package backtest

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/pkg/types"
)

// Engine runs long-only bar-replay simulations.
type Engine struct {
	logger         *zap.Logger
	startingEquity float64
}

// NewEngine creates a simulation engine. All runs share the same starting
// equity so results across strategies and configurations are comparable.
func NewEngine(logger *zap.Logger, startingEquity float64) *Engine {
	return &Engine{
		logger:         logger,
		startingEquity: startingEquity,
	}
}

// StartingEquity returns the capital each run begins with.
func (e *Engine) StartingEquity() float64 {
	return e.startingEquity
}

// Run replays candles against signals under the given risk configuration.
// Candles and signals must have equal length and candle timestamps must be
// strictly ascending. The first candle only seeds the equity curve; its
// signal is never acted on.
func (e *Engine) Run(ctx context.Context, candles []types.Candle, signals []types.Signal, cfg types.RiskConfig) (*types.BacktestResult, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("empty candle series")
	}
	if len(candles) != len(signals) {
		return nil, fmt.Errorf("candle/signal length mismatch: %d vs %d", len(candles), len(signals))
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp <= candles[i-1].Timestamp {
			return nil, fmt.Errorf("candle timestamps not strictly ascending at index %d", i)
		}
	}
	if cfg.Leverage < 1 {
		return nil, fmt.Errorf("leverage must be >= 1, got %d", cfg.Leverage)
	}
	if cfg.RiskPercent <= 0 || cfg.RiskPercent > 100 {
		return nil, fmt.Errorf("risk percent must be in (0, 100], got %v", cfg.RiskPercent)
	}

	leverage := float64(cfg.Leverage)
	riskFrac := cfg.RiskFraction()

	equity := e.startingEquity // realized capital, changes only on exit
	curve := make([]types.EquityPoint, 0, len(candles))
	markers := make([]types.TradeMarker, 0)
	overTrades := make([]types.TradePoint, 0)
	tradeNum := 0

	position := types.PositionFlat
	entryPrice := 0.0
	qty := 0.0
	tradeHighest := 0.0
	tradeLowest := 0.0

	curve = append(curve, types.EquityPoint{Timestamp: candles[0].Timestamp, Value: equity})

	for i := 1; i < len(candles); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		c := candles[i]
		price := c.Close
		exited := false

		currentEquity := equity
		if position == types.PositionLong {
			currentEquity += (price - entryPrice) * qty
			tradeHighest = math.Max(tradeHighest, c.High)
			tradeLowest = math.Min(tradeLowest, c.Low)
		}

		switch {
		case position == types.PositionFlat && signals[i] == types.SignalEnterLong:
			position = types.PositionLong
			entryPrice = price
			tradeHighest = price
			tradeLowest = price

			invest := equity * riskFrac // sized from realized capital
			qty = invest * leverage / price

			markers = append(markers, types.TradeMarker{
				Timestamp: c.Timestamp,
				Side:      types.MarkerEntry,
				Price:     price,
				Label:     fmt.Sprintf("Buy x%d", cfg.Leverage),
			})
			tradeNum++
			overTrades = append(overTrades, types.TradePoint{TradeNum: tradeNum, Value: currentEquity})

		case position == types.PositionLong && signals[i] == types.SignalExitLong:
			equity += (price - entryPrice) * qty
			mfe := (tradeHighest - entryPrice) * qty
			mae := (tradeLowest - entryPrice) * qty

			markers = append(markers, types.TradeMarker{
				Timestamp: c.Timestamp,
				Side:      types.MarkerExit,
				Price:     price,
				Label:     "Sell",
			})
			// the exit point replaces the generic per-candle point
			curve = append(curve, types.EquityPoint{Timestamp: c.Timestamp, Value: equity, MFE: mfe, MAE: mae})
			tradeNum++
			overTrades = append(overTrades, types.TradePoint{TradeNum: tradeNum, Value: equity})

			position = types.PositionFlat
			qty = 0
			exited = true
		}

		if equity <= 0 {
			equity = 0
			curve = append(curve, types.EquityPoint{Timestamp: c.Timestamp, Value: 0})
			break
		}

		if !exited {
			curve = append(curve, types.EquityPoint{Timestamp: c.Timestamp, Value: currentEquity})
		}
	}

	roi := math.Round((equity/e.startingEquity-1)*100*100) / 100

	result := &types.BacktestResult{
		Summary: types.BacktestSummary{
			FinalEquity: equity,
			TradeCount:  tradeNum,
			ROI:         roi,
			MDD:         MaxDrawdown(curve),
		},
		EquityCurve:      curve,
		TradeMarkers:     markers,
		EquityOverTrades: overTrades,
		Config:           &types.RiskConfig{Leverage: cfg.Leverage, RiskPercent: cfg.RiskPercent},
	}

	e.logger.Debug("Backtest complete",
		zap.Int("candles", len(candles)),
		zap.Int("leverage", cfg.Leverage),
		zap.Float64("riskPercent", cfg.RiskPercent),
		zap.Float64("roi", roi),
		zap.Int("trades", tradeNum),
	)
	return result, nil
}
