// Package strategy provides the signal strategy catalog.
//
// A strategy turns a candle series into a per-bar signal series. Strategies
// are stateless and deterministic: the same candles always produce the same
// signals. Sizing and execution are not a strategy concern.
package strategy

import "github.com/quantpilot/trading-backend/pkg/types"

// Strategy computes entry/exit signals for a candle series.
type Strategy interface {
	ID() int
	Name() string
	RiskLevel() string
	Description() string

	// CalculateSignals returns one signal per candle. The returned slice
	// always has the same length as the input; bars inside the indicator
	// warmup window carry SignalNone.
	CalculateSignals(candles []types.Candle) []types.Signal
}

// meta carries the descriptive half of a strategy.
type meta struct {
	id          int
	name        string
	riskLevel   string
	description string
}

func (m meta) ID() int             { return m.id }
func (m meta) Name() string        { return m.name }
func (m meta) RiskLevel() string   { return m.riskLevel }
func (m meta) Description() string { return m.description }

func highs(cs []types.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

func lows(cs []types.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}

func closes(cs []types.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func volumes(cs []types.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Volume
	}
	return out
}

// evalBars applies rule to every bar at or past warmup. Bars before warmup
// stay SignalNone so indicator seed values never produce phantom crossings.
func evalBars(n, warmup int, rule func(i int) types.Signal) []types.Signal {
	signals := make([]types.Signal, n)
	if n <= warmup {
		return signals
	}
	for i := warmup; i < n; i++ {
		signals[i] = rule(i)
	}
	return signals
}

// crossUp reports whether a crossed above b at bar i.
func crossUp(a, b []float64, i int) bool {
	return a[i] > b[i] && a[i-1] <= b[i-1]
}

// crossDown reports whether a crossed below b at bar i.
func crossDown(a, b []float64, i int) bool {
	return a[i] < b[i] && a[i-1] >= b[i-1]
}

// crossAbove reports whether series v crossed above the constant level at bar i.
func crossAbove(v []float64, level float64, i int) bool {
	return v[i] > level && v[i-1] <= level
}

// crossBelow reports whether series v crossed below the constant level at bar i.
func crossBelow(v []float64, level float64, i int) bool {
	return v[i] < level && v[i-1] >= level
}
