package optimize_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/backtest"
	"github.com/quantpilot/trading-backend/internal/optimize"
	"github.com/quantpilot/trading-backend/pkg/types"
)

func makeCandles(closes ...float64) []types.Candle {
	candles := make([]types.Candle, len(closes))
	for i, c := range closes {
		candles[i] = types.Candle{
			Timestamp: int64(1700000000000 + i*1800000),
			Open:      c, High: c, Low: c, Close: c,
		}
	}
	return candles
}

func newOptimizer(t *testing.T, cfg types.OptimizerConfig) *optimize.Optimizer {
	t.Helper()
	engine := backtest.NewEngine(zap.NewNop(), 10000)
	return optimize.NewOptimizer(zap.NewNop(), engine, cfg)
}

func TestSearchPicksHighestROI(t *testing.T) {
	opt := newOptimizer(t, types.OptimizerConfig{
		MaxLeverage:  10,
		RiskPercents: []float64{10, 20, 30, 50},
		MDDFloor:     -50,
	})

	// a winning trade: higher leverage and risk always help, so the best
	// admissible corner of the grid must win
	candles := makeCandles(100, 100, 110)
	signals := []types.Signal{types.SignalNone, types.SignalEnterLong, types.SignalExitLong}

	cfg, result, err := opt.Search(context.Background(), candles, signals)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected a winner")
	}
	if cfg.Leverage != 10 || cfg.RiskPercent != 50 {
		t.Errorf("Expected 10x / 50%%, got %dx / %v%%", cfg.Leverage, cfg.RiskPercent)
	}
	// 10000 * 0.5 * 10 / 100 = 500 units, +10 each
	if result.Summary.FinalEquity != 15000 {
		t.Errorf("Expected final equity 15000, got %v", result.Summary.FinalEquity)
	}
}

func TestSearchDeterministicTieBreak(t *testing.T) {
	opt := newOptimizer(t, types.OptimizerConfig{
		MaxLeverage:  10,
		RiskPercents: []float64{10, 20, 30, 50},
		MDDFloor:     -50,
	})

	// flat prices: every configuration ties at ROI 0, so the first grid
	// position must win on strict comparison
	candles := makeCandles(100, 100, 100)
	signals := []types.Signal{types.SignalNone, types.SignalEnterLong, types.SignalExitLong}

	for i := 0; i < 3; i++ {
		cfg, _, err := opt.Search(context.Background(), candles, signals)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if cfg == nil {
			t.Fatal("Expected a winner")
		}
		if cfg.Leverage != 1 || cfg.RiskPercent != 10 {
			t.Errorf("Run %d: expected 1x / 10%%, got %dx / %v%%", i, cfg.Leverage, cfg.RiskPercent)
		}
	}
}

func TestSearchRejectsDrawdownBelowFloor(t *testing.T) {
	opt := newOptimizer(t, types.OptimizerConfig{
		MaxLeverage:  10,
		RiskPercents: []float64{10, 20, 30, 50},
		MDDFloor:     -50,
	})

	// a losing trade followed by a winning one: high-leverage points crater
	// past the floor mid-run even when they finish profitable
	candles := makeCandles(100, 100, 90, 90, 140)
	signals := []types.Signal{
		types.SignalNone, types.SignalEnterLong, types.SignalExitLong,
		types.SignalEnterLong, types.SignalExitLong,
	}

	cfg, result, err := opt.Search(context.Background(), candles, signals)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected a winner")
	}
	if result.Summary.MDD < -50 {
		t.Errorf("Winner violates floor: MDD %v", result.Summary.MDD)
	}
}

func TestSearchZeroTradePointsAreNotCandidates(t *testing.T) {
	opt := newOptimizer(t, types.OptimizerConfig{
		MaxLeverage:  3,
		RiskPercents: []float64{10, 50},
		MDDFloor:     -50,
	})

	candles := makeCandles(100, 110, 120)
	signals := make([]types.Signal, len(candles))

	cfg, result, err := opt.Search(context.Background(), candles, signals)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if cfg != nil || result != nil {
		t.Errorf("Expected no winner, got %+v", cfg)
	}
}

func TestSearchExhaustionReturnsNil(t *testing.T) {
	opt := newOptimizer(t, types.OptimizerConfig{
		MaxLeverage:  10,
		RiskPercents: []float64{50, 100},
		MDDFloor:     -1, // nothing survives a 10% drop with this floor
	})

	candles := makeCandles(100, 100, 90)
	signals := []types.Signal{types.SignalNone, types.SignalEnterLong, types.SignalExitLong}

	cfg, result, err := opt.Search(context.Background(), candles, signals)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if cfg != nil || result != nil {
		t.Error("Expected exhaustion to return nil")
	}
}
