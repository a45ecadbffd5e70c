package optimize_test

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/backtest"
	"github.com/quantpilot/trading-backend/internal/data"
	"github.com/quantpilot/trading-backend/internal/optimize"
	"github.com/quantpilot/trading-backend/internal/strategy"
	"github.com/quantpilot/trading-backend/pkg/types"
)

func wavyCandles(n int) []types.Candle {
	out := make([]types.Candle, n)
	for i := 0; i < n; i++ {
		c := 100 + 10*math.Sin(float64(i)/9) + 3*math.Sin(float64(i)/2.3)
		out[i] = types.Candle{
			Timestamp: 1700000000000 + int64(i)*1800000,
			Open:      c,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func newBatchRunner(t *testing.T) (*optimize.BatchRunner, *data.Store) {
	t.Helper()
	logger := zap.NewNop()
	store, err := data.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	engine := backtest.NewEngine(logger, 10000)
	opt := optimize.NewOptimizer(logger, engine, types.OptimizerConfig{
		MaxLeverage:  3,
		RiskPercents: []float64{10, 30},
		MDDFloor:     -50,
	})
	return optimize.NewBatchRunner(logger, strategy.NewRegistry(), opt, store, 4), store
}

func TestBatchRunStoresWinners(t *testing.T) {
	runner, store := newBatchRunner(t)
	candles := wavyCandles(400)

	if err := runner.RunAll(context.Background(), candles); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if store.PerfCount() == 0 {
		t.Fatal("Expected at least one optimized strategy")
	}
	for _, p := range store.AllPerf() {
		if p.StrategyID == 0 {
			t.Error("Standby strategy must never be optimized")
		}
		result, ok := store.LoadBacktestResult(p.StrategyID)
		if !ok {
			t.Errorf("Strategy %d has perf but no cached result", p.StrategyID)
			continue
		}
		if result.Config == nil {
			t.Errorf("Strategy %d cached result has no risk config", p.StrategyID)
		}
		if result.Summary.TradeCount == 0 {
			t.Errorf("Strategy %d stored with zero trades", p.StrategyID)
		}
	}
}

func TestBatchRunSkipsWhenAlreadyOptimized(t *testing.T) {
	runner, store := newBatchRunner(t)
	if err := store.SavePerf(types.StrategyPerf{StrategyID: 1, Name: "SMA Cross", RiskLevel: "Stable", TotalReturn: 5}); err != nil {
		t.Fatal(err)
	}

	if err := runner.RunAll(context.Background(), wavyCandles(400)); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if store.PerfCount() != 1 {
		t.Errorf("Expected batch to be skipped, perf count %d", store.PerfCount())
	}
}

func TestBatchRunEmptyCandles(t *testing.T) {
	runner, store := newBatchRunner(t)
	if err := runner.RunAll(context.Background(), nil); err != nil {
		t.Fatalf("RunAll on empty candles failed: %v", err)
	}
	if store.PerfCount() != 0 {
		t.Errorf("Expected nothing stored, got %d", store.PerfCount())
	}
}
