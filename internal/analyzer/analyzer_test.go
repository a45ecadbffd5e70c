package analyzer_test

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/analyzer"
	"github.com/quantpilot/trading-backend/internal/backtest"
	"github.com/quantpilot/trading-backend/internal/strategy"
	"github.com/quantpilot/trading-backend/pkg/types"
)

const msPer30m = int64(1800000)

func wavyCandles(n int) []types.Candle {
	out := make([]types.Candle, n)
	for i := 0; i < n; i++ {
		c := 100 + 10*math.Sin(float64(i)/9) + 3*math.Sin(float64(i)/2.3)
		out[i] = types.Candle{
			Timestamp: 1700000000000 + int64(i)*msPer30m,
			Open:      c,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func newAnalyzer() *analyzer.Analyzer {
	engine := backtest.NewEngine(zap.NewNop(), 10000)
	return analyzer.NewAnalyzer(zap.NewNop(), engine, strategy.NewRegistry())
}

func TestRecentWindow(t *testing.T) {
	candles := wavyCandles(48 * 20) // 20 days of 30m bars

	recent := analyzer.RecentWindow(candles, 7)
	if len(recent) == 0 {
		t.Fatal("Expected a non-empty window")
	}
	cutoff := candles[len(candles)-1].Timestamp - 7*86400*1000
	if recent[0].Timestamp < cutoff {
		t.Errorf("Window includes candle before cutoff: %d < %d", recent[0].Timestamp, cutoff)
	}
	// the bar exactly at the cutoff belongs to the window
	if recent[0].Timestamp != cutoff && len(recent) != 7*48 {
		t.Logf("Window size %d", len(recent))
	}
	if analyzer.RecentWindow(nil, 7) != nil {
		t.Error("Expected nil window for empty input")
	}

	// a window longer than the series returns everything
	all := analyzer.RecentWindow(candles, 365)
	if len(all) != len(candles) {
		t.Errorf("Expected full series, got %d of %d", len(all), len(candles))
	}
}

func TestRankStrategiesOrdering(t *testing.T) {
	a := newAnalyzer()
	candles := wavyCandles(48 * 20)

	scores, err := a.RankStrategies(context.Background(), candles, 14)
	if err != nil {
		t.Fatalf("RankStrategies failed: %v", err)
	}
	if len(scores) != 26 {
		t.Fatalf("Expected 26 scores, got %d", len(scores))
	}
	for i := 1; i < len(scores); i++ {
		if scores[i].ROI > scores[i-1].ROI {
			t.Errorf("Scores out of order at %d: %v after %v", i, scores[i].ROI, scores[i-1].ROI)
		}
		if scores[i].ROI == scores[i-1].ROI && scores[i].StrategyID < scores[i-1].StrategyID {
			t.Errorf("Tie at %d not broken by strategy ID", i)
		}
	}
	for _, sc := range scores {
		if sc.Trades < 0 {
			t.Errorf("Strategy %d: negative trade count", sc.StrategyID)
		}
		if sc.MDD > 0 {
			t.Errorf("Strategy %d: drawdown must be non-positive, got %v", sc.StrategyID, sc.MDD)
		}
	}
}

func TestRankStrategiesDeterministic(t *testing.T) {
	a := newAnalyzer()
	candles := wavyCandles(48 * 20)

	first, err := a.RankStrategies(context.Background(), candles, 14)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.RankStrategies(context.Background(), candles, 14)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("Ranking sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Position %d differs across runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestRankStrategiesEmptyWindow(t *testing.T) {
	a := newAnalyzer()
	if _, err := a.RankStrategies(context.Background(), nil, 14); err == nil {
		t.Error("Expected error for empty series")
	}
}

func TestBestStrategyIsTopRanked(t *testing.T) {
	a := newAnalyzer()
	candles := wavyCandles(48 * 20)

	scores, err := a.RankStrategies(context.Background(), candles, 14)
	if err != nil {
		t.Fatal(err)
	}
	best, err := a.BestStrategy(context.Background(), candles, 14)
	if err != nil {
		t.Fatal(err)
	}
	if best == nil {
		t.Fatal("Expected a best strategy")
	}
	if *best != scores[0] {
		t.Errorf("Best %+v is not the top-ranked %+v", *best, scores[0])
	}
}

func TestMarketTrend(t *testing.T) {
	a := newAnalyzer()

	flat := func(first, last float64, n int) []types.Candle {
		out := make([]types.Candle, n)
		for i := range out {
			c := first + (last-first)*float64(i)/float64(n-1)
			out[i] = types.Candle{Timestamp: 1700000000000 + int64(i)*msPer30m, Close: c}
		}
		return out
	}

	cases := []struct {
		name  string
		first float64
		last  float64
		want  types.MarketTrend
	}{
		{"uptrend", 100, 110, types.TrendUp},
		{"downtrend", 100, 90, types.TrendDown},
		{"range-bound", 100, 103, types.TrendRange},
		{"boundary +5 stays range", 100, 105, types.TrendRange},
		{"boundary -5 stays range", 100, 95, types.TrendRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := a.MarketTrend(flat(tc.first, tc.last, 48), 7)
			if err != nil {
				t.Fatalf("MarketTrend failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("Expected %s, got %s", tc.want, got)
			}
		})
	}

	if _, err := a.MarketTrend(nil, 7); err == nil {
		t.Error("Expected error for empty series")
	}
}
