package agent_test

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/agent"
	"github.com/quantpilot/trading-backend/internal/analyzer"
	"github.com/quantpilot/trading-backend/internal/backtest"
	"github.com/quantpilot/trading-backend/internal/strategy"
	"github.com/quantpilot/trading-backend/pkg/types"
)

// wavySeries produces an oscillating minute-bar series so trend and
// reversion strategies alike generate trades during ranking.
func wavySeries(n int) []types.Candle {
	series := make([]types.Candle, n)
	for i := 0; i < n; i++ {
		price := 100 + 10*math.Sin(float64(i)/9) + 3*math.Sin(float64(i)/2.3)
		series[i] = types.Candle{
			Timestamp: int64(i) * barMs,
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
	}
	return series
}

func newTestReviewer(candles agent.CandleSource, minDelta float64) *agent.Reviewer {
	an := analyzer.NewAnalyzer(zap.NewNop(),
		backtest.NewEngine(zap.NewNop(), 10000), strategy.NewRegistry())
	return agent.NewReviewer(zap.NewNop(), an, candles, types.ReviewConfig{
		WindowDays:     14,
		MinROIDeltaPct: minDelta,
	})
}

func TestTopRankedPicksFirstScore(t *testing.T) {
	scores := []types.StrategyScore{
		{StrategyID: 7, StrategyName: "Supertrend", ROI: 12},
		{StrategyID: 1, StrategyName: "SMA Cross", ROI: 4},
	}
	got := agent.TopRanked(scores)
	if got.StrategyID != 7 {
		t.Fatalf("expected the best score, got %+v", got)
	}
}

func TestReviewHoldsWhenCurrentIsCandidate(t *testing.T) {
	candles := &fakeCandles{series: wavySeries(400)}
	r := newTestReviewer(candles, 3)
	r.SetSelector(func([]types.StrategyScore) *types.StrategyScore {
		return &types.StrategyScore{StrategyID: 0, StrategyName: "No Strategy (Standby)", ROI: 0}
	})

	s, err := r.Review(context.Background(), 0)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if s.Action != agent.ActionHold {
		t.Fatalf("expected HOLD when the candidate is the current strategy, got %v", s.Action)
	}
	if s.Candidate != nil {
		t.Fatalf("same-strategy hold carries no candidate, got %+v", s.Candidate)
	}
}

// Strategy 0 never trades, so the current ROI baseline is exactly zero and
// the threshold arithmetic is fully predictable.
func TestReviewHoldsBelowThreshold(t *testing.T) {
	candles := &fakeCandles{series: wavySeries(400)}
	r := newTestReviewer(candles, 3)
	r.SetSelector(func([]types.StrategyScore) *types.StrategyScore {
		return &types.StrategyScore{StrategyID: 5, StrategyName: "Parabolic SAR", ROI: 1.5}
	})

	s, err := r.Review(context.Background(), 0)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if s.Action != agent.ActionHold {
		t.Fatalf("expected HOLD for a 1.5 point lead under a 3 point threshold, got %v", s.Action)
	}
	if s.Candidate == nil || s.Candidate.StrategyID != 5 {
		t.Fatalf("below-threshold hold still names the candidate, got %+v", s.Candidate)
	}
	if s.CurrentROI != 0 {
		t.Fatalf("standby baseline must be 0, got %v", s.CurrentROI)
	}
}

func TestReviewSuggestsSwitchAboveThreshold(t *testing.T) {
	candles := &fakeCandles{series: wavySeries(400)}
	r := newTestReviewer(candles, 3)
	r.SetSelector(func([]types.StrategyScore) *types.StrategyScore {
		return &types.StrategyScore{StrategyID: 5, StrategyName: "Parabolic SAR", ROI: 10}
	})

	s, err := r.Review(context.Background(), 0)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if s.Action != agent.ActionSwitch {
		t.Fatalf("expected SWITCH, got %v (%s)", s.Action, s.Reason)
	}
	if s.Candidate.StrategyID != 5 {
		t.Fatalf("unexpected candidate %+v", s.Candidate)
	}
	if got := r.LastSuggestion(); got != s {
		t.Fatalf("last suggestion not cached")
	}
}

func TestReviewFailsWithoutCandles(t *testing.T) {
	r := newTestReviewer(&fakeCandles{}, 3)
	if _, err := r.Review(context.Background(), 0); err == nil {
		t.Fatalf("expected error when no candles are available")
	}
}

// A switch suggestion changes nothing until it is explicitly applied.
func TestApplySuggestionRequiresSwitch(t *testing.T) {
	candles := &fakeCandles{series: flatSeries(30, 100)}
	a := newTestAgent(t, candles, &fakeOrders{})
	r := newTestReviewer(candles, 3)

	hold := &agent.Suggestion{Action: agent.ActionHold}
	if _, err := r.ApplySuggestion(a, hold); err == nil {
		t.Fatalf("expected error applying a HOLD suggestion")
	}
	if a.ActiveStrategyID() != 1 {
		t.Fatalf("hold must not change the strategy, got %d", a.ActiveStrategyID())
	}

	sw := &agent.Suggestion{
		Action:    agent.ActionSwitch,
		Candidate: &types.StrategyScore{StrategyID: 3, StrategyName: "MACD Trend", ROI: 9},
	}
	msg, err := r.ApplySuggestion(a, sw)
	if err != nil {
		t.Fatalf("ApplySuggestion: %v", err)
	}
	if msg != "Now trading with MACD Trend." {
		t.Fatalf("unexpected message %q", msg)
	}
	if a.ActiveStrategyID() != 3 {
		t.Fatalf("expected strategy 3 after apply, got %d", a.ActiveStrategyID())
	}
}

func TestSetSelectorDuringReview(t *testing.T) {
	candles := &fakeCandles{series: wavySeries(400)}
	r := newTestReviewer(candles, 3)

	// review cycles run on the agent goroutine while the policy can be
	// swapped from elsewhere; both must be safe to interleave
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			if _, err := r.Review(context.Background(), 0); err != nil {
				t.Errorf("Review: %v", err)
				return
			}
		}
	}()
	for i := 0; i < 20; i++ {
		r.SetSelector(agent.TopRanked)
	}
	<-done
}

func TestReviewFuncLogsAndContinuesOnError(t *testing.T) {
	candles := &fakeCandles{series: flatSeries(30, 100)}
	a := newTestAgent(t, candles, &fakeOrders{})
	r := newTestReviewer(&fakeCandles{}, 3)

	// ranking fails on the empty source; the callback must swallow it
	fn := r.ReviewFunc(a)
	fn(context.Background())
}
