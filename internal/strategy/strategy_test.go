package strategy_test

import (
	"math"
	"testing"

	"github.com/quantpilot/trading-backend/internal/strategy"
	"github.com/quantpilot/trading-backend/pkg/types"
)

func candlesFromCloses(closes []float64) []types.Candle {
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		out[i] = types.Candle{
			Timestamp: int64(1700000000000 + i*1800000),
			Open:      c,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
			Volume:    1000 + float64(i%7)*100,
		}
	}
	return out
}

// syntheticSeries is a deterministic wavy series long enough to clear every
// strategy's warmup window.
func syntheticSeries(n int) []types.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/9) + 3*math.Sin(float64(i)/2.3)
	}
	return candlesFromCloses(closes)
}

func TestRegistryCatalog(t *testing.T) {
	reg := strategy.NewRegistry()

	if reg.Len() != 26 {
		t.Fatalf("Expected 26 strategies, got %d", reg.Len())
	}

	all := reg.All()
	for i, s := range all {
		if s.ID() != i {
			t.Errorf("Expected contiguous IDs, got %d at position %d", s.ID(), i)
		}
		if s.Name() == "" {
			t.Errorf("Strategy %d has no name", s.ID())
		}
	}

	if _, err := reg.Get(99); err == nil {
		t.Error("Expected error for unknown strategy id")
	}
	s, err := reg.Get(1)
	if err != nil {
		t.Fatalf("Get(1) failed: %v", err)
	}
	if s.ID() != 1 {
		t.Errorf("Get(1) returned strategy %d", s.ID())
	}
}

func TestAllStrategiesWellBehaved(t *testing.T) {
	reg := strategy.NewRegistry()
	long := syntheticSeries(300)
	short := syntheticSeries(5)

	for _, s := range reg.All() {
		s := s
		t.Run(s.Name(), func(t *testing.T) {
			sigs := s.CalculateSignals(long)
			if len(sigs) != len(long) {
				t.Fatalf("Expected %d signals, got %d", len(long), len(sigs))
			}
			for i, sig := range sigs {
				if sig != types.SignalNone && sig != types.SignalEnterLong && sig != types.SignalExitLong {
					t.Fatalf("Bar %d: invalid signal %d", i, sig)
				}
			}

			// deterministic
			again := s.CalculateSignals(long)
			for i := range sigs {
				if sigs[i] != again[i] {
					t.Fatalf("Bar %d: signals differ across runs", i)
				}
			}

			// warmup-sized input must not panic and must stay silent
			for _, sig := range s.CalculateSignals(short) {
				if sig != types.SignalNone {
					t.Fatal("Expected no signals on warmup-sized input")
				}
			}
			if got := s.CalculateSignals(nil); len(got) != 0 {
				t.Fatalf("Expected empty output for empty input, got %d", len(got))
			}
		})
	}
}

func TestNoStrategyNeverTrades(t *testing.T) {
	reg := strategy.NewRegistry()
	s, err := reg.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	for _, sig := range s.CalculateSignals(syntheticSeries(300)) {
		if sig != types.SignalNone {
			t.Fatal("Standby strategy produced a signal")
		}
	}
}

func TestSmaCrossFiresOnBreakout(t *testing.T) {
	reg := strategy.NewRegistry()
	s, err := reg.Get(1)
	if err != nil {
		t.Fatal(err)
	}

	// flat tape, then a jump: the 5-bar average crosses above the 20-bar
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	for i := 21; i < 30; i++ {
		closes[i] = 110
	}

	sigs := s.CalculateSignals(candlesFromCloses(closes))
	if sigs[21] != types.SignalEnterLong {
		t.Errorf("Expected entry at the breakout bar, got %d", sigs[21])
	}
	for i := 0; i < 21; i++ {
		if sigs[i] != types.SignalNone {
			t.Errorf("Bar %d: unexpected signal %d before breakout", i, sigs[i])
		}
	}
}

func TestRocMomentumZeroCross(t *testing.T) {
	reg := strategy.NewRegistry()
	s, err := reg.Get(20)
	if err != nil {
		t.Fatal(err)
	}

	// declining tape turns and rises: ROC(10) goes negative, then positive
	closes := make([]float64, 40)
	for i := 0; i < 20; i++ {
		closes[i] = 120 - float64(i)
	}
	for i := 20; i < 40; i++ {
		closes[i] = 100 + 2*float64(i-20)
	}

	sigs := s.CalculateSignals(candlesFromCloses(closes))
	sawEntry := false
	for _, sig := range sigs {
		if sig == types.SignalEnterLong {
			sawEntry = true
			break
		}
	}
	if !sawEntry {
		t.Error("Expected an entry after momentum turned positive")
	}
}
