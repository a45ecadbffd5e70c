package backtest

import "github.com/quantpilot/trading-backend/pkg/types"

// MaxDrawdown computes the maximum peak-to-trough drawdown of an equity
// curve as a non-positive percentage. A monotonically non-decreasing curve
// yields 0. The scan is strictly left-to-right: only peaks seen so far count,
// so the same curve always produces the same figure regardless of caller.
func MaxDrawdown(curve []types.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Value
	mdd := 0.0
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			dd := (p.Value - peak) / peak * 100
			if dd < mdd {
				mdd = dd
			}
		}
	}
	return mdd
}
