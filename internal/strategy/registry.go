package strategy

import (
	"fmt"
	"sort"
)

// Registry holds the full strategy catalog keyed by ID.
type Registry struct {
	byID map[int]Strategy
}

// NewRegistry builds the catalog. IDs are stable: persisted agent state and
// cached results reference strategies by ID across restarts.
func NewRegistry() *Registry {
	list := []Strategy{
		noStrategy{meta{0, "No Strategy (Standby)", "None", "Holds no position and never trades."}},

		smaCross{meta{1, "SMA Cross", "Stable", "Golden/death cross of the 5 and 20 bar simple moving averages."}},
		emaCross{meta{2, "EMA Cross", "Stable", "Cross of the 9 and 21 bar exponential moving averages."}},
		macdCross{meta{3, "MACD Trend", "Moderate", "Buys when the MACD line crosses above its signal line."}},
		adxTrend{meta{4, "ADX Strong Trend", "Moderate", "Trades DI crosses only while ADX reads a strong trend (>25)."}},
		parabolicSar{meta{5, "Parabolic SAR", "Aggressive", "Buys when the SAR dots flip below price."}},
		ichimokuCloud{meta{6, "Ichimoku Cloud", "Moderate", "Conversion/base cross confirmed by position against the cloud."}},
		supertrendFlip{meta{7, "Supertrend", "Moderate", "Follows supertrend direction flips."}},
		vortexCross{meta{8, "Vortex", "Aggressive", "Buys when VI+ crosses above VI-."}},
		trixMomentum{meta{9, "TRIX Momentum", "Moderate", "TRIX line crossing its signal line."}},

		rsiReversion{meta{10, "RSI Reversion", "Aggressive", "Buys oversold (<30), sells overbought (>70)."}},
		bollingerReversion{meta{11, "Bollinger Reversion", "Moderate", "Fades touches of the Bollinger bands."}},
		stochasticCross{meta{12, "Stochastic", "Aggressive", "K/D golden cross in the oversold zone."}},
		cciReversion{meta{13, "CCI", "Aggressive", "Buys CCI recovering through -100, sells falling through +100."}},
		williamsR{meta{14, "Williams %R", "Aggressive", "Buys %R recovering through -80."}},
		mfiReversion{meta{15, "MFI", "Moderate", "Money flow index oversold/overbought reversal."}},
		ultimateOsc{meta{16, "Ultimate Oscillator", "Moderate", "Buys UO turning up below 30."}},

		bollingerBreakout{meta{17, "Bollinger Breakout", "Aggressive", "Buys closes through the upper Bollinger band."}},
		donchianBreakout{meta{18, "Donchian Breakout", "Stable", "Buys fresh 20-bar highs, sells fresh 20-bar lows."}},
		keltnerBreakout{meta{19, "Keltner Breakout", "Moderate", "Buys closes through the upper Keltner channel."}},
		rocMomentum{meta{20, "ROC Momentum", "Aggressive", "Rate-of-change crossing the zero line."}},
		awesomeOsc{meta{21, "Awesome Oscillator", "Moderate", "AO crossing the zero line."}},
		hullTurn{meta{22, "Hull MA", "Aggressive", "Buys when the fast-reacting Hull MA slope turns up."}},
		temaCross{meta{23, "TEMA", "Aggressive", "Price crossing the triple exponential moving average."}},
		vwmaCross{meta{24, "VWMA", "Stable", "SMA crossing the volume-weighted MA."}},
		cmfFlow{meta{25, "CMF", "Moderate", "Chaikin money flow crossing the zero line."}},
	}

	byID := make(map[int]Strategy, len(list))
	for _, s := range list {
		byID[s.ID()] = s
	}
	return &Registry{byID: byID}
}

// Get returns the strategy with the given ID.
func (r *Registry) Get(id int) (Strategy, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown strategy id %d", id)
	}
	return s, nil
}

// All returns every strategy ordered by ID.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the catalog size.
func (r *Registry) Len() int {
	return len(r.byID)
}
