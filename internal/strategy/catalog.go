package strategy

import (
	talib "github.com/markcheno/go-talib"

	"github.com/quantpilot/trading-backend/pkg/types"
)

// The catalog below mirrors the production strategy set: trend following,
// mean reversion, then breakout/momentum. Every strategy guards its warmup
// window so indicator seed values never fire a signal.

// [0] no-op placeholder for an agent that should sit out.
type noStrategy struct{ meta }

func (s noStrategy) CalculateSignals(candles []types.Candle) []types.Signal {
	return make([]types.Signal, len(candles))
}

// --- Trend following ---

// [1] 5/20 simple moving average cross.
type smaCross struct{ meta }

func (s smaCross) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 21
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	close := closes(candles)
	fast := talib.Sma(close, 5)
	slow := talib.Sma(close, 20)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossUp(fast, slow, i):
			return types.SignalEnterLong
		case crossDown(fast, slow, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [2] 9/21 exponential moving average cross.
type emaCross struct{ meta }

func (s emaCross) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 22
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	close := closes(candles)
	fast := talib.Ema(close, 9)
	slow := talib.Ema(close, 21)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossUp(fast, slow, i):
			return types.SignalEnterLong
		case crossDown(fast, slow, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [3] MACD line / signal line cross.
type macdCross struct{ meta }

func (s macdCross) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 35
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	macd, signal, _ := talib.Macd(closes(candles), 12, 26, 9)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossUp(macd, signal, i):
			return types.SignalEnterLong
		case crossDown(macd, signal, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [4] directional movement cross gated on ADX strength.
type adxTrend struct{ meta }

func (s adxTrend) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 28
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	high, low, close := highs(candles), lows(candles), closes(candles)
	adx := talib.Adx(high, low, close, 14)
	plusDI := talib.PlusDI(high, low, close, 14)
	minusDI := talib.MinusDI(high, low, close, 14)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		if adx[i] <= 25 {
			return types.SignalNone
		}
		switch {
		case crossUp(plusDI, minusDI, i):
			return types.SignalEnterLong
		case crossDown(plusDI, minusDI, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [5] parabolic SAR flips.
type parabolicSar struct{ meta }

func (s parabolicSar) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 3
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	close := closes(candles)
	sar := talib.Sar(highs(candles), lows(candles), 0.02, 0.2)
	up := func(i int) bool { return sar[i] < close[i] }
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case up(i) && !up(i-1):
			return types.SignalEnterLong
		case !up(i) && up(i-1):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [6] Ichimoku conversion/base cross, confirmed by cloud position.
type ichimokuCloud struct{ meta }

func (s ichimokuCloud) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 78
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	close := closes(candles)
	tenkan, kijun, spanA, spanB := ichimoku(highs(candles), lows(candles), 9, 26, 52, 26)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		aboveCloud := close[i] > spanA[i] && close[i] > spanB[i]
		belowCloud := close[i] < spanA[i] && close[i] < spanB[i]
		switch {
		case aboveCloud && crossUp(tenkan, kijun, i):
			return types.SignalEnterLong
		case belowCloud && crossDown(tenkan, kijun, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [7] supertrend direction flips.
type supertrendFlip struct{ meta }

func (s supertrendFlip) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 12
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	high, low, close := highs(candles), lows(candles), closes(candles)
	atr := talib.Atr(high, low, close, 10)
	trend := supertrend(high, low, close, atr, 10, 3.0)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case trend[i] == 1 && trend[i-1] == -1:
			return types.SignalEnterLong
		case trend[i] == -1 && trend[i-1] == 1:
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [8] VI+/VI- vortex cross.
type vortexCross struct{ meta }

func (s vortexCross) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 15
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	viPlus, viMinus := vortex(highs(candles), lows(candles), closes(candles), 14)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossUp(viPlus, viMinus, i):
			return types.SignalEnterLong
		case crossDown(viPlus, viMinus, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [9] TRIX line / signal line cross.
type trixMomentum struct{ meta }

func (s trixMomentum) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 100
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	trix := talib.Trix(closes(candles), 30)
	signal := talib.Ema(trix, 9)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossUp(trix, signal, i):
			return types.SignalEnterLong
		case crossDown(trix, signal, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// --- Mean reversion ---

// [10] RSI oversold entry, overbought exit.
type rsiReversion struct{ meta }

func (s rsiReversion) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 15
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	rsi := talib.Rsi(closes(candles), 14)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossBelow(rsi, 30, i):
			return types.SignalEnterLong
		case crossAbove(rsi, 70, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [11] Bollinger band touch, fading the move.
type bollingerReversion struct{ meta }

func (s bollingerReversion) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 21
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	close := closes(candles)
	upper, _, lower := talib.BBands(close, 20, 2, 2, talib.SMA)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossDown(close, lower, i):
			return types.SignalEnterLong
		case crossUp(close, upper, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [12] stochastic K/D cross inside the extreme zones.
type stochasticCross struct{ meta }

func (s stochasticCross) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 20
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	k, d := talib.Stoch(highs(candles), lows(candles), closes(candles), 14, 3, talib.SMA, 3, talib.SMA)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case k[i] < 20 && crossUp(k, d, i):
			return types.SignalEnterLong
		case k[i] > 80 && crossDown(k, d, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [13] CCI recovering from the -100 zone.
type cciReversion struct{ meta }

func (s cciReversion) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 15
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	cci := talib.Cci(highs(candles), lows(candles), closes(candles), 14)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossAbove(cci, -100, i):
			return types.SignalEnterLong
		case crossBelow(cci, 100, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [14] Williams %R recovering from oversold.
type williamsR struct{ meta }

func (s williamsR) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 15
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	willr := talib.WillR(highs(candles), lows(candles), closes(candles), 14)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossAbove(willr, -80, i):
			return types.SignalEnterLong
		case crossBelow(willr, -20, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [15] money flow index extremes.
type mfiReversion struct{ meta }

func (s mfiReversion) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 15
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	mfi := talib.Mfi(highs(candles), lows(candles), closes(candles), volumes(candles), 14)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossBelow(mfi, 20, i):
			return types.SignalEnterLong
		case crossAbove(mfi, 80, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [16] ultimate oscillator turning inside the extreme zones.
type ultimateOsc struct{ meta }

func (s ultimateOsc) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 29
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	uo := talib.UltOsc(highs(candles), lows(candles), closes(candles), 7, 14, 28)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case uo[i] < 30 && uo[i] > uo[i-1]:
			return types.SignalEnterLong
		case uo[i] > 70 && uo[i] < uo[i-1]:
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// --- Breakout / momentum ---

// [17] Bollinger band breakout, riding the move.
type bollingerBreakout struct{ meta }

func (s bollingerBreakout) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 21
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	close := closes(candles)
	upper, _, lower := talib.BBands(close, 20, 2, 2, talib.SMA)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossUp(close, upper, i):
			return types.SignalEnterLong
		case crossDown(close, lower, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [18] 20-bar Donchian channel breakout.
type donchianBreakout struct{ meta }

func (s donchianBreakout) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 22
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	high, low := highs(candles), lows(candles)
	upper := talib.Max(high, 20)
	lower := talib.Min(low, 20)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case high[i] >= upper[i-1] && high[i-1] < upper[i-2]:
			return types.SignalEnterLong
		case low[i] <= lower[i-1] && low[i-1] > lower[i-2]:
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [19] Keltner channel breakout.
type keltnerBreakout struct{ meta }

func (s keltnerBreakout) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 21
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	high, low, close := highs(candles), lows(candles), closes(candles)
	mid := talib.Ema(close, 20)
	atr := talib.Atr(high, low, close, 20)
	upper := make([]float64, len(close))
	lower := make([]float64, len(close))
	for i := range close {
		upper[i] = mid[i] + 2*atr[i]
		lower[i] = mid[i] - 2*atr[i]
	}
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossUp(close, upper, i):
			return types.SignalEnterLong
		case crossDown(close, lower, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [20] rate-of-change zero-line cross.
type rocMomentum struct{ meta }

func (s rocMomentum) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 11
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	roc := talib.Roc(closes(candles), 10)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossAbove(roc, 0, i):
			return types.SignalEnterLong
		case crossBelow(roc, 0, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [21] awesome oscillator zero-line cross.
type awesomeOsc struct{ meta }

func (s awesomeOsc) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 35
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	med := talib.MedPrice(highs(candles), lows(candles))
	fast := talib.Sma(med, 5)
	slow := talib.Sma(med, 34)
	ao := make([]float64, len(med))
	for i := range med {
		ao[i] = fast[i] - slow[i]
	}
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossAbove(ao, 0, i):
			return types.SignalEnterLong
		case crossBelow(ao, 0, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [22] Hull moving average slope turns.
type hullTurn struct{ meta }

func (s hullTurn) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 24
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	close := closes(candles)
	half := talib.Wma(close, 10)
	full := talib.Wma(close, 20)
	diff := make([]float64, len(close))
	for i := range close {
		diff[i] = 2*half[i] - full[i]
	}
	hma := talib.Wma(diff, 4)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case hma[i] > hma[i-1] && hma[i-1] <= hma[i-2]:
			return types.SignalEnterLong
		case hma[i] < hma[i-1] && hma[i-1] >= hma[i-2]:
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [23] price crossing the triple EMA.
type temaCross struct{ meta }

func (s temaCross) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 60
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	close := closes(candles)
	tema := talib.Tema(close, 20)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossUp(close, tema, i):
			return types.SignalEnterLong
		case crossDown(close, tema, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [24] SMA crossing the volume-weighted MA: a move with volume behind it.
type vwmaCross struct{ meta }

func (s vwmaCross) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 21
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	close := closes(candles)
	sma := talib.Sma(close, 20)
	vw := vwma(close, volumes(candles), 20)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossUp(sma, vw, i):
			return types.SignalEnterLong
		case crossDown(sma, vw, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}

// [25] Chaikin money flow zero-line cross.
type cmfFlow struct{ meta }

func (s cmfFlow) CalculateSignals(candles []types.Candle) []types.Signal {
	const warmup = 21
	if len(candles) <= warmup {
		return make([]types.Signal, len(candles))
	}
	flow := cmf(highs(candles), lows(candles), closes(candles), volumes(candles), 20)
	return evalBars(len(candles), warmup, func(i int) types.Signal {
		switch {
		case crossAbove(flow, 0, i):
			return types.SignalEnterLong
		case crossBelow(flow, 0, i):
			return types.SignalExitLong
		}
		return types.SignalNone
	})
}
