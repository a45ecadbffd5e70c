package strategy

import "math"

// Indicators not covered by go-talib are computed here. Each helper returns
// a slice the same length as its inputs with zero-valued warmup prefixes.

// vwma is a volume-weighted moving average.
func vwma(close, volume []float64, period int) []float64 {
	out := make([]float64, len(close))
	if len(close) < period {
		return out
	}
	var pv, v float64
	for i := 0; i < len(close); i++ {
		pv += close[i] * volume[i]
		v += volume[i]
		if i >= period {
			pv -= close[i-period] * volume[i-period]
			v -= volume[i-period]
		}
		if i >= period-1 && v > 0 {
			out[i] = pv / v
		}
	}
	return out
}

// cmf is the Chaikin money flow over the given period.
func cmf(high, low, close, volume []float64, period int) []float64 {
	n := len(close)
	out := make([]float64, n)
	mfv := make([]float64, n)
	for i := 0; i < n; i++ {
		spread := high[i] - low[i]
		if spread > 0 {
			mult := ((close[i] - low[i]) - (high[i] - close[i])) / spread
			mfv[i] = mult * volume[i]
		}
	}
	var mfvSum, volSum float64
	for i := 0; i < n; i++ {
		mfvSum += mfv[i]
		volSum += volume[i]
		if i >= period {
			mfvSum -= mfv[i-period]
			volSum -= volume[i-period]
		}
		if i >= period-1 && volSum > 0 {
			out[i] = mfvSum / volSum
		}
	}
	return out
}

// vortex computes the VI+ and VI- lines over the given period.
func vortex(high, low, close []float64, period int) (viPlus, viMinus []float64) {
	n := len(close)
	viPlus = make([]float64, n)
	viMinus = make([]float64, n)
	if n < 2 {
		return viPlus, viMinus
	}

	tr := make([]float64, n)
	vmPlus := make([]float64, n)
	vmMinus := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))
		vmPlus[i] = math.Abs(high[i] - low[i-1])
		vmMinus[i] = math.Abs(low[i] - high[i-1])
	}

	var trSum, plusSum, minusSum float64
	for i := 1; i < n; i++ {
		trSum += tr[i]
		plusSum += vmPlus[i]
		minusSum += vmMinus[i]
		if i > period {
			trSum -= tr[i-period]
			plusSum -= vmPlus[i-period]
			minusSum -= vmMinus[i-period]
		}
		if i >= period && trSum > 0 {
			viPlus[i] = plusSum / trSum
			viMinus[i] = minusSum / trSum
		}
	}
	return viPlus, viMinus
}

// supertrend returns the per-bar trend direction: +1 up, -1 down, 0 during
// warmup. atr must already be computed over the same series.
func supertrend(high, low, close, atr []float64, period int, multiplier float64) []int {
	n := len(close)
	trend := make([]int, n)
	if n <= period {
		return trend
	}

	finalUpper := make([]float64, n)
	finalLower := make([]float64, n)
	for i := period; i < n; i++ {
		mid := (high[i] + low[i]) / 2
		basicUpper := mid + multiplier*atr[i]
		basicLower := mid - multiplier*atr[i]

		if i == period {
			finalUpper[i] = basicUpper
			finalLower[i] = basicLower
			trend[i] = 1
			continue
		}

		if basicUpper < finalUpper[i-1] || close[i-1] > finalUpper[i-1] {
			finalUpper[i] = basicUpper
		} else {
			finalUpper[i] = finalUpper[i-1]
		}
		if basicLower > finalLower[i-1] || close[i-1] < finalLower[i-1] {
			finalLower[i] = basicLower
		} else {
			finalLower[i] = finalLower[i-1]
		}

		switch {
		case trend[i-1] == 1 && close[i] < finalLower[i]:
			trend[i] = -1
		case trend[i-1] == -1 && close[i] > finalUpper[i]:
			trend[i] = 1
		default:
			trend[i] = trend[i-1]
		}
	}
	return trend
}

// ichimoku computes the conversion line, base line, and both leading spans.
// The spans are projected forward: span values at bar i were computed from
// data ending shift bars earlier, matching how the cloud is read on a chart.
func ichimoku(high, low []float64, tenkanPeriod, kijunPeriod, spanBPeriod, shift int) (tenkan, kijun, spanA, spanB []float64) {
	n := len(high)
	tenkan = make([]float64, n)
	kijun = make([]float64, n)
	spanA = make([]float64, n)
	spanB = make([]float64, n)

	mid := func(i, period int) float64 {
		hi := high[i]
		lo := low[i]
		for j := i - period + 1; j < i; j++ {
			hi = math.Max(hi, high[j])
			lo = math.Min(lo, low[j])
		}
		return (hi + lo) / 2
	}

	for i := 0; i < n; i++ {
		if i >= tenkanPeriod-1 {
			tenkan[i] = mid(i, tenkanPeriod)
		}
		if i >= kijunPeriod-1 {
			kijun[i] = mid(i, kijunPeriod)
		}
	}
	for i := shift; i < n; i++ {
		src := i - shift
		if src >= kijunPeriod-1 {
			spanA[i] = (tenkan[src] + kijun[src]) / 2
		}
		if src >= spanBPeriod-1 {
			spanB[i] = mid(src, spanBPeriod)
		}
	}
	return tenkan, kijun, spanA, spanB
}
