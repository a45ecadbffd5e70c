// Package analyzer ranks the strategy catalog over recent market data.
package analyzer

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/backtest"
	"github.com/quantpilot/trading-backend/internal/strategy"
	"github.com/quantpilot/trading-backend/pkg/types"
)

const msPerDay = 86400 * 1000

// baseline configuration for ranking runs: every strategy is compared on
// identical, conservative sizing so the ranking reflects signal quality.
var rankingConfig = types.RiskConfig{Leverage: 1, RiskPercent: 5}

// Analyzer backtests every catalog strategy over a trailing window and
// ranks the results.
type Analyzer struct {
	logger   *zap.Logger
	engine   *backtest.Engine
	registry *strategy.Registry
}

// NewAnalyzer creates an analyzer over the given engine and catalog.
func NewAnalyzer(logger *zap.Logger, engine *backtest.Engine, registry *strategy.Registry) *Analyzer {
	return &Analyzer{
		logger:   logger,
		engine:   engine,
		registry: registry,
	}
}

// RecentWindow returns the suffix of candles within the trailing window of
// the given number of days, measured back from the newest candle.
func RecentWindow(candles []types.Candle, days int) []types.Candle {
	if len(candles) == 0 {
		return nil
	}
	cutoff := candles[len(candles)-1].Timestamp - int64(days)*msPerDay
	// candles are ascending, find the first one inside the window
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp >= cutoff
	})
	return candles[i:]
}

// RankStrategies backtests every strategy over the trailing window and
// returns scores ordered by ROI descending, ties broken by strategy ID.
// A strategy whose run fails is skipped, not fatal: one broken indicator
// must not take down the review cycle.
func (a *Analyzer) RankStrategies(ctx context.Context, candles []types.Candle, days int) ([]types.StrategyScore, error) {
	recent := RecentWindow(candles, days)
	if len(recent) == 0 {
		return nil, fmt.Errorf("no candles within the last %d days", days)
	}

	a.logger.Info("Ranking strategy catalog",
		zap.Int("windowDays", days),
		zap.Int("candles", len(recent)),
	)

	scores := make([]types.StrategyScore, 0, a.registry.Len())
	for _, s := range a.registry.All() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		signals := s.CalculateSignals(recent)
		result, err := a.engine.Run(ctx, recent, signals, rankingConfig)
		if err != nil {
			a.logger.Warn("Strategy skipped during ranking",
				zap.Int("strategyId", s.ID()),
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
			continue
		}

		scores = append(scores, types.StrategyScore{
			StrategyID:   s.ID(),
			StrategyName: s.Name(),
			ROI:          result.Summary.ROI,
			MDD:          result.Summary.MDD,
			Trades:       len(result.TradeMarkers) / 2,
			FinalEquity:  result.Summary.FinalEquity,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].ROI != scores[j].ROI {
			return scores[i].ROI > scores[j].ROI
		}
		return scores[i].StrategyID < scores[j].StrategyID
	})
	return scores, nil
}

// BestStrategy returns the top-ranked score, or nil when nothing ranked.
func (a *Analyzer) BestStrategy(ctx context.Context, candles []types.Candle, days int) (*types.StrategyScore, error) {
	scores, err := a.RankStrategies(ctx, candles, days)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, nil
	}
	return &scores[0], nil
}

// MarketTrend classifies the window's direction from its first and last
// closes: more than +-5% is a trend, anything inside the band is range-bound.
func (a *Analyzer) MarketTrend(candles []types.Candle, days int) (types.MarketTrend, error) {
	recent := RecentWindow(candles, days)
	if len(recent) == 0 {
		return types.TrendRange, fmt.Errorf("no candles within the last %d days", days)
	}
	first := recent[0].Close
	last := recent[len(recent)-1].Close
	if first == 0 {
		return types.TrendRange, fmt.Errorf("window opens on a zero close")
	}
	changePct := (last - first) / first * 100
	switch {
	case changePct > 5:
		return types.TrendUp, nil
	case changePct < -5:
		return types.TrendDown, nil
	}
	return types.TrendRange, nil
}
