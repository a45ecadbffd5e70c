// Package optimize searches risk configurations for a fixed strategy over a
// fixed candle window.
package optimize

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/backtest"
	"github.com/quantpilot/trading-backend/pkg/types"
)

// Optimizer runs a deterministic grid search over leverage and risk percent.
// The grid is enumerated in a fixed order so equal inputs always produce the
// same winner even when several configurations tie on every other criterion.
type Optimizer struct {
	logger       *zap.Logger
	engine       *backtest.Engine
	maxLeverage  int
	riskPercents []float64
	mddFloor     float64
}

// NewOptimizer creates a grid optimizer backed by the given engine.
// riskPercents must be ascending; mddFloor is a negative percentage (a
// configuration whose drawdown is worse than the floor is rejected).
func NewOptimizer(logger *zap.Logger, engine *backtest.Engine, cfg types.OptimizerConfig) *Optimizer {
	return &Optimizer{
		logger:       logger,
		engine:       engine,
		maxLeverage:  cfg.MaxLeverage,
		riskPercents: cfg.RiskPercents,
		mddFloor:     cfg.MDDFloor,
	}
}

// Search runs every (leverage, riskPercent) pair against the candle and
// signal series and returns the admissible configuration with the highest
// ROI, together with its full result. A configuration is admissible when it
// produced at least one transition and its drawdown stayed at or above the
// floor. Returns (nil, nil, nil) when no configuration is admissible.
func (o *Optimizer) Search(ctx context.Context, candles []types.Candle, signals []types.Signal) (*types.RiskConfig, *types.BacktestResult, error) {
	var bestCfg *types.RiskConfig
	var bestResult *types.BacktestResult
	evaluated := 0

	for lev := 1; lev <= o.maxLeverage; lev++ {
		for _, risk := range o.riskPercents {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			default:
			}

			cfg := types.RiskConfig{Leverage: lev, RiskPercent: risk}
			result, err := o.engine.Run(ctx, candles, signals, cfg)
			if err != nil {
				return nil, nil, err
			}
			evaluated++

			if result.Summary.TradeCount == 0 {
				continue
			}
			if result.Summary.MDD < o.mddFloor {
				continue
			}
			// strictly greater: earlier grid positions win ties
			if bestResult == nil || result.Summary.ROI > bestResult.Summary.ROI {
				c := cfg
				bestCfg = &c
				bestResult = result
			}
		}
	}

	if bestCfg == nil {
		o.logger.Info("Grid search exhausted with no admissible configuration",
			zap.Int("evaluated", evaluated),
		)
		return nil, nil, nil
	}

	o.logger.Info("Grid search complete",
		zap.Int("evaluated", evaluated),
		zap.Int("leverage", bestCfg.Leverage),
		zap.Float64("riskPercent", bestCfg.RiskPercent),
		zap.Float64("roi", bestResult.Summary.ROI),
		zap.Float64("mdd", bestResult.Summary.MDD),
	)
	return bestCfg, bestResult, nil
}
