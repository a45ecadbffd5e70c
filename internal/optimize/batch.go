package optimize

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/data"
	"github.com/quantpilot/trading-backend/internal/strategy"
	"github.com/quantpilot/trading-backend/pkg/types"
)

// BatchRunner grid-searches every tradable strategy and stores the winners.
// Runs are independent, so they fan out over a small worker pool.
type BatchRunner struct {
	logger    *zap.Logger
	registry  *strategy.Registry
	optimizer *Optimizer
	store     *data.Store
	workers   int
}

// NewBatchRunner creates a batch runner with the given pool size.
func NewBatchRunner(logger *zap.Logger, registry *strategy.Registry, optimizer *Optimizer, store *data.Store, workers int) *BatchRunner {
	if workers < 1 {
		workers = 1
	}
	return &BatchRunner{
		logger:    logger,
		registry:  registry,
		optimizer: optimizer,
		store:     store,
		workers:   workers,
	}
}

// RunAll optimizes every strategy except the standby one against the given
// candles and persists each winner's performance summary and full result.
// When summaries already exist the whole run is skipped: the batch is a
// first-boot warmup, not a refresh. One failing strategy never aborts the
// others.
func (b *BatchRunner) RunAll(ctx context.Context, candles []types.Candle) error {
	if n := b.store.PerfCount(); n > 0 {
		b.logger.Info("Optimized summaries already present, skipping batch run",
			zap.Int("existing", n),
		)
		return nil
	}
	if len(candles) == 0 {
		b.logger.Warn("No candles available, skipping batch run")
		return nil
	}

	jobs := make(chan strategy.Strategy)
	var wg sync.WaitGroup
	for w := 0; w < b.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				b.runOne(ctx, s, candles)
			}
		}()
	}

	queued := 0
	for _, s := range b.registry.All() {
		if s.ID() == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		case jobs <- s:
			queued++
		}
	}
	close(jobs)
	wg.Wait()

	b.logger.Info("Batch optimization finished",
		zap.Int("strategies", queued),
		zap.Int("stored", b.store.PerfCount()),
	)
	return nil
}

func (b *BatchRunner) runOne(ctx context.Context, s strategy.Strategy, candles []types.Candle) {
	signals := s.CalculateSignals(candles)
	cfg, result, err := b.optimizer.Search(ctx, candles, signals)
	if err != nil {
		b.logger.Warn("Strategy optimization failed",
			zap.Int("strategyId", s.ID()),
			zap.String("strategy", s.Name()),
			zap.Error(err),
		)
		return
	}
	if cfg == nil {
		b.logger.Info("No admissible configuration for strategy",
			zap.Int("strategyId", s.ID()),
			zap.String("strategy", s.Name()),
		)
		return
	}

	perf := types.StrategyPerf{
		StrategyID:  s.ID(),
		Name:        s.Name(),
		RiskLevel:   s.RiskLevel(),
		TotalReturn: result.Summary.ROI,
		MDD:         result.Summary.MDD,
	}
	if err := b.store.SavePerf(perf); err != nil {
		b.logger.Error("Failed to store strategy perf",
			zap.Int("strategyId", s.ID()),
			zap.Error(err),
		)
		return
	}
	if err := b.store.SaveBacktestResult(s.ID(), result); err != nil {
		b.logger.Error("Failed to store backtest result",
			zap.Int("strategyId", s.ID()),
			zap.Error(err),
		)
		return
	}
	b.logger.Info("Strategy optimized",
		zap.Int("strategyId", s.ID()),
		zap.String("strategy", s.Name()),
		zap.Int("leverage", cfg.Leverage),
		zap.Float64("riskPercent", cfg.RiskPercent),
		zap.Float64("roi", result.Summary.ROI),
	)
}
