// Package data provides candle storage and the backtest result cache.
//
// Storage is JSON files under a data directory with an in-memory working
// copy. Every write goes through a temp-file-and-rename so a crash mid-write
// never leaves a torn file behind.
package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/pkg/types"
)

const (
	candlesFile  = "candles.json"
	perfFile     = "strategy_perf.json"
	backtestsDir = "backtests"
)

// cachedResult is the on-disk wrapper around one strategy's backtest result.
type cachedResult struct {
	StrategyID int                  `json:"strategyId"`
	UpdatedAt  int64                `json:"updatedAt"`
	Result     *types.BacktestResult `json:"result"`
}

// Store holds candles, optimized performance summaries, and per-strategy
// backtest results.
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string

	candles []types.Candle // ascending by timestamp
	byTS    map[int64]struct{}
	perf    map[int]types.StrategyPerf
	results map[int]*cachedResult

	now func() time.Time
}

// NewStore opens (or creates) the store under dataDir and loads whatever is
// already on disk.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	s := &Store{
		logger:  logger,
		dataDir: dataDir,
		byTS:    make(map[int64]struct{}),
		perf:    make(map[int]types.StrategyPerf),
		results: make(map[int]*cachedResult),
		now:     time.Now,
	}
	if err := os.MkdirAll(filepath.Join(dataDir, backtestsDir), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	logger.Info("Data store ready",
		zap.String("dir", dataDir),
		zap.Int("candles", len(s.candles)),
		zap.Int("cachedResults", len(s.results)),
	)
	return s, nil
}

// UpsertCandles merges new candles into the store. A candle whose timestamp
// is already present is ignored, so replays and overlapping backfills are
// harmless. Returns the number of candles actually added.
func (s *Store) UpsertCandles(candles []types.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, c := range candles {
		if _, ok := s.byTS[c.Timestamp]; ok {
			continue
		}
		s.byTS[c.Timestamp] = struct{}{}
		s.candles = append(s.candles, c)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	sort.Slice(s.candles, func(i, j int) bool {
		return s.candles[i].Timestamp < s.candles[j].Timestamp
	})
	if err := s.writeJSONAtomic(candlesFile, s.candles); err != nil {
		return added, fmt.Errorf("persisting candles: %w", err)
	}
	return added, nil
}

// Candles returns a copy of the full candle series, ascending.
func (s *Store) Candles() []types.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// CandleCount returns the number of stored candles.
func (s *Store) CandleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

// LatestTimestamp returns the newest stored candle timestamp, or 0 when the
// store is empty.
func (s *Store) LatestTimestamp() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return 0
	}
	return s.candles[len(s.candles)-1].Timestamp
}

// SaveBacktestResult caches a strategy's backtest result, replacing any
// previous entry for the same strategy.
func (s *Store) SaveBacktestResult(strategyID int, result *types.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &cachedResult{
		StrategyID: strategyID,
		UpdatedAt:  s.now().Unix(),
		Result:     result,
	}
	s.results[strategyID] = entry
	path := filepath.Join(backtestsDir, fmt.Sprintf("strategy_%d.json", strategyID))
	if err := s.writeJSONAtomic(path, entry); err != nil {
		return fmt.Errorf("persisting backtest result for strategy %d: %w", strategyID, err)
	}
	return nil
}

// LoadBacktestResult returns the cached result for a strategy, if present.
func (s *Store) LoadBacktestResult(strategyID int) (*types.BacktestResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.results[strategyID]
	if !ok {
		return nil, false
	}
	return entry.Result, true
}

// LastActiveStrategyID returns the strategy whose cached result was written
// most recently, or 0 when the cache is empty. Used to restore the agent's
// strategy across restarts.
func (s *Store) LastActiveStrategyID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := 0
	var bestAt int64 = -1
	for id, entry := range s.results {
		if entry.UpdatedAt > bestAt || (entry.UpdatedAt == bestAt && id < best) {
			best = id
			bestAt = entry.UpdatedAt
		}
	}
	return best
}

// SavePerf records a strategy's optimized performance summary.
func (s *Store) SavePerf(perf types.StrategyPerf) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perf[perf.StrategyID] = perf
	return s.persistPerfLocked()
}

// PerfCount returns the number of stored performance summaries.
func (s *Store) PerfCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.perf)
}

// GetPerf returns the performance summary for one strategy.
func (s *Store) GetPerf(strategyID int) (types.StrategyPerf, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perf[strategyID]
	return p, ok
}

// AllPerf returns every performance summary ordered by total return
// descending.
func (s *Store) AllPerf() []types.StrategyPerf {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.StrategyPerf, 0, len(s.perf))
	for _, p := range s.perf {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalReturn != out[j].TotalReturn {
			return out[i].TotalReturn > out[j].TotalReturn
		}
		return out[i].StrategyID < out[j].StrategyID
	})
	return out
}

// RecommendedPerf returns up to five summaries matching the requested risk
// appetite. "aggressive" selects Aggressive strategies; anything else
// selects Stable and Moderate ones.
func (s *Store) RecommendedPerf(riskAppetite string) []types.StrategyPerf {
	aggressive := riskAppetite == "aggressive" || riskAppetite == "Aggressive"
	out := make([]types.StrategyPerf, 0, 5)
	for _, p := range s.AllPerf() {
		if aggressive != (p.RiskLevel == "Aggressive") {
			continue
		}
		out = append(out, p)
		if len(out) == 5 {
			break
		}
	}
	return out
}

func (s *Store) persistPerfLocked() error {
	perfs := make([]types.StrategyPerf, 0, len(s.perf))
	for _, p := range s.perf {
		perfs = append(perfs, p)
	}
	sort.Slice(perfs, func(i, j int) bool { return perfs[i].StrategyID < perfs[j].StrategyID })
	if err := s.writeJSONAtomic(perfFile, perfs); err != nil {
		return fmt.Errorf("persisting strategy perf: %w", err)
	}
	return nil
}

func (s *Store) load() error {
	if err := s.readJSON(candlesFile, &s.candles); err != nil {
		return fmt.Errorf("loading candles: %w", err)
	}
	for _, c := range s.candles {
		s.byTS[c.Timestamp] = struct{}{}
	}
	sort.Slice(s.candles, func(i, j int) bool {
		return s.candles[i].Timestamp < s.candles[j].Timestamp
	})

	var perfs []types.StrategyPerf
	if err := s.readJSON(perfFile, &perfs); err != nil {
		return fmt.Errorf("loading strategy perf: %w", err)
	}
	for _, p := range perfs {
		s.perf[p.StrategyID] = p
	}

	entries, err := os.ReadDir(filepath.Join(s.dataDir, backtestsDir))
	if err != nil {
		return fmt.Errorf("scanning backtest cache: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var cached cachedResult
		if err := s.readJSON(filepath.Join(backtestsDir, e.Name()), &cached); err != nil {
			s.logger.Warn("Skipping unreadable backtest cache entry",
				zap.String("file", e.Name()),
				zap.Error(err),
			)
			continue
		}
		if cached.Result != nil {
			s.results[cached.StrategyID] = &cached
		}
	}
	return nil
}

func (s *Store) readJSON(rel string, v any) error {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(raw, v)
}

// writeJSONAtomic writes v to the relative path via a temp file in the same
// directory followed by a rename.
func (s *Store) writeJSONAtomic(rel string, v any) error {
	path := filepath.Join(s.dataDir, rel)
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
