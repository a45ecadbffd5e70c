package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/analyzer"
	"github.com/quantpilot/trading-backend/pkg/types"
)

// ReviewAction is the outcome of a review cycle.
type ReviewAction string

const (
	// ActionHold keeps the current strategy.
	ActionHold ReviewAction = "HOLD"
	// ActionSwitch recommends moving to the candidate strategy.
	ActionSwitch ReviewAction = "SWITCH"
)

// Suggestion is the result of one review cycle. A SWITCH suggestion is a
// recommendation only; nothing changes until ApplySuggestion is called.
type Suggestion struct {
	Action     ReviewAction         `json:"action"`
	Candidate  *types.StrategyScore `json:"candidate,omitempty"`
	CurrentROI float64              `json:"currentRoi"`
	Reason     string               `json:"reason"`
}

// CandidateSelector picks the switch candidate from a ranked scoreboard.
// Scores arrive ordered best-first and are never empty.
type CandidateSelector func(scores []types.StrategyScore) *types.StrategyScore

// TopRanked selects the best-scoring strategy outright.
func TopRanked(scores []types.StrategyScore) *types.StrategyScore {
	return &scores[0]
}

// Reviewer periodically re-ranks the catalog over recent candles and
// suggests a strategy switch when a candidate clearly beats the one the
// agent is running.
type Reviewer struct {
	logger     *zap.Logger
	analyzer   *analyzer.Analyzer
	candles    CandleSource
	windowDays int
	minDelta   float64
	selector   CandidateSelector

	mu             sync.Mutex
	lastSuggestion *Suggestion
}

// NewReviewer builds a reviewer using the top-ranked candidate policy.
func NewReviewer(logger *zap.Logger, an *analyzer.Analyzer, candles CandleSource, cfg types.ReviewConfig) *Reviewer {
	return &Reviewer{
		logger:     logger,
		analyzer:   an,
		candles:    candles,
		windowDays: cfg.WindowDays,
		minDelta:   cfg.MinROIDeltaPct,
		selector:   TopRanked,
	}
}

// SetSelector overrides the candidate policy.
func (r *Reviewer) SetSelector(sel CandidateSelector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selector = sel
}

// Review ranks the catalog against the trailing window and decides whether
// the current strategy should be replaced. The suggestion is advisory: it is
// returned and cached, never applied.
func (r *Reviewer) Review(ctx context.Context, currentID int) (*Suggestion, error) {
	scores, err := r.analyzer.RankStrategies(ctx, r.candles.Candles(), r.windowDays)
	if err != nil {
		return nil, fmt.Errorf("ranking failed: %w", err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("ranking produced no scores")
	}

	currentROI := 0.0
	for _, s := range scores {
		if s.StrategyID == currentID {
			currentROI = s.ROI
			break
		}
	}

	r.mu.Lock()
	selector := r.selector
	r.mu.Unlock()

	candidate := selector(scores)
	suggestion := &Suggestion{CurrentROI: currentROI}

	switch {
	case candidate == nil || candidate.StrategyID == currentID:
		suggestion.Action = ActionHold
		suggestion.Reason = "Current strategy is still the best fit for recent conditions."
	case candidate.ROI-currentROI < r.minDelta:
		suggestion.Action = ActionHold
		suggestion.Candidate = candidate
		suggestion.Reason = fmt.Sprintf(
			"%s leads by only %.2f points; below the %.2f switch threshold.",
			candidate.StrategyName, candidate.ROI-currentROI, r.minDelta)
	default:
		suggestion.Action = ActionSwitch
		suggestion.Candidate = candidate
		suggestion.Reason = fmt.Sprintf(
			"%s returned %.2f%% over the window vs %.2f%% for the current strategy.",
			candidate.StrategyName, candidate.ROI, currentROI)
	}

	r.mu.Lock()
	r.lastSuggestion = suggestion
	r.mu.Unlock()
	r.logger.Info("Strategy review complete",
		zap.String("action", string(suggestion.Action)),
		zap.Float64("currentRoi", currentROI),
		zap.String("reason", suggestion.Reason),
	)
	return suggestion, nil
}

// LastSuggestion returns the most recent review outcome, nil before the
// first cycle completes.
func (r *Reviewer) LastSuggestion() *Suggestion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSuggestion
}

// ApplySuggestion switches the agent to the suggested candidate. It is the
// explicit approval step: callers invoke it only after an operator confirms
// a SWITCH suggestion.
func (r *Reviewer) ApplySuggestion(a *Agent, s *Suggestion) (string, error) {
	if s == nil || s.Action != ActionSwitch || s.Candidate == nil {
		return "", fmt.Errorf("suggestion does not call for a switch")
	}
	return a.SwitchStrategy(s.Candidate.StrategyID)
}

// ReviewFunc adapts the reviewer into the agent's post-bar callback. Errors
// are logged and swallowed: one failed ranking must not stop the loop.
func (r *Reviewer) ReviewFunc(a *Agent) func(context.Context) {
	return func(ctx context.Context) {
		if _, err := r.Review(ctx, a.ActiveStrategyID()); err != nil {
			r.logger.Warn("Review cycle failed", zap.Error(err))
		}
	}
}
