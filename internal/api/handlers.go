package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/pkg/types"
)

// handleGetCandles returns the stored candle series, newest-last. An
// optional limit query keeps only the trailing n candles.
func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	candles := s.store.Candles()
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit < len(candles) {
			candles = candles[len(candles)-limit:]
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"candles": candles,
		"count":   len(candles),
	})
}

func (s *Server) handleMarketTrend(w http.ResponseWriter, r *http.Request) {
	days := s.queryDays(r)
	trend, err := s.analyzer.MarketTrend(s.store.Candles(), days)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trend":      trend,
		"windowDays": days,
	})
}

// handleListStrategies merges the static catalog with stored optimized
// performance, when the batch runner has produced any.
func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		ID          int      `json:"id"`
		Name        string   `json:"name"`
		RiskLevel   string   `json:"riskLevel"`
		Description string   `json:"description"`
		TotalReturn *float64 `json:"totalReturn,omitempty"`
		MDD         *float64 `json:"mdd,omitempty"`
	}

	entries := make([]entry, 0, s.registry.Len())
	for _, st := range s.registry.All() {
		e := entry{
			ID:          st.ID(),
			Name:        st.Name(),
			RiskLevel:   st.RiskLevel(),
			Description: st.Description(),
		}
		if perf, ok := s.store.GetPerf(st.ID()); ok {
			e.TotalReturn = &perf.TotalReturn
			e.MDD = &perf.MDD
		}
		entries = append(entries, e)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": entries,
		"count":      len(entries),
	})
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	days := s.queryDays(r)
	scores, err := s.analyzer.RankStrategies(r.Context(), s.store.Candles(), days)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ranking":    scores,
		"windowDays": days,
	})
}

func (s *Server) handleRecommended(w http.ResponseWriter, r *http.Request) {
	appetite := r.URL.Query().Get("risk")
	if appetite == "" {
		appetite = "stable"
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"riskAppetite": appetite,
		"strategies":   s.store.RecommendedPerf(appetite),
	})
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathStrategyID(w, r)
	if !ok {
		return
	}
	result, found := s.store.LoadBacktestResult(id)
	if !found {
		s.writeError(w, http.StatusNotFound, "no cached backtest for this strategy")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategyId": id,
		"result":     result,
	})
}

type runBacktestRequest struct {
	Leverage    int     `json:"leverage"`
	RiskPercent float64 `json:"riskPercent"`
}

// handleRunBacktest runs the simulator for one strategy and caches the
// result, replacing any previous artifact for that strategy.
func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathStrategyID(w, r)
	if !ok {
		return
	}
	st, err := s.registry.Get(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req runBacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg := types.RiskConfig{Leverage: req.Leverage, RiskPercent: req.RiskPercent}

	candles := s.store.Candles()
	result, err := s.engine.Run(r.Context(), candles, st.CalculateSignals(candles), cfg)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	result.Config = &cfg

	if err := s.store.SaveBacktestResult(id, result); err != nil {
		s.logger.Error("Failed to cache backtest result",
			zap.Int("strategyId", id),
			zap.Error(err),
		)
	}
	if s.metrics != nil {
		s.metrics.BacktestsRun.Inc()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategyId": id,
		"result":     result,
	})
}

// handleOptimize runs the grid search for one strategy. Exhaustion is a
// valid outcome, reported as found=false, never as an error.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathStrategyID(w, r)
	if !ok {
		return
	}
	st, err := s.registry.Get(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	candles := s.store.Candles()
	config, result, err := s.optimizer.Search(r.Context(), candles, st.CalculateSignals(candles))
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.OptimizerRuns.Inc()
	}
	if config == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"strategyId": id,
			"found":      false,
		})
		return
	}

	result.Config = config
	if err := s.store.SaveBacktestResult(id, result); err != nil {
		s.logger.Error("Failed to cache optimized result",
			zap.Int("strategyId", id),
			zap.Error(err),
		)
	}
	if err := s.store.SavePerf(types.StrategyPerf{
		StrategyID:  id,
		Name:        st.Name(),
		RiskLevel:   st.RiskLevel(),
		TotalReturn: result.Summary.ROI,
		MDD:         result.Summary.MDD,
	}); err != nil {
		s.logger.Error("Failed to save strategy performance",
			zap.Int("strategyId", id),
			zap.Error(err),
		)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategyId": id,
		"found":      true,
		"config":     config,
		"result":     result,
	})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		s.writeError(w, http.StatusServiceUnavailable, "agent not running")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":  s.agent.Snapshot(),
		"report": s.agent.StatusReport(),
	})
}

type switchRequest struct {
	StrategyID int `json:"strategyId"`
}

func (s *Server) handleAgentSwitch(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		s.writeError(w, http.StatusServiceUnavailable, "agent not running")
		return
	}
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := s.agent.SwitchStrategy(req.StrategyID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

type riskRequest struct {
	Leverage    int     `json:"leverage"`
	RiskPercent float64 `json:"riskPercent"`
}

func (s *Server) handleAgentRisk(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		s.writeError(w, http.StatusServiceUnavailable, "agent not running")
		return
	}
	var req riskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := s.agent.SetRisk(req.Leverage, req.RiskPercent)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleAgentPanic(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		s.writeError(w, http.StatusServiceUnavailable, "agent not running")
		return
	}
	msg, err := s.agent.PanicSell(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleAgentReview(w http.ResponseWriter, r *http.Request) {
	if s.reviewer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "reviewer not running")
		return
	}
	suggestion := s.reviewer.LastSuggestion()
	if suggestion == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"suggestion": nil,
			"message":    "No review cycle has completed yet.",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"suggestion": suggestion})
}

// handleApplyReview is the explicit approval step for a SWITCH suggestion.
func (s *Server) handleApplyReview(w http.ResponseWriter, r *http.Request) {
	if s.reviewer == nil || s.agent == nil {
		s.writeError(w, http.StatusServiceUnavailable, "reviewer not running")
		return
	}
	msg, err := s.reviewer.ApplySuggestion(s.agent, s.reviewer.LastSuggestion())
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) queryDays(r *http.Request) int {
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if days, err := strconv.Atoi(daysStr); err == nil && days >= 1 {
			return days
		}
	}
	return s.review.WindowDays
}

func (s *Server) pathStrategyID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["strategyId"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid strategy id")
		return 0, false
	}
	return id, true
}
