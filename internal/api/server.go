// Package api provides the HTTP and WebSocket server for the trading
// backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/internal/agent"
	"github.com/quantpilot/trading-backend/internal/analyzer"
	"github.com/quantpilot/trading-backend/internal/backtest"
	"github.com/quantpilot/trading-backend/internal/data"
	"github.com/quantpilot/trading-backend/internal/observe"
	"github.com/quantpilot/trading-backend/internal/optimize"
	"github.com/quantpilot/trading-backend/internal/strategy"
	"github.com/quantpilot/trading-backend/pkg/types"
)

// Deps collects the services the API surface fronts. Agent and Reviewer may
// be nil when the process runs in analysis-only mode.
type Deps struct {
	Store     *data.Store
	Engine    *backtest.Engine
	Optimizer *optimize.Optimizer
	Analyzer  *analyzer.Analyzer
	Registry  *strategy.Registry
	Agent     *agent.Agent
	Reviewer  *agent.Reviewer
	Metrics   *observe.Metrics
}

// Server is the HTTP/WebSocket API server.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     types.ServerConfig
	review     types.ReviewConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    map[string]*Client

	store     *data.Store
	engine    *backtest.Engine
	optimizer *optimize.Optimizer
	analyzer  *analyzer.Analyzer
	registry  *strategy.Registry
	agent     *agent.Agent
	reviewer  *agent.Reviewer
	metrics   *observe.Metrics
}

// NewServer creates the API server and wires its routes.
func NewServer(logger *zap.Logger, cfg types.ServerConfig, review types.ReviewConfig, deps Deps) *Server {
	s := &Server{
		logger:    logger,
		config:    cfg,
		review:    review,
		router:    mux.NewRouter(),
		clients:   make(map[string]*Client),
		store:     deps.Store,
		engine:    deps.Engine,
		optimizer: deps.Optimizer,
		analyzer:  deps.Analyzer,
		registry:  deps.Registry,
		agent:     deps.Agent,
		reviewer:  deps.Reviewer,
		metrics:   deps.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // browser client ships from a different origin
			},
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/candles", s.handleGetCandles).Methods("GET")
	s.router.HandleFunc("/api/v1/market/trend", s.handleMarketTrend).Methods("GET")

	s.router.HandleFunc("/api/v1/strategies", s.handleListStrategies).Methods("GET")
	s.router.HandleFunc("/api/v1/strategies/ranking", s.handleRanking).Methods("GET")
	s.router.HandleFunc("/api/v1/strategies/recommended", s.handleRecommended).Methods("GET")

	s.router.HandleFunc("/api/v1/backtests/{strategyId:[0-9]+}", s.handleGetBacktest).Methods("GET")
	s.router.HandleFunc("/api/v1/backtests/{strategyId:[0-9]+}/run", s.handleRunBacktest).Methods("POST")
	s.router.HandleFunc("/api/v1/optimize/{strategyId:[0-9]+}", s.handleOptimize).Methods("POST")

	s.router.HandleFunc("/api/v1/agent/status", s.handleAgentStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/agent/strategy", s.handleAgentSwitch).Methods("POST")
	s.router.HandleFunc("/api/v1/agent/risk", s.handleAgentRisk).Methods("POST")
	s.router.HandleFunc("/api/v1/agent/panic", s.handleAgentPanic).Methods("POST")
	s.router.HandleFunc("/api/v1/agent/review", s.handleAgentReview).Methods("GET")
	s.router.HandleFunc("/api/v1/agent/review/apply", s.handleApplyReview).Methods("POST")

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the routed handler with CORS applied, for tests and
// embedding.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// Start serves HTTP until the listener fails or Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop closes all WebSocket sessions and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, client := range s.clients {
		client.Conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"candles": s.store.CandleCount(),
		"time":    time.Now().Unix(),
	})
}
