// Package main provides the entry point for the trading backend server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quantpilot/trading-backend/internal/agent"
	"github.com/quantpilot/trading-backend/internal/analyzer"
	"github.com/quantpilot/trading-backend/internal/api"
	"github.com/quantpilot/trading-backend/internal/backtest"
	"github.com/quantpilot/trading-backend/internal/data"
	"github.com/quantpilot/trading-backend/internal/exchange"
	"github.com/quantpilot/trading-backend/internal/feed"
	"github.com/quantpilot/trading-backend/internal/observe"
	"github.com/quantpilot/trading-backend/internal/optimize"
	"github.com/quantpilot/trading-backend/internal/strategy"
	"github.com/quantpilot/trading-backend/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (defaults to ./config.yaml)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := types.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting trading backend",
		zap.String("instId", cfg.OKX.InstID),
		zap.String("bar", cfg.OKX.BarInterval),
		zap.Bool("simulated", cfg.OKX.Simulated),
	)

	barInterval, err := parseBarInterval(cfg.OKX.BarInterval)
	if err != nil {
		logger.Fatal("Invalid bar interval", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observe.NewMetrics(prometheus.DefaultRegisterer)

	store, err := data.NewStore(logger, cfg.Data.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize data store", zap.Error(err))
	}

	rest := exchange.NewClient(logger, cfg.OKX)

	// backfill so signals have history to chew on from the first bar close
	backfill(ctx, logger, rest, store, cfg)
	metrics.CandlesStored.Set(float64(store.CandleCount()))

	registry := strategy.NewRegistry()
	engine := backtest.NewEngine(logger, cfg.Data.StartingEquity)
	optimizer := optimize.NewOptimizer(logger, engine, cfg.Optimizer)
	an := analyzer.NewAnalyzer(logger, engine, registry)

	// first-boot warmup: grid-search every strategy unless summaries exist
	batch := optimize.NewBatchRunner(logger, registry, optimizer, store, cfg.Data.BatchWorkers)
	go func() {
		if err := batch.RunAll(ctx, store.Candles()); err != nil {
			logger.Warn("Batch optimization incomplete", zap.Error(err))
		}
	}()

	states := agent.NewStateStore(logger, filepath.Join(cfg.Data.DataDir, cfg.Trading.StateFile))
	liveAgent, err := agent.NewAgent(logger, cfg.Trading, cfg.OKX.InstID, cfg.OKX.TradeMode,
		barInterval, registry, store, rest, states)
	if err != nil {
		logger.Fatal("Failed to initialize live agent", zap.Error(err))
	}

	if err := rest.SetLeverage(ctx, cfg.OKX.InstID, cfg.Trading.Leverage, cfg.OKX.TradeMode); err != nil {
		logger.Warn("Failed to set exchange leverage", zap.Error(err))
	}

	reviewer := agent.NewReviewer(logger, an, store, cfg.Review)

	server := api.NewServer(logger, cfg.Server, cfg.Review, api.Deps{
		Store:     store,
		Engine:    engine,
		Optimizer: optimizer,
		Analyzer:  an,
		Registry:  registry,
		Agent:     liveAgent,
		Reviewer:  reviewer,
		Metrics:   metrics,
	})

	liveAgent.SetReviewFunc(func(ctx context.Context) {
		suggestion, err := reviewer.Review(ctx, liveAgent.ActiveStrategyID())
		if err != nil {
			logger.Warn("Review cycle failed", zap.Error(err))
			return
		}
		metrics.ReviewCycles.Inc()
		server.BroadcastReview(suggestion)
	})
	go liveAgent.Run(ctx)

	// public feed: ticks drive the candle sync, the agent's bar-close
	// detection, and the browser stream
	loop := &tickLoop{
		logger:  logger,
		agent:   liveAgent,
		store:   store,
		rest:    rest,
		cfg:     cfg,
		metrics: metrics,
		server:  server,
		barMs:   barInterval.Milliseconds(),
	}
	publicFeed := feed.NewPublicConnector(logger, cfg.OKX.PublicWSURL,
		[]feed.Channel{{Channel: "tickers", InstID: cfg.OKX.InstID}},
		feed.Callbacks{
			OnTick:      func(tick types.Tick) { loop.onTick(ctx, tick) },
			OnReconnect: func() { metrics.FeedReconnects.Inc() },
		})
	go publicFeed.Run(ctx)

	// private feed: order lifecycle events for the browser stream
	if cfg.OKX.APIKey != "" {
		privateFeed := feed.NewPrivateConnector(logger, cfg.OKX.PrivateWSURL, cfg.OKX,
			[]feed.Channel{{Channel: "orders", InstID: cfg.OKX.InstID}},
			feed.Callbacks{
				OnOrderUpdate: func(update types.OrderUpdate) {
					switch update.State {
					case "filled":
						metrics.OrdersPlaced.Inc()
					case "canceled", "mmp_canceled":
						metrics.OrdersRejected.Inc()
					}
					server.BroadcastOrderUpdate(update)
				},
				OnReconnect: func() { metrics.FeedReconnects.Inc() },
			})
		go privateFeed.Run(ctx)
	} else {
		logger.Warn("No API credentials configured, private feed disabled")
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d/ws", cfg.Server.Host, cfg.Server.Port)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
}

// tickLoop glues the public feed to the live agent. The store only holds
// closed candles and nothing else delivers them at runtime, so each tick
// first checks whether its interval bucket implies a close the store has
// not seen and fetches it before the agent evaluates.
type tickLoop struct {
	logger  *zap.Logger
	agent   *agent.Agent
	store   *data.Store
	rest    *exchange.Client
	cfg     *types.Config
	metrics *observe.Metrics
	server  *api.Server
	barMs   int64
}

func (l *tickLoop) onTick(ctx context.Context, tick types.Tick) {
	l.metrics.TicksProcessed.Inc()

	bucket := tick.Timestamp - tick.Timestamp%l.barMs
	if bucket-l.barMs > l.store.LatestTimestamp() {
		// the previous bar closed but the store does not have it yet;
		// retried on every tick until the exchange publishes the candle
		refresh(ctx, l.logger, l.rest, l.store, l.cfg, l.metrics)
	}

	before := l.agent.Snapshot().LastEvaluated
	l.agent.OnTick(ctx, tick)
	after := l.agent.Snapshot()
	if after.LastEvaluated != before {
		l.metrics.BarCloses.Inc()
		if n := len(after.Markers); n > 0 {
			l.server.BroadcastMarker(after.Markers[n-1])
		}
	}
	l.server.BroadcastTick(tick)
}

// backfill pages historical candles from the exchange into the store.
func backfill(ctx context.Context, logger *zap.Logger, rest *exchange.Client, store *data.Store, cfg *types.Config) {
	candles, err := rest.HistoryCandles(ctx, cfg.OKX.InstID, cfg.OKX.BarInterval, 100, cfg.Data.BackfillLimit)
	if err != nil {
		logger.Warn("Candle backfill failed, continuing with stored history",
			zap.Int("stored", store.CandleCount()),
			zap.Error(err),
		)
		return
	}
	added, err := store.UpsertCandles(candles)
	if err != nil {
		logger.Error("Failed to store backfilled candles", zap.Error(err))
		return
	}
	logger.Info("Candle backfill complete",
		zap.Int("fetched", len(candles)),
		zap.Int("added", added),
		zap.Int("total", store.CandleCount()),
	)
}

// refresh tops the store up with the newest closed candles after a bar
// close so the next evaluation sees them.
func refresh(ctx context.Context, logger *zap.Logger, rest *exchange.Client, store *data.Store, cfg *types.Config, metrics *observe.Metrics) {
	candles, err := rest.HistoryCandles(ctx, cfg.OKX.InstID, cfg.OKX.BarInterval, 100, 100)
	if err != nil {
		logger.Warn("Candle refresh failed", zap.Error(err))
		return
	}
	if _, err := store.UpsertCandles(candles); err != nil {
		logger.Error("Failed to store refreshed candles", zap.Error(err))
		return
	}
	metrics.CandlesStored.Set(float64(store.CandleCount()))
}

// parseBarInterval converts an OKX bar string ("1m", "30m", "1H", "1D")
// into a duration.
func parseBarInterval(bar string) (time.Duration, error) {
	if bar == "" {
		return 0, fmt.Errorf("bar interval is empty")
	}
	unit := bar[len(bar)-1:]
	n, err := strconv.Atoi(bar[:len(bar)-1])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid bar interval %q", bar)
	}
	switch strings.ToUpper(unit) {
	case "M":
		if unit == "M" {
			return 0, fmt.Errorf("month bars are not supported: %q", bar)
		}
		return time.Duration(n) * time.Minute, nil
	case "H":
		return time.Duration(n) * time.Hour, nil
	case "D":
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid bar interval %q", bar)
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
