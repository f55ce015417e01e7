// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"trendpulse/internal/adapter/storage"
	"trendpulse/internal/cache"
	"trendpulse/internal/config"
	"trendpulse/internal/domain/task"
	"trendpulse/internal/server"
	"trendpulse/internal/service/scoring"
	"trendpulse/internal/service/tasks"
	"trendpulse/internal/service/trends"
)

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsConn.Close()

	// Initialize storage adapters
	postStore := storage.NewPostStore(db)
	metricsStore := storage.NewMetricsStore(db)

	// Initialize scoring services
	calculator := scoring.NewCalculator(scoring.CalculatorConfig{
		TopTermCount:         cfg.Scoring.TopTermCount,
		VocabCap:             cfg.Scoring.VocabCap,
		MaxDocFreqRatio:      cfg.Scoring.MaxDocFreqRatio,
		Window:               cfg.Scoring.Window,
		ConfidenceSaturation: cfg.Scoring.ConfidenceSaturation,
		ViralityCap:          cfg.Scoring.ViralityCap,
		ScoreWeight:          cfg.Scoring.ScoreWeight,
		CommentWeight:        cfg.Scoring.CommentWeight,
	})
	ranker := scoring.NewRanker(scoring.RankerConfig{
		TFIDFWeight:      cfg.Scoring.TFIDFWeight,
		EngagementWeight: cfg.Scoring.EngagementWeight,
		VelocityWeight:   cfg.Scoring.VelocityWeight,
	})

	// Initialize tiered cache
	cacheManager := cache.NewManager(cache.Config{
		L1TTL:        cfg.Cache.L1TTL,
		L2TTL:        cfg.Cache.L2TTL,
		L3TTL:        cfg.Cache.L3TTL,
		L1Size:       cfg.Cache.L1Size,
		L2Size:       cfg.Cache.L2Size,
		L3Size:       cfg.Cache.L3Size,
		HistoryLimit: cfg.Cache.HistoryLimit,
	}, logger)

	// Initialize trend engine with its computation orchestrator
	engine := trends.NewEngine(
		postStore,
		metricsStore,
		calculator,
		ranker,
		cacheManager,
		natsConn,
		logger,
		trends.Config{
			PendingWait:       cfg.Engine.PendingWait,
			WarmupConcurrency: cfg.Engine.WarmupConcurrency,
			WarmupWait:        cfg.Engine.WarmupWait,
		},
		tasks.Config{
			Workers:        cfg.Tasks.Workers,
			MaxRetries:     cfg.Tasks.MaxRetries,
			BackoffBase:    cfg.Tasks.BackoffBase,
			BackoffCap:     cfg.Tasks.BackoffCap,
			ComputeTimeout: cfg.Tasks.ComputeTimeout,
			QueueSize:      cfg.Tasks.QueueSize,
			EventsTopic:    cfg.Tasks.EventsTopic,
		},
	)

	engine.Orchestrator().OnTransition(func(t task.Task) {
		logger.Debug("task transition",
			"task_id", t.ID,
			"keyword_id", t.KeywordID,
			"state", t.State,
			"attempt", t.Attempt,
		)
	})

	// Start the computation workers
	engine.Start()

	// Initialize HTTP server
	httpServer := server.NewServer(
		cfg.Server,
		engine,
		natsConn,
		cfg.Tasks.EventsTopic,
		logger,
	)

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	logger.Info("Shutting down services...")

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Drain the computation workers
	if err := engine.Stop(shutdownCtx); err != nil {
		logger.Error("Engine shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
}

// newLogger builds the process logger. Development gets human-readable
// text at debug level; everything else gets JSON at info level.
func newLogger(environment string) *slog.Logger {
	if environment == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
