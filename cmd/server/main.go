/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the debt ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Connect the snapshot cache (Redis when REDIS_ADDR is set, else in-process)
  5. Create the lending service and load policy presets
  6. Configure HTTP router and start the status scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: ledger.db)
              Use ":memory:" for in-memory database
  -redis      Redis address for the snapshot cache
  -log-level  debug|info|warn|error
  -presets    YAML file of policy templates

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the status scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Redis and database connections
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run in memory with a Redis snapshot cache
  ./server -db=":memory:" -redis=localhost:6379

ENVIRONMENT:
  See config/config.go for every key.

SEE ALSO:
  - api/server.go: Router configuration
  - lending/service.go: Loan and payment operations
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/debt-ledger/api"
	"github.com/warp/debt-ledger/config"
	"github.com/warp/debt-ledger/factory"
	"github.com/warp/debt-ledger/interest"
	"github.com/warp/debt-ledger/lending"
	"github.com/warp/debt-ledger/logging"
	"github.com/warp/debt-ledger/store/rediscache"
	"github.com/warp/debt-ledger/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()
	logger.Info("database ready", zap.String("path", cfg.DBPath))

	// Snapshot cache
	var cache interest.SnapshotCache = interest.NewMemoryCache()
	if cfg.RedisAddr != "" {
		rc, client, err := rediscache.Dial(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.CacheTTL)
		if err != nil {
			return err
		}
		defer client.Close()
		cache = rc
		logger.Info("redis snapshot cache connected", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CacheTTL))
	}

	svc := lending.NewService(store,
		lending.WithCache(cache),
		lending.WithGraceMode(cfg.GraceMode),
		lending.WithStrategy(cfg.DefaultStrategy),
		lending.WithLegalCeiling(cfg.LegalCeilingPercent),
		lending.WithClock(interest.SystemClock{Location: time.UTC}),
		lending.WithLogger(logger.Named("lending")),
	)

	if cfg.PolicyPresets != "" {
		if err := loadPresets(ctx, svc, cfg.PolicyPresets); err != nil {
			return err
		}
	}

	// Initialize handler and router
	handler := api.NewHandler(svc, logger.Named("api"))
	handler.Ping = store.Ping
	router := api.NewRouter(handler)

	scheduler := api.NewStatusScheduler(handler, cfg.StatusInterval)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("grace_mode", string(cfg.GraceMode)),
			zap.Stringer("default_strategy", cfg.DefaultStrategy),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func loadPresets(ctx context.Context, svc *lending.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy presets: %w", err)
	}
	presets, err := factory.NewPolicyFactory().ParsePresetsYAML(data)
	if err != nil {
		return fmt.Errorf("parse policy presets %s: %w", path, err)
	}
	return svc.LoadPresets(ctx, presets)
}
