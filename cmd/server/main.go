/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env, then configuration (file + LEAVE_* environment)
  2. Build the zap logger
  3. Open the store (memory or SQLite)
  4. Pick the approver policy, lock and event publisher
  5. Wire ledger, lifecycle service, outbox relay and HTTP router
  6. Load the seed scenario, if any
  7. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: ./config.yaml or
           ./config/config.yaml when present)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Flush queued lifecycle events
  4. Close publisher, lock client and database

EXAMPLES:
  # Defaults: in-memory store, local lock, events to the log
  ./server

  # SQLite with the demo team
  LEAVE_STORAGE_DRIVER=sqlite LEAVE_SEED_SCENARIO=demo ./server

  # Multiple replicas
  LEAVE_LOCK_DRIVER=redis LEAVE_EVENTS_PUBLISHER=kafka ./server -config prod.yaml

SEE ALSO:
  - config/config.go: All settings and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/events"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/lock"
	"github.com/warp/leave-engine/logger"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/sqlite"
	"go.uber.org/zap"
)

// backend is what both store implementations provide.
type backend interface {
	leave.Repository
	balance.Store
	directory.Directory
	directory.Writer
	api.Resetter
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	loc, err := cfg.Calendar.Location()
	if err != nil {
		return err
	}

	// Store
	store, closeStore, err := openStore(cfg.Storage, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Approver policy
	policy, reloader, err := newApproverPolicy(ctx, cfg.Approval, store, log)
	if err != nil {
		return err
	}

	// Lock
	locker, closeLocker, err := newLocker(ctx, cfg.Lock, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	// Events
	publisher := newPublisher(cfg.Events, log)
	outbox := events.NewOutbox(cfg.Events.OutboxLimit, log)
	relay := events.NewRelay(outbox, publisher, cfg.Events.FlushInterval, log)
	relay.Start()

	// Domain
	ledger := balance.NewLedger(store, store, log)
	service := leave.NewService(store, ledger, store,
		leave.WithApproverPolicy(policy),
		leave.WithLocker(locker),
		leave.WithNotifier(outbox),
		leave.WithLogger(log),
	)

	handler := api.NewHandler(api.Deps{
		Leaves:    service,
		Ledger:    ledger,
		Directory: store,
		Employees: store,
		Store:     store,
		Reloader:  reloader,
		Location:  loc,
	}, log)

	if cfg.Seed.Scenario != "" {
		if err := handler.Load(ctx, cfg.Seed.Scenario); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("approval", cfg.Approval.Policy),
			zap.String("lock", cfg.Lock.Driver),
			zap.String("events", cfg.Events.Publisher),
			zap.String("timezone", loc.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	relay.Stop(shutdownCtx)
	if err := publisher.Close(); err != nil {
		log.Warn("close publisher", zap.Error(err))
	}

	log.Info("server stopped")
	return serveErr
}

// =============================================================================
// WIRING
// =============================================================================

func openStore(cfg config.StorageConfig, log *zap.Logger) (backend, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.New(cfg.DSN, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.DSN, err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Warn("close sqlite", zap.Error(err))
			}
		}, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func newApproverPolicy(ctx context.Context, cfg config.ApprovalConfig, dir directory.Directory, log *zap.Logger) (leave.ApproverPolicy, approval.Reloader, error) {
	switch cfg.Policy {
	case approval.PolicyAllowAll:
		log.Warn("approver policy allows every employee to approve any leave")
		return approval.AllowAll{}, nil, nil
	case approval.PolicyCasbin:
		c, err := approval.NewCasbin(ctx, dir, cfg.DelegationsByManager(), log)
		if err != nil {
			return nil, nil, fmt.Errorf("casbin policy: %w", err)
		}
		return c, c, nil
	default:
		return approval.NewDirectManager(dir), nil, nil
	}
}

func newLocker(ctx context.Context, cfg config.LockConfig, log *zap.Logger) (lock.Locker, func(), error) {
	if cfg.Driver != "redis" {
		return lock.NewLocal(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return lock.NewRedis(client, cfg.Prefix, cfg.TTL, 0, log), func() { _ = client.Close() }, nil
}

func newPublisher(cfg config.EventsConfig, log *zap.Logger) events.Publisher {
	if cfg.Publisher == "kafka" {
		return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, log)
	}
	return events.NewLogPublisher(log)
}
