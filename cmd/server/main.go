package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dom/werewolf/internal/api"
	"github.com/dom/werewolf/internal/api/handlers"
	"github.com/dom/werewolf/internal/config"
	"github.com/dom/werewolf/internal/logging"
	"github.com/dom/werewolf/internal/repository"
	"github.com/dom/werewolf/internal/repository/postgres"
	"github.com/dom/werewolf/internal/repository/redis"
	"github.com/dom/werewolf/internal/service"
	"github.com/dom/werewolf/internal/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	purgeInterval   = 5 * time.Minute
)

// expiringStore is implemented by backends that cannot expire rows on their
// own.
type expiringStore interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func main() {
	// A missing .env file is fine; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	opts := repository.Options{
		RoomTTL:     cfg.RoomTTL,
		LockTTL:     cfg.LockTTL,
		LockWait:    cfg.LockWait,
		PresenceTTL: cfg.PresenceTTL,
	}

	// Presence and the event bus always live in Redis.
	repos := redis.NewRepositories(rdb, opts, logger)
	if cfg.StoreBackend == config.BackendPostgres {
		db, err := postgres.NewConnection(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		pg := postgres.NewRepositories(db, opts)
		repos.Games = pg.Games
		repos.Locks = pg.Locks
	}

	broadcaster := websocket.NewBroadcaster(repos.Bus, repos.Presence, logger)
	hub := websocket.NewHub(repos, broadcaster, websocket.HubConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
	}, logger)
	services := service.NewServices(repos, broadcaster, cfg, logger)

	checks := map[string]handlers.Pinger{
		"store": repos.Games,
		"redis": handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
	}
	router := api.NewRouter(services, hub, checks, cfg, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreBackend),
			zap.String("version", cfg.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return hub.RunHeartbeat(gctx) })

	if store, ok := repos.Games.(expiringStore); ok {
		g.Go(func() error {
			purgeExpired(gctx, store, purgeInterval, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		hub.Stop()
		if err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// purgeExpired deletes expired rooms every interval until ctx is done.
func purgeExpired(ctx context.Context, store expiringStore, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("failed to purge expired rooms", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("purged expired rooms", zap.Int64("rooms", n))
			}
		}
	}
}
