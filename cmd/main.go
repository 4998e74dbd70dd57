package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/backend/internal/api/handler"
	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/logging"
	"chatrelay/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupLease(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.Lease, func()) {
	if cfg.RedisURL == "" {
		log.Info().Msg("no REDIS_URL, rooms are hosted by this process only")
		return storage.NopLease{}, func() {}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}

	owner := uuid.NewString()
	log.Info().Str("owner", owner).Dur("ttl", cfg.LeaseTTL).Msg("room leases enabled")
	return storage.NewRedisLease(rdb, owner, cfg.LeaseTTL), func() { rdb.Close() }
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("production")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.StoreDriver, cfg.StoreLocation())
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open message store")
	}
	log.Info().Str("driver", cfg.StoreDriver).Msg("message store ready")

	lease, closeLease := setupLease(ctx, cfg, log)

	hub := chathub.NewManagerService(store,
		chathub.WithLease(lease),
		chathub.WithIdleTimeout(cfg.RoomIdleTimeout),
		chathub.WithRenewInterval(cfg.LeaseTTL/3),
		chathub.WithLogger(log.With().Str("component", "hub").Logger()),
	)
	go hub.Run(ctx)

	h := handler.NewHandler(hub, log, cfg.AllowedOrigins)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(h, cfg.IsDevelopment()),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting chat relay")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Hijacked websocket connections are not covered by server.Shutdown.
	hub.Shutdown()
	closeLease()
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close message store")
	}
	log.Info().Msg("stopped")
}
