package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/npezzotti/chatty/internal/api"
	"github.com/npezzotti/chatty/internal/config"
	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/fanout"
	"github.com/npezzotti/chatty/internal/logger"
	"github.com/npezzotti/chatty/internal/presence"
	"github.com/npezzotti/chatty/internal/server"
	"github.com/npezzotti/chatty/internal/service"
	"github.com/npezzotti/chatty/internal/stats"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatty:", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPgGoChatRepository(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("db close")
		}
	}()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	store, err := presence.NewRedisStore(cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("redis close")
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	registry := server.NewRegistry(log, statsUpdater)
	coord := fanout.NewCoordinator(log, registry, store, db)
	gateway := server.NewGateway(log, registry, db, store, coord)

	rooms := service.NewRoomService(log, db, coord.Hook())
	srv := api.NewGoChatApp(mux, log, api.Deps{
		DB:       db,
		Presence: store,
		Gateway:  gateway,
		Rooms:    rooms,
		Messages: service.NewMessageService(log, db, store, coord.Hook()),
		Admin:    service.NewAdminService(log, db, store, coord, rooms),
		Users:    service.NewUserService(log, db),
	}, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	// every client must finish its disconnect cleanup before the deferred
	// stats, redis and db shutdowns run
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown")
	}

	log.Info().Msg("shutdown complete")
	return nil
}
