package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nebs-backend/internal/config"
	"nebs-backend/internal/infrastructure/database"
	"nebs-backend/internal/interfaces/router"
	"nebs-backend/internal/logger"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadOrExit()
	if err != nil {
		os.Exit(1)
	}
	logger.Init(logger.Options{Level: cfg.LogLevel, Env: cfg.Env, Serverless: cfg.Serverless})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := database.NewManager(database.Options{
		URI:            func() (string, error) { return cfg.DatabaseURI, nil },
		Connector:      database.Dialer{DatabaseName: cfg.DatabaseName, AutoMigrate: true},
		WaitTimeout:    cfg.DBWaitTimeout,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err := db.EnsureConnected(ctx); err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	log.Info().Str("host", db.Host()).Msg("Database connected")

	app, rdb, err := router.CreateApp(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("App setup failed")
	}
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable, request stats will be missing")
		} else {
			log.Info().Msg("Redis connected")
		}
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("env", cfg.Env).Msgf("Server running at http://localhost:%s", cfg.Port)
		log.Info().Msgf("Health check: http://localhost:%s/health", cfg.Port)
		errc <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errc:
		if err != nil {
			log.Error().Err(err).Msg("Server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := db.Close(closeCtx); err != nil {
		log.Error().Err(err).Msg("Closing database failed")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	fmt.Println("Server stopped")
}
