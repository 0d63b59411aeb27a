package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/charge/internal/adapters/httpapi"
	"github.com/dkeye/charge/internal/adapters/push"
	"github.com/dkeye/charge/internal/app"
	"github.com/dkeye/charge/internal/config"
	"github.com/dkeye/charge/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	var backing store.Store
	if cfg.DBPath == "" {
		log.Warn().Msg("no db_path configured, lobby state will not survive restart")
		backing = store.NewMemory()
	} else {
		db, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open lobby database")
		}
		defer db.Close()
		backing = db
	}

	reg := app.NewRegistry()
	fanout := app.NewFanout()
	coord := app.NewCoordinator(backing, reg, fanout)
	limiter := push.NewCommandRateLimiter(20, time.Minute)
	pushCtl := push.NewController(coord, fanout, limiter, cfg.ReadLimit)

	r := httpapi.SetupRouter(ctx, cfg, coord, pushCtl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Charge lobby started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
