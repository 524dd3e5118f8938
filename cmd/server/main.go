package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/okatev/pulse/internal/adapters/http"
	"github.com/okatev/pulse/internal/app"
	"github.com/okatev/pulse/internal/config"
	"github.com/okatev/pulse/internal/core"
	"github.com/okatev/pulse/internal/relay"
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
		log.Fatal().Err(err).Msg("failed to load config")
	}

	node := cfg.NodeID
	if node == "" {
		node = uuid.NewString()
	}

	var bus core.Bus
	if cfg.RedisAddr != "" {
		rb, err := relay.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// Relay unreachable at boot is the one fatal failure.
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("relay unreachable")
		}
		bus = rb
		log.Info().Str("module", "main").Str("addr", cfg.RedisAddr).Str("node", node).Msg("relay: redis")
	} else {
		bus = relay.NewMemoryBus()
		log.Info().Str("module", "main").Str("node", node).Msg("relay: in-memory (single node)")
	}
	defer bus.Close()

	svc := app.NewService(node, bus, cfg.OfferTTL, cfg.PresenceHeartbeat)
	if err := svc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start service")
	}

	r := router.SetupRouter(ctx, cfg, svc)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Pulse server started")
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
