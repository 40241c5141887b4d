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

	router "github.com/edlive/classrelay/internal/adapters/http"
	"github.com/edlive/classrelay/internal/app"
	"github.com/edlive/classrelay/internal/config"
	"github.com/edlive/classrelay/internal/core"
	"github.com/edlive/classrelay/internal/notify"
	"github.com/edlive/classrelay/internal/store"
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
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var chatStore core.ChatStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect chat store")
		}
		defer pg.Close()
		chatStore = pg
	} else {
		log.Warn().Msg("no database_url configured, chat history will not survive restarts")
		chatStore = store.NewMemory()
	}

	var presence core.Presence
	var notifier core.LiveNotifier
	if cfg.RedisAddr != "" {
		rd, err := notify.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rd.Close()
		presence = rd
		notifier = rd
	} else {
		log.Warn().Msg("no redis_addr configured, presence mirror and go-live fan-out disabled")
	}

	registry := app.NewRegistry()
	rooms := app.NewRoomManager()
	relay := app.NewRelay(registry, rooms)
	chat := app.NewChatService(chatStore, rooms, cfg.HistoryLimit)

	orch := &app.Orchestrator{
		Registry: registry,
		Rooms:    rooms,
		Relay:    relay,
		Chat:     chat,
		Policy:   app.SimplePolicy{},
		Presence: presence,
		Notifier: notifier,
	}

	r := router.SetupRouter(ctx, cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("classrelay server started")
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
