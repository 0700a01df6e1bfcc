package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"quizcast/internal/bus"
	"quizcast/internal/config"
	"quizcast/internal/handlers"
	"quizcast/internal/quiz"
	"quizcast/internal/timer"
)

func main() {
	// .env is optional; deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := setupLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	logger.Info().
		Str("host", cfg.Server.Host).
		Str("port", cfg.Server.Port).
		Dur("roomTtl", cfg.Game.RoomTTL).
		Msg("configuration loaded")

	ctx := context.Background()

	roomStore, err := buildStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("room store init failed")
	}

	questionCatalog, archive, err := buildCatalog(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("question catalog init failed")
	}

	var provider quiz.Provider
	if cfg.Provider.BaseURL != "" {
		provider = quiz.NewOpenAIProvider(quiz.ProviderConfig{
			BaseURL: cfg.Provider.BaseURL,
			APIKey:  cfg.Provider.APIKey,
			Model:   cfg.Provider.Model,
			Timeout: cfg.Provider.Timeout,
		}, logger)
		logger.Info().Str("model", cfg.Provider.Model).Msg("question provider enabled")
	} else {
		logger.Info().Msg("no question provider configured; serving catalog questions only")
	}

	eventBus := bus.NewBus(logger)
	timers := timer.NewRegistry(cfg.Game.TickInterval)
	pipeline := quiz.NewPipeline(questionCatalog, provider, cfg.Provider.Timeout, logger)
	h := handlers.New(roomStore, eventBus, timers, pipeline, archive, cfg, logger)

	router := handlers.SetupRouter(h, eventBus, cfg, nil)
	server := newHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	timers.CancelAll()
	eventBus.CloseAll()
	if err := roomStore.Close(); err != nil {
		logger.Error().Err(err).Msg("room store close failed")
	}
	closeCatalog(questionCatalog)
	logger.Info().Msg("server stopped")
}
