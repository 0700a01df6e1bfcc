package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"quizcast"
	"quizcast/internal/catalog"
	"quizcast/internal/config"
	"quizcast/internal/store"
)

// setupLogger builds the process logger. Console format is for development;
// anything else emits JSON lines.
func setupLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

// buildStore picks Redis when an address is configured, otherwise the
// in-process store. Both enforce the same sliding room TTL.
func buildStore(cfg *config.Config) (store.RoomStore, error) {
	if cfg.Redis.Addr == "" {
		return store.NewMemoryStore(cfg.Game.RoomTTL), nil
	}
	return store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Game.RoomTTL)
}

// buildCatalog wires the question bank and the session archive. With a
// database URL both live in Postgres; without one the embedded starter pack
// serves questions and session history is dropped.
func buildCatalog(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (catalog.Catalog, catalog.Archive, error) {
	if cfg.Database.URL == "" {
		mem, err := catalog.NewMemoryCatalog(quizcast.StarterQuestionsJSON)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Int("questions", mem.Size()).Msg("using embedded question pack")
		return mem, catalog.NoopArchive{}, nil
	}

	pg, err := catalog.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	logger.Info().Msg("question catalog backed by postgres")
	return pg, pg, nil
}

func closeCatalog(c catalog.Catalog) {
	if pg, ok := c.(*catalog.Postgres); ok {
		pg.Close()
	}
}

// newHTTPServer applies the configured timeouts. Hijacked websocket
// connections manage their own deadlines in the client pumps.
func newHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
