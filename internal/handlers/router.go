package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"quizcast/internal/bus"
	"quizcast/internal/config"
	localMiddleware "quizcast/internal/middleware"
)

// RouterOptions allows customization of router setup for tests
type RouterOptions struct {
	DisableRateLimiting  bool
	DisableRequestLogger bool
	CustomMiddleware     []func(http.Handler) http.Handler
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TVs and phones load the client from other origins than the game
	// server; room codes are the admission control.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetupRouter creates the application router with all routes and middleware.
// The websocket route sits outside the request timeout group so long-lived
// connections are not cut off.
func SetupRouter(h *Handler, b *bus.Bus, cfg *config.Config, opts *RouterOptions) *chi.Mux {
	if opts == nil {
		opts = &RouterOptions{}
	}

	r := chi.NewRouter()

	if !opts.DisableRequestLogger {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	r.Use(localMiddleware.RequestSizeLimiter(cfg.Server.MaxRequestSize))
	r.Use(localMiddleware.SecurityHeaders())

	if !opts.DisableRateLimiting {
		rateLimiter := localMiddleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitBurst)
		r.Use(rateLimiter.Middleware())
	}

	for _, mw := range opts.CustomMiddleware {
		r.Use(mw)
	}

	r.Get("/ws", h.ServeWS(b))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		r.Get("/health/ready", h.Ready)
	})

	return r
}

// ServeWS upgrades the connection and hands it to the event bus pumps. The
// optional deviceId query parameter gives reconnecting clients a stable
// identity; type is informational until the first room event binds a role.
func (h *Handler) ServeWS(b *bus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}

		client := bus.NewClient(b, conn, r.URL.Query().Get("deviceId"))
		b.Register(client)
		h.log.Debug().
			Str("conn", client.ID).
			Str("device", client.DeviceID).
			Str("type", r.URL.Query().Get("type")).
			Msg("client connected")

		go client.WritePump()
		go client.ReadPump(
			func(c *bus.Client, env bus.Envelope) { h.HandleMessage(c, env) },
			func(c *bus.Client) { h.HandleDisconnect(c) },
		)
	}
}

// Ready reports whether the room store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := h.store.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("readiness probe failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
