// Package handlers maps websocket events onto room state transitions. Every
// event for a room runs under that room's dispatch lock, so a handler can
// read, decide, write and broadcast without another event interleaving.
// Timer callbacks take the same lock before touching the room.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"quizcast/internal/bus"
	"quizcast/internal/catalog"
	"quizcast/internal/config"
	"quizcast/internal/game"
	"quizcast/internal/quiz"
	"quizcast/internal/store"
	"quizcast/internal/timer"
)

// Conn is the slice of a bus client the handlers need. *bus.Client satisfies
// it; tests substitute a recorder.
type Conn interface {
	ConnID() string
	Device() string
	Data() bus.ConnData
	SetData(fn func(*bus.ConnData))
	SendEvent(event string, payload any)
	SendAck(seq int64, payload any)
}

// EventBus is the outbound fan-out surface. *bus.Bus satisfies it.
type EventBus interface {
	JoinRoom(connID, roomCode string)
	LeaveRoom(connID, roomCode string)
	BroadcastRoom(roomCode, event string, payload any)
	EmitTo(connID, event string, payload any) bool
}

type handlerFunc func(c Conn, payload json.RawMessage, ack bus.Ack)

// Handler holds dependencies for the websocket event handlers.
type Handler struct {
	store    store.RoomStore
	bus      EventBus
	timers   *timer.Registry
	pipeline *quiz.Pipeline
	archive  catalog.Archive
	cfg      *config.Config
	log      zerolog.Logger

	locks roomLocks

	mu      sync.Mutex
	avatars map[string]*game.AvatarPool

	// issueCode is swappable so tests can pin room codes.
	issueCode func(ctx context.Context, s store.RoomStore) (string, error)

	routes map[string]handlerFunc
}

// New creates a handler wired to the given collaborators. archive may be a
// catalog.NoopArchive and pipeline may be backed by a nil provider; both
// degrade rather than disable game flow.
func New(st store.RoomStore, b EventBus, timers *timer.Registry, pipeline *quiz.Pipeline, archive catalog.Archive, cfg *config.Config, log zerolog.Logger) *Handler {
	h := &Handler{
		store:     st,
		bus:       b,
		timers:    timers,
		pipeline:  pipeline,
		archive:   archive,
		cfg:       cfg,
		log:       log.With().Str("component", "handlers").Logger(),
		avatars:   make(map[string]*game.AvatarPool),
		issueCode: store.IssueCode,
	}
	h.routes = map[string]handlerFunc{
		"room:create":          h.createRoom,
		"room:join":            h.joinRoom,
		"room:rejoin":          h.rejoinRoom,
		"room:leave":           h.leaveRoom,
		"room:kick":            h.kickPlayer,
		"room:update-settings": h.updateSettings,
		"player:update":        h.updatePlayer,
		"game:start":           h.startGame,
		"game:next-question":   h.nextQuestion,
		"game:pause":           h.pauseGame,
		"game:resume":          h.resumeGame,
		"game:end":             h.endGameNow,
		"game:restart":         h.restartGame,
		"answer:submit":        h.submitAnswer,
		"answer:timeout":       h.forceTimeout,
		"quiz:generate":        h.generateQuiz,
		"quiz:select-category": h.selectCategory,
		"quiz:set-options":     h.setOptions,
	}
	return h
}

// HandleMessage dispatches one inbound envelope. The ack closure fires at
// most once and only when the sender attached a sequence number.
func (h *Handler) HandleMessage(c Conn, env bus.Envelope) {
	fn, ok := h.routes[env.Event]
	if !ok {
		h.log.Debug().Str("event", env.Event).Str("conn", c.ConnID()).Msg("unknown event")
		c.SendEvent("error", map[string]any{"error": "Unknown event: " + env.Event})
		return
	}

	var once sync.Once
	ack := bus.Ack(func(payload any) {
		once.Do(func() {
			if env.Seq != 0 {
				c.SendAck(env.Seq, payload)
			}
		})
	})
	fn(c, env.Payload, ack)
}

// HandleDisconnect reacts to a connection dropping. A TV disconnect keeps the
// room alive so the TV can rejoin and re-bind as host; a player disconnect
// flags the player and may close out the current question early.
func (h *Handler) HandleDisconnect(c Conn) {
	data := c.Data()
	if data.RoomCode == "" {
		return
	}
	code := data.RoomCode

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	if data.Role == bus.RoleTV {
		h.log.Info().Str("room", code).Msg("tv disconnected")
		h.bus.BroadcastRoom(code, "room:tv-disconnected", map[string]any{"roomCode": code})
		// TODO: reap rooms whose TV never returns instead of waiting out
		// the cache TTL.
		return
	}

	if data.PlayerID == "" {
		return
	}
	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		p := r.FindPlayer(data.PlayerID)
		if p == nil {
			return game.ErrPlayerNotFound
		}
		p.IsConnected = false
		return nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, game.ErrPlayerNotFound) {
			h.log.Error().Err(err).Str("room", code).Msg("disconnect update failed")
		}
		return
	}

	h.bus.BroadcastRoom(code, "room:player-disconnected", map[string]any{
		"playerId":    data.PlayerID,
		"playerCount": room.ConnectedCount(),
	})
	// The departed player may have been the last holdout.
	h.resolveIfAllAnswered(ctx, room)
}

// roomLocks serializes event handling per room, independent of the store's
// write lock. Handlers hold it across the whole read-decide-write-broadcast
// span.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *roomLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// pool returns the avatar pool for a room, creating it on first use.
func (h *Handler) pool(code string) *game.AvatarPool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.avatars[code]
	if !ok {
		p = game.NewAvatarPool()
		h.avatars[code] = p
	}
	return p
}

func (h *Handler) dropPool(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.avatars, code)
}

// defaultSettings seeds a new room from server configuration.
func (h *Handler) defaultSettings() game.RoomSettings {
	g := h.cfg.Game
	return game.RoomSettings{
		QuestionCount: g.DefaultQuestionCount,
		TimeLimit:     g.DefaultTimeLimit,
		Difficulty:    g.DefaultDifficulty,
		MaxPlayers:    g.DefaultMaxPlayers,
		MinPlayers:    g.DefaultMinPlayers,
	}
}

// decode unmarshals a payload, tolerating an absent body.
func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}

// roomCodeFor resolves the room an event addresses: an explicit code in the
// payload wins, otherwise the code bound to the connection.
func (h *Handler) roomCodeFor(c Conn, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return c.Data().RoomCode
}

// ackFailure translates store and game errors into the client-facing ack
// vocabulary. Unknown errors are logged and answered with the fallback.
func (h *Handler) ackFailure(ack bus.Ack, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		ack(bus.AckError("Room not found"))
	case errors.Is(err, game.ErrRoomFull):
		ack(bus.AckError("Room is full"))
	case errors.Is(err, game.ErrNameTaken):
		ack(bus.AckError("Name already taken"))
	case errors.Is(err, game.ErrGameInProgress):
		ack(bus.AckError("Game already in progress"))
	case errors.Is(err, game.ErrAlreadyAnswered):
		ack(bus.AckError("Already answered"))
	case errors.Is(err, game.ErrNotAcceptingAnswers):
		ack(bus.AckError("Not accepting answers"))
	case errors.Is(err, game.ErrNoQuestions):
		ack(bus.AckError("No questions loaded"))
	case errors.Is(err, game.ErrPlayerNotFound):
		ack(bus.AckError("Player not found"))
	default:
		h.log.Error().Err(err).Msg(fallback)
		ack(bus.AckError(fallback))
	}
}
