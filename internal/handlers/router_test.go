package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"quizcast/internal/bus"
	"quizcast/internal/catalog"
	"quizcast/internal/config"
	"quizcast/internal/quiz"
	"quizcast/internal/store"
	"quizcast/internal/timer"
)

// newRouterEnv builds a handler wired to a real event bus for end-to-end
// websocket tests.
func newRouterEnv(t *testing.T) (*Handler, *bus.Bus, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Game.TickInterval = testInterval
	cfg.Game.AnswerGrace = testInterval
	cfg.Game.RevealDelay = 4 * testInterval
	cfg.Game.WinnerJingle = 2 * testInterval

	st := store.NewMemoryStore(cfg.Game.RoomTTL)
	b := bus.NewBus(zerolog.Nop())
	timers := timer.NewRegistry(testInterval)
	cat := &stubCatalog{questions: catalogQuestions(12)}
	pipeline := quiz.NewPipeline(cat, nil, time.Second, zerolog.Nop())

	h := New(st, b, timers, pipeline, catalog.NoopArchive{}, cfg, zerolog.Nop())
	h.issueCode = func(ctx context.Context, s store.RoomStore) (string, error) {
		return "K7MN2P", nil
	}

	t.Cleanup(timers.CancelAll)
	t.Cleanup(b.CloseAll)
	return h, b, cfg
}

func wsDial(t *testing.T, serverURL, deviceID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws?deviceId=" + deviceID
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitBudget)))
	return conn
}

func wsSend(t *testing.T, conn *websocket.Conn, event string, seq int64, payload any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(bus.Envelope{Event: event, Seq: seq, Payload: body})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// wsAwait reads frames until one matches the wanted event, skipping
// interleaved broadcasts.
func wsAwait(t *testing.T, conn *websocket.Conn, event string) bus.Envelope {
	t.Helper()
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", event)
		var env bus.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Event == event {
			return env
		}
	}
}

func TestHealthLive(t *testing.T) {
	h, b, cfg := newRouterEnv(t)
	router := SetupRouter(h, b, cfg, &RouterOptions{DisableRateLimiting: true, DisableRequestLogger: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHealthReady(t *testing.T) {
	h, b, cfg := newRouterEnv(t)
	router := SetupRouter(h, b, cfg, &RouterOptions{DisableRateLimiting: true, DisableRequestLogger: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

// unreachableStore fails the readiness probe; nothing else is called.
type unreachableStore struct{ store.RoomStore }

func (unreachableStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealthReadyDegraded(t *testing.T) {
	h, b, cfg := newRouterEnv(t)
	h.store = unreachableStore{}
	router := SetupRouter(h, b, cfg, &RouterOptions{DisableRateLimiting: true, DisableRequestLogger: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body["status"])
	require.NotEmpty(t, body["error"])
}

func TestWebSocketRoomLifecycle(t *testing.T) {
	h, b, cfg := newRouterEnv(t)
	router := SetupRouter(h, b, cfg, &RouterOptions{DisableRateLimiting: true, DisableRequestLogger: true})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	tv := wsDial(t, srv.URL, "device-tv")
	wsSend(t, tv, "room:create", 1, map[string]any{"hostName": "Quiz Night"})

	created := wsAwait(t, tv, "room:created")
	var createdBody struct {
		RoomCode string `json:"roomCode"`
	}
	require.NoError(t, json.Unmarshal(created.Payload, &createdBody))
	require.Equal(t, "K7MN2P", createdBody.RoomCode)

	ackFrame := wsAwait(t, tv, "ack")
	require.Equal(t, int64(1), ackFrame.Seq)
	var ackBody struct {
		Success  bool   `json:"success"`
		RoomCode string `json:"roomCode"`
		Room     struct {
			Phase string `json:"phase"`
		} `json:"room"`
	}
	require.NoError(t, json.Unmarshal(ackFrame.Payload, &ackBody))
	require.True(t, ackBody.Success)
	require.Equal(t, "K7MN2P", ackBody.RoomCode)
	require.Equal(t, "lobby", ackBody.Room.Phase)

	phone := wsDial(t, srv.URL, "device-phone")
	wsSend(t, phone, "room:join", 2, map[string]any{
		"roomCode": "K7MN2P",
		"type":     "player",
		"player":   map[string]any{"name": "Alice", "avatar": "🦊"},
	})

	joinAck := wsAwait(t, phone, "ack")
	require.Equal(t, int64(2), joinAck.Seq)
	var joinBody struct {
		Success bool `json:"success"`
		Player  struct {
			Name   string `json:"name"`
			Avatar string `json:"avatar"`
		} `json:"player"`
	}
	require.NoError(t, json.Unmarshal(joinAck.Payload, &joinBody))
	require.True(t, joinBody.Success)
	require.Equal(t, "Alice", joinBody.Player.Name)
	require.Equal(t, "🦊", joinBody.Player.Avatar)

	// The broadcast reaches the TV over its own socket.
	joined := wsAwait(t, tv, "room:player-joined")
	var joinedBody struct {
		PlayerCount int `json:"playerCount"`
	}
	require.NoError(t, json.Unmarshal(joined.Payload, &joinedBody))
	require.Equal(t, 1, joinedBody.PlayerCount)
}

func TestWebSocketUnknownEvent(t *testing.T) {
	h, b, cfg := newRouterEnv(t)
	router := SetupRouter(h, b, cfg, &RouterOptions{DisableRateLimiting: true, DisableRequestLogger: true})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	conn := wsDial(t, srv.URL, "device-x")
	wsSend(t, conn, "room:frobnicate", 1, nil)

	frame := wsAwait(t, conn, "error")
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(frame.Payload, &body))
	require.Contains(t, body.Error, "room:frobnicate")
}
