package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"quizcast/internal/bus"
	"quizcast/internal/catalog"
	"quizcast/internal/config"
	"quizcast/internal/game"
	"quizcast/internal/quiz"
	"quizcast/internal/store"
	"quizcast/internal/timer"
)

// testInterval substitutes for the one-second production tick. Deadlines are
// derived from it, so the whole phase machine compresses with it.
const testInterval = 10 * time.Millisecond

// waitBudget bounds every poll loop; generous so slow CI does not flake.
const waitBudget = 3 * time.Second

type sentEvent struct {
	Event   string
	Payload any
}

type sentAck struct {
	Seq     int64
	Payload any
}

// fakeConn records what the handler sends to one connection.
type fakeConn struct {
	id string

	mu     sync.Mutex
	data   bus.ConnData
	events []sentEvent
	acks   []sentAck
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ConnID() string { return c.id }
func (c *fakeConn) Device() string { return c.id + "-device" }

func (c *fakeConn) Data() bus.ConnData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

func (c *fakeConn) SetData(fn func(*bus.ConnData)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.data)
}

func (c *fakeConn) SendEvent(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, sentEvent{Event: event, Payload: payload})
}

func (c *fakeConn) SendAck(seq int64, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks = append(c.acks, sentAck{Seq: seq, Payload: payload})
}

func (c *fakeConn) ackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acks)
}

func (c *fakeConn) acksFrom(i int) []sentAck {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentAck(nil), c.acks[i:]...)
}

func (c *fakeConn) eventNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.events))
	for i, e := range c.events {
		names[i] = e.Event
	}
	return names
}

// busFrame is one recorded fan-out call. For targeted emits, Room holds the
// recipient connection id.
type busFrame struct {
	Room    string
	Event   string
	Payload any
}

// recorderBus captures fan-out instead of delivering it.
type recorderBus struct {
	mu         sync.Mutex
	broadcasts []busFrame
	targeted   []busFrame
	members    map[string]map[string]bool
}

func newRecorderBus() *recorderBus {
	return &recorderBus{members: make(map[string]map[string]bool)}
}

func (b *recorderBus) JoinRoom(connID, roomCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.members[roomCode] == nil {
		b.members[roomCode] = make(map[string]bool)
	}
	b.members[roomCode][connID] = true
}

func (b *recorderBus) LeaveRoom(connID, roomCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members[roomCode], connID)
}

func (b *recorderBus) BroadcastRoom(roomCode, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, busFrame{Room: roomCode, Event: event, Payload: payload})
}

func (b *recorderBus) EmitTo(connID, event string, payload any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targeted = append(b.targeted, busFrame{Room: connID, Event: event, Payload: payload})
	return true
}

func (b *recorderBus) isMember(roomCode, connID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.members[roomCode][connID]
}

func (b *recorderBus) named(event string) []busFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []busFrame
	for _, f := range b.broadcasts {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (b *recorderBus) count(event string) int {
	return len(b.named(event))
}

func (b *recorderBus) last(t *testing.T, event string) busFrame {
	t.Helper()
	frames := b.named(event)
	require.NotEmpty(t, frames, "no %q broadcast recorded", event)
	return frames[len(frames)-1]
}

func (b *recorderBus) targetedNamed(event string) []busFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []busFrame
	for _, f := range b.targeted {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// eventNames returns the broadcast sequence in commit order. An empty
// roomCode matches every room.
func (b *recorderBus) eventNames(roomCode string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, f := range b.broadcasts {
		if roomCode == "" || f.Room == roomCode {
			names = append(names, f.Event)
		}
	}
	return names
}

// waitFor polls until the n-th broadcast named event exists.
func (b *recorderBus) waitFor(t *testing.T, event string, n int) busFrame {
	t.Helper()
	deadline := time.Now().Add(waitBudget)
	for time.Now().Before(deadline) {
		if frames := b.named(event); len(frames) >= n {
			return frames[n-1]
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q broadcasts; saw %v", n, event, b.eventNames(""))
	return busFrame{}
}

// stubCatalog serves a fixed question list to the pipeline.
type stubCatalog struct {
	mu        sync.Mutex
	questions []game.Question
	asked     []string
}

func (s *stubCatalog) LeastUsed(ctx context.Context, category, difficulty string, limit int, excludeIDs []string) ([]game.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	skip := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		skip[id] = true
	}
	out := make([]game.Question, 0, limit)
	for _, q := range s.questions {
		if skip[q.ID] {
			continue
		}
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubCatalog) RecordAsked(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, ids...)
	return nil
}

func (s *stubCatalog) SaveGenerated(ctx context.Context, questions []game.Question) error {
	return nil
}

func catalogQuestions(n int) []game.Question {
	qs := make([]game.Question, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, game.Question{
			ID:            fmt.Sprintf("q%02d", i),
			Text:          fmt.Sprintf("Question %d", i),
			Options:       map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"},
			CorrectAnswer: "B",
			Category:      "General",
		})
	}
	return qs
}

type testEnv struct {
	h      *Handler
	store  store.RoomStore
	bus    *recorderBus
	timers *timer.Registry
	cat    *stubCatalog
	cfg    *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Game.TickInterval = testInterval
	cfg.Game.AnswerGrace = testInterval
	cfg.Game.RevealDelay = 4 * testInterval
	cfg.Game.WinnerJingle = 2 * testInterval

	st := store.NewMemoryStore(cfg.Game.RoomTTL)
	rb := newRecorderBus()
	timers := timer.NewRegistry(testInterval)
	cat := &stubCatalog{questions: catalogQuestions(12)}
	pipeline := quiz.NewPipeline(cat, nil, time.Second, zerolog.Nop())

	h := New(st, rb, timers, pipeline, catalog.NoopArchive{}, cfg, zerolog.Nop())
	h.issueCode = func(ctx context.Context, s store.RoomStore) (string, error) {
		return "K7MN2P", nil
	}

	t.Cleanup(timers.CancelAll)
	return &testEnv{h: h, store: st, bus: rb, timers: timers, cat: cat, cfg: cfg}
}

var testSeq atomic.Int64

// dispatch runs one event through HandleMessage and returns the ack body.
func dispatch(t *testing.T, h *Handler, c *fakeConn, event string, payload any) map[string]any {
	t.Helper()

	seq := testSeq.Add(1)
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = data
	}

	before := c.ackCount()
	h.HandleMessage(c, bus.Envelope{Event: event, Seq: seq, Payload: raw})

	acks := c.acksFrom(before)
	require.Len(t, acks, 1, "%s: want exactly one ack", event)
	require.Equal(t, seq, acks[0].Seq)
	body, ok := acks[0].Payload.(map[string]any)
	require.True(t, ok, "%s: ack payload should be a map, got %T", event, acks[0].Payload)
	return body
}

func requireAckOK(t *testing.T, ack map[string]any) {
	t.Helper()
	ok, _ := ack["success"].(bool)
	require.True(t, ok, "expected success ack, got %v", ack)
}

func requireAckErr(t *testing.T, ack map[string]any, message string) {
	t.Helper()
	ok, _ := ack["success"].(bool)
	require.False(t, ok, "expected failure ack, got %v", ack)
	require.Equal(t, message, ack["error"])
}

// createRoom drives room:create for a fresh TV connection.
func (e *testEnv) createRoom(t *testing.T) (*fakeConn, string) {
	t.Helper()
	tv := newFakeConn("tv-1")
	ack := dispatch(t, e.h, tv, "room:create", map[string]any{"hostName": "Quiz Night"})
	requireAckOK(t, ack)
	code, _ := ack["roomCode"].(string)
	require.NotEmpty(t, code)
	return tv, code
}

// joinPlayer adds one player through room:join.
func (e *testEnv) joinPlayer(t *testing.T, code, connID, name, avatar string) *fakeConn {
	t.Helper()
	c := newFakeConn(connID)
	ack := dispatch(t, e.h, c, "room:join", map[string]any{
		"roomCode": code,
		"type":     "player",
		"player":   map[string]any{"name": name, "avatar": avatar},
	})
	requireAckOK(t, ack)
	return c
}

// loadQuestions injects a question set directly into the room record.
func (e *testEnv) loadQuestions(t *testing.T, code string, qs []game.Question) {
	t.Helper()
	_, err := e.store.Update(context.Background(), code, func(r *game.Room) error {
		r.SetQuestions(qs)
		return nil
	})
	require.NoError(t, err)
}

func (e *testEnv) getRoom(t *testing.T, code string) *game.Room {
	t.Helper()
	room, err := e.store.Get(context.Background(), code)
	require.NoError(t, err)
	return room
}

// rewindQuestionStart shifts questionStartTime into the past, simulating
// elapsed answer time without sleeping through it.
func (e *testEnv) rewindQuestionStart(t *testing.T, code string, by time.Duration) {
	t.Helper()
	_, err := e.store.Update(context.Background(), code, func(r *game.Room) error {
		r.QuestionStartTime -= by.Milliseconds()
		return nil
	})
	require.NoError(t, err)
}

// startGame drives game:start and waits for the first question broadcast.
func (e *testEnv) startGame(t *testing.T, tv *fakeConn, code string) {
	t.Helper()
	ack := dispatch(t, e.h, tv, "game:start", map[string]any{"roomCode": code})
	requireAckOK(t, ack)
	e.bus.waitFor(t, "game:question", 1)
}

// oneQuestion builds a single-question set matching the default answer key.
func oneQuestion(timeLimit int) []game.Question {
	return []game.Question{{
		ID:            "q-single",
		Text:          "Q1",
		Options:       map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"},
		CorrectAnswer: "B",
		TimeLimit:     timeLimit,
	}}
}
