package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quizcast/internal/bus"
	"quizcast/internal/catalog"
	"quizcast/internal/game"
	"quizcast/internal/store"
)

type roomCodePayload struct {
	RoomCode string `json:"roomCode"`
}

// startGame moves a lobby into the countdown. Host only; needs enough
// players and a loaded question set.
func (h *Handler) startGame(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req roomCodePayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can start the game"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	var minNeeded int
	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		if r.Phase != game.PhaseLobby {
			return game.ErrGameInProgress
		}
		if len(r.Players) < r.Settings.MinPlayers {
			minNeeded = r.Settings.MinPlayers
			return game.ErrNotEnoughPlayers
		}
		if len(r.Questions) == 0 {
			return game.ErrNoQuestions
		}
		r.Phase = game.PhaseStarting
		return nil
	})
	if errors.Is(err, game.ErrNotEnoughPlayers) {
		ack(bus.AckError(fmt.Sprintf("Need at least %d players", minNeeded)))
		return
	}
	if err != nil {
		h.ackFailure(ack, err, "Failed to start game")
		return
	}

	go h.recordSessionStart(room)

	h.log.Info().Str("room", code).
		Int("players", len(room.Players)).
		Int("questions", len(room.Questions)).
		Msg("game starting")
	h.bus.BroadcastRoom(code, "game:starting", map[string]any{"countdown": h.cfg.Game.CountdownCount})
	h.runCountdown(code)
	ack(bus.AckSuccess(nil))
}

// runCountdown streams the pre-game countdown and enters question zero when
// it reaches zero.
func (h *Handler) runCountdown(code string) {
	h.timers.StartTicks(code, h.cfg.Game.CountdownCount, func(n int) {
		if n > 0 {
			h.bus.BroadcastRoom(code, "game:countdown", map[string]any{"count": n})
			return
		}
		h.beginQuestions(code)
	})
}

// beginQuestions runs on the countdown goroutine once the count hits zero.
func (h *Handler) beginQuestions(code string) {
	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	room, err := h.store.Get(ctx, code)
	if err != nil {
		return
	}
	if room.Phase != game.PhaseStarting {
		return // paused or torn down during the countdown
	}

	h.bus.BroadcastRoom(code, "game:started", map[string]any{
		"phase":           string(game.PhaseQuestion),
		"questionCount":   len(room.Questions),
		"currentQuestion": 0,
	})
	h.enterQuestion(ctx, code, 0)
}

// enterQuestion opens the answer window for question idx: answers cleared,
// start time stamped, ticks and the resolution deadline armed. Caller holds
// the room's dispatch lock, so the deadline is registered before any other
// event can observe the new phase.
func (h *Handler) enterQuestion(ctx context.Context, code string, idx int) {
	var q game.Question
	var limit, total int
	_, err := h.store.Update(ctx, code, func(r *game.Room) error {
		if idx < 0 || idx >= len(r.Questions) {
			return game.ErrNoQuestions
		}
		r.CurrentAnswers = make(map[string]game.Answer)
		r.CurrentQuestionIndex = idx
		r.QuestionStartTime = time.Now().UnixMilli()
		r.Phase = game.PhaseQuestion
		r.PausedPhase = ""
		q = r.Questions[idx]
		limit = r.EffectiveTimeLimit(&q)
		total = len(r.Questions)
		return nil
	})
	if err != nil {
		h.log.Error().Err(err).Str("room", code).Int("question", idx).Msg("question entry failed")
		return
	}

	h.bus.BroadcastRoom(code, "game:question", map[string]any{
		"questionIndex":  idx,
		"totalQuestions": total,
		"question":       q.Sanitized(),
		"timeLimit":      limit,
	})

	// The deadline outlives the last tick by the grace window so a submit
	// racing the final tick still lands inside the answer window.
	h.timers.SetDeadline(code, time.Duration(limit)*h.timers.Interval()+h.cfg.Game.AnswerGrace, func() {
		h.onQuestionDeadline(code, idx)
	})
	h.timers.StartTicks(code, limit, func(n int) {
		if n > 0 {
			h.bus.BroadcastRoom(code, "timer:tick", map[string]any{"timeRemaining": n})
			return
		}
		h.timerEnd(code, idx)
	})
}

// timerEnd announces window close, unless the question already resolved.
func (h *Handler) timerEnd(code string, idx int) {
	unlock := h.locks.lock(code)
	defer unlock()

	room, err := h.store.Get(context.Background(), code)
	if err != nil || room.Phase != game.PhaseQuestion || room.CurrentQuestionIndex != idx {
		return
	}
	h.bus.BroadcastRoom(code, "timer:end", nil)
}

// onQuestionDeadline fires when the answer window plus grace elapses.
func (h *Handler) onQuestionDeadline(code string, idx int) {
	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	room, err := h.store.Get(ctx, code)
	if err != nil {
		return // room gone; stale fire
	}
	if room.Phase != game.PhaseQuestion || room.CurrentQuestionIndex != idx {
		return // already resolved or re-entered; stale fire
	}
	h.resolveQuestion(ctx, code, idx)
}

type submitAnswerPayload struct {
	RoomCode  string `json:"roomCode"`
	Answer    string `json:"answer"`
	Timestamp int64  `json:"timestamp"`
}

// submitAnswer admits one answer per player per question while the window is
// open. Elapsed time is measured server-side against questionStartTime.
func (h *Handler) submitAnswer(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req submitAnswerPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if err := game.ValidateAnswerValue(req.Answer); err != nil {
		ack(bus.AckError(err.Error()))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	playerID := c.Data().PlayerID
	if code == "" || playerID == "" {
		ack(bus.AckError("Room not found"))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()
	now := time.Now().UnixMilli()

	var idx, answerCount, totalPlayers int
	var allIn bool
	_, err := h.store.Update(ctx, code, func(r *game.Room) error {
		if r.Phase != game.PhaseQuestion {
			return game.ErrNotAcceptingAnswers
		}
		if r.FindPlayer(playerID) == nil {
			return game.ErrPlayerNotFound
		}
		q := r.CurrentQuestion()
		limit := r.EffectiveTimeLimit(q)
		elapsed := now - r.QuestionStartTime
		if elapsed > int64(limit)*1000 {
			return game.ErrNotAcceptingAnswers
		}
		idx = r.CurrentQuestionIndex
		if err := r.RecordAnswer(game.Answer{
			PlayerID:      playerID,
			QuestionIndex: idx,
			Answer:        req.Answer,
			Timestamp:     req.Timestamp,
			TimeElapsed:   elapsed,
		}); err != nil {
			return err
		}
		answerCount = r.AnswerCount(idx)
		totalPlayers = r.ConnectedCount()
		allIn = totalPlayers > 0 && r.ConnectedAnswered(idx) >= totalPlayers
		return nil
	})
	if err != nil {
		h.ackFailure(ack, err, "Failed to submit answer")
		return
	}

	ack(bus.AckSuccess(map[string]any{"accepted": true}))
	received := map[string]any{
		"playerId":     playerID,
		"answerCount":  answerCount,
		"totalPlayers": totalPlayers,
	}
	h.bus.BroadcastRoom(code, "answer:received", received)
	h.bus.BroadcastRoom(code, "player:answered", received)

	if allIn {
		h.bus.BroadcastRoom(code, "answer:all-received", nil)
		h.resolveQuestion(ctx, code, idx)
	}
}

// resolveIfAllAnswered closes the current question when the remaining
// connected players have all answered; called after a player departs or
// disconnects mid-question. Caller holds the dispatch lock.
func (h *Handler) resolveIfAllAnswered(ctx context.Context, room *game.Room) {
	if room.Phase != game.PhaseQuestion {
		return
	}
	idx := room.CurrentQuestionIndex
	total := room.ConnectedCount()
	if total == 0 {
		return // nobody left to wait for; let the deadline close it out
	}
	if room.ConnectedAnswered(idx) >= total {
		h.bus.BroadcastRoom(room.Code, "answer:all-received", nil)
		h.resolveQuestion(ctx, room.Code, idx)
	}
}

// forceTimeout lets the host close the answer window immediately.
func (h *Handler) forceTimeout(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req roomCodePayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can end the question"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	room, err := h.store.Get(ctx, code)
	if err != nil {
		h.ackFailure(ack, err, "Failed to end question")
		return
	}
	if room.Phase != game.PhaseQuestion {
		ack(bus.AckError("Not accepting answers"))
		return
	}
	h.resolveQuestion(ctx, code, room.CurrentQuestionIndex)
	ack(bus.AckSuccess(nil))
}

// resolveQuestion scores question idx, persists scores and streaks in one
// write, reveals, and schedules the advance. Caller holds the dispatch lock;
// stale calls are dropped inside the update.
func (h *Handler) resolveQuestion(ctx context.Context, code string, idx int) {
	h.timers.Cancel(code)

	var q game.Question
	var results []game.QuestionResult
	var standings []game.LeaderboardEntry
	_, err := h.store.Update(ctx, code, func(r *game.Room) error {
		if r.Phase != game.PhaseQuestion || r.CurrentQuestionIndex != idx {
			return game.ErrNotAcceptingAnswers
		}
		current := r.CurrentQuestion()
		if current == nil {
			return game.ErrNoQuestions
		}
		q = *current
		limit := r.EffectiveTimeLimit(current)

		results = game.ComputeResults(r.Players, q, limit, r.AnswersForQuestion(idx))
		for _, res := range results {
			if p := r.FindPlayer(res.PlayerID); p != nil {
				p.Score = res.NewScore
				p.Streak = res.Streak
			}
		}
		r.Phase = game.PhaseReveal
		r.QuestionStartTime = 0
		standings = game.RankLeaderboard(r.Players)
		return nil
	})
	if err != nil {
		if !errors.Is(err, game.ErrNotAcceptingAnswers) {
			h.log.Error().Err(err).Str("room", code).Int("question", idx).Msg("question resolution failed")
		}
		return
	}

	winner := game.QuestionWinner(results)
	h.bus.BroadcastRoom(code, "game:reveal", map[string]any{
		"correctAnswer":  q.CorrectAnswer,
		"results":        results,
		"standings":      standings,
		"questionWinner": winner,
	})

	delay := h.cfg.Game.RevealDelay
	if winner != nil {
		delay += h.cfg.Game.WinnerJingle
	}
	h.timers.SetDeadline(code, delay, func() {
		h.onRevealDone(code, idx)
	})
}

// onRevealDone fires when the reveal window elapses.
func (h *Handler) onRevealDone(code string, idx int) {
	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	room, err := h.store.Get(ctx, code)
	if err != nil {
		return
	}
	h.advanceFrom(ctx, room, idx)
}

// advanceFrom leaves reveal(idx) for the next question or the final
// standings. Caller holds the dispatch lock.
func (h *Handler) advanceFrom(ctx context.Context, room *game.Room, idx int) {
	if room.Phase != game.PhaseReveal || room.CurrentQuestionIndex != idx {
		return // stale fire
	}
	next := idx + 1
	if next < len(room.Questions) {
		h.enterQuestion(ctx, room.Code, next)
		return
	}
	h.endGame(ctx, room.Code)
}

// nextQuestion lets the host cut the reveal short and advance immediately.
func (h *Handler) nextQuestion(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req roomCodePayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can advance the game"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	room, err := h.store.Get(ctx, code)
	if err != nil {
		h.ackFailure(ack, err, "Failed to advance")
		return
	}
	if room.Phase != game.PhaseReveal {
		ack(bus.AckError("Cannot advance now"))
		return
	}
	h.timers.Cancel(code)
	h.advanceFrom(ctx, room, room.CurrentQuestionIndex)
	ack(bus.AckSuccess(nil))
}

// endGame closes the game out: final phase, standings broadcast, archive
// write. Caller holds the dispatch lock.
func (h *Handler) endGame(ctx context.Context, code string) error {
	h.timers.Cancel(code)

	var standings []game.LeaderboardEntry
	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		r.Phase = game.PhaseFinal
		r.CurrentQuestionIndex = len(r.Questions)
		r.QuestionStartTime = 0
		r.PausedPhase = ""
		standings = game.RankLeaderboard(r.Players)
		return nil
	})
	if err != nil {
		h.log.Error().Err(err).Str("room", code).Msg("game end failed")
		return err
	}

	payload := map[string]any{"standings": standings}
	if len(standings) > 0 {
		payload["winner"] = standings[0]
	}
	h.bus.BroadcastRoom(code, "game:finished", payload)
	h.log.Info().Str("room", code).Int("players", len(standings)).Msg("game finished")

	go h.recordSessionEnd(room, standings)
	return nil
}

// endGameNow lets the host end the game from any phase.
func (h *Handler) endGameNow(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req roomCodePayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can end the game"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	if err := h.endGame(context.Background(), code); err != nil {
		h.ackFailure(ack, err, "Failed to end game")
		return
	}
	ack(bus.AckSuccess(nil))
}

// restartGame returns a finished room to the lobby with scores zeroed and
// questions cleared. Used question ids survive so a rematch draws fresh
// material.
func (h *Handler) restartGame(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req roomCodePayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can restart the game"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	h.timers.Cancel(code)
	_, err := h.store.Update(ctx, code, func(r *game.Room) error {
		r.ResetForRestart()
		r.SessionID = ""
		return nil
	})
	if err != nil {
		h.ackFailure(ack, err, "Failed to restart game")
		return
	}

	h.log.Info().Str("room", code).Msg("game restarted")
	h.bus.BroadcastRoom(code, "game:restarted", map[string]any{"phase": string(game.PhaseLobby)})
	ack(bus.AckSuccess(nil))
}

// pauseGame freezes the phase machine. Timers stop; the pre-pause phase is
// remembered so resume knows where to pick up.
func (h *Handler) pauseGame(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req roomCodePayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can pause the game"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	h.timers.Cancel(code)
	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		switch r.Phase {
		case game.PhaseStarting, game.PhaseQuestion, game.PhaseReveal:
			r.PausedPhase = r.Phase
			r.Phase = game.PhasePaused
			r.QuestionStartTime = 0
			return nil
		default:
			return game.ErrNotAcceptingAnswers
		}
	})
	if err != nil {
		if errors.Is(err, game.ErrNotAcceptingAnswers) {
			ack(bus.AckError("Cannot pause now"))
			return
		}
		h.ackFailure(ack, err, "Failed to pause game")
		return
	}

	h.log.Info().Str("room", code).Str("pausedPhase", string(room.PausedPhase)).Msg("game paused")
	h.bus.BroadcastRoom(code, "game:paused", map[string]any{"pausedPhase": string(room.PausedPhase)})
	ack(bus.AckSuccess(nil))
}

// resumeGame picks the game back up. A paused question restarts with a fresh
// full window; a paused countdown restarts from the top; a paused reveal
// advances directly.
func (h *Handler) resumeGame(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req roomCodePayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can resume the game"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	room, err := h.store.Get(ctx, code)
	if err != nil {
		h.ackFailure(ack, err, "Failed to resume game")
		return
	}
	if room.Phase != game.PhasePaused {
		ack(bus.AckError("Game is not paused"))
		return
	}

	h.bus.BroadcastRoom(code, "game:resumed", map[string]any{"phase": string(room.PausedPhase)})

	switch room.PausedPhase {
	case game.PhaseStarting:
		if _, err := h.store.Update(ctx, code, func(r *game.Room) error {
			r.Phase = game.PhaseStarting
			r.PausedPhase = ""
			return nil
		}); err != nil {
			h.ackFailure(ack, err, "Failed to resume game")
			return
		}
		h.bus.BroadcastRoom(code, "game:starting", map[string]any{"countdown": h.cfg.Game.CountdownCount})
		h.runCountdown(code)
	case game.PhaseQuestion:
		h.enterQuestion(ctx, code, room.CurrentQuestionIndex)
	case game.PhaseReveal:
		updated, err := h.store.Update(ctx, code, func(r *game.Room) error {
			r.Phase = game.PhaseReveal
			r.PausedPhase = ""
			return nil
		})
		if err != nil {
			h.ackFailure(ack, err, "Failed to resume game")
			return
		}
		h.advanceFrom(ctx, updated, updated.CurrentQuestionIndex)
	default:
		h.ackFailure(ack, game.ErrNotAcceptingAnswers, "Failed to resume game")
		return
	}
	ack(bus.AckSuccess(nil))
}

// recordSessionStart writes the session-start record off the dispatch lock
// and merges the archive id back into the room. Best-effort.
func (h *Handler) recordSessionStart(room *game.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := h.archive.SessionStarted(ctx, catalog.SessionRecord{
		RoomCode:      room.Code,
		HostName:      room.HostName,
		Category:      room.Settings.Category,
		QuestionCount: len(room.Questions),
		PlayerCount:   len(room.Players),
		StartedAt:     time.Now(),
	})
	if err != nil {
		h.log.Warn().Err(err).Str("room", room.Code).Msg("session archive start failed")
		return
	}
	if id == "" {
		return
	}

	unlock := h.locks.lock(room.Code)
	defer unlock()
	if _, err := h.store.Update(ctx, room.Code, func(r *game.Room) error {
		r.SessionID = id
		return nil
	}); err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Warn().Err(err).Str("room", room.Code).Msg("session id merge failed")
	}
}

// recordSessionEnd writes final standings to the archive. Best-effort.
func (h *Handler) recordSessionEnd(room *game.Room, standings []game.LeaderboardEntry) {
	if room.SessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outcomes := make([]catalog.PlayerOutcome, 0, len(standings))
	for _, e := range standings {
		outcomes = append(outcomes, catalog.PlayerOutcome{
			PlayerName:     e.Name,
			FinalScore:     e.Score,
			FinalRank:      e.Rank,
			TotalQuestions: len(room.Questions),
		})
	}
	if err := h.archive.SessionEnded(ctx, room.SessionID, time.Now(), outcomes); err != nil {
		h.log.Warn().Err(err).Str("room", room.Code).Msg("session archive end failed")
	}
}
