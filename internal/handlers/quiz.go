package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"quizcast/internal/bus"
	"quizcast/internal/game"
	"quizcast/internal/quiz"
)

type generateQuizPayload struct {
	RoomCode      string `json:"roomCode"`
	Category      string `json:"category"`
	QuestionCount int    `json:"questionCount"`
	Difficulty    string `json:"difficulty"`
	IsCustomTopic bool   `json:"isCustomTopic"`
	TopicID       string `json:"topicId"`
}

// generateQuiz fills the room's question list from the catalog and, on
// shortfall, the AI provider. The pipeline runs outside the dispatch lock;
// results are merged back only if the room is still in the lobby.
func (h *Handler) generateQuiz(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req generateQuizPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can generate questions"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}
	if req.QuestionCount != 0 && (req.QuestionCount < game.MinQuestionCount || req.QuestionCount > game.MaxQuestionCount) {
		ack(bus.AckError(fmt.Sprintf("Invalid question count: must be %d-%d", game.MinQuestionCount, game.MaxQuestionCount)))
		return
	}
	if req.Difficulty != "" {
		if err := game.ValidateDifficulty(req.Difficulty); err != nil {
			ack(bus.AckError(err.Error()))
			return
		}
	}
	ctx := context.Background()

	unlock := h.locks.lock(code)
	room, err := h.store.Get(ctx, code)
	if err != nil {
		unlock()
		h.ackFailure(ack, err, "Failed to generate questions")
		return
	}
	if room.Phase != game.PhaseLobby {
		unlock()
		ack(bus.AckError("Game already in progress"))
		return
	}
	count := req.QuestionCount
	if count == 0 {
		count = room.Settings.QuestionCount
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = room.Settings.Difficulty
	}
	category := req.Category
	if category == "" {
		category = room.Settings.Category
	}
	exclude := append([]string(nil), room.UsedQuestionIDs...)
	timeLimit := room.Settings.TimeLimit
	unlock()

	h.bus.BroadcastRoom(code, "quiz:generating", map[string]any{"category": category})

	questions, err := h.pipeline.Fetch(ctx, quiz.FetchRequest{
		Category:   category,
		Difficulty: difficulty,
		Count:      count,
		TimeLimit:  timeLimit,
		ExcludeIDs: exclude,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("room", code).Str("category", category).Msg("question fetch degraded")
	}
	if len(questions) == 0 {
		h.bus.BroadcastRoom(code, "quiz:error", map[string]any{"error": "Failed to generate questions"})
		ack(bus.AckError("Failed to generate questions"))
		return
	}

	unlock = h.locks.lock(code)
	defer unlock()
	_, err = h.store.Update(ctx, code, func(r *game.Room) error {
		if r.Phase != game.PhaseLobby {
			return game.ErrGameInProgress
		}
		r.Settings.Category = category
		r.SetQuestions(questions)
		return nil
	})
	if err != nil {
		h.ackFailure(ack, err, "Failed to generate questions")
		return
	}

	h.log.Info().Str("room", code).Str("category", category).Int("count", len(questions)).Msg("questions loaded")
	h.bus.BroadcastRoom(code, "quiz:generated", map[string]any{
		"questionCount": len(questions),
		"category":      category,
	})
	ack(bus.AckSuccess(map[string]any{"questions": len(questions)}))
}

type selectCategoryPayload struct {
	RoomCode     string `json:"roomCode"`
	CategoryID   string `json:"categoryId"`
	CategoryName string `json:"categoryName"`
}

// selectCategory records the host's category pick and mirrors it to players.
func (h *Handler) selectCategory(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req selectCategoryPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can select a category"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}
	if req.CategoryName == "" {
		ack(bus.AckError("Invalid category"))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	_, err := h.store.Update(ctx, code, func(r *game.Room) error {
		r.Settings.Category = req.CategoryName
		return nil
	})
	if err != nil {
		h.ackFailure(ack, err, "Failed to select category")
		return
	}

	h.bus.BroadcastRoom(code, "quiz:category-selected", map[string]any{
		"categoryId":   req.CategoryID,
		"categoryName": req.CategoryName,
	})
	ack(bus.AckSuccess(nil))
}

type setOptionsPayload struct {
	RoomCode      string  `json:"roomCode"`
	QuestionCount *int    `json:"questionCount"`
	TimeLimit     *int    `json:"timeLimit"`
	Difficulty    *string `json:"difficulty"`
}

// setOptions is the quiz-scoped settings patch: count, time limit and
// difficulty only.
func (h *Handler) setOptions(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req setOptionsPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can set quiz options"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}

	patch := game.SettingsPatch{
		QuestionCount: req.QuestionCount,
		TimeLimit:     req.TimeLimit,
		Difficulty:    req.Difficulty,
	}
	if err := game.ValidateSettingsPatch(patch); err != nil {
		ack(bus.AckError(err.Error()))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		r.Settings.Apply(patch)
		return nil
	})
	if err != nil {
		h.ackFailure(ack, err, "Failed to set quiz options")
		return
	}

	h.bus.BroadcastRoom(code, "room:settings-updated", map[string]any{"settings": room.Settings})
	ack(bus.AckSuccess(map[string]any{"settings": room.Settings}))
}
