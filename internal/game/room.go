package game

import (
	"fmt"
	"strings"
	"time"
)

// Phase represents the current state of a room's game state machine
type Phase string

const (
	PhaseLobby       Phase = "lobby"
	PhaseStarting    Phase = "starting"
	PhaseQuestion    Phase = "question"
	PhaseReveal      Phase = "reveal"
	PhaseLeaderboard Phase = "leaderboard"
	PhasePaused      Phase = "paused"
	PhaseFinal       Phase = "final"
)

// Room is the aggregate for one game instance. It is stored as a serialized
// record in the room cache; all mutation happens under the store's per-code
// lock, so the struct itself carries no locking.
type Room struct {
	Code                 string            `json:"code"`
	HostID               string            `json:"hostId"`
	HostName             string            `json:"hostName,omitempty"`
	Phase                Phase             `json:"phase"`
	Players              []*Player         `json:"players"`
	Questions            []Question        `json:"questions"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	CurrentAnswers       map[string]Answer `json:"currentAnswers"`
	QuestionStartTime    int64             `json:"questionStartTime,omitempty"` // unix ms; zero outside the question phase
	Settings             RoomSettings      `json:"settings"`
	UsedQuestionIDs      []string          `json:"usedQuestionIds,omitempty"`
	PausedPhase          Phase             `json:"pausedPhase,omitempty"`
	SessionID            string            `json:"sessionId,omitempty"`
	Version              int64             `json:"version"`
	CreatedAt            time.Time         `json:"createdAt"`
}

// NewRoom creates a room in the lobby phase with the given settings.
func NewRoom(code, hostID, hostName string, settings RoomSettings) *Room {
	return &Room{
		Code:           code,
		HostID:         hostID,
		HostName:       hostName,
		Phase:          PhaseLobby,
		Players:        make([]*Player, 0),
		CurrentAnswers: make(map[string]Answer),
		Settings:       settings,
		CreatedAt:      time.Now(),
	}
}

// AnswerKey builds the currentAnswers map key for one (player, question) pair.
func AnswerKey(playerID string, questionIndex int) string {
	return fmt.Sprintf("%s:%d", playerID, questionIndex)
}

// AddPlayer appends a player, enforcing capacity and case-insensitive name
// uniqueness.
func (r *Room) AddPlayer(p *Player) error {
	if len(r.Players) >= r.Settings.MaxPlayers {
		return ErrRoomFull
	}
	if r.FindPlayerByName(p.Name) != nil {
		return ErrNameTaken
	}
	r.Players = append(r.Players, p)
	return nil
}

// RemovePlayer deletes a player by id and returns the removed record, or nil.
func (r *Room) RemovePlayer(playerID string) *Player {
	for i, p := range r.Players {
		if p.ID == playerID {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return p
		}
	}
	return nil
}

// FindPlayer retrieves a player by id
func (r *Room) FindPlayer(playerID string) *Player {
	for _, p := range r.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// FindPlayerByName retrieves a player by case-insensitive name compare
func (r *Room) FindPlayerByName(name string) *Player {
	for _, p := range r.Players {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// RebindPlayer moves a player to a new connection id, re-keying any answers
// recorded under the old id so question resolution still matches them.
func (r *Room) RebindPlayer(oldID, newID string) *Player {
	p := r.FindPlayer(oldID)
	if p == nil {
		return nil
	}
	p.ID = newID
	p.IsConnected = true
	for key, a := range r.CurrentAnswers {
		if a.PlayerID == oldID {
			delete(r.CurrentAnswers, key)
			a.PlayerID = newID
			r.CurrentAnswers[AnswerKey(newID, a.QuestionIndex)] = a
		}
	}
	return p
}

// ConnectedPlayers returns players with a live connection, in join order.
func (r *Room) ConnectedPlayers() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.IsConnected {
			out = append(out, p)
		}
	}
	return out
}

// ConnectedCount returns the number of connected players
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.IsConnected {
			n++
		}
	}
	return n
}

// AllConnectedReady reports whether every connected player flagged ready.
// False when nobody is connected.
func (r *Room) AllConnectedReady() bool {
	any := false
	for _, p := range r.Players {
		if !p.IsConnected {
			continue
		}
		any = true
		if !p.IsReady {
			return false
		}
	}
	return any
}

// RecordAnswer stores an answer, rejecting duplicates per (player, question).
func (r *Room) RecordAnswer(a Answer) error {
	key := AnswerKey(a.PlayerID, a.QuestionIndex)
	if _, exists := r.CurrentAnswers[key]; exists {
		return ErrAlreadyAnswered
	}
	r.CurrentAnswers[key] = a
	return nil
}

// AnswersForQuestion snapshots the answers recorded for one question index.
func (r *Room) AnswersForQuestion(questionIndex int) []Answer {
	out := make([]Answer, 0, len(r.CurrentAnswers))
	for _, a := range r.CurrentAnswers {
		if a.QuestionIndex == questionIndex {
			out = append(out, a)
		}
	}
	return out
}

// AnswerCount counts answers recorded for one question index
func (r *Room) AnswerCount(questionIndex int) int {
	n := 0
	for _, a := range r.CurrentAnswers {
		if a.QuestionIndex == questionIndex {
			n++
		}
	}
	return n
}

// ConnectedAnswered counts connected players holding an answer for the
// question. Answers from players who have since dropped are excluded, so the
// all-answered check only waits on people still in the room.
func (r *Room) ConnectedAnswered(questionIndex int) int {
	n := 0
	for _, p := range r.Players {
		if !p.IsConnected {
			continue
		}
		if _, ok := r.CurrentAnswers[AnswerKey(p.ID, questionIndex)]; ok {
			n++
		}
	}
	return n
}

// CurrentQuestion returns the active question, or nil when the index is out
// of range.
func (r *Room) CurrentQuestion() *Question {
	if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Questions) {
		return nil
	}
	return &r.Questions[r.CurrentQuestionIndex]
}

// EffectiveTimeLimit resolves a question's time limit, falling back to the
// room settings when the question does not carry its own.
func (r *Room) EffectiveTimeLimit(q *Question) int {
	if q != nil && q.TimeLimit > 0 {
		return q.TimeLimit
	}
	return r.Settings.TimeLimit
}

// SetQuestions installs the question list for the next game and remembers the
// ids so later catalog fetches can exclude them.
func (r *Room) SetQuestions(qs []Question) {
	r.Questions = qs
	r.CurrentQuestionIndex = 0
	for _, q := range qs {
		if q.ID != "" {
			r.UsedQuestionIDs = append(r.UsedQuestionIDs, q.ID)
		}
	}
}

// ResetForRestart returns the room to the lobby: scores and streaks zeroed,
// questions and answers cleared, players kept. Used question ids are kept so
// a rematch draws fresh material.
func (r *Room) ResetForRestart() {
	for _, p := range r.Players {
		p.Score = 0
		p.Streak = 0
		p.IsReady = false
	}
	r.Questions = nil
	r.CurrentAnswers = make(map[string]Answer)
	r.CurrentQuestionIndex = 0
	r.QuestionStartTime = 0
	r.PausedPhase = ""
	r.Phase = PhaseLobby
}

// RoomView is the client-facing shape of a room. Question bodies are never
// included; they reach clients only through the question and reveal events.
type RoomView struct {
	Code                 string       `json:"code"`
	Phase                Phase        `json:"phase"`
	HostName             string       `json:"hostName,omitempty"`
	Players              []*Player    `json:"players"`
	Settings             RoomSettings `json:"settings"`
	QuestionCount        int          `json:"questionCount"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	CreatedAt            time.Time    `json:"createdAt"`
}

// View builds the client-facing projection of the room.
func (r *Room) View() RoomView {
	return RoomView{
		Code:                 r.Code,
		Phase:                r.Phase,
		HostName:             r.HostName,
		Players:              r.Players,
		Settings:             r.Settings,
		QuestionCount:        len(r.Questions),
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		CreatedAt:            r.CreatedAt,
	}
}
