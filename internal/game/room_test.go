package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() RoomSettings {
	return RoomSettings{
		QuestionCount: 10,
		TimeLimit:     20,
		Difficulty:    DifficultyMixed,
		MaxPlayers:    8,
		MinPlayers:    2,
	}
}

func TestAddPlayer(t *testing.T) {
	room := NewRoom("ABC234", "host-1", "Host", testSettings())

	err := room.AddPlayer(NewPlayer("p1", "Alice", "🦊"))
	require.NoError(t, err)
	assert.Len(t, room.Players, 1)
	assert.True(t, room.Players[0].IsConnected)
}

func TestAddPlayerDuplicateNameCaseInsensitive(t *testing.T) {
	room := NewRoom("ABC234", "host-1", "Host", testSettings())
	require.NoError(t, room.AddPlayer(NewPlayer("p1", "Alice", "🦊")))

	err := room.AddPlayer(NewPlayer("p2", "ALICE", "🐼"))
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.Len(t, room.Players, 1)
}

func TestAddPlayerRoomFull(t *testing.T) {
	s := testSettings()
	s.MaxPlayers = 2
	room := NewRoom("ABC234", "host-1", "Host", s)
	require.NoError(t, room.AddPlayer(NewPlayer("p1", "One", "🦊")))
	require.NoError(t, room.AddPlayer(NewPlayer("p2", "Two", "🐼")))

	err := room.AddPlayer(NewPlayer("p3", "Three", "🐸"))
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Len(t, room.Players, 2)
}

func TestRemovePlayer(t *testing.T) {
	room := NewRoom("ABC234", "host-1", "Host", testSettings())
	require.NoError(t, room.AddPlayer(NewPlayer("p1", "Alice", "🦊")))
	require.NoError(t, room.AddPlayer(NewPlayer("p2", "Bob", "🐼")))

	removed := room.RemovePlayer("p1")
	require.NotNil(t, removed)
	assert.Equal(t, "Alice", removed.Name)
	assert.Len(t, room.Players, 1)
	assert.Nil(t, room.RemovePlayer("p1"))
}

func TestRebindPlayerReKeysAnswers(t *testing.T) {
	room := NewRoom("ABC234", "host-1", "Host", testSettings())
	require.NoError(t, room.AddPlayer(NewPlayer("old-id", "Alice", "🦊")))
	require.NoError(t, room.RecordAnswer(Answer{PlayerID: "old-id", QuestionIndex: 0, Answer: "B", TimeElapsed: 900}))

	p := room.RebindPlayer("old-id", "new-id")
	require.NotNil(t, p)
	assert.Equal(t, "new-id", p.ID)
	assert.True(t, p.IsConnected)

	answers := room.AnswersForQuestion(0)
	require.Len(t, answers, 1)
	assert.Equal(t, "new-id", answers[0].PlayerID)

	// The rebound player still counts as answered.
	err := room.RecordAnswer(Answer{PlayerID: "new-id", QuestionIndex: 0, Answer: "A"})
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
}

func TestRecordAnswerDuplicate(t *testing.T) {
	room := NewRoom("ABC234", "host-1", "Host", testSettings())
	require.NoError(t, room.RecordAnswer(Answer{PlayerID: "p1", QuestionIndex: 0, Answer: "A"}))

	err := room.RecordAnswer(Answer{PlayerID: "p1", QuestionIndex: 0, Answer: "B"})
	assert.ErrorIs(t, err, ErrAlreadyAnswered)

	answers := room.AnswersForQuestion(0)
	require.Len(t, answers, 1)
	assert.Equal(t, "A", answers[0].Answer, "first submission wins")
}

func TestAllConnectedReady(t *testing.T) {
	room := NewRoom("ABC234", "host-1", "Host", testSettings())
	assert.False(t, room.AllConnectedReady(), "empty room is not ready")

	a := NewPlayer("p1", "Alice", "🦊")
	b := NewPlayer("p2", "Bob", "🐼")
	require.NoError(t, room.AddPlayer(a))
	require.NoError(t, room.AddPlayer(b))

	a.IsReady = true
	assert.False(t, room.AllConnectedReady())

	b.IsReady = true
	assert.True(t, room.AllConnectedReady())

	// Disconnected players do not block readiness.
	b.IsReady = false
	b.IsConnected = false
	assert.True(t, room.AllConnectedReady())
}

func TestEffectiveTimeLimit(t *testing.T) {
	room := NewRoom("ABC234", "host-1", "Host", testSettings())
	assert.Equal(t, 20, room.EffectiveTimeLimit(&Question{}))
	assert.Equal(t, 15, room.EffectiveTimeLimit(&Question{TimeLimit: 15}))
	assert.Equal(t, 20, room.EffectiveTimeLimit(nil))
}

func TestResetForRestart(t *testing.T) {
	room := NewRoom("ABC234", "host-1", "Host", testSettings())
	a := NewPlayer("p1", "Alice", "🦊")
	a.Score = 2400
	a.Streak = 3
	a.IsReady = true
	require.NoError(t, room.AddPlayer(a))

	room.SetQuestions([]Question{{ID: "q1"}, {ID: "q2"}})
	room.Phase = PhaseFinal
	room.CurrentQuestionIndex = 2
	room.QuestionStartTime = 123456
	require.NoError(t, room.RecordAnswer(Answer{PlayerID: "p1", QuestionIndex: 1, Answer: "A"}))

	room.ResetForRestart()

	assert.Equal(t, PhaseLobby, room.Phase)
	assert.Zero(t, a.Score)
	assert.Zero(t, a.Streak)
	assert.False(t, a.IsReady)
	assert.Empty(t, room.Questions)
	assert.Empty(t, room.CurrentAnswers)
	assert.Zero(t, room.CurrentQuestionIndex)
	assert.Zero(t, room.QuestionStartTime)
	assert.Len(t, room.Players, 1, "players survive a restart")
	assert.Equal(t, []string{"q1", "q2"}, room.UsedQuestionIDs, "used ids survive for exclusion")
}

func TestViewHidesQuestionBodies(t *testing.T) {
	room := NewRoom("ABC234", "host-1", "Host", testSettings())
	room.SetQuestions([]Question{{ID: "q1", Text: "secret", CorrectAnswer: "A"}})

	view := room.View()
	assert.Equal(t, 1, view.QuestionCount)
	assert.Equal(t, "ABC234", view.Code)
	// RoomView has no questions field at all; nothing to leak.
}

func TestSettingsApply(t *testing.T) {
	s := testSettings()
	count := 15
	diff := DifficultyHard
	s.Apply(SettingsPatch{QuestionCount: &count, Difficulty: &diff})

	assert.Equal(t, 15, s.QuestionCount)
	assert.Equal(t, DifficultyHard, s.Difficulty)
	assert.Equal(t, 20, s.TimeLimit, "unset fields stay")
}
