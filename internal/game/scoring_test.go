package game

import (
	"testing"
)

func TestPointsFor(t *testing.T) {
	tests := []struct {
		name        string
		correct     bool
		elapsedMs   int64
		timeLimit   int
		priorStreak int
		want        int
	}{
		{"wrong answer earns nothing", false, 1000, 20, 5, 0},
		{"correct at 1s of 20s", true, 1000, 20, 0, 1475},
		{"correct at half time", true, 10000, 20, 0, 1250},
		{"correct at the buzzer", true, 20000, 20, 0, 1000},
		{"correct past the window clamps to base", true, 25000, 20, 0, 1000},
		{"instant answer takes the full bonus", true, 0, 20, 0, 1500},
		{"streak adds steps", true, 20000, 20, 3, 1300},
		{"streak bonus caps at 500", true, 20000, 20, 9, 1500},
		{"streak cap boundary", true, 20000, 20, 5, 1500},
		{"short window", true, 2500, 5, 0, 1250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PointsFor(tt.correct, tt.elapsedMs, tt.timeLimit, tt.priorStreak)
			if got != tt.want {
				t.Errorf("PointsFor(%v, %d, %d, %d) = %d, want %d",
					tt.correct, tt.elapsedMs, tt.timeLimit, tt.priorStreak, got, tt.want)
			}
		})
	}
}

func TestPointsForFloorIsExact(t *testing.T) {
	// 19s remaining of 20s: floor(1000 * 0.95 * 0.5) must be 475, not 474.
	got := PointsFor(true, 1000, 20, 0)
	if got != 1475 {
		t.Fatalf("expected 1475, got %d", got)
	}
}

func TestComputeResults(t *testing.T) {
	q := Question{
		ID:            "q1",
		Text:          "Q1",
		Options:       map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"},
		CorrectAnswer: "B",
	}
	alice := &Player{ID: "p-alice", Name: "Alice", Avatar: "🦊"}
	bob := &Player{ID: "p-bob", Name: "Bob", Avatar: "🐼"}

	answers := []Answer{
		{PlayerID: "p-alice", QuestionIndex: 0, Answer: "B", TimeElapsed: 1000},
		{PlayerID: "p-bob", QuestionIndex: 0, Answer: "A", TimeElapsed: 2000},
	}

	results := ComputeResults([]*Player{alice, bob}, q, 20, answers)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if results[0].PlayerID != "p-alice" {
		t.Errorf("expected Alice first, got %s", results[0].PlayerID)
	}
	if !results[0].IsCorrect || results[0].PointsEarned != 1475 {
		t.Errorf("Alice: correct=%v points=%d, want correct 1475", results[0].IsCorrect, results[0].PointsEarned)
	}
	if results[0].NewScore != 1475 || results[0].Streak != 1 {
		t.Errorf("Alice: newScore=%d streak=%d, want 1475/1", results[0].NewScore, results[0].Streak)
	}

	if results[1].PlayerID != "p-bob" {
		t.Errorf("expected Bob second, got %s", results[1].PlayerID)
	}
	if results[1].IsCorrect || results[1].PointsEarned != 0 || results[1].Streak != 0 {
		t.Errorf("Bob: correct=%v points=%d streak=%d, want wrong/0/0",
			results[1].IsCorrect, results[1].PointsEarned, results[1].Streak)
	}
}

func TestComputeResultsNoAnswer(t *testing.T) {
	q := Question{CorrectAnswer: "C", Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}}
	p1 := &Player{ID: "p1", Name: "One", Streak: 4}
	p2 := &Player{ID: "p2", Name: "Two"}

	results := ComputeResults([]*Player{p1, p2}, q, 10, nil)
	for _, r := range results {
		if r.Answer != nil {
			t.Errorf("player %s: expected nil answer", r.PlayerID)
		}
		if r.IsCorrect || r.PointsEarned != 0 {
			t.Errorf("player %s: expected zero points", r.PlayerID)
		}
		if r.Streak != 0 {
			t.Errorf("player %s: streak should reset to 0, got %d", r.PlayerID, r.Streak)
		}
		if r.TimeElapsed != 10000 {
			t.Errorf("player %s: missing answers carry the full window, got %d", r.PlayerID, r.TimeElapsed)
		}
	}
}

func TestComputeResultsTieBreaksOnTime(t *testing.T) {
	q := Question{CorrectAnswer: "A", Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}}
	slow := &Player{ID: "slow", Name: "Slow"}
	fast := &Player{ID: "fast", Name: "Fast"}

	// Same points (both clamp to base at/after the buzzer), faster first.
	answers := []Answer{
		{PlayerID: "slow", QuestionIndex: 0, Answer: "A", TimeElapsed: 20000},
		{PlayerID: "fast", QuestionIndex: 0, Answer: "A", TimeElapsed: 19999},
	}
	results := ComputeResults([]*Player{slow, fast}, q, 20, answers)
	if results[0].PlayerID != "fast" {
		t.Errorf("expected fast to win the tie, got %s first", results[0].PlayerID)
	}

	winner := QuestionWinner(results)
	if winner == nil || winner.PlayerID != "fast" {
		t.Errorf("expected fast as question winner, got %+v", winner)
	}
}

func TestQuestionWinnerAbsent(t *testing.T) {
	q := Question{CorrectAnswer: "D", Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}}
	p := &Player{ID: "p1", Name: "One"}
	results := ComputeResults([]*Player{p}, q, 20, []Answer{
		{PlayerID: "p1", QuestionIndex: 0, Answer: "A", TimeElapsed: 500},
	})
	if w := QuestionWinner(results); w != nil {
		t.Errorf("expected no winner, got %+v", w)
	}
}

func TestRankLeaderboard(t *testing.T) {
	players := []*Player{
		{ID: "p1", Name: "Early", Score: 500},
		{ID: "p2", Name: "Top", Score: 900},
		{ID: "p3", Name: "Late", Score: 500},
		{ID: "p4", Name: "Zero", Score: 0},
	}

	entries := RankLeaderboard(players)

	wantOrder := []string{"p2", "p1", "p3", "p4"}
	wantRanks := []int{1, 2, 2, 3}
	for i, e := range entries {
		if e.PlayerID != wantOrder[i] {
			t.Errorf("position %d: got %s, want %s", i, e.PlayerID, wantOrder[i])
		}
		if e.Rank != wantRanks[i] {
			t.Errorf("position %d: rank %d, want %d", i, e.Rank, wantRanks[i])
		}
	}
}

func TestRankLeaderboardTieKeepsJoinOrder(t *testing.T) {
	players := []*Player{
		{ID: "p1", Name: "Zed", Score: 100},
		{ID: "p2", Name: "Ann", Score: 100},
	}
	entries := RankLeaderboard(players)
	if entries[0].PlayerID != "p1" {
		t.Errorf("join order should break the tie, got %s first", entries[0].PlayerID)
	}
	if entries[0].Rank != 1 || entries[1].Rank != 1 {
		t.Errorf("tied players share a rank: got %d and %d", entries[0].Rank, entries[1].Rank)
	}
}
