package game

import "sort"

// Scoring constants. The time bonus weight is 0.5, expressed as a divisor so
// the computation stays in integer math and the floor is exact.
const (
	BasePoints      = 1000
	StreakStep      = 100
	StreakCap       = 500
	timeMultDivisor = 2
)

// PointsFor computes the points one player earns on one question.
// elapsedMs past the window clamps the time bonus to zero; priorStreak is the
// streak before this question resolves.
func PointsFor(correct bool, elapsedMs int64, timeLimitSec int, priorStreak int) int {
	if !correct {
		return 0
	}
	total := int64(timeLimitSec) * 1000
	remaining := total - elapsedMs
	if remaining < 0 {
		remaining = 0
	}
	// timeBonus = floor(BASE * timeRatio * 0.5)
	timeBonus := int(int64(BasePoints) * remaining / (total * timeMultDivisor))
	streakBonus := priorStreak * StreakStep
	if streakBonus > StreakCap {
		streakBonus = StreakCap
	}
	return BasePoints + timeBonus + streakBonus
}

// QuestionResult is one player's outcome for one question.
type QuestionResult struct {
	PlayerID     string  `json:"playerId"`
	Name         string  `json:"name"`
	Avatar       string  `json:"avatar,omitempty"`
	Answer       *string `json:"answer"`
	IsCorrect    bool    `json:"isCorrect"`
	PointsEarned int     `json:"pointsEarned"`
	NewScore     int     `json:"newScore"`
	Streak       int     `json:"streak"`
	TimeElapsed  int64   `json:"timeElapsed"`
}

// ComputeResults scores one question for every player in the room. Players
// without an answer earn zero and carry the full window as their elapsed
// time, so they sort after real submissions at equal points. Results are
// ordered by points descending, ties by elapsed time ascending.
func ComputeResults(players []*Player, q Question, timeLimitSec int, answers []Answer) []QuestionResult {
	byPlayer := make(map[string]Answer, len(answers))
	for _, a := range answers {
		byPlayer[a.PlayerID] = a
	}

	windowMs := int64(timeLimitSec) * 1000
	results := make([]QuestionResult, 0, len(players))
	for _, p := range players {
		res := QuestionResult{
			PlayerID:    p.ID,
			Name:        p.Name,
			Avatar:      p.Avatar,
			TimeElapsed: windowMs,
		}
		if a, ok := byPlayer[p.ID]; ok {
			answer := a.Answer
			res.Answer = &answer
			res.IsCorrect = a.Answer == q.CorrectAnswer
			res.TimeElapsed = a.TimeElapsed
		}
		res.PointsEarned = PointsFor(res.IsCorrect, res.TimeElapsed, timeLimitSec, p.Streak)
		res.NewScore = p.Score + res.PointsEarned
		if res.IsCorrect {
			res.Streak = p.Streak + 1
		} else {
			res.Streak = 0
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].PointsEarned != results[j].PointsEarned {
			return results[i].PointsEarned > results[j].PointsEarned
		}
		return results[i].TimeElapsed < results[j].TimeElapsed
	})
	return results
}

// QuestionWinner picks the per-question winner from sorted results: the top
// correct result with positive points. Nil when nobody scored.
func QuestionWinner(results []QuestionResult) *QuestionResult {
	for i := range results {
		if results[i].IsCorrect && results[i].PointsEarned > 0 {
			return &results[i]
		}
	}
	return nil
}

// LeaderboardEntry is one ranked row of the standings.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// RankLeaderboard ranks players by score descending; ties break by join
// order, then name ascending. Ranks are dense: equal scores share a rank and
// the next distinct score takes the following one.
func RankLeaderboard(players []*Player) []LeaderboardEntry {
	type indexed struct {
		p     *Player
		order int
	}
	rows := make([]indexed, len(players))
	for i, p := range players {
		rows[i] = indexed{p: p, order: i}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].p.Score != rows[j].p.Score {
			return rows[i].p.Score > rows[j].p.Score
		}
		if rows[i].order != rows[j].order {
			return rows[i].order < rows[j].order
		}
		return rows[i].p.Name < rows[j].p.Name
	})

	entries := make([]LeaderboardEntry, 0, len(rows))
	rank := 0
	prevScore := 0
	for i, row := range rows {
		if i == 0 || row.p.Score != prevScore {
			rank++
			prevScore = row.p.Score
		}
		entries = append(entries, LeaderboardEntry{
			PlayerID: row.p.ID,
			Name:     row.p.Name,
			Avatar:   row.p.Avatar,
			Score:    row.p.Score,
			Rank:     rank,
		})
	}
	return entries
}
