// Package catalog persists the question bank and finished-session history.
// It sits off the hot path: the engine reads questions once per game setup
// and writes session records best-effort.
package catalog

import (
	"context"
	"errors"
	"time"

	"quizcast/internal/game"
)

// ErrNoQuestions indicates the catalog holds nothing matching the filters.
var ErrNoQuestions = errors.New("no questions available")

// Catalog is the read/write question bank.
type Catalog interface {
	// LeastUsed returns up to limit questions matching category and
	// difficulty, ordered by ascending times-asked counter, skipping
	// excludeIDs. Empty category matches all categories; empty or "mixed"
	// difficulty matches all difficulties.
	LeastUsed(ctx context.Context, category, difficulty string, limit int, excludeIDs []string) ([]game.Question, error)

	// RecordAsked bumps the times-asked counter for the given ids.
	RecordAsked(ctx context.Context, ids []string) error

	// SaveGenerated persists provider output. Duplicate ids are swallowed.
	SaveGenerated(ctx context.Context, questions []game.Question) error
}

// SessionRecord describes one hosted game.
type SessionRecord struct {
	RoomCode      string
	HostName      string
	Category      string
	QuestionCount int
	PlayerCount   int
	StartedAt     time.Time
}

// PlayerOutcome is one player's final standing within a session.
type PlayerOutcome struct {
	PlayerName     string
	FinalScore     int
	FinalRank      int
	TotalQuestions int
}

// Archive records session starts and ends. Implementations must tolerate
// being called concurrently for different rooms; failures are logged by the
// caller and never interrupt gameplay.
type Archive interface {
	// SessionStarted returns an opaque session reference used by SessionEnded.
	SessionStarted(ctx context.Context, rec SessionRecord) (string, error)
	SessionEnded(ctx context.Context, sessionID string, endedAt time.Time, outcomes []PlayerOutcome) error
}

// NoopArchive satisfies Archive when no database is configured.
type NoopArchive struct{}

func (NoopArchive) SessionStarted(context.Context, SessionRecord) (string, error) {
	return "", nil
}

func (NoopArchive) SessionEnded(context.Context, string, time.Time, []PlayerOutcome) error {
	return nil
}
