package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quizcast/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS questions (
	id             TEXT PRIMARY KEY,
	text           TEXT NOT NULL,
	option_a       TEXT NOT NULL,
	option_b       TEXT NOT NULL,
	option_c       TEXT NOT NULL,
	option_d       TEXT NOT NULL,
	correct_answer TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	difficulty     TEXT NOT NULL DEFAULT '',
	time_limit     INT  NOT NULL DEFAULT 0,
	image_url      TEXT NOT NULL DEFAULT '',
	times_asked    INT  NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS game_sessions (
	id             UUID PRIMARY KEY,
	room_code      TEXT NOT NULL,
	host_name      TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	question_count INT  NOT NULL,
	player_count   INT  NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	ended_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_players (
	session_id      UUID NOT NULL REFERENCES game_sessions(id) ON DELETE CASCADE,
	player_name     TEXT NOT NULL,
	final_score     INT  NOT NULL,
	final_rank      INT  NOT NULL,
	total_questions INT  NOT NULL,
	PRIMARY KEY (session_id, player_name)
);
`

// Postgres backs both the question bank and the session archive with a
// shared pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects and pings so a bad DSN fails at startup.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) LeastUsed(ctx context.Context, category, difficulty string, limit int, excludeIDs []string) ([]game.Question, error) {
	if excludeIDs == nil {
		excludeIDs = []string{}
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, text, option_a, option_b, option_c, option_d,
		       correct_answer, category, difficulty, time_limit, image_url
		FROM questions
		WHERE ($1 = '' OR lower(category) = lower($1))
		  AND ($2 = '' OR $2 = 'mixed' OR lower(difficulty) = lower($2))
		  AND NOT (id = ANY($3))
		ORDER BY times_asked ASC, id
		LIMIT $4`,
		category, difficulty, excludeIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var questions []game.Question
	for rows.Next() {
		var q game.Question
		var a, b, c, d string
		if err := rows.Scan(&q.ID, &q.Text, &a, &b, &c, &d,
			&q.CorrectAnswer, &q.Category, &q.Difficulty, &q.TimeLimit, &q.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.Options = map[string]string{"A": a, "B": b, "C": c, "D": d}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return questions, nil
}

func (p *Postgres) RecordAsked(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx,
		`UPDATE questions SET times_asked = times_asked + 1 WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to record asked questions: %w", err)
	}
	return nil
}

func (p *Postgres) SaveGenerated(ctx context.Context, questions []game.Question) error {
	if len(questions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, q := range questions {
		batch.Queue(`
			INSERT INTO questions
				(id, text, option_a, option_b, option_c, option_d,
				 correct_answer, category, difficulty, time_limit, image_url)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (id) DO NOTHING`,
			q.ID, q.Text, q.Options["A"], q.Options["B"], q.Options["C"], q.Options["D"],
			q.CorrectAnswer, q.Category, q.Difficulty, q.TimeLimit, q.ImageURL)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save generated questions: %w", err)
	}
	return nil
}

func (p *Postgres) SessionStarted(ctx context.Context, rec SessionRecord) (string, error) {
	id := uuid.NewString()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO game_sessions
			(id, room_code, host_name, category, question_count, player_count, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, rec.RoomCode, rec.HostName, rec.Category, rec.QuestionCount, rec.PlayerCount, rec.StartedAt)
	if err != nil {
		return "", fmt.Errorf("failed to record session start: %w", err)
	}
	return id, nil
}

func (p *Postgres) SessionEnded(ctx context.Context, sessionID string, endedAt time.Time, outcomes []PlayerOutcome) error {
	if sessionID == "" {
		return nil
	}
	if _, err := p.pool.Exec(ctx,
		`UPDATE game_sessions SET ended_at = $2 WHERE id = $1`, sessionID, endedAt); err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	if len(outcomes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, o := range outcomes {
		batch.Queue(`
			INSERT INTO session_players
				(session_id, player_name, final_score, final_rank, total_questions)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (session_id, player_name) DO UPDATE
				SET final_score = EXCLUDED.final_score,
				    final_rank  = EXCLUDED.final_rank`,
			sessionID, o.PlayerName, o.FinalScore, o.FinalRank, o.TotalQuestions)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to record player outcomes: %w", err)
	}
	return nil
}
