package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"quizcast/internal/game"
)

type starterFile struct {
	Questions []game.Question `json:"questions"`
}

// MemoryCatalog is an in-process question bank seeded from a JSON pack.
// It backs the server when no database is configured.
type MemoryCatalog struct {
	mu        sync.Mutex
	questions []game.Question
	asked     map[string]int
	index     map[string]bool
}

// NewMemoryCatalog parses a starter pack of the shape {"questions":[...]}.
// Every entry must be a complete question; a bad entry fails the load so a
// broken pack is caught at startup rather than mid-game.
func NewMemoryCatalog(data []byte) (*MemoryCatalog, error) {
	var pack starterFile
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse question pack: %w", err)
	}

	c := &MemoryCatalog{
		asked: make(map[string]int),
		index: make(map[string]bool),
	}
	for i, q := range pack.Questions {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if err := validateQuestion(q); err != nil {
			return nil, fmt.Errorf("question %d in pack: %w", i, err)
		}
		if c.index[q.ID] {
			continue
		}
		c.index[q.ID] = true
		c.questions = append(c.questions, q)
	}
	if len(c.questions) == 0 {
		return nil, fmt.Errorf("question pack is empty")
	}
	return c, nil
}

func validateQuestion(q game.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("missing text")
	}
	for _, opt := range game.AnswerOptions {
		if strings.TrimSpace(q.Options[opt]) == "" {
			return fmt.Errorf("missing option %s", opt)
		}
	}
	if err := game.ValidateAnswerValue(q.CorrectAnswer); err != nil {
		return fmt.Errorf("bad correctAnswer %q", q.CorrectAnswer)
	}
	return nil
}

func (c *MemoryCatalog) LeastUsed(_ context.Context, category, difficulty string, limit int, excludeIDs []string) ([]game.Question, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	var matched []game.Question
	for _, q := range c.questions {
		if excluded[q.ID] || !matchCategory(q, category) || !matchDifficulty(q, difficulty) {
			continue
		}
		matched = append(matched, cloneQuestion(q))
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return c.asked[matched[i].ID] < c.asked[matched[j].ID]
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (c *MemoryCatalog) RecordAsked(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.asked[id]++
	}
	return nil
}

func (c *MemoryCatalog) SaveGenerated(_ context.Context, questions []game.Question) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range questions {
		if q.ID == "" || c.index[q.ID] {
			continue
		}
		c.index[q.ID] = true
		c.questions = append(c.questions, cloneQuestion(q))
	}
	return nil
}

// Size reports how many questions are loaded.
func (c *MemoryCatalog) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.questions)
}

func matchCategory(q game.Question, category string) bool {
	return category == "" || strings.EqualFold(q.Category, category)
}

func matchDifficulty(q game.Question, difficulty string) bool {
	return difficulty == "" || difficulty == game.DifficultyMixed ||
		strings.EqualFold(q.Difficulty, difficulty)
}

func cloneQuestion(q game.Question) game.Question {
	opts := make(map[string]string, len(q.Options))
	for k, v := range q.Options {
		opts[k] = v
	}
	q.Options = opts
	return q
}
