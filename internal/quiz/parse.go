package quiz

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"quizcast/internal/game"
)

type rawQuestion struct {
	Text          string            `json:"text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correctAnswer"`
	TimeLimit     int               `json:"timeLimit"`
	ImageURL      string            `json:"imageUrl"`
}

// ExtractQuestions pulls the first JSON array out of raw model output and
// validates every element. One bad element rejects the whole batch, so a
// partially hallucinated reply never reaches a game.
func ExtractQuestions(text string) ([]game.Question, error) {
	chunk, ok := firstJSONArray(text)
	if !ok {
		return nil, fmt.Errorf("no JSON array found in provider output")
	}

	var raws []rawQuestion
	if err := json.Unmarshal([]byte(chunk), &raws); err != nil {
		return nil, fmt.Errorf("failed to parse question array: %w", err)
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("provider output contained an empty array")
	}

	questions := make([]game.Question, 0, len(raws))
	for i, r := range raws {
		q, err := r.toQuestion()
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (r rawQuestion) toQuestion() (game.Question, error) {
	if strings.TrimSpace(r.Text) == "" {
		return game.Question{}, fmt.Errorf("missing text")
	}
	opts := make(map[string]string, len(game.AnswerOptions))
	for _, key := range game.AnswerOptions {
		v := strings.TrimSpace(r.Options[key])
		if v == "" {
			return game.Question{}, fmt.Errorf("missing option %s", key)
		}
		opts[key] = v
	}
	if err := game.ValidateAnswerValue(r.CorrectAnswer); err != nil {
		return game.Question{}, fmt.Errorf("bad correctAnswer %q", r.CorrectAnswer)
	}
	if r.TimeLimit != 0 && (r.TimeLimit < game.MinTimeLimit || r.TimeLimit > game.MaxTimeLimit) {
		return game.Question{}, fmt.Errorf("timeLimit %d out of range", r.TimeLimit)
	}
	return game.Question{
		ID:            uuid.NewString(),
		Text:          strings.TrimSpace(r.Text),
		Options:       opts,
		CorrectAnswer: r.CorrectAnswer,
		TimeLimit:     r.TimeLimit,
		ImageURL:      r.ImageURL,
	}, nil
}

// firstJSONArray scans for the first balanced bracketed chunk that parses as
// a JSON array. The scan is string-aware so brackets inside values do not
// truncate the chunk.
func firstJSONArray(s string) (string, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '[' {
			continue
		}
		if end, ok := matchBracket(s, start); ok {
			chunk := s[start : end+1]
			var probe []json.RawMessage
			if json.Unmarshal([]byte(chunk), &probe) == nil {
				return chunk, true
			}
		}
	}
	return "", false
}

func matchBracket(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
