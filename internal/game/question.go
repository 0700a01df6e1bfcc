package game

// AnswerOptions are the four admissible answer keys, in display order.
var AnswerOptions = []string{"A", "B", "C", "D"}

// Difficulty levels accepted by room settings and the catalog.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	DifficultyMixed  = "mixed"
)

// Question is one quiz question. CorrectAnswer must never reach a player
// before the reveal; use Sanitized for anything broadcast during play.
type Question struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correctAnswer"`
	TimeLimit     int               `json:"timeLimit,omitempty"`
	ImageURL      string            `json:"imageUrl,omitempty"`
	Category      string            `json:"category,omitempty"`
	Difficulty    string            `json:"difficulty,omitempty"`
}

// SanitizedQuestion is the broadcast shape of a question: no correct answer.
type SanitizedQuestion struct {
	Text      string            `json:"text"`
	Options   map[string]string `json:"options"`
	TimeLimit int               `json:"timeLimit,omitempty"`
	ImageURL  string            `json:"imageUrl,omitempty"`
}

// Sanitized strips the correct answer for broadcast during the question phase.
func (q Question) Sanitized() SanitizedQuestion {
	return SanitizedQuestion{
		Text:      q.Text,
		Options:   q.Options,
		TimeLimit: q.TimeLimit,
		ImageURL:  q.ImageURL,
	}
}

// Answer records one player's submission for one question.
type Answer struct {
	PlayerID      string `json:"playerId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	Timestamp     int64  `json:"timestamp,omitempty"` // client-reported, unix ms
	TimeElapsed   int64  `json:"timeElapsed"`         // server-computed from questionStartTime, ms
}

// RoomSettings shape the next game played in a room.
type RoomSettings struct {
	QuestionCount int    `json:"questionCount"`
	TimeLimit     int    `json:"timeLimit"`
	Difficulty    string `json:"difficulty"`
	Category      string `json:"category,omitempty"`
	MaxPlayers    int    `json:"maxPlayers"`
	MinPlayers    int    `json:"minPlayers"`
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	QuestionCount *int    `json:"questionCount,omitempty"`
	TimeLimit     *int    `json:"timeLimit,omitempty"`
	Difficulty    *string `json:"difficulty,omitempty"`
	Category      *string `json:"category,omitempty"`
	MaxPlayers    *int    `json:"maxPlayers,omitempty"`
	MinPlayers    *int    `json:"minPlayers,omitempty"`
}

// Apply shallow-merges a patch into the settings.
func (s *RoomSettings) Apply(p SettingsPatch) {
	if p.QuestionCount != nil {
		s.QuestionCount = *p.QuestionCount
	}
	if p.TimeLimit != nil {
		s.TimeLimit = *p.TimeLimit
	}
	if p.Difficulty != nil {
		s.Difficulty = *p.Difficulty
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.MaxPlayers != nil {
		s.MaxPlayers = *p.MaxPlayers
	}
	if p.MinPlayers != nil {
		s.MinPlayers = *p.MinPlayers
	}
}
