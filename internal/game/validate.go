package game

import (
	"errors"
	"regexp"
	"strings"
)

var (
	roomCodeRe   = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	playerNameRe = regexp.MustCompile(`^[A-Za-z0-9 ]{1,20}$`)
)

// Settings bounds enforced on every patch.
const (
	MinQuestionCount = 5
	MaxQuestionCount = 30
	MinTimeLimit     = 5
	MaxTimeLimit     = 60
	MinRoomCapacity  = 1
	MaxRoomCapacity  = 50
	MinMinPlayers    = 2
)

// ValidateRoomCode checks the 6-character room code shape.
func ValidateRoomCode(code string) error {
	if !roomCodeRe.MatchString(code) {
		return errors.New("Invalid room code")
	}
	return nil
}

// ValidatePlayerName checks length and character set of a player name.
func ValidatePlayerName(name string) error {
	if !playerNameRe.MatchString(name) {
		return errors.New("Invalid player name")
	}
	return nil
}

// ValidateAvatar checks membership in the avatar set. Empty is allowed; the
// pool assigns one on join.
func ValidateAvatar(avatar string) error {
	if avatar == "" {
		return nil
	}
	if !IsAvatar(avatar) {
		return errors.New("Invalid avatar")
	}
	return nil
}

// ValidateAnswerValue checks an answer key against {A, B, C, D}.
func ValidateAnswerValue(answer string) error {
	for _, v := range AnswerOptions {
		if v == answer {
			return nil
		}
	}
	return errors.New("Invalid answer")
}

// ValidateDifficulty checks the difficulty enum.
func ValidateDifficulty(d string) error {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyMixed:
		return nil
	}
	return errors.New("Invalid difficulty")
}

// ValidateJoin checks everything a join payload carries. All violations are
// reported in one concatenated message; nothing is mutated on failure.
func ValidateJoin(code, name, avatar string) error {
	var violations []string
	if err := ValidateRoomCode(code); err != nil {
		violations = append(violations, err.Error())
	}
	if err := ValidatePlayerName(name); err != nil {
		violations = append(violations, err.Error())
	}
	if err := ValidateAvatar(avatar); err != nil {
		violations = append(violations, err.Error())
	}
	return joined(violations)
}

// ValidateSettingsPatch bounds-checks every field present in a patch.
func ValidateSettingsPatch(p SettingsPatch) error {
	var violations []string
	if p.QuestionCount != nil && (*p.QuestionCount < MinQuestionCount || *p.QuestionCount > MaxQuestionCount) {
		violations = append(violations, "Invalid question count")
	}
	if p.TimeLimit != nil && (*p.TimeLimit < MinTimeLimit || *p.TimeLimit > MaxTimeLimit) {
		violations = append(violations, "Invalid time limit")
	}
	if p.Difficulty != nil {
		if err := ValidateDifficulty(*p.Difficulty); err != nil {
			violations = append(violations, err.Error())
		}
	}
	if p.MaxPlayers != nil && (*p.MaxPlayers < MinRoomCapacity || *p.MaxPlayers > MaxRoomCapacity) {
		violations = append(violations, "Invalid max players")
	}
	if p.MinPlayers != nil && *p.MinPlayers < MinMinPlayers {
		violations = append(violations, "Invalid min players")
	}
	return joined(violations)
}

func joined(violations []string) error {
	if len(violations) == 0 {
		return nil
	}
	return errors.New(strings.Join(violations, "; "))
}
