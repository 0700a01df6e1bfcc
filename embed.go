package quizcast

import (
	_ "embed"
)

// Starter question pack served when no database is configured.
//
//go:embed static/questions.json
var StarterQuestionsJSON []byte
