package quiz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodElement = `{
	"text": "What is the capital of France?",
	"options": {"A": "Paris", "B": "Lyon", "C": "Nice", "D": "Lille"},
	"correctAnswer": "A",
	"timeLimit": 20
}`

func TestExtractQuestionsFromChattyOutput(t *testing.T) {
	text := "Sure! Here are your questions:\n\n[" + goodElement + "]\n\nHave fun!"
	got, err := ExtractQuestions(text)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "What is the capital of France?", got[0].Text)
	assert.Equal(t, "A", got[0].CorrectAnswer)
	assert.Equal(t, 20, got[0].TimeLimit)
	assert.NotEmpty(t, got[0].ID)
}

func TestExtractQuestionsBracketInsideString(t *testing.T) {
	element := strings.Replace(goodElement, "Paris", `Paris [the city]`, 1)
	got, err := ExtractQuestions("answer below ] stray\n[" + element + "]")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Paris [the city]", got[0].Options["A"])
}

func TestExtractQuestionsSkipsNonArrayBrackets(t *testing.T) {
	text := "[note] the real payload follows: [" + goodElement + "]"
	got, err := ExtractQuestions(text)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestExtractQuestionsMarkdownFence(t *testing.T) {
	text := "```json\n[" + goodElement + "]\n```"
	got, err := ExtractQuestions(text)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestExtractQuestionsRejectsBadBatches(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no array", "I could not produce questions this time."},
		{"empty array", "[]"},
		{"missing text", `[{"options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"A"}]`},
		{"missing option", `[{"text":"q?","options":{"A":"a","B":"b","C":"c"},"correctAnswer":"A"}]`},
		{"bad answer", `[{"text":"q?","options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"E"}]`},
		{"time limit out of range", `[{"text":"q?","options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"A","timeLimit":300}]`},
		{"unbalanced", "[" + goodElement},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExtractQuestions(tc.text)
			assert.Error(t, err)
		})
	}
}

func TestExtractQuestionsOneBadElementRejectsAll(t *testing.T) {
	bad := `{"text":"q?","options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"Z"}`
	_, err := ExtractQuestions("[" + goodElement + "," + bad + "]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question 1")
}
