// Package quiz assembles the question set for a game. It prefers the
// catalog and asks an AI provider only for the shortfall.
package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// GenerateRequest describes the questions wanted from a provider.
type GenerateRequest struct {
	Category   string
	Difficulty string
	Count      int
	TimeLimit  int
}

// Provider turns a request into freshly generated questions.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ProviderConfig points at any OpenAI-compatible chat completions endpoint.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIProvider speaks the chat completions wire format. The raw model
// output is returned as-is; parsing and validation happen in the pipeline.
type OpenAIProvider struct {
	cfg    ProviderConfig
	client *http.Client
	log    zerolog.Logger
}

func NewOpenAIProvider(cfg ProviderConfig, log zerolog.Logger) *OpenAIProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("component", "provider").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You write multiple-choice trivia questions. Reply with a JSON array only, no surrounding text."},
			{Role: "user", Content: buildPrompt(req)},
		},
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode provider request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	p.log.Debug().Str("model", p.cfg.Model).Int("count", req.Count).Msg("requesting questions")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode provider response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func buildPrompt(req GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d multiple-choice trivia questions", req.Count)
	if req.Category != "" {
		fmt.Fprintf(&b, " about %s", req.Category)
	}
	if req.Difficulty != "" && req.Difficulty != "mixed" {
		fmt.Fprintf(&b, " at %s difficulty", req.Difficulty)
	}
	b.WriteString(". Respond with a JSON array where each element has ")
	b.WriteString(`"text", "options" (an object with keys "A","B","C","D"), `)
	b.WriteString(`"correctAnswer" (one of "A","B","C","D")`)
	if req.TimeLimit > 0 {
		fmt.Fprintf(&b, `, and "timeLimit" (%d seconds)`, req.TimeLimit)
	}
	b.WriteString(". Vary which option is correct.")
	return b.String()
}
