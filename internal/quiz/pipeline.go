package quiz

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"quizcast/internal/catalog"
	"quizcast/internal/game"
)

const defaultProviderTimeout = 30 * time.Second

// FetchRequest asks for Count questions for one game.
type FetchRequest struct {
	Category   string
	Difficulty string
	Count      int
	TimeLimit  int
	ExcludeIDs []string
}

// Pipeline sources questions from the catalog first and generates the
// shortfall. Degradation is silent: catalog or provider failures shrink the
// result instead of failing it, and the caller decides whether an empty
// result is fatal.
type Pipeline struct {
	catalog         catalog.Catalog
	provider        Provider
	providerTimeout time.Duration
	log             zerolog.Logger
}

// NewPipeline wires the pipeline. provider may be nil when no AI endpoint is
// configured; timeout <= 0 falls back to 30 s.
func NewPipeline(cat catalog.Catalog, provider Provider, timeout time.Duration, log zerolog.Logger) *Pipeline {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &Pipeline{
		catalog:         cat,
		provider:        provider,
		providerTimeout: timeout,
		log:             log.With().Str("component", "pipeline").Logger(),
	}
}

// Fetch returns up to req.Count questions. Cached questions are requested at
// twice the target so the shuffle has room to vary between games.
func (p *Pipeline) Fetch(ctx context.Context, req FetchRequest) ([]game.Question, error) {
	cached, err := p.catalog.LeastUsed(ctx, req.Category, req.Difficulty, 2*req.Count, req.ExcludeIDs)
	if err != nil {
		p.log.Warn().Err(err).Str("category", req.Category).Msg("catalog lookup failed")
		cached = nil
	}

	if len(cached) >= req.Count {
		rand.Shuffle(len(cached), func(i, j int) {
			cached[i], cached[j] = cached[j], cached[i]
		})
		picked := cached[:req.Count]
		ids := make([]string, len(picked))
		for i, q := range picked {
			ids[i] = q.ID
		}
		if err := p.catalog.RecordAsked(ctx, ids); err != nil {
			p.log.Warn().Err(err).Msg("failed to bump asked counters")
		}
		return picked, nil
	}

	need := req.Count - len(cached)
	generated := p.generate(ctx, req, need)
	if len(generated) > need {
		generated = generated[:need]
	}
	return append(cached, generated...), ctx.Err()
}

func (p *Pipeline) generate(ctx context.Context, req FetchRequest, need int) []game.Question {
	if p.provider == nil || need <= 0 {
		return nil
	}

	genCtx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	defer cancel()

	raw, err := p.provider.Generate(genCtx, GenerateRequest{
		Category:   req.Category,
		Difficulty: req.Difficulty,
		Count:      need,
		TimeLimit:  req.TimeLimit,
	})
	if err != nil {
		p.log.Warn().Err(err).Int("need", need).Msg("provider generation failed")
		return nil
	}

	questions, err := ExtractQuestions(raw)
	if err != nil {
		p.log.Warn().Err(err).Msg("provider output rejected")
		return nil
	}

	for i := range questions {
		if questions[i].Category == "" {
			questions[i].Category = req.Category
		}
		if questions[i].Difficulty == "" && req.Difficulty != game.DifficultyMixed {
			questions[i].Difficulty = req.Difficulty
		}
	}

	if err := p.catalog.SaveGenerated(ctx, questions); err != nil {
		p.log.Warn().Err(err).Msg("failed to persist generated questions")
	}
	p.log.Info().Int("generated", len(questions)).Str("category", req.Category).Msg("questions generated")
	return questions
}
