// Package matching ranks catalog vacancies against a candidate's free-text
// experience description using embedding cosine similarity.
package matching

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/akozyrev/hr-intake-bot/internal/catalog"
	"github.com/akozyrev/hr-intake-bot/internal/embedding"
	"github.com/akozyrev/hr-intake-bot/internal/logger"
	"go.uber.org/zap"
)

// MinSimilarity is the minimum acceptable compatibility between a candidate
// and a vacancy. It is a business rule, not a tunable.
const MinSimilarity = 0.40

const defaultTimeout = 30 * time.Second

// Result is one ranked vacancy. Results are recomputed on every match run
// and never persisted directly.
type Result struct {
	Title       string
	Salary      string
	Description string
	Score       float64
}

// Engine matches candidate descriptions against a fixed catalog. The catalog
// and provider are read-only after construction, so one Engine serves every
// conversation concurrently.
type Engine struct {
	provider embedding.Provider
	catalog  *catalog.Catalog
	timeout  time.Duration
	logger   *zap.Logger
}

func New(provider embedding.Provider, cat *catalog.Catalog, timeout time.Duration, logger *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Engine{
		provider: provider,
		catalog:  cat,
		timeout:  timeout,
		logger:   logger,
	}
}

// Match returns vacancies whose description scores at least MinSimilarity
// against text, sorted by score descending with catalog order breaking ties.
// Matching is best-effort: any provider failure yields an empty result, never
// an error. Salary is resolved for the given country, falling back to the
// catalog's default country.
func (e *Engine) Match(ctx context.Context, text, country string) []Result {
	if e.catalog.Len() == 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	candidate, err := e.provider.Embed(ctx, text)
	if err != nil {
		e.logger.Error("embedding candidate text failed",
			zap.Error(err),
			zap.String("text_preview", logger.TruncateForLog(text, 80)),
		)
		return nil
	}

	vectors, err := e.provider.EmbedBatch(ctx, e.catalog.Descriptions())
	if err != nil {
		e.logger.Error("embedding vacancy descriptions failed", zap.Error(err))
		return nil
	}

	if len(vectors) != e.catalog.Len() {
		e.logger.Error("embedding count mismatch",
			zap.Int("expected", e.catalog.Len()),
			zap.Int("got", len(vectors)),
		)
		return nil
	}

	results := make([]Result, 0, e.catalog.Len())
	for i, vacancy := range e.catalog.Items {
		score := embedding.Cosine(candidate, vectors[i])
		if score < MinSimilarity {
			continue
		}

		results = append(results, Result{
			Title:       vacancy.Title,
			Salary:      vacancy.SalaryFor(country, e.catalog.DefaultCountry),
			Description: vacancy.Description,
			Score:       score,
		})
	}

	// SliceStable keeps catalog order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	e.logger.Debug("matching completed",
		zap.Int("catalog_size", e.catalog.Len()),
		zap.Int("matched", len(results)),
		zap.String("country", country),
	)

	return results
}
