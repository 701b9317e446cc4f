package gemini

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/akozyrev/hr-intake-bot/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	defaultMaxDelay   = 30 * time.Second
	defaultTimeout    = 30 * time.Second
)

type contentEmbedder interface {
	EmbedContent(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Provider implements embedding.Provider on top of the Gemini embedding API,
// adding per-request timeouts and retries with exponential backoff.
type Provider struct {
	embedder   contentEmbedder
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	timeout    time.Duration
	logger     *zap.Logger
}

func NewProvider(embedder contentEmbedder, maxRetries int, timeout time.Duration, logger *zap.Logger) *Provider {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Provider{
		embedder:   embedder,
		maxRetries: maxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
		timeout:    timeout,
		logger:     logger.With(zap.String("provider", "gemini"), zap.String("model", embedder.Model())),
	}
}

// Embed returns the vector for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text from a single backend call,
// retrying transient failures.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(p.baseDelay, p.maxDelay, attempt)
			p.logger.Debug("retrying embedding request",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", p.maxRetries),
				zap.Duration("delay", delay),
			)
			if err := utils.WaitFor(ctx, delay); err != nil {
				return nil, fmt.Errorf("waiting for retry: %w", err)
			}
		}

		vectors, err := p.embedder.EmbedContent(ctx, texts)
		if err == nil {
			return vectors, nil
		}

		lastErr = err
		if !retryable(err) {
			return nil, err
		}

		p.logger.Debug("retryable embedding error", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", p.maxRetries, lastErr)
}

// backoff computes the delay before the given retry attempt, doubling the
// base delay each time and capping it at max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}

func retryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "EOF")
}
