// Package analyzer scores resumes and verification answers with Gemini.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-screening-backend/internal/domain"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey      string
	Model       string
	Timeout     time.Duration // per call
	MaxRetries  int
	Temperature float32
}

// Gemini implements domain.Analyzer on the Gemini API.
type Gemini struct {
	generate func(ctx context.Context, prompt string) (string, error)
	cfg      Config
	log      *zap.Logger
}

var _ domain.Analyzer = (*Gemini)(nil)

func NewGemini(ctx context.Context, cfg Config, log *zap.Logger) (*Gemini, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = defaultModel
	}

	g := newGemini(cfg, log)
	g.generate = func(ctx context.Context, prompt string) (string, error) {
		temp := g.cfg.Temperature
		resp, err := client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature:      &temp,
			MaxOutputTokens:  4096,
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		if resp == nil {
			return "", errors.New("no response generated (nil response)")
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", errors.New("gemini api returned empty response")
		}
		return text, nil
	}
	return g, nil
}

func newGemini(cfg Config, log *zap.Logger) *Gemini {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gemini{cfg: cfg, log: log.Named("analyzer")}
}

func (g *Gemini) ExtractProfile(ctx context.Context, resumeText string) (*domain.Profile, error) {
	var out profileJSON
	if err := g.generateJSON(ctx, "extract_profile", profilePrompt(resumeText), &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (g *Gemini) Analyze(ctx context.Context, in domain.AnalyzeInput) (*domain.AnalyzerResult, error) {
	if in.Job == nil {
		return nil, errors.New("analyze: job is required")
	}
	var out analysisJSON
	if err := g.generateJSON(ctx, "analyze", analysisPrompt(in), &out); err != nil {
		return nil, err
	}
	return out.toDomain(in.Job), nil
}

func (g *Gemini) EvaluateResponse(ctx context.Context, job *domain.Job, q domain.VerixQuestion, answer string) (*domain.ResponseEvaluation, error) {
	var out evaluationJSON
	if err := g.generateJSON(ctx, "evaluate_response", evaluationPrompt(job, q, answer), &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

// generateJSON runs prompt with retries and decodes the reply into out. A
// reply that does not decode counts as a failed attempt.
func (g *Gemini) generateJSON(ctx context.Context, op, prompt string, out any) error {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		raw, err := g.generate(callCtx, prompt)
		cancel()
		if err == nil {
			if err = decodeJSON(raw, out); err == nil {
				return nil
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%s: context cancelled: %w", op, ctx.Err())
		}
		if attempt < g.cfg.MaxRetries {
			g.log.Warn("analyzer attempt failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context cancelled: %w", op, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, g.cfg.MaxRetries, lastErr)
}
