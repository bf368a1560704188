// Package ai generates pull request reviews with the Anthropic API. The
// review depth is tier-scoped: quick reviews run on the cheap model with a
// short prompt, deep reviews get the high-end model and a larger token
// budget.
package ai

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/reviewloop/reviewloop/internal/types"
)

// Model constants. Quick-tier reviews use the cost-efficient model; Haiku
// is roughly 80% cheaper than Sonnet and a 50-line diff does not need deep
// reasoning.
//
// Environment variable overrides:
// - REVIEWLOOP_MODEL_DEFAULT: model for standard/deep reviews
// - REVIEWLOOP_MODEL_QUICK: model for quick reviews
const (
	ModelSonnet = "claude-sonnet-4-5-20250929"
	ModelHaiku  = "claude-3-5-haiku-20241022"
)

// GetDefaultModel returns the model for standard and deep reviews
func GetDefaultModel() string {
	if model := os.Getenv("REVIEWLOOP_MODEL_DEFAULT"); model != "" {
		return model
	}
	return ModelSonnet
}

// GetQuickModel returns the model for quick reviews
func GetQuickModel() string {
	if model := os.Getenv("REVIEWLOOP_MODEL_QUICK"); model != "" {
		return model
	}
	return ModelHaiku
}

// maxTokensForTier bounds response length by review depth
func maxTokensForTier(tier types.Tier) int64 {
	switch tier {
	case types.TierQuick:
		return 1024
	case types.TierDeep:
		return 8192
	default:
		return 4096
	}
}

// Finding is one piece of review feedback tied to a file
type Finding struct {
	File     string `json:"file"`
	Severity string `json:"severity,omitempty"` // "issue" or "nit"
	Comment  string `json:"comment"`
}

// Result is the structured outcome of one review generation
type Result struct {
	Verdict  types.Verdict `json:"verdict"`
	Summary  string        `json:"summary"`
	Findings []Finding     `json:"findings,omitempty"`

	// Fallback is true when the model's output could not be parsed and
	// the summary carries the raw text instead
	Fallback bool `json:"-"`
}

// Config holds reviewer configuration
type Config struct {
	APIKey             string        // default: ANTHROPIC_API_KEY env var
	Model              string        // default: GetDefaultModel()
	QuickModel         string        // default: GetQuickModel()
	MaxConcurrentCalls int           // max in-flight API calls (default: 3, 0 = default)
	RequestsPerMinute  int           // API rate limit (default: 30, 0 = default)
	Timeout            time.Duration // per-request timeout (default: 120s)
}

// Reviewer generates reviews. Safe for concurrent use; a semaphore bounds
// in-flight API calls and a rate limiter smooths the request rate.
type Reviewer struct {
	client     *anthropic.Client
	model      string
	quickModel string
	sem        *semaphore.Weighted
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewReviewer creates a reviewer from config
func NewReviewer(cfg Config) (*Reviewer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}
	quickModel := cfg.QuickModel
	if quickModel == "" {
		quickModel = GetQuickModel()
	}

	maxConcurrent := cfg.MaxConcurrentCalls
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Reviewer{
		client:     &client,
		model:      model,
		quickModel: quickModel,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		timeout:    timeout,
	}, nil
}

// Review generates a tier-scoped review of the diff. Transport and API
// failures are returned as errors; malformed model output is not an error —
// it degrades to a fallback Result carrying the raw text, because a
// successful inference call is never discarded over formatting noise.
func (r *Reviewer) Review(ctx context.Context, item *types.WorkItem, tier types.Tier, diff string) (*Result, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire AI call slot: %w", err)
	}
	defer r.sem.Release(1)

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait interrupted: %w", err)
	}

	model := r.model
	if tier == types.TierQuick {
		model = r.quickModel
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokensForTier(tier),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildReviewPrompt(item, tier, diff))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	result, ok := parseResult(responseText)
	if !ok {
		fmt.Fprintf(os.Stderr, "warning: unparseable review for %s, using fallback (%d chars)\n",
			item.Locator, len(responseText))
		result = fallbackResult(responseText)
	}

	fmt.Printf("AI review for %s: tier=%s model=%s verdict=%s findings=%d duration=%v\n",
		item.Locator, tier, model, result.Verdict, len(result.Findings), time.Since(start))

	return result, nil
}
