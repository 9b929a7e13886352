package planner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"ai-workout-planner/internal/llm"
	"ai-workout-planner/internal/logger"
	"ai-workout-planner/internal/rules"
	"ai-workout-planner/internal/shared"
	"ai-workout-planner/internal/workout"
)

// ErrExhausted is returned when every model failed.
var ErrExhausted = errors.New("all models failed")

const (
	DefaultMaxRetries     = 4
	DefaultBaseDelay      = 400 * time.Millisecond
	DefaultAttemptTimeout = 20 * time.Second

	maxJitterMs = 250
)

type Config struct {
	// Models are tried in order. Blanks and duplicates are dropped.
	Models         []string
	MaxRetries     int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

// Result is a generated plan plus the usage of the call that produced it.
type Result struct {
	Plan workout.Plan
	Meta shared.AgentMeta
}

// Generator asks generative models for a plan, retrying transient failures
// and falling back across models.
type Generator struct {
	factory  llm.ModelFactory
	cfg      Config
	log      *logger.Logger
	fallback func(workout.PlanSpec) workout.Plan
	sleep    func(context.Context, time.Duration) error
	jitter   func() time.Duration
}

type Option func(*Generator)

func WithLogger(log *logger.Logger) Option {
	return func(g *Generator) { g.log = log }
}

// WithFallback replaces the rule engine used when every model fails.
func WithFallback(fn func(workout.PlanSpec) workout.Plan) Option {
	return func(g *Generator) { g.fallback = fn }
}

// WithSleep replaces the backoff sleep. Tests use it to avoid waiting.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(g *Generator) { g.sleep = fn }
}

func WithJitter(fn func() time.Duration) Option {
	return func(g *Generator) { g.jitter = fn }
}

func NewGenerator(factory llm.ModelFactory, cfg Config, opts ...Option) *Generator {
	cfg.Models = dedupeModels(cfg.Models)
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	g := &Generator{
		factory:  factory,
		cfg:      cfg,
		log:      logger.Nop(),
		fallback: rules.Generate,
		sleep:    sleepCtx,
		jitter:   randomJitter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Models returns the effective model order.
func (g *Generator) Models() []string {
	return append([]string(nil), g.cfg.Models...)
}

// Generate never fails: when every model is exhausted it returns the rule
// engine's plan for spec.
func (g *Generator) Generate(ctx context.Context, spec workout.PlanSpec) Result {
	res, err := g.TryGenerate(ctx, spec)
	if err == nil {
		return res
	}
	g.log.Warn("generative models exhausted, using rules", "error", err)
	return Result{
		Plan: g.fallback(spec),
		Meta: shared.AgentMeta{AgentName: string(workout.SourceRules)},
	}
}

// TryGenerate walks the model list and returns the first plan that parses.
func (g *Generator) TryGenerate(ctx context.Context, spec workout.PlanSpec) (Result, error) {
	prompt, err := buildRequestPrompt(spec)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build prompt: %w", err)
	}

	var lastErr error
	for _, model := range g.cfg.Models {
		res, err := g.tryModel(ctx, model, prompt, spec)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrExhausted, ctx.Err())
		}
		lastErr = err
		g.log.Warn("model failed, trying next", "model", model, "error", err)
	}
	if lastErr == nil {
		return Result{}, fmt.Errorf("%w: no models configured", ErrExhausted)
	}
	return Result{}, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

func (g *Generator) tryModel(ctx context.Context, model, prompt string, spec workout.PlanSpec) (Result, error) {
	gen, err := g.factory.NewModel(ctx, model)
	if err != nil {
		return Result{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := BackoffDelay(g.cfg.BaseDelay, attempt-1, g.jitter())
			if err := g.sleep(ctx, delay); err != nil {
				return Result{}, err
			}
		}

		start := time.Now()
		resp, err := g.call(ctx, gen, prompt)
		if err != nil {
			lastErr = err
			if !llm.IsRetryable(err) || ctx.Err() != nil {
				return Result{}, err
			}
			g.log.Debug("retryable model error", "model", model, "attempt", attempt, "error", err)
			continue
		}

		plan, err := ParsePlan(resp.Content, spec)
		if err != nil {
			return Result{}, err
		}

		name := model
		retries := attempt - 1
		plan.Meta = workout.Meta{
			Source:  workout.SourceGenerative,
			Model:   &name,
			Retries: &retries,
		}
		usage := resp.Usage
		if usage.Model == "" {
			usage.Model = model
		}
		return Result{
			Plan: plan,
			Meta: shared.AgentMeta{
				AgentName: string(workout.SourceGenerative),
				Usage:     usage,
				Latency:   time.Since(start),
			},
		}, nil
	}
	return Result{}, lastErr
}

func (g *Generator) call(ctx context.Context, gen llm.TextGenerator, prompt string) (llm.ContentResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
	defer cancel()
	return gen.GenerateContent(attemptCtx, prompt)
}

// BackoffDelay is the wait before retry k (1-based): base doubled k-1 times
// plus jitter.
func BackoffDelay(base time.Duration, k int, jitter time.Duration) time.Duration {
	if k < 1 {
		k = 1
	}
	return base<<(k-1) + jitter
}

func randomJitter() time.Duration {
	return time.Duration(rand.IntN(maxJitterMs+1)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func dedupeModels(models []string) []string {
	seen := make(map[string]bool, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
