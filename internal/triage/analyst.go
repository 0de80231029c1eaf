package triage

import (
	"context"
	"errors"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/aegis/internal/llm"
)

// Analyst drives the primary/fallback model sequence for one prompt and
// parses the free-form output into a structured analysis.
type Analyst struct {
	provider llm.Provider
	models   ModelSelection
	logger   log.Logger
	hooks    Hooks
}

// NewAnalyst creates an analysis client over the given provider.
func NewAnalyst(provider llm.Provider, models ModelSelection, logger log.Logger, hooks Hooks) *Analyst {
	if logger == nil {
		logger = log.Nop()
	}
	return &Analyst{
		provider: provider,
		models:   models,
		logger:   logger,
		hooks:    hooks,
	}
}

// Models returns the immutable model selection.
func (a *Analyst) Models() ModelSelection { return a.models }

// attemptOutcome is the typed result of one model attempt.
type attemptOutcome struct {
	parsed *ParsedAnalysis
	model  string
	err    error
}

func (o attemptOutcome) ok() bool { return o.err == nil }

// Analyze issues the primary model call under its timeout, falls back to the
// secondary model on error, timeout, or unparseable output, and returns the
// parsed analysis plus the model that produced it. When both attempts fail
// the joined error carries a *ParseError with any partial text obtained.
func (a *Analyst) Analyze(ctx context.Context, prompt string) (*ParsedAnalysis, string, error) {
	primary := a.attempt(ctx, a.models.Primary, a.models.PrimaryTimeout, prompt)
	if primary.ok() {
		return primary.parsed, primary.model, nil
	}

	a.logger.Warn(ctx, "primary model failed, trying fallback",
		"primary", a.models.Primary,
		"fallback", a.models.Fallback,
		"error", primary.err,
	)
	a.hooks.fallback()

	fallback := a.attempt(ctx, a.models.Fallback, a.models.FallbackTimeout, prompt)
	if fallback.ok() {
		return fallback.parsed, fallback.model, nil
	}

	return nil, "", errors.Join(primary.err, fallback.err)
}

// attempt performs one generate-and-parse round against a single model under
// its own deadline.
func (a *Analyst) attempt(ctx context.Context, model string, timeout time.Duration, prompt string) attemptOutcome {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.provider.Generate(callCtx, model, prompt)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		dep := classifyDependency("llm", err)
		a.hooks.llmCall(model, string(dep.Kind), elapsed)
		return attemptOutcome{model: model, err: dep}
	}

	parsed, perr := ParseAnalysis(model, raw)
	if perr != nil {
		a.hooks.llmCall(model, "parse_error", elapsed)
		return attemptOutcome{model: model, err: perr}
	}

	a.hooks.llmCall(model, "ok", elapsed)
	return attemptOutcome{parsed: parsed, model: model}
}
