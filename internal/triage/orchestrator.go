package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/aegis/internal/alert"
	"github.com/linnemanlabs/aegis/internal/mlclient"
	"github.com/linnemanlabs/aegis/internal/ragclient"
)

// Confidence assigned when both model attempts fail and the result is
// assembled from the severity ordinal alone.
const degradedConfidence = 0.1

const maxMitreContextLen = 4000

// stage names the analysis state machine states, for logs.
type stage string

const (
	stageReceived    stage = "received"
	stageFeatures    stage = "feature_resolution"
	stageAnalysis    stage = "analysis"
	stageEnrichment  stage = "conditional_enrichment"
	stageAggregation stage = "aggregation"
)

// Classifier is the ML enrichment dependency. Always advisory: errors never
// fail the pipeline.
type Classifier interface {
	Predict(ctx context.Context, features []float64) (*mlclient.Verdict, error)
}

// Retriever is the knowledge-base retrieval dependency.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, minSimilarity float64) ([]ragclient.Passage, error)
}

// EnrichmentPolicy gates and parameterizes RAG retrieval.
type EnrichmentPolicy struct {
	// SeverityThreshold is the minimum severity ordinal that triggers
	// knowledge-base enrichment.
	SeverityThreshold int
	TopK              int
	MinSimilarity     float64
}

// Orchestrator drives one alert through feature resolution, LLM analysis,
// conditional enrichment, and aggregation. All fields are read-only after
// construction; concurrent Analyze calls share nothing mutable.
type Orchestrator struct {
	analyst    *Analyst
	classifier Classifier // nil = ML enrichment disabled
	retriever  Retriever  // nil = RAG enrichment disabled
	policy     EnrichmentPolicy
	logger     log.Logger
	hooks      Hooks
}

// NewOrchestrator creates an orchestrator. classifier and retriever may be
// nil to disable the corresponding enrichment.
func NewOrchestrator(analyst *Analyst, classifier Classifier, retriever Retriever, policy EnrichmentPolicy, logger log.Logger, hooks Hooks) *Orchestrator {
	if logger == nil {
		logger = log.Nop()
	}
	return &Orchestrator{
		analyst:    analyst,
		classifier: classifier,
		retriever:  retriever,
		policy:     policy,
		logger:     logger,
		hooks:      hooks,
	}
}

// Analyze produces an analysis result for one normalized alert. The only
// error it returns is a *alert.ValidationError for malformed input; every
// dependency failure is absorbed into a degraded result with explicit flags.
func (o *Orchestrator) Analyze(ctx context.Context, na *alert.NormalizedAlert) (*Result, error) {
	if err := na.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	L := o.logger.With("alert_id", na.ID, "severity", na.Severity)
	L.Info(ctx, "analysis started", "stage", stageReceived)

	verdict := o.resolveFeatures(ctx, L, na)
	parsed, model, analysisErr := o.runAnalysis(ctx, L, na, verdict)
	passages, ragApplied := o.enrich(ctx, L, na, parsed)

	result := o.aggregate(na, parsed, verdict, passages, model, analysisErr, ragApplied, start)

	outcome := "ok"
	if result.Degraded {
		outcome = "degraded"
	}
	o.hooks.analysis(outcome, result.Confidence, result.Duration)

	L.Info(ctx, "analysis complete",
		"stage", stageAggregation,
		"outcome", outcome,
		"severity", result.Severity,
		"category", result.Category,
		"confidence", result.Confidence,
		"true_positive", result.IsTruePositive,
		"ml_applied", result.MLVerdictApplied,
		"rag_applied", result.RAGApplied,
		"model", result.ModelUsed,
		"duration", result.Duration,
	)

	return result, nil
}

// resolveFeatures runs the optional ML classification. A caller-supplied
// vector of the expected length is used as-is; anything else is synthesized
// by the client and the verdict tagged synthetic.
func (o *Orchestrator) resolveFeatures(ctx context.Context, L log.Logger, na *alert.NormalizedAlert) *mlclient.Verdict {
	if o.classifier == nil {
		return nil
	}

	verdict, err := o.classifier.Predict(ctx, na.Features)
	if err != nil {
		dep := classifyDependency("ml", err)
		o.hooks.mlCall(string(dep.Kind), false)
		L.Warn(ctx, "ml enrichment unavailable", "stage", stageFeatures, "kind", dep.Kind, "error", err)
		return nil
	}

	o.hooks.mlCall("ok", verdict.Synthetic)
	L.Info(ctx, "ml verdict obtained",
		"stage", stageFeatures,
		"prediction", verdict.Label,
		"ml_confidence", verdict.Confidence,
		"synthetic", verdict.Synthetic,
	)
	return verdict
}

// runAnalysis delegates to the Analyst (primary then fallback). A non-nil
// error means both attempts failed and the result must degrade.
func (o *Orchestrator) runAnalysis(ctx context.Context, L log.Logger, na *alert.NormalizedAlert, verdict *mlclient.Verdict) (*ParsedAnalysis, string, error) {
	prompt := buildPrompt(na, verdict)
	parsed, model, err := o.analyst.Analyze(ctx, prompt)
	if err != nil {
		L.Warn(ctx, "all model attempts failed, degrading", "stage", stageAnalysis, "error", err)
		return nil, "", err
	}
	L.Info(ctx, "llm analysis parsed", "stage", stageAnalysis, "model", model)
	return parsed, model, nil
}

// enrich performs the severity-gated knowledge-base lookup. Failures are
// non-fatal; the result simply records rag_enrichment_applied=false.
func (o *Orchestrator) enrich(ctx context.Context, L log.Logger, na *alert.NormalizedAlert, parsed *ParsedAnalysis) ([]ragclient.Passage, bool) {
	if o.retriever == nil || na.Severity < o.policy.SeverityThreshold {
		return nil, false
	}

	passages, err := o.retriever.Retrieve(ctx, ragQuery(na, parsed), o.policy.TopK, o.policy.MinSimilarity)
	if err != nil {
		dep := classifyDependency("rag", err)
		o.hooks.ragCall(string(dep.Kind))
		L.Warn(ctx, "rag enrichment unavailable", "stage", stageEnrichment, "kind", dep.Kind, "error", err)
		return nil, false
	}

	o.hooks.ragCall("ok")
	L.Info(ctx, "rag passages retrieved", "stage", stageEnrichment, "count", len(passages))
	return passages, len(passages) > 0
}

// aggregate merges LLM fields, the ML verdict, and RAG context into the final
// immutable result.
func (o *Orchestrator) aggregate(na *alert.NormalizedAlert, parsed *ParsedAnalysis, verdict *mlclient.Verdict, passages []ragclient.Passage, model string, analysisErr error, ragApplied bool, start time.Time) *Result {
	r := &Result{
		AlertID:     na.ID,
		RAGApplied:  ragApplied,
		ModelUsed:   model,
		CreatedAt:   start,
		ProcessedAt: time.Now().UTC(),
	}

	if parsed != nil {
		r.Severity = parsed.Severity
		r.Category = parsed.Category
		r.Confidence = parsed.Confidence
		r.Summary = parsed.Summary
		r.Analysis = parsed.Analysis
		r.IsTruePositive = parsed.IsTruePositive
		r.Recommendations = parsed.Recommendations
		r.KBReferences = dedupe(na.MitreTechniques, parsed.MitreTechniques)
	} else {
		// Degraded path: the SOC still gets a triage signal, flagged so an
		// analyst knows no model verdict backs it.
		r.Degraded = true
		r.Severity = SeverityFromOrdinal(na.Severity)
		r.Category = CategoryAnomaly
		r.Confidence = degradedConfidence
		r.IsTruePositive = false
		r.Summary = fmt.Sprintf("Automated analysis unavailable for %q; manual review required.", na.Description)
		r.Recommendations = []Recommendation{{
			Action:    "Review alert manually",
			Priority:  1,
			Rationale: "LLM analysis failed on both primary and fallback models",
		}}
		r.KBReferences = dedupe(na.MitreTechniques, nil)
		r.Analysis = partialText(analysisErr)
	}

	if verdict != nil {
		r.MLVerdictApplied = true
		r.MLPrediction = verdict.Label
		r.MLConfidence = verdict.Confidence
		r.MLSynthetic = verdict.Synthetic
	}

	if len(passages) > 0 {
		r.MitreContext = joinPassages(passages)
		r.KBReferences = dedupe(r.KBReferences, techniqueIDs(passages))
	}

	r.Duration = time.Since(start).Seconds()
	return r
}

// partialText recovers whatever raw model output a failed analysis produced.
func partialText(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) && pe.Raw != "" {
		return "partial model output: " + truncate(pe.Raw, 1000)
	}
	return ""
}

// techniqueIDs pulls MITRE technique ids out of passage metadata.
func techniqueIDs(passages []ragclient.Passage) []string {
	var ids []string
	for _, p := range passages {
		if v, ok := p.Metadata["technique_id"].(string); ok && v != "" {
			ids = append(ids, v)
		}
	}
	return ids
}

func joinPassages(passages []ragclient.Passage) string {
	docs := make([]string, 0, len(passages))
	for _, p := range passages {
		docs = append(docs, p.Document)
	}
	return truncate(strings.Join(docs, "\n\n"), maxMitreContextLen)
}

// dedupe merges string slices preserving first-seen order.
func dedupe(a, b []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range append(append([]string(nil), a...), b...) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
