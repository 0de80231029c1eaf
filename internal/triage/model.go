package triage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity is the analysis severity category, ordered low to critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps an LLM severity word onto the enum. "informational"
// collapses into low; anything else is rejected.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "informational", "info":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// SeverityFromOrdinal maps a rule-level ordinal (0..15) onto the enum. Used
// on the degraded path when no parseable LLM severity is available.
func SeverityFromOrdinal(level int) Severity {
	switch {
	case level >= 13:
		return SeverityCritical
	case level >= 10:
		return SeverityHigh
	case level >= 7:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Category is the threat category assigned by analysis. The set mirrors the
// upstream taxonomy; unrecognized LLM output is normalized, not rejected.
type Category string

const (
	CategoryMalware             Category = "malware"
	CategoryIntrusion           Category = "intrusion_attempt"
	CategoryCredentialAccess    Category = "credential_access"
	CategoryDataExfiltration    Category = "data_exfiltration"
	CategoryPrivilegeEscalation Category = "privilege_escalation"
	CategoryReconnaissance      Category = "reconnaissance"
	CategoryPolicyViolation     Category = "policy_violation"
	CategoryAnomaly             Category = "anomaly"
	CategoryBenign              Category = "benign"
)

// NormalizeCategory lower-snake-cases a free-form category string.
func NormalizeCategory(s string) Category {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return Category(s)
}

// Recommendation is one remediation action, ranked by priority (1 = first).
type Recommendation struct {
	Action    string `json:"action"`
	Priority  int    `json:"priority"`
	Rationale string `json:"rationale,omitempty"`
}

// Result is the confidence-scored analysis produced for one alert. Created
// once by the orchestrator; immutable after construction.
type Result struct {
	ID      string `json:"id,omitempty"`
	AlertID string `json:"alert_id"`

	Severity        Severity         `json:"severity"`
	Category        Category         `json:"category"`
	Confidence      float64          `json:"confidence"`
	Summary         string           `json:"summary"`
	Analysis        string           `json:"analysis,omitempty"`
	IsTruePositive  bool             `json:"is_true_positive"`
	Recommendations []Recommendation `json:"recommendations"`

	MitreContext string   `json:"mitre_context,omitempty"`
	KBReferences []string `json:"kb_references,omitempty"`

	MLVerdictApplied bool    `json:"ml_verdict_applied"`
	MLPrediction     string  `json:"ml_prediction,omitempty"`
	MLConfidence     float64 `json:"ml_confidence,omitempty"`
	MLSynthetic      bool    `json:"ml_synthetic_features,omitempty"`

	RAGApplied bool `json:"rag_enrichment_applied"`

	// Degraded marks results assembled despite one or more dependency
	// failures. Such results always carry IsTruePositive=false and low
	// confidence so an analyst knows to re-check by hand.
	Degraded bool `json:"degraded"`

	ModelUsed   string    `json:"model_used,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ProcessedAt time.Time `json:"processing_timestamp"`
	Duration    float64   `json:"duration_seconds"`
}

// BatchItemResult is the tagged outcome for one slot of a batch: exactly one
// of Result or Err is set.
type BatchItemResult struct {
	Index  int
	Result *Result
	Err    error
}

// ModelSelection pairs the primary and fallback model identifiers with their
// timeout budgets. Loaded once at startup; read-only thereafter.
type ModelSelection struct {
	Primary         string
	Fallback        string
	PrimaryTimeout  time.Duration
	FallbackTimeout time.Duration
}

// Validate checks the selection is complete.
func (m ModelSelection) Validate() error {
	var errs []error
	if m.Primary == "" {
		errs = append(errs, errors.New("primary model is required"))
	}
	if m.Fallback == "" {
		errs = append(errs, errors.New("fallback model is required"))
	}
	if m.PrimaryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid primary timeout %v", m.PrimaryTimeout))
	}
	if m.FallbackTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid fallback timeout %v", m.FallbackTimeout))
	}
	return errors.Join(errs...)
}
