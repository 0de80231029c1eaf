package triage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParsedAnalysis is the validated structured output of one LLM call.
type ParsedAnalysis struct {
	Severity        Severity
	Category        Category
	Confidence      float64
	Summary         string
	Analysis        string
	IsTruePositive  bool
	Recommendations []Recommendation
	MitreTechniques []string
}

// ExtractJSON returns the first balanced JSON object embedded in s, tolerating
// surrounding prose and markdown code fences. The second return is false when
// no balanced object exists.
func ExtractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// llmDocument is the raw decode target for the extractor output. Pointer
// fields distinguish "absent" from zero values during strict validation.
type llmDocument struct {
	Severity        string           `json:"severity"`
	Category        string           `json:"category"`
	Confidence      *float64         `json:"confidence"`
	Summary         string           `json:"summary"`
	Analysis        string           `json:"detailed_analysis"`
	IsTruePositive  *bool            `json:"is_true_positive"`
	Recommendations []Recommendation `json:"recommendations"`
	MitreTechniques []string         `json:"mitre_techniques"`
}

// DecodeAnalysis strictly validates an extracted JSON object: severity,
// category, confidence, and summary must be present and well-typed.
// Confidence is clamped to [0,1]; a missing recommendation list defaults to
// empty; a missing true-positive verdict defaults to false.
func DecodeAnalysis(jsonText string) (*ParsedAnalysis, error) {
	var doc llmDocument
	if err := json.Unmarshal([]byte(jsonText), &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	sev, err := ParseSeverity(doc.Severity)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Category) == "" {
		return nil, fmt.Errorf("category is missing")
	}
	if doc.Confidence == nil {
		return nil, fmt.Errorf("confidence is missing")
	}
	if strings.TrimSpace(doc.Summary) == "" {
		return nil, fmt.Errorf("summary is missing")
	}

	out := &ParsedAnalysis{
		Severity:        sev,
		Category:        NormalizeCategory(doc.Category),
		Confidence:      clamp01(*doc.Confidence),
		Summary:         doc.Summary,
		Analysis:        doc.Analysis,
		Recommendations: doc.Recommendations,
		MitreTechniques: doc.MitreTechniques,
	}
	if doc.IsTruePositive != nil {
		out.IsTruePositive = *doc.IsTruePositive
	}
	if out.Recommendations == nil {
		out.Recommendations = []Recommendation{}
	}
	return out, nil
}

// ParseAnalysis runs both stages against raw model output. Failures return a
// *ParseError carrying the raw text for degraded-result assembly.
func ParseAnalysis(model, raw string) (*ParsedAnalysis, error) {
	obj, ok := ExtractJSON(raw)
	if !ok {
		return nil, &ParseError{Model: model, Reason: "no JSON object found", Raw: raw}
	}
	parsed, err := DecodeAnalysis(obj)
	if err != nil {
		return nil, &ParseError{Model: model, Reason: err.Error(), Raw: raw}
	}
	return parsed, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
