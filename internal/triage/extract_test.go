package triage

import (
	"errors"
	"strings"
	"testing"
)

const validDoc = `{
	"severity": "high",
	"category": "credential_access",
	"confidence": 0.85,
	"summary": "SSH brute force attempt from external IP",
	"detailed_analysis": "Repeated failed logins indicate a brute force attack.",
	"is_true_positive": true,
	"mitre_techniques": ["T1110"],
	"recommendations": [
		{"action": "Block source IP", "priority": 1, "rationale": "Active attack"}
	]
}`

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{
			name:  "bare object",
			input: `{"a":1}`,
			want:  `{"a":1}`,
			ok:    true,
		},
		{
			name:  "markdown fences",
			input: "Here you go:\n```json\n{\"a\":1}\n```\nHope that helps!",
			want:  `{"a":1}`,
			ok:    true,
		},
		{
			name:  "surrounding prose",
			input: `Sure! The analysis is {"severity":"low"} as requested.`,
			want:  `{"severity":"low"}`,
			ok:    true,
		},
		{
			name:  "nested objects",
			input: `{"outer":{"inner":{"deep":true}}}`,
			want:  `{"outer":{"inner":{"deep":true}}}`,
			ok:    true,
		},
		{
			name:  "braces inside strings",
			input: `{"msg":"literal } brace { here"}`,
			want:  `{"msg":"literal } brace { here"}`,
			ok:    true,
		},
		{
			name:  "escaped quotes inside strings",
			input: `{"msg":"he said \"hello}\" loudly"}`,
			want:  `{"msg":"he said \"hello}\" loudly"}`,
			ok:    true,
		},
		{
			name:  "no object at all",
			input: "I cannot analyze this alert.",
			ok:    false,
		},
		{
			name:  "unbalanced object",
			input: `{"a": {"b": 1}`,
			ok:    false,
		},
		{
			name:  "empty input",
			input: "",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ExtractJSON(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeAnalysis_Valid(t *testing.T) {
	t.Parallel()

	parsed, err := DecodeAnalysis(validDoc)
	if err != nil {
		t.Fatalf("DecodeAnalysis() error = %v", err)
	}

	if parsed.Severity != SeverityHigh {
		t.Errorf("Severity = %q, want high", parsed.Severity)
	}
	if parsed.Category != CategoryCredentialAccess {
		t.Errorf("Category = %q, want credential_access", parsed.Category)
	}
	if parsed.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", parsed.Confidence)
	}
	if !parsed.IsTruePositive {
		t.Error("IsTruePositive = false, want true")
	}
	if len(parsed.Recommendations) != 1 || parsed.Recommendations[0].Priority != 1 {
		t.Errorf("Recommendations = %+v, want one priority-1 entry", parsed.Recommendations)
	}
	if len(parsed.MitreTechniques) != 1 || parsed.MitreTechniques[0] != "T1110" {
		t.Errorf("MitreTechniques = %v, want [T1110]", parsed.MitreTechniques)
	}
}

func TestDecodeAnalysis_MissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"missing severity", `{"category":"benign","confidence":0.5,"summary":"s"}`},
		{"unknown severity", `{"severity":"apocalyptic","category":"benign","confidence":0.5,"summary":"s"}`},
		{"missing category", `{"severity":"low","confidence":0.5,"summary":"s"}`},
		{"missing confidence", `{"severity":"low","category":"benign","summary":"s"}`},
		{"missing summary", `{"severity":"low","category":"benign","confidence":0.5}`},
		{"not json", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := DecodeAnalysis(tt.doc); err == nil {
				t.Error("DecodeAnalysis() error = nil, want error")
			}
		})
	}
}

func TestDecodeAnalysis_ClampsConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want float64
	}{
		{"above one", `{"severity":"low","category":"benign","confidence":1.7,"summary":"s"}`, 1},
		{"below zero", `{"severity":"low","category":"benign","confidence":-0.3,"summary":"s"}`, 0},
		{"in range", `{"severity":"low","category":"benign","confidence":0.42,"summary":"s"}`, 0.42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parsed, err := DecodeAnalysis(tt.doc)
			if err != nil {
				t.Fatalf("DecodeAnalysis() error = %v", err)
			}
			if parsed.Confidence != tt.want {
				t.Errorf("Confidence = %v, want %v", parsed.Confidence, tt.want)
			}
		})
	}
}

func TestDecodeAnalysis_Defaults(t *testing.T) {
	t.Parallel()

	parsed, err := DecodeAnalysis(`{"severity":"medium","category":"anomaly","confidence":0.6,"summary":"s"}`)
	if err != nil {
		t.Fatalf("DecodeAnalysis() error = %v", err)
	}
	if parsed.IsTruePositive {
		t.Error("IsTruePositive = true, want false default")
	}
	if parsed.Recommendations == nil {
		t.Error("Recommendations = nil, want empty slice")
	}
}

func TestDecodeAnalysis_NormalizesCategory(t *testing.T) {
	t.Parallel()

	parsed, err := DecodeAnalysis(`{"severity":"low","category":"Credential Access","confidence":0.5,"summary":"s"}`)
	if err != nil {
		t.Fatalf("DecodeAnalysis() error = %v", err)
	}
	if parsed.Category != CategoryCredentialAccess {
		t.Errorf("Category = %q, want credential_access", parsed.Category)
	}
}

func TestParseAnalysis(t *testing.T) {
	t.Parallel()

	parsed, err := ParseAnalysis("m1", "```json\n"+validDoc+"\n```")
	if err != nil {
		t.Fatalf("ParseAnalysis() error = %v", err)
	}
	if parsed.Severity != SeverityHigh {
		t.Errorf("Severity = %q, want high", parsed.Severity)
	}
}

func TestParseAnalysis_PreservesRawOnFailure(t *testing.T) {
	t.Parallel()

	raw := "The alert looks suspicious but I cannot produce JSON."
	_, err := ParseAnalysis("m1", raw)

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if perr.Model != "m1" {
		t.Errorf("Model = %q, want m1", perr.Model)
	}
	if perr.Raw != raw {
		t.Errorf("Raw = %q, want original text", perr.Raw)
	}
	if !strings.Contains(perr.Reason, "no JSON object") {
		t.Errorf("Reason = %q, want no-JSON reason", perr.Reason)
	}
}

func TestParseAnalysis_InvalidDocument(t *testing.T) {
	t.Parallel()

	_, err := ParseAnalysis("m1", `{"severity":"bogus"}`)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}
