package triage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/linnemanlabs/aegis/internal/alert"
	"github.com/linnemanlabs/aegis/internal/mlclient"
)

const maxRawLogLen = 2000

// buildPrompt constructs the analysis prompt for one alert, optionally
// prepended with the ML classifier's verdict as corroborating context.
func buildPrompt(na *alert.NormalizedAlert, verdict *mlclient.Verdict) string {
	var sb strings.Builder

	if verdict != nil {
		writeMLContext(&sb, verdict)
	}

	sb.WriteString(`You are an experienced cybersecurity analyst triaging SOC alerts.
Analyze the alert below and respond with ONLY a JSON object, no other text.

ALERT:
`)
	fmt.Fprintf(&sb, "- alert_id: %s\n", na.ID)
	fmt.Fprintf(&sb, "- severity_level: %d (0-15 scale, higher is more urgent)\n", na.Severity)
	fmt.Fprintf(&sb, "- description: %s\n", na.Description)
	fmt.Fprintf(&sb, "- timestamp: %s\n", na.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))

	for _, k := range sortedKeys(na.Metadata) {
		fmt.Fprintf(&sb, "- %s: %s\n", k, na.Metadata[k])
	}
	if len(na.MitreTechniques) > 0 {
		fmt.Fprintf(&sb, "- mitre_techniques: %s\n", strings.Join(na.MitreTechniques, ", "))
	}
	if na.RawLog != "" {
		fmt.Fprintf(&sb, "\nRAW LOG:\n%s\n", truncate(na.RawLog, maxRawLogLen))
	}

	sb.WriteString(`
OUTPUT FORMAT (JSON):
{
  "severity": "low|medium|high|critical",
  "category": "malware|intrusion_attempt|credential_access|data_exfiltration|privilege_escalation|reconnaissance|policy_violation|anomaly|benign",
  "confidence": 0.0,
  "summary": "one-sentence triage summary",
  "detailed_analysis": "what happened and why it matters",
  "is_true_positive": true,
  "mitre_techniques": ["T1110"],
  "recommendations": [
    {"action": "what to do", "priority": 1, "rationale": "why"}
  ]
}`)

	return sb.String()
}

func writeMLContext(sb *strings.Builder, v *mlclient.Verdict) {
	fmt.Fprintf(sb, "ML MODEL PREDICTION: %s (confidence %.2f, model %s)\n",
		v.Label, v.Confidence, v.ModelUsed)
	if v.Synthetic {
		sb.WriteString("NOTE: prediction was made from synthesized features; treat as weak signal.\n")
	}
	if len(v.Probabilities) > 0 {
		sb.WriteString("Class probabilities:\n")
		for _, label := range sortedKeys(v.Probabilities) {
			fmt.Fprintf(sb, "  - %s: %.2f\n", label, v.Probabilities[label])
		}
	}
	sb.WriteString("Use this as additional context, but verify against the raw alert data.\n\n")
}

// ragQuery builds the knowledge-base query text: the alert description plus
// any technique ids the LLM or the upstream rule identified.
func ragQuery(na *alert.NormalizedAlert, parsed *ParsedAnalysis) string {
	parts := []string{na.Description}
	seen := make(map[string]bool)
	for _, t := range na.MitreTechniques {
		if !seen[t] {
			seen[t] = true
			parts = append(parts, "MITRE "+t)
		}
	}
	if parsed != nil {
		for _, t := range parsed.MitreTechniques {
			if !seen[t] {
				seen[t] = true
				parts = append(parts, "MITRE "+t)
			}
		}
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
