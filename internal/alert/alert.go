// Package alert defines the raw and normalized alert shapes and the
// validation boundary every alert crosses before analysis.
package alert

import (
	"fmt"
	"strconv"
	"time"
)

// MaxRuleLevel is the highest severity ordinal an upstream detection rule can
// carry. Levels follow the Wazuh 0..15 scale: higher means more urgent.
const MaxRuleLevel = 15

// Alert is a security event as received from the upstream collector.
// Immutable once received.
type Alert struct {
	ID              string    `json:"alert_id"`
	Timestamp       time.Time `json:"timestamp,omitzero"`
	RuleID          string    `json:"rule_id,omitempty"`
	RuleDescription string    `json:"rule_description"`
	RuleLevel       int       `json:"rule_level"`
	SourceIP        string    `json:"source_ip,omitempty"`
	SourcePort      int       `json:"source_port,omitempty"`
	DestIP          string    `json:"dest_ip,omitempty"`
	DestPort        int       `json:"dest_port,omitempty"`
	User            string    `json:"user,omitempty"`
	Process         string    `json:"process,omitempty"`
	AgentName       string    `json:"source_hostname,omitempty"`
	RawLog          string    `json:"raw_log,omitempty"`
	MitreTechniques []string  `json:"mitre_techniques,omitempty"`

	// Features is an optional pre-extracted classifier feature vector.
	// The ML client synthesizes one when this is absent or mis-sized.
	Features []float64 `json:"features,omitempty"`
}

// NormalizedAlert is the orchestrator's canonical input shape. Created once
// per Alert by Normalize and never mutated afterwards.
type NormalizedAlert struct {
	ID              string
	Timestamp       time.Time
	Severity        int // rule level ordinal, 0..MaxRuleLevel
	Description     string
	Metadata        map[string]string
	RawLog          string
	MitreTechniques []string
	Features        []float64
}

// ValidationError marks an alert that is malformed or incomplete. It is the
// only hard failure the analysis pipeline surfaces to callers.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid alert: %s %s", e.Field, e.Reason)
}

// Normalize validates a raw alert and maps it into the canonical shape.
// It returns a *ValidationError for malformed input.
func Normalize(a *Alert) (*NormalizedAlert, error) {
	if a == nil {
		return nil, &ValidationError{Field: "alert", Reason: "is nil"}
	}
	if a.ID == "" {
		return nil, &ValidationError{Field: "alert_id", Reason: "is required"}
	}
	if a.RuleDescription == "" {
		return nil, &ValidationError{Field: "rule_description", Reason: "is required"}
	}
	if a.RuleLevel < 0 || a.RuleLevel > MaxRuleLevel {
		return nil, &ValidationError{
			Field:  "rule_level",
			Reason: fmt.Sprintf("%d out of range 0..%d", a.RuleLevel, MaxRuleLevel),
		}
	}

	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	meta := make(map[string]string)
	putMeta(meta, "rule_id", a.RuleID)
	putMeta(meta, "source_ip", a.SourceIP)
	putMeta(meta, "dest_ip", a.DestIP)
	putMeta(meta, "user", a.User)
	putMeta(meta, "process", a.Process)
	putMeta(meta, "agent", a.AgentName)
	if a.SourcePort > 0 {
		meta["source_port"] = strconv.Itoa(a.SourcePort)
	}
	if a.DestPort > 0 {
		meta["dest_port"] = strconv.Itoa(a.DestPort)
	}

	return &NormalizedAlert{
		ID:              a.ID,
		Timestamp:       ts,
		Severity:        a.RuleLevel,
		Description:     a.RuleDescription,
		Metadata:        meta,
		RawLog:          a.RawLog,
		MitreTechniques: append([]string(nil), a.MitreTechniques...),
		Features:        append([]float64(nil), a.Features...),
	}, nil
}

// Validate re-checks the invariants Normalize establishes. The orchestrator
// calls it to reject hand-built normalized alerts that skip Normalize.
func (n *NormalizedAlert) Validate() error {
	if n == nil {
		return &ValidationError{Field: "alert", Reason: "is nil"}
	}
	if n.ID == "" {
		return &ValidationError{Field: "alert_id", Reason: "is required"}
	}
	if n.Description == "" {
		return &ValidationError{Field: "description", Reason: "is required"}
	}
	if n.Severity < 0 || n.Severity > MaxRuleLevel {
		return &ValidationError{
			Field:  "severity",
			Reason: fmt.Sprintf("%d out of range 0..%d", n.Severity, MaxRuleLevel),
		}
	}
	return nil
}

func putMeta(m map[string]string, key, val string) {
	if val != "" {
		m[key] = val
	}
}
