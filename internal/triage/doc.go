// Package triage provides the alert analysis orchestration engine: the
// Analyst (primary/fallback LLM calls with tolerant parsing), Orchestrator
// (per-alert pipeline with graceful degradation), Coordinator (bounded
// concurrent batches), Service (business boundary), Store interface
// (persistence), and domain models.
package triage
