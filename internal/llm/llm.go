// Package llm defines the interface to reasoning backends.
package llm

import "context"

// Provider is the interface for any LLM backend. Generate sends one prompt
// to the named model and returns the raw completion text. Deadlines are
// carried on the context; callers own per-model timeout budgets.
type Provider interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}
