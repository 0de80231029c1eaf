package triage

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// DependencyKind distinguishes a missed deadline from any other backend
// failure. Both degrade the same way; the distinction is for logs and metrics.
type DependencyKind string

const (
	KindTimeout     DependencyKind = "timeout"
	KindUnavailable DependencyKind = "unavailable"
)

// DependencyError wraps a failed call to the LLM, ML, or RAG backend.
type DependencyError struct {
	Dependency string
	Kind       DependencyKind
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s dependency %s: %v", e.Dependency, e.Kind, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// classifyDependency wraps err with the dependency name and a timeout vs.
// unavailable classification.
func classifyDependency(dep string, err error) *DependencyError {
	kind := KindUnavailable
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &DependencyError{Dependency: dep, Kind: kind, Err: err}
}

// ParseError marks LLM output that was not decodable as the expected
// structured shape even after tolerant extraction. Raw preserves whatever
// text was obtained so a degraded result can still surface it.
type ParseError struct {
	Model  string
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("model %s output not parseable: %s", e.Model, e.Reason)
}

// InternalFault is a recovered panic inside a batch worker, surfaced as a
// per-item error without affecting sibling items.
type InternalFault struct {
	Index int
	Value any
}

func (e *InternalFault) Error() string {
	return fmt.Sprintf("internal fault analyzing batch item %d: %v", e.Index, e.Value)
}
