package triage

import "context"

// Store is the persistence interface for analysis results.
type Store interface {
	Get(ctx context.Context, id string) (*Result, bool, error)
	GetByAlertID(ctx context.Context, alertID string) (*Result, bool, error)
	Put(ctx context.Context, result *Result) error
}
