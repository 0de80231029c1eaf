package triage

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/aegis/internal/alert"
)

// Notifier pushes completed results to an external channel (e.g. Slack).
type Notifier interface {
	Notify(ctx context.Context, result *Result) error
}

// Service is the business boundary for analysis operations: validation,
// orchestration, persistence, and notification.
type Service struct {
	store    Store
	orch     *Orchestrator
	coord    *Coordinator
	notifier Notifier // nil = notifications disabled
	logger   log.Logger
}

// NewService creates a new analysis service.
func NewService(store Store, orch *Orchestrator, coord *Coordinator, notifier Notifier, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		orch:     orch,
		coord:    coord,
		notifier: notifier,
		logger:   logger,
	}
}

// Analyze validates and analyzes a single raw alert synchronously, persists
// the result, and fires any configured notification. The only hard failure
// is a *alert.ValidationError.
func (s *Service) Analyze(ctx context.Context, a *alert.Alert) (*Result, error) {
	na, err := alert.Normalize(a)
	if err != nil {
		return nil, err
	}

	result, err := s.orch.Analyze(ctx, na)
	if err != nil {
		return nil, err
	}

	result.ID = ulid.Make().String()
	if err := s.store.Put(ctx, result); err != nil {
		// Persistence is best-effort: the caller still gets the result.
		s.logger.Error(ctx, err, "failed to persist analysis result", "id", result.ID)
	}

	s.maybeNotify(ctx, result)
	return result, nil
}

// AnalyzeBatch runs a bounded-concurrency batch. Successful items are
// assigned IDs and persisted; the returned slice matches the input in length
// and order.
func (s *Service) AnalyzeBatch(ctx context.Context, alerts []*alert.Alert, concurrency int) ([]BatchItemResult, error) {
	items, err := s.coord.AnalyzeBatch(ctx, alerts, concurrency)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if items[i].Result == nil {
			continue
		}
		items[i].Result.ID = ulid.Make().String()
		if err := s.store.Put(ctx, items[i].Result); err != nil {
			s.logger.Error(ctx, err, "failed to persist batch result", "id", items[i].Result.ID)
		}
		s.maybeNotify(ctx, items[i].Result)
	}

	return items, nil
}

// Get retrieves a persisted analysis result by ID.
func (s *Service) Get(ctx context.Context, id string) (*Result, bool, error) {
	return s.store.Get(ctx, id)
}

// maybeNotify pushes critical true positives to the notifier without
// blocking or failing the analysis path.
func (s *Service) maybeNotify(ctx context.Context, result *Result) {
	if s.notifier == nil {
		return
	}
	if result.Severity != SeverityCritical || !result.IsTruePositive {
		return
	}

	go func(ctx context.Context, r *Result) {
		nctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := s.notifier.Notify(nctx, r); err != nil {
			s.logger.Warn(nctx, "notification failed", "id", r.ID, "error", err)
		}
	}(context.WithoutCancel(ctx), result)
}
