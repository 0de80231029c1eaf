package triage

import (
	"context"
	"fmt"
	"sync"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/aegis/internal/alert"
)

// Coordinator fans a batch of alerts across a bounded worker pool of
// independent Orchestrator runs. The pool limit is the sole backpressure
// mechanism against the LLM/ML/RAG backends.
type Coordinator struct {
	orch     *Orchestrator
	workers  int
	maxBatch int
	logger   log.Logger
	hooks    Hooks
}

// NewCoordinator creates a batch coordinator with a default worker limit and
// a maximum accepted batch size.
func NewCoordinator(orch *Orchestrator, workers, maxBatch int, logger log.Logger, hooks Hooks) *Coordinator {
	if workers <= 0 {
		workers = 6
	}
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Coordinator{
		orch:     orch,
		workers:  workers,
		maxBatch: maxBatch,
		logger:   logger,
		hooks:    hooks,
	}
}

// AnalyzeBatch analyzes alerts concurrently and returns exactly one
// BatchItemResult per input, in input order. Per-item failures (validation,
// panic, deadline) occupy their slot without affecting siblings; the call
// itself fails only when the batch exceeds the configured maximum size.
// concurrency <= 0 uses the coordinator default.
func (c *Coordinator) AnalyzeBatch(ctx context.Context, alerts []*alert.Alert, concurrency int) ([]BatchItemResult, error) {
	if len(alerts) > c.maxBatch {
		return nil, fmt.Errorf("batch size %d exceeds maximum %d", len(alerts), c.maxBatch)
	}
	if concurrency <= 0 || concurrency > c.workers {
		concurrency = c.workers
	}

	c.hooks.batch(len(alerts))
	c.logger.Info(ctx, "batch analysis started", "size", len(alerts), "concurrency", concurrency)

	// Results are written into pre-allocated slots so output order matches
	// input order regardless of worker completion order.
	results := make([]BatchItemResult, len(alerts))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, a := range alerts {
		wg.Add(1)
		go func(i int, a *alert.Alert) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				// Caller deadline expired before this item started.
				results[i] = BatchItemResult{Index: i, Err: &DependencyError{
					Dependency: "batch", Kind: KindTimeout, Err: ctx.Err(),
				}}
				c.hooks.batchItem("timeout")
				return
			}

			results[i] = c.analyzeItem(ctx, i, a)
		}(i, a)
	}

	wg.Wait()

	c.logger.Info(ctx, "batch analysis complete", "size", len(alerts))
	return results, nil
}

// analyzeItem runs one isolated analysis, converting panics into an
// InternalFault for this slot only.
func (c *Coordinator) analyzeItem(ctx context.Context, i int, a *alert.Alert) (item BatchItemResult) {
	item.Index = i

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, fmt.Errorf("panic: %v", r), "batch worker panicked", "index", i)
			item.Result = nil
			item.Err = &InternalFault{Index: i, Value: r}
			c.hooks.batchItem("panic")
		}
	}()

	na, err := alert.Normalize(a)
	if err != nil {
		item.Err = err
		c.hooks.batchItem("invalid")
		return item
	}

	result, err := c.orch.Analyze(ctx, na)
	if err != nil {
		item.Err = err
		c.hooks.batchItem("invalid")
		return item
	}

	item.Result = result
	c.hooks.batchItem("ok")
	return item
}
