package triage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linnemanlabs/aegis/internal/alert"
)

func rawAlert(id string, level int) *alert.Alert {
	return &alert.Alert{
		ID:              id,
		RuleDescription: "test alert " + id,
		RuleLevel:       level,
	}
}

func TestCoordinator_OrderAndLength(t *testing.T) {
	t.Parallel()

	coord := NewCoordinator(
		NewOrchestrator(workingAnalyst(), nil, nil, defaultPolicy(), nil, Hooks{}),
		4, 100, nil, Hooks{},
	)

	alerts := []*alert.Alert{
		rawAlert("a-0", 5),
		rawAlert("a-1", 10),
		{ID: "", RuleDescription: "malformed"}, // invalid: missing id
		rawAlert("a-3", 15),
	}

	results, err := coord.AnalyzeBatch(context.Background(), alerts, 0)
	if err != nil {
		t.Fatalf("AnalyzeBatch() error = %v", err)
	}

	if len(results) != len(alerts) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(alerts))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d, want %d", i, r.Index, i)
		}
	}

	// Valid slots carry results for their own alert.
	for _, i := range []int{0, 1, 3} {
		if results[i].Err != nil {
			t.Errorf("results[%d].Err = %v, want nil", i, results[i].Err)
			continue
		}
		if results[i].Result.AlertID != alerts[i].ID {
			t.Errorf("results[%d].AlertID = %q, want %q", i, results[i].Result.AlertID, alerts[i].ID)
		}
	}

	// The malformed slot fails alone with a validation error.
	var verr *alert.ValidationError
	if !errors.As(results[2].Err, &verr) {
		t.Errorf("results[2].Err = %v, want *alert.ValidationError", results[2].Err)
	}
	if results[2].Result != nil {
		t.Error("results[2].Result != nil, want nil alongside Err")
	}
}

func TestCoordinator_EmptyBatch(t *testing.T) {
	t.Parallel()

	coord := NewCoordinator(
		NewOrchestrator(workingAnalyst(), nil, nil, defaultPolicy(), nil, Hooks{}),
		4, 100, nil, Hooks{},
	)

	results, err := coord.AnalyzeBatch(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("AnalyzeBatch() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestCoordinator_RejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	coord := NewCoordinator(
		NewOrchestrator(workingAnalyst(), nil, nil, defaultPolicy(), nil, Hooks{}),
		4, 2, nil, Hooks{},
	)

	alerts := []*alert.Alert{rawAlert("a", 1), rawAlert("b", 1), rawAlert("c", 1)}
	_, err := coord.AnalyzeBatch(context.Background(), alerts, 0)
	if err == nil {
		t.Fatal("AnalyzeBatch() error = nil, want oversize error")
	}
}

// panickingProvider triggers a worker panic for one specific alert prompt.
type panickingProvider struct{ needle string }

func (p panickingProvider) Generate(_ context.Context, _, prompt string) (string, error) {
	if p.needle != "" && containsSubstring(prompt, p.needle) {
		panic("synthetic fault")
	}
	return validDoc, nil
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestCoordinator_PanicIsolatedToItem(t *testing.T) {
	t.Parallel()

	a := NewAnalyst(panickingProvider{needle: "a-1"}, testModels(), nil, Hooks{})
	coord := NewCoordinator(
		NewOrchestrator(a, nil, nil, defaultPolicy(), nil, Hooks{}),
		4, 100, nil, Hooks{},
	)

	alerts := []*alert.Alert{rawAlert("a-0", 5), rawAlert("a-1", 5), rawAlert("a-2", 5)}
	results, err := coord.AnalyzeBatch(context.Background(), alerts, 0)
	if err != nil {
		t.Fatalf("AnalyzeBatch() error = %v", err)
	}

	var fault *InternalFault
	if !errors.As(results[1].Err, &fault) {
		t.Fatalf("results[1].Err = %v, want *InternalFault", results[1].Err)
	}
	if fault.Index != 1 {
		t.Errorf("fault.Index = %d, want 1", fault.Index)
	}
	for _, i := range []int{0, 2} {
		if results[i].Err != nil {
			t.Errorf("results[%d].Err = %v, want nil (panic must not spread)", i, results[i].Err)
		}
	}
}

// countingProvider tracks maximum concurrent Generate calls.
type countingProvider struct {
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (p *countingProvider) Generate(_ context.Context, _, _ string) (string, error) {
	n := p.inFlight.Add(1)
	for {
		m := p.maxSeen.Load()
		if n <= m || p.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	p.inFlight.Add(-1)
	return validDoc, nil
}

func TestCoordinator_ConcurrencyBounded(t *testing.T) {
	t.Parallel()

	p := &countingProvider{}
	a := NewAnalyst(p, testModels(), nil, Hooks{})
	coord := NewCoordinator(
		NewOrchestrator(a, nil, nil, defaultPolicy(), nil, Hooks{}),
		8, 100, nil, Hooks{},
	)

	alerts := make([]*alert.Alert, 12)
	for i := range alerts {
		alerts[i] = rawAlert("c-"+string(rune('a'+i)), 5)
	}

	_, err := coord.AnalyzeBatch(context.Background(), alerts, 2)
	if err != nil {
		t.Fatalf("AnalyzeBatch() error = %v", err)
	}
	if got := p.maxSeen.Load(); got > 2 {
		t.Errorf("max concurrent calls = %d, want <= 2", got)
	}
}

func TestCoordinator_ConcurrencyCappedAtWorkers(t *testing.T) {
	t.Parallel()

	p := &countingProvider{}
	a := NewAnalyst(p, testModels(), nil, Hooks{})
	coord := NewCoordinator(
		NewOrchestrator(a, nil, nil, defaultPolicy(), nil, Hooks{}),
		3, 100, nil, Hooks{},
	)

	alerts := make([]*alert.Alert, 9)
	for i := range alerts {
		alerts[i] = rawAlert("w-"+string(rune('a'+i)), 5)
	}

	// Requested concurrency above the pool limit is clamped to it.
	_, err := coord.AnalyzeBatch(context.Background(), alerts, 50)
	if err != nil {
		t.Fatalf("AnalyzeBatch() error = %v", err)
	}
	if got := p.maxSeen.Load(); got > 3 {
		t.Errorf("max concurrent calls = %d, want <= 3", got)
	}
}

// lingeringProvider fails when its context dies, then keeps the worker slot
// busy a while longer so queued siblings must observe the dead batch context.
type lingeringProvider struct{}

func (lingeringProvider) Generate(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	time.Sleep(300 * time.Millisecond)
	return "", ctx.Err()
}

func TestCoordinator_ContextCancelledMarksPendingItems(t *testing.T) {
	t.Parallel()

	a := NewAnalyst(&lingeringProvider{}, testModels(), nil, Hooks{})
	coord := NewCoordinator(
		NewOrchestrator(a, nil, nil, defaultPolicy(), nil, Hooks{}),
		1, 100, nil, Hooks{},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	alerts := []*alert.Alert{rawAlert("b-0", 5), rawAlert("b-1", 5), rawAlert("b-2", 5)}
	results, err := coord.AnalyzeBatch(ctx, alerts, 1)
	if err != nil {
		t.Fatalf("AnalyzeBatch() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	// The item holding the worker slot degrades; the queued items never start
	// and carry a batch timeout error. No slot may be left zero-valued.
	if results[0].Err != nil {
		t.Errorf("results[0].Err = %v, want degraded result", results[0].Err)
	} else if !results[0].Result.Degraded {
		t.Error("results[0].Degraded = false, want true")
	}

	var timeouts int
	for i, r := range results {
		if r.Result == nil && r.Err == nil {
			t.Errorf("results[%d] empty, want Result or Err", i)
		}
		var dep *DependencyError
		if errors.As(r.Err, &dep) && dep.Dependency == "batch" && dep.Kind == KindTimeout {
			timeouts++
		}
	}
	if timeouts != 2 {
		t.Errorf("batch timeout errors = %d, want 2", timeouts)
	}
}
