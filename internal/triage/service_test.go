package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/aegis/internal/alert"
)

const criticalDoc = `{
	"severity": "critical",
	"category": "credential_access",
	"confidence": 0.95,
	"summary": "Confirmed brute force with successful login",
	"is_true_positive": true
}`

// fakeStore records puts in memory for assertions.
type fakeStore struct {
	mu      sync.Mutex
	results map[string]*Result
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{results: make(map[string]*Result)}
}

func (s *fakeStore) Get(_ context.Context, id string) (*Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	return r, ok, nil
}

func (s *fakeStore) GetByAlertID(_ context.Context, alertID string) (*Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results {
		if r.AlertID == alertID {
			return r, true, nil
		}
	}
	return nil, false, nil
}

func (s *fakeStore) Put(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.results[r.ID] = r
	return nil
}

// fakeNotifier signals on a channel when Notify fires.
type fakeNotifier struct {
	fired chan *Result
}

func (n *fakeNotifier) Notify(_ context.Context, r *Result) error {
	n.fired <- r
	return nil
}

func newTestService(store Store, notifier Notifier, doc string) *Service {
	p := &scriptedProvider{responses: map[string]string{"primary-model": doc}}
	a := NewAnalyst(p, testModels(), nil, Hooks{})
	orch := NewOrchestrator(a, nil, nil, defaultPolicy(), nil, Hooks{})
	coord := NewCoordinator(orch, 4, 100, nil, Hooks{})
	return NewService(store, orch, coord, notifier, nil)
}

func TestService_Analyze_PersistsWithID(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, nil, validDoc)

	result, err := svc.Analyze(context.Background(), rawAlert("svc-1", 10))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.ID == "" {
		t.Fatal("result.ID is empty, want ULID")
	}

	stored, ok, err := svc.Get(context.Background(), result.ID)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, %v", stored, ok, err)
	}
	if stored.AlertID != "svc-1" {
		t.Errorf("stored AlertID = %q, want svc-1", stored.AlertID)
	}
}

func TestService_Analyze_ValidationError(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeStore(), nil, validDoc)

	_, err := svc.Analyze(context.Background(), &alert.Alert{RuleDescription: "no id"})
	var verr *alert.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *alert.ValidationError", err)
	}
}

func TestService_Analyze_PersistFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.putErr = errors.New("db down")
	svc := newTestService(store, nil, validDoc)

	result, err := svc.Analyze(context.Background(), rawAlert("svc-2", 10))
	if err != nil {
		t.Fatalf("Analyze() error = %v, want nil despite store failure", err)
	}
	if result == nil {
		t.Fatal("result = nil")
	}
}

func TestService_NotifiesCriticalTruePositive(t *testing.T) {
	t.Parallel()

	n := &fakeNotifier{fired: make(chan *Result, 1)}
	svc := newTestService(newFakeStore(), n, criticalDoc)

	result, err := svc.Analyze(context.Background(), rawAlert("svc-3", 15))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	select {
	case got := <-n.fired:
		if got.ID != result.ID {
			t.Errorf("notified ID = %q, want %q", got.ID, result.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier did not fire for critical true positive")
	}
}

func TestService_NoNotifyBelowCritical(t *testing.T) {
	t.Parallel()

	n := &fakeNotifier{fired: make(chan *Result, 1)}
	svc := newTestService(newFakeStore(), n, validDoc) // severity high

	if _, err := svc.Analyze(context.Background(), rawAlert("svc-4", 15)); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	select {
	case <-n.fired:
		t.Fatal("notifier fired for high severity, want critical only")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestService_AnalyzeBatch_PersistsSuccesses(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, nil, validDoc)

	alerts := []*alert.Alert{
		rawAlert("b-0", 5),
		{RuleDescription: "missing id"},
		rawAlert("b-2", 9),
	}

	items, err := svc.AnalyzeBatch(context.Background(), alerts, 2)
	if err != nil {
		t.Fatalf("AnalyzeBatch() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}

	for _, i := range []int{0, 2} {
		if items[i].Err != nil {
			t.Errorf("items[%d].Err = %v, want nil", i, items[i].Err)
			continue
		}
		if items[i].Result.ID == "" {
			t.Errorf("items[%d].Result.ID empty, want ULID", i)
		}
		if _, ok, _ := store.Get(context.Background(), items[i].Result.ID); !ok {
			t.Errorf("items[%d] not persisted", i)
		}
	}
	if items[1].Err == nil {
		t.Error("items[1].Err = nil, want validation error")
	}
}

func TestService_Get_Missing(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeStore(), nil, validDoc)
	_, ok, err := svc.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("ok = true, want false")
	}
}
