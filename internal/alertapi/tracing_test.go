package alertapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/aegis/internal/alert"
	"github.com/linnemanlabs/aegis/internal/triage"
)

// tracedRequest runs one request inside a recording span and returns the
// exported span data.
func tracedRequest(t *testing.T, svc *fakeService, method, path, body string) (tracetest.SpanStubs, *httptest.ResponseRecorder) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := chi.NewRouter()
	New(nil, svc).RegisterRoutes(r)

	req := httptest.NewRequest(method, path, strings.NewReader(body))

	ctx, span := tp.Tracer("test").Start(req.Context(), "test.request")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	span.End()

	return exporter.GetSpans(), rec
}

func spanAttr(spans tracetest.SpanStubs, key attribute.Key) (attribute.Value, bool) {
	for _, s := range spans {
		for _, kv := range s.Attributes {
			if kv.Key == key {
				return kv.Value, true
			}
		}
	}
	return attribute.Value{}, false
}

func TestHandleGetAnalysis_SpanAttributes(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		get: func(_ context.Context, id string) (*triage.Result, bool, error) {
			return sampleResult(id, "a-1"), true, nil
		},
	}

	spans, rec := tracedRequest(t, svc, http.MethodGet, "/api/v1/analyses/res-42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if v, ok := spanAttr(spans, "aegis.analysis.id"); !ok || v.AsString() != "res-42" {
		t.Errorf("aegis.analysis.id = %v (present=%v), want res-42", v.AsString(), ok)
	}
	if v, ok := spanAttr(spans, "aegis.analysis.severity"); !ok || v.AsString() != "high" {
		t.Errorf("aegis.analysis.severity = %v (present=%v), want high", v.AsString(), ok)
	}
}

func TestHandleAnalyze_SpanAttributes(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		analyze: func(_ context.Context, a *alert.Alert) (*triage.Result, error) {
			return sampleResult("res-1", a.ID), nil
		},
	}

	body := `{"alert_id":"a-7","rule_description":"x","rule_level":9}`
	spans, rec := tracedRequest(t, svc, http.MethodPost, "/api/v1/alerts/analyze", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if v, ok := spanAttr(spans, "aegis.alert.id"); !ok || v.AsString() != "a-7" {
		t.Errorf("aegis.alert.id = %v (present=%v), want a-7", v.AsString(), ok)
	}
	if v, ok := spanAttr(spans, "aegis.analysis.degraded"); !ok || v.AsBool() {
		t.Errorf("aegis.analysis.degraded = %v (present=%v), want false", v.AsBool(), ok)
	}
}
