package alertapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/aegis/internal/alert"
	"github.com/linnemanlabs/aegis/internal/triage"
)

type batchRequest struct {
	Alerts      []*alert.Alert `json:"alerts"`
	Concurrency int            `json:"concurrency,omitempty"`
}

type batchItemStatus struct {
	Index  int            `json:"index"`
	Status string         `json:"status"`
	Result *triage.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type batchResponse struct {
	Total          int               `json:"total"`
	Successful     int               `json:"successful"`
	Failed         int               `json:"failed"`
	ProcessingSecs float64           `json:"processing_time_seconds"`
	Results        []batchItemStatus `json:"results"`
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var al alert.Alert
	if err := json.NewDecoder(r.Body).Decode(&al); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("aegis.alert.id", al.ID))

	result, err := a.svc.Analyze(r.Context(), &al)
	if err != nil {
		var verr *alert.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": verr.Error(),
				"field": verr.Field,
			})
			return
		}
		a.logger.Error(r.Context(), err, "analysis failed", "alert_id", al.ID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(
		attribute.String("aegis.analysis.id", result.ID),
		attribute.String("aegis.analysis.severity", string(result.Severity)),
		attribute.Bool("aegis.analysis.degraded", result.Degraded),
	)

	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if len(req.Alerts) == 0 {
		http.Error(w, `{"error":"alerts array is empty"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("aegis.batch.size", len(req.Alerts)))

	start := time.Now()
	items, err := a.svc.AnalyzeBatch(r.Context(), req.Alerts, req.Concurrency)
	if err != nil {
		// The only whole-batch failure is an oversized batch.
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	resp := batchResponse{
		Total:          len(items),
		ProcessingSecs: time.Since(start).Seconds(),
		Results:        make([]batchItemStatus, len(items)),
	}
	for i, item := range items {
		st := batchItemStatus{Index: item.Index}
		if item.Err != nil {
			st.Status = "error"
			st.Error = item.Err.Error()
			resp.Failed++
		} else {
			st.Status = "ok"
			st.Result = item.Result
			resp.Successful++
		}
		resp.Results[i] = st
	}

	span.SetAttributes(attribute.Int("aegis.batch.failed", resp.Failed))

	writeJSON(w, http.StatusOK, resp)
}
