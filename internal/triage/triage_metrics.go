package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the analysis subsystem.
type Metrics struct {
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	Confidence       prometheus.Histogram
	LLMCallsTotal    *prometheus.CounterVec
	LLMDuration      *prometheus.HistogramVec
	FallbacksTotal   prometheus.Counter
	MLCallsTotal     *prometheus.CounterVec
	MLSyntheticTotal prometheus.Counter
	RAGCallsTotal    *prometheus.CounterVec
	BatchesTotal     prometheus.Counter
	BatchSize        prometheus.Histogram
	BatchItemsTotal  *prometheus.CounterVec
}

// NewMetrics registers and returns analysis metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_analyses_total",
			Help: "Total alert analyses by outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_analysis_duration_seconds",
			Help:    "Duration of full alert analyses in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}, []string{"outcome"}),
		Confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_analysis_confidence",
			Help:    "Confidence scores of completed analyses.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 .. 1.0
		}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_llm_calls_total",
			Help: "Total LLM calls by model and outcome.",
		}, []string{"model", "outcome"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}, []string{"model"}),
		FallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_llm_fallbacks_total",
			Help: "Total analyses that fell back to the secondary model.",
		}),
		MLCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_ml_calls_total",
			Help: "Total ML classifier calls by outcome.",
		}, []string{"outcome"}),
		MLSyntheticTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_ml_synthetic_features_total",
			Help: "Total ML verdicts derived from synthesized feature vectors.",
		}),
		RAGCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_rag_calls_total",
			Help: "Total knowledge-base retrieval calls by outcome.",
		}, []string{"outcome"}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_batches_total",
			Help: "Total batch analysis requests.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_batch_size",
			Help:    "Alerts per batch request.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11), // 1 .. 1024
		}),
		BatchItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_batch_items_total",
			Help: "Total batch items by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.Confidence,
		m.LLMCallsTotal,
		m.LLMDuration,
		m.FallbacksTotal,
		m.MLCallsTotal,
		m.MLSyntheticTotal,
		m.RAGCallsTotal,
		m.BatchesTotal,
		m.BatchSize,
		m.BatchItemsTotal,
	)

	return m
}

// Hooks decouples the pipeline from the metrics registry; a zero Hooks is
// valid and records nothing.
type Hooks struct {
	OnLLMCall   func(model, outcome string, seconds float64)
	OnFallback  func()
	OnMLCall    func(outcome string, synthetic bool)
	OnRAGCall   func(outcome string)
	OnAnalysis  func(outcome string, confidence, seconds float64)
	OnBatch     func(size int)
	OnBatchItem func(outcome string)
}

func (h Hooks) llmCall(model, outcome string, seconds float64) {
	if h.OnLLMCall != nil {
		h.OnLLMCall(model, outcome, seconds)
	}
}

func (h Hooks) fallback() {
	if h.OnFallback != nil {
		h.OnFallback()
	}
}

func (h Hooks) mlCall(outcome string, synthetic bool) {
	if h.OnMLCall != nil {
		h.OnMLCall(outcome, synthetic)
	}
}

func (h Hooks) ragCall(outcome string) {
	if h.OnRAGCall != nil {
		h.OnRAGCall(outcome)
	}
}

func (h Hooks) analysis(outcome string, confidence, seconds float64) {
	if h.OnAnalysis != nil {
		h.OnAnalysis(outcome, confidence, seconds)
	}
}

func (h Hooks) batch(size int) {
	if h.OnBatch != nil {
		h.OnBatch(size)
	}
}

func (h Hooks) batchItem(outcome string) {
	if h.OnBatchItem != nil {
		h.OnBatchItem(outcome)
	}
}

// PipelineHooks returns a Hooks that increments the corresponding metrics.
func (m *Metrics) PipelineHooks() Hooks {
	return Hooks{
		OnLLMCall: func(model, outcome string, seconds float64) {
			m.LLMCallsTotal.WithLabelValues(model, outcome).Inc()
			m.LLMDuration.WithLabelValues(model).Observe(seconds)
		},
		OnFallback: func() {
			m.FallbacksTotal.Inc()
		},
		OnMLCall: func(outcome string, synthetic bool) {
			m.MLCallsTotal.WithLabelValues(outcome).Inc()
			if synthetic {
				m.MLSyntheticTotal.Inc()
			}
		},
		OnRAGCall: func(outcome string) {
			m.RAGCallsTotal.WithLabelValues(outcome).Inc()
		},
		OnAnalysis: func(outcome string, confidence, seconds float64) {
			m.AnalysesTotal.WithLabelValues(outcome).Inc()
			m.AnalysisDuration.WithLabelValues(outcome).Observe(seconds)
			m.Confidence.Observe(confidence)
		},
		OnBatch: func(size int) {
			m.BatchesTotal.Inc()
			m.BatchSize.Observe(float64(size))
		},
		OnBatchItem: func(outcome string) {
			m.BatchItemsTotal.WithLabelValues(outcome).Inc()
		},
	}
}
