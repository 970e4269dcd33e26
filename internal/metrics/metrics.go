// Package metrics holds the Prometheus instruments of the analysis pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// pipelineMetrics holds Prometheus metrics for one process
type pipelineMetrics struct {
	once     sync.Once
	registry *prometheus.Registry

	filesDiscovered prometheus.Counter
	filesIndexed    prometheus.Counter
	indexFailures   prometheus.Counter
	analyses        *prometheus.CounterVec // by outcome
	rulesStored     prometheus.Counter
	llmCalls        *prometheus.CounterVec // by purpose and outcome
	retries         *prometheus.CounterVec // by reason
	runTransitions  *prometheus.CounterVec // by status
	embedErrors     prometheus.Counter

	phaseDuration *prometheus.HistogramVec
	llmDuration   prometheus.Histogram
}

var pm pipelineMetrics

func (m *pipelineMetrics) init() {
	m.once.Do(func() {
		m.registry = prometheus.NewRegistry()

		m.filesDiscovered = prometheus.NewCounter(prometheus.CounterOpts{Name: "ruleminer_files_discovered_total", Help: "Source files discovered"})
		m.filesIndexed = prometheus.NewCounter(prometheus.CounterOpts{Name: "ruleminer_files_indexed_total", Help: "Files added to the dependency graph"})
		m.indexFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "ruleminer_index_failures_total", Help: "Files the static indexer could not process"})
		m.analyses = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ruleminer_file_analyses_total", Help: "Per-file extraction outcomes"}, []string{"outcome"})
		m.rulesStored = prometheus.NewCounter(prometheus.CounterOpts{Name: "ruleminer_rules_stored_total", Help: "Business rules persisted"})
		m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ruleminer_llm_calls_total", Help: "Completion service calls"}, []string{"purpose", "outcome"})
		m.retries = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ruleminer_retries_total", Help: "Retries by classified reason"}, []string{"reason"})
		m.runTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ruleminer_run_transitions_total", Help: "Analysis run status transitions"}, []string{"status"})
		m.embedErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "ruleminer_embedding_errors_total", Help: "Embedding failures (row stored without vector)"})

		buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
		m.phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "ruleminer_phase_seconds", Help: "Pipeline phase duration", Buckets: buckets}, []string{"phase"})
		m.llmDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "ruleminer_llm_call_seconds", Help: "Completion call latency", Buckets: buckets})

		m.registry.MustRegister(
			m.filesDiscovered, m.filesIndexed, m.indexFailures,
			m.analyses, m.rulesStored, m.llmCalls, m.retries,
			m.runTransitions, m.embedErrors,
			m.phaseDuration, m.llmDuration,
		)
	})
}

// Registry returns the registry holding every pipeline metric
func Registry() *prometheus.Registry {
	pm.init()
	return pm.registry
}

// Handler serves the pipeline registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

// record helpers - used by the pipeline, retry policy and LLM clients
func RecordFilesDiscovered(n int) { pm.init(); pm.filesDiscovered.Add(float64(n)) }
func RecordFileIndexed()         { pm.init(); pm.filesIndexed.Inc() }
func RecordIndexFailure()        { pm.init(); pm.indexFailures.Inc() }
func RecordAnalysis(ok bool) {
	pm.init()
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	pm.analyses.WithLabelValues(outcome).Inc()
}
func RecordRulesStored(n int)             { pm.init(); pm.rulesStored.Add(float64(n)) }
func RecordRetry(reason string)           { pm.init(); pm.retries.WithLabelValues(reason).Inc() }
func RecordRunTransition(status string)   { pm.init(); pm.runTransitions.WithLabelValues(status).Inc() }
func RecordEmbeddingError()               { pm.init(); pm.embedErrors.Inc() }
func ObservePhase(phase string, d time.Duration) {
	pm.init()
	pm.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}
func RecordLLMCall(purpose string, d time.Duration, err error) {
	pm.init()
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	pm.llmCalls.WithLabelValues(purpose, outcome).Inc()
	pm.llmDuration.Observe(d.Seconds())
}
