package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRetry(t *testing.T) {
	pm.init()
	before := testutil.ToFloat64(pm.retries.WithLabelValues("rate_limit"))

	RecordRetry("rate_limit")
	RecordRetry("rate_limit")

	assert.Equal(t, before+2, testutil.ToFloat64(pm.retries.WithLabelValues("rate_limit")))
}

func TestRecordAnalysisOutcomes(t *testing.T) {
	pm.init()
	ok := testutil.ToFloat64(pm.analyses.WithLabelValues("success"))
	bad := testutil.ToFloat64(pm.analyses.WithLabelValues("failure"))

	RecordAnalysis(true)
	RecordAnalysis(false)
	RecordAnalysis(false)

	assert.Equal(t, ok+1, testutil.ToFloat64(pm.analyses.WithLabelValues("success")))
	assert.Equal(t, bad+2, testutil.ToFloat64(pm.analyses.WithLabelValues("failure")))
}

func TestRegistryGathers(t *testing.T) {
	RecordLLMCall("extract", time.Second, nil)
	RecordLLMCall("report", time.Second, errors.New("boom"))
	ObservePhase("indexing", 250*time.Millisecond)
	RecordRulesStored(3)
	RecordRunTransition("COMPLETED")
	RecordFilesDiscovered(4)
	RecordFileIndexed()
	RecordIndexFailure()
	RecordEmbeddingError()

	families, err := Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"ruleminer_llm_calls_total",
		"ruleminer_phase_seconds",
		"ruleminer_rules_stored_total",
		"ruleminer_run_transitions_total",
	} {
		assert.True(t, names[want], want)
	}
}

func TestHandler(t *testing.T) {
	RecordRulesStored(1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ruleminer_rules_stored_total")
}
