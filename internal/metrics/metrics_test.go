package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireline/internal/metrics"
)

func TestCounters(t *testing.T) {
	m := metrics.New()
	m.Transition("hired", "hrd")
	m.Transition("hired", "hrd")
	m.GateOutcome("ktp", "needs_review")
	m.CollaboratorError("contract")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("hired", "hrd")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateOutcomes.WithLabelValues("ktp", "needs_review")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollaboratorErrors.WithLabelValues("contract")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.Transition("hired", "hrd")
	m.LinkFailure("link_expired")
	m.HRDDecision("approved")
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := metrics.New()
	m.HRDDecision("approved")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hireline_hrd_decisions_total{decision="approved"} 1`)
}
