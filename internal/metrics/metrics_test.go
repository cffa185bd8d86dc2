package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()
	m.ObserveScan(OutcomeOK, 120*time.Millisecond)
	m.ObserveScan(OutcomeStale, time.Second)
	m.ObserveScan(OutcomeOK, 10*time.Millisecond)
	m.ScanCoalesced()
	m.Diagnostic("error")
	m.Build("build", OutcomeFailed)
	m.Trigger("manifest")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scans.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues(OutcomeStale)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.coalesced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diagnostics.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.builds.WithLabelValues("build", OutcomeFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.scanDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveScan(OutcomeOK, time.Second)
		m.ScanCoalesced()
		m.Diagnostic("warning")
		m.Build("clean", OutcomeOK)
		m.Trigger("tree")
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerServesText(t *testing.T) {
	m := New()
	m.ScanCoalesced()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "cargoscan_scan_coalesced_total 1"), body)
}
