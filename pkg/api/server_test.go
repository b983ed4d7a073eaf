package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mendhq/mend/pkg/metrics"
	"github.com/mendhq/mend/pkg/snapshot"
	"github.com/mendhq/mend/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	store, err := snapshot.Open(filepath.Join(t.TempDir(), "data"), snapshot.Options{
		MaxRollbackPoints: 10,
		MaxHistory:        10,
		FailureThreshold:  0.5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewServer("127.0.0.1:0", metrics.NewRecorder(), store)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestDashboardEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)

	var dash metrics.Dashboard
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dash))
	assert.Len(t, dash.TimeSeries, 24)
}

func TestReportEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/report?period=1h")
	require.Equal(t, http.StatusOK, rec.Code)

	var rep metrics.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rep))
	assert.Zero(t, rep.Summary.TasksStarted)
}

func TestReportRejectsBadPeriod(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/report?period=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRollbackPointsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/rollback-points")
	require.Equal(t, http.StatusOK, rec.Code)

	var points []snapshot.RollbackPoint
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&points))
	assert.Empty(t, points)
}

func TestRollbackPointsRejectsBadLimit(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/rollback-points?limit=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	metrics.ErrorsObservedTotal.WithLabelValues(string(types.ErrorKindImport)).Inc()

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mend_errors_observed_total")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/dashboard", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
