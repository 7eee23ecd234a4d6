package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-timetable-api/internal/service"
)

func newMetricsRouter(h *MetricsHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics", h.Prometheus)
	router.GET("/metrics/summary", h.Snapshot)
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	return router
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return nil },
	})
	w := httptest.NewRecorder()
	newMetricsRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","dependencies":{"postgres":"ok","redis":"ok"}}`, w.Body.String())
}

func TestMetricsHandlerReadyDegraded(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("dial tcp: connection refused") },
	})
	w := httptest.NewRecorder()
	newMetricsRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Dependencies["postgres"])
	assert.Contains(t, body.Dependencies["redis"], "connection refused")
}

func TestMetricsHandlerPrometheusExposesJobCounters(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.JobStarted()
	metrics.JobFinished(service.OutcomeCompleted, 2*time.Second)
	h := NewMetricsHandler(metrics, nil)

	w := httptest.NewRecorder()
	newMetricsRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `timetable_generation_jobs_total{outcome="completed"} 1`)
}

func TestMetricsHandlerPrometheusWithoutService(t *testing.T) {
	w := httptest.NewRecorder()
	newMetricsRouter(NewMetricsHandler(nil, nil)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsHandlerSnapshot(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.JobStarted()
	h := NewMetricsHandler(metrics, nil)

	w := httptest.NewRecorder()
	newMetricsRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics/summary", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data service.MetricsSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, uint64(1), body.Data.JobsStarted)
	assert.Equal(t, int64(1), body.Data.ActiveJobs)
}
