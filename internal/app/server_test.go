package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"converge/internal/cluster/clustertest"
)

func TestHealthHandler(t *testing.T) {
	services, err := newServices(testConfig(t, map[string]string{"widgets.yaml": widgetController}), clustertest.New(nil))
	require.NoError(t, err)
	handler := newHealthHandler(services.Manager)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz/ping").Code)
	assert.Equal(t, http.StatusInternalServerError, get("/healthz").Code, "sources not started")
	assert.Equal(t, http.StatusInternalServerError, get("/readyz").Code, "not ready before start")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- services.Manager.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	require.Eventually(t, services.Manager.Running, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusOK, get("/readyz").Code)
	assert.Eventually(t, func() bool { return get("/healthz").Code == http.StatusOK }, 5*time.Second, 10*time.Millisecond)

	rec := get("/statusz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var report StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Running)
	require.Len(t, report.Controllers, 1)
	assert.Equal(t, "widgets", report.Controllers[0].Name)
	assert.NotNil(t, report.Controllers[0].Resources)
}

func TestMetricsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	newMetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newMetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPServer(t *testing.T) {
	s, err := listen("test", "127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	require.NoError(t, err)
	go s.serve()
	defer s.shutdown()

	resp, err := http.Get("http://" + s.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	_, err = listen("again", s.Addr(), http.NotFoundHandler())
	assert.Error(t, err)
}
