package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/config"
	"github.com/lazypower/constellation/internal/engine"
	"github.com/lazypower/constellation/internal/metrics"
	"github.com/lazypower/constellation/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func workday() []activity.Entry {
	return []activity.Entry{
		{App: "Slack", Title: "Ana Lima (DM) - Acme - Slack", Timestamp: t0},
		{App: "Google Chrome", Title: "lazypower/constellation", URL: "https://github.com/lazypower/constellation", Timestamp: t0.Add(2 * time.Minute)},
		{App: "Slack", Title: "Ana Lima (DM) - Acme - Slack", Timestamp: t0.Add(3 * time.Minute)},
	}
}

func testEngine(t *testing.T, m *metrics.Metrics) *engine.Engine {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Graph.NER = false
	return engine.New(cfg, engine.Deps{
		DB:      db,
		Metrics: m,
		Clock:   func() time.Time { return t0.Add(10 * time.Minute) },
	})
}

func testServer(t *testing.T) *Server {
	t.Helper()
	return New(testEngine(t, nil), "test-version")
}

// seededServer is a server whose engine has already seen a short workday.
func seededServer(t *testing.T) *Server {
	t.Helper()
	eng := testEngine(t, nil)
	eng.Accept(activity.Delta{Activities: workday()})
	return New(eng, "test-version")
}

func do(t *testing.T, srv http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv := seededServer(t)

	w := do(t, srv, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-version", body["version"])
	assert.Equal(t, false, body["assist"])
	assert.Positive(t, body["nodes"])
	assert.Positive(t, body["edges"])
}

func TestMetricsEndpoint(t *testing.T) {
	eng := testEngine(t, metrics.New())
	eng.Accept(activity.Delta{Activities: workday()})
	srv := New(eng, "test-version")

	w := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "constellation_graph_nodes")
	assert.Contains(t, w.Body.String(), `constellation_entities_added_total{source="rules"}`)
}

func TestMetricsDisabled(t *testing.T) {
	w := do(t, testServer(t), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	w := do(t, testServer(t), http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, testServer(t), http.MethodPut, "/api/activity", strings.NewReader("{}"))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
