package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/livepulse/internal/adapter/metrics"
	"github.com/pscheid92/livepulse/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutes_WebSocketEndpoints(t *testing.T) {
	upgrader := ws.Upgrader{}
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(ws.TextMessage, []byte(r.URL.Path))
	})

	srv := NewServer(&config.Config{Port: "0"}, &mockViewerCounter{}, wsHandler, nil, nil, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	base := "ws" + strings.TrimPrefix(ts.URL, "http")

	for _, path := range []string{"/", "/ws"} {
		conn, _, err := ws.DefaultDialer.Dial(base+path, nil)
		require.NoError(t, err, path)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, path, string(data))
		conn.Close()
	}
}

func TestRoutes_MetricsAndRequestCounting(t *testing.T) {
	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	srv := NewServer(&config.Config{Port: "0"}, &mockViewerCounter{}, http.NotFoundHandler(), metrics.Handler(reg), httpMetrics, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/viewers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, float64(1), testutil.ToFloat64(httpMetrics.RequestsTotal.WithLabelValues("GET", "/viewers", "200")))

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "livepulse_http_requests_total")
}

func TestRoutes_UnknownPathIsNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, &mockViewerCounter{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
