package httpserver

import (
	"context"
	"net/http"
	"testing"

	"github.com/pscheid92/livepulse/internal/platform/config"
)

type mockViewerCounter struct {
	viewerCountFn func(ctx context.Context) (int64, error)
}

func (m *mockViewerCounter) ViewerCount(ctx context.Context) (int64, error) {
	if m.viewerCountFn != nil {
		return m.viewerCountFn(ctx)
	}
	return 0, nil
}

func newTestServer(t *testing.T, viewers viewerCounter, opts ...func(*Server)) *Server {
	t.Helper()

	srv := NewServer(&config.Config{Port: "0"}, viewers, http.NotFoundHandler(), nil, nil, nil)
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}
