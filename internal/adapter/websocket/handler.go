package websocket

import (
	"context"
	"log/slog"
	"net/http"

	ws "github.com/gorilla/websocket"
	"github.com/pscheid92/livepulse/internal/adapter/metrics"
)

// Hub runs an upgraded connection until it closes.
type Hub interface {
	Serve(ctx context.Context, conn *ws.Conn)
}

// Handler upgrades requests to WebSocket and hands the connection to the hub.
type Handler struct {
	hub      Hub
	upgrader ws.Upgrader
	limiter  *ConnectionLimiter
	metrics  *metrics.WebSocketMetrics
}

func NewHandler(hub Hub, limiter *ConnectionLimiter, checkOrigin func(*http.Request) bool, m *metrics.WebSocketMetrics) *Handler {
	return &Handler{
		hub: hub,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		limiter: limiter,
		metrics: m,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Acquire() {
		h.metrics.RejectedUpgrades.Inc()
		slog.WarnContext(r.Context(), "WebSocket connection limit reached",
			"max", h.limiter.Max(),
			"remote_addr", r.RemoteAddr,
		)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	defer h.limiter.Release()

	// Upgrade writes its own error response.
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.DebugContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	h.hub.Serve(r.Context(), conn)
}
