package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepulse/internal/adapter/metrics"
	"github.com/pscheid92/livepulse/internal/domain"
	"github.com/pscheid92/livepulse/internal/platform/correlation"
)

const defaultStoreTimeout = 2 * time.Second

// State is a connection's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Hub drives each connection through Connecting, Open and Closed and applies
// client actions to the shared state, broadcasting the results.
type Hub struct {
	synchronizer domain.Synchronizer
	registry     *Registry
	broadcaster  *Broadcaster
	clock        clockwork.Clock
	metrics      *metrics.WebSocketMetrics
	storeTimeout time.Duration

	// barrier is held exclusively while a client joins and shared by every mutation+broadcast.
	barrier    sync.RWMutex
	viewersMu  sync.Mutex
	likesMu    sync.Mutex
	commentsMu sync.Mutex

	lifecycleMu sync.Mutex
	stopped     atomic.Bool
	wg          sync.WaitGroup
}

type HubOption func(*Hub)

// WithStoreTimeout bounds every state store call made by the hub.
func WithStoreTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.storeTimeout = d }
}

func NewHub(
	synchronizer domain.Synchronizer,
	registry *Registry,
	broadcaster *Broadcaster,
	clock clockwork.Clock,
	m *metrics.WebSocketMetrics,
	opts ...HubOption,
) *Hub {
	h := &Hub{
		synchronizer: synchronizer,
		registry:     registry,
		broadcaster:  broadcaster,
		clock:        clock,
		metrics:      m,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ClientCount returns the number of connections currently receiving broadcasts.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// Serve runs conn through its lifecycle and returns once the connection is closed.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) {
	h.lifecycleMu.Lock()
	if h.stopped.Load() {
		h.lifecycleMu.Unlock()
		rejectShuttingDown(conn, h.clock)
		return
	}
	h.wg.Add(1)
	h.lifecycleMu.Unlock()
	defer h.wg.Done()

	client := newClient(conn, h.clock)
	ctx = correlation.WithID(context.WithoutCancel(ctx), client.ID())
	conn.SetPingHandler(pingHandler(client))

	if !h.open(ctx, client) {
		client.stopGraceful(websocket.CloseGoingAway, "server shutting down")
		return
	}
	registered := h.register(ctx)

	h.readLoop(ctx, client)
	h.close(ctx, client, registered)
}

// Stop closes every connection with a going-away frame and waits until all Serve calls
// have finished their Closed transition, or ctx is done.
func (h *Hub) Stop(ctx context.Context) error {
	h.lifecycleMu.Lock()
	h.stopped.Store(true)
	h.lifecycleMu.Unlock()

	h.barrier.Lock()
	clients := h.registry.Drain()
	h.barrier.Unlock()
	h.metrics.ActiveConnections.Set(0)

	slog.Info("Stopping hub", "clients", len(clients))
	for _, c := range clients {
		c.stopGraceful(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub stop: %w", ctx.Err())
	}
}

// open queues the bootstrap snapshot and registers the client while no broadcast can run.
func (h *Hub) open(ctx context.Context, client *Client) bool {
	h.barrier.Lock()
	defer h.barrier.Unlock()

	if h.stopped.Load() {
		return false
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	snapshot, err := h.synchronizer.Snapshot(storeCtx)
	cancel()

	if err != nil {
		h.metrics.BootstrapFailures.Inc()
		slog.ErrorContext(ctx, "Failed to read bootstrap snapshot", "error", err)
	} else {
		h.sendBootstrap(ctx, client, snapshot)
	}

	h.registry.Add(client)
	h.metrics.ActiveConnections.Set(float64(h.registry.Len()))
	slog.DebugContext(ctx, "Client connection open", "state", StateOpen.String())
	return true
}

func (h *Hub) sendBootstrap(ctx context.Context, client *Client, snapshot domain.Snapshot) {
	if err := h.broadcaster.Send(ctx, client, domain.LikesMessage(snapshot.LikeCount)); err != nil {
		slog.WarnContext(ctx, "Failed to queue bootstrap likes", "error", err)
	}
	if err := h.broadcaster.Send(ctx, client, domain.CommentsMessage(snapshot.RecentComments)); err != nil {
		slog.WarnContext(ctx, "Failed to queue bootstrap comments", "error", err)
	}
}

// register counts the viewer and broadcasts the new total. It reports whether the
// increment happened, which decides whether close must decrement.
func (h *Hub) register(ctx context.Context) bool {
	registered := false
	h.mutate(ctx, &h.viewersMu, func(storeCtx context.Context) {
		count, err := h.synchronizer.RegisterViewer(storeCtx)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to register viewer", "error", err)
			return
		}
		registered = true
		h.broadcaster.BroadcastViewers(ctx, count)
	})
	return registered
}

func (h *Hub) close(ctx context.Context, client *Client, registered bool) {
	h.registry.Remove(client)
	h.metrics.ActiveConnections.Set(float64(h.registry.Len()))
	client.stop()

	if registered {
		h.mutate(ctx, &h.viewersMu, func(storeCtx context.Context) {
			count, err := h.synchronizer.UnregisterViewer(storeCtx)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unregister viewer", "error", err)
				return
			}
			h.broadcaster.BroadcastViewers(ctx, count)
		})
	}
	slog.DebugContext(ctx, "Client connection closed", "state", StateClosed.String(), "registered", registered)
}

func (h *Hub) readLoop(ctx context.Context, client *Client) {
	for {
		messageType, data, err := client.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "Client read failed", "error", err)
			}
			return
		}
		client.extendReadDeadline()

		if messageType != websocket.TextMessage {
			h.rejectMessage(ctx, &domain.ProtocolError{Reason: "non-text frame"})
			continue
		}
		h.handleMessage(ctx, data)
	}
}

func (h *Hub) handleMessage(ctx context.Context, data []byte) {
	var msg domain.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.rejectMessage(ctx, &domain.ProtocolError{Reason: "malformed json", Err: err})
		return
	}

	switch msg.Action {
	case domain.ActionLike:
		h.metrics.InboundMessages.WithLabelValues(msg.Action).Inc()
		h.updateLikes(ctx, h.synchronizer.Like)
	case domain.ActionDislike:
		h.metrics.InboundMessages.WithLabelValues(msg.Action).Inc()
		h.updateLikes(ctx, h.synchronizer.Dislike)
	case domain.ActionComment:
		h.metrics.InboundMessages.WithLabelValues(msg.Action).Inc()
		h.postComment(ctx, msg.Username, msg.Message)
	default:
		h.rejectMessage(ctx, &domain.ProtocolError{Reason: fmt.Sprintf("unknown action %q", msg.Action)})
	}
}

func (h *Hub) updateLikes(ctx context.Context, op func(context.Context) (int64, error)) {
	h.mutate(ctx, &h.likesMu, func(storeCtx context.Context) {
		count, err := op(storeCtx)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to update like count", "error", err)
			return
		}
		h.broadcaster.BroadcastLikes(ctx, count)
	})
}

func (h *Hub) postComment(ctx context.Context, username, message string) {
	h.mutate(ctx, &h.commentsMu, func(storeCtx context.Context) {
		comment, err := h.synchronizer.PostComment(storeCtx, username, message)
		if errors.Is(err, domain.ErrInvalidInput) {
			slog.DebugContext(ctx, "Dropping invalid comment", "error", err)
			return
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to post comment", "error", err)
			return
		}
		h.broadcaster.BroadcastComment(ctx, comment)
	})
}

// mutate runs fn under the shared join barrier and the given ordering lock,
// with a store-bounded context.
func (h *Hub) mutate(ctx context.Context, order *sync.Mutex, fn func(storeCtx context.Context)) {
	h.barrier.RLock()
	defer h.barrier.RUnlock()
	order.Lock()
	defer order.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()
	fn(storeCtx)
}

func (h *Hub) rejectMessage(ctx context.Context, err error) {
	h.metrics.InvalidMessages.Inc()
	slog.WarnContext(ctx, "Ignoring client message", "error", err)
}

// pingHandler answers pings like the default handler and also counts them as liveness.
func pingHandler(c *Client) func(string) error {
	return func(appData string) error {
		c.extendReadDeadline()
		err := c.connection.WriteControl(websocket.PongMessage, []byte(appData), c.clock.Now().Add(writeDeadline))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	}
}

func rejectShuttingDown(conn *websocket.Conn, clock clockwork.Clock) {
	closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, clock.Now().Add(writeDeadline))
	_ = conn.Close()
}
