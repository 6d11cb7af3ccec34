package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/livepulse/internal/adapter/metrics"
	"github.com/pscheid92/livepulse/internal/domain"
	"github.com/pscheid92/livepulse/internal/livestate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var commentTime = time.UnixMilli(1_700_000_000_000)

type hubFixture struct {
	hub          *Hub
	synchronizer *livestate.Synchronizer
	metrics      *metrics.WebSocketMetrics
	url          string
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	return newHubFixtureWithStore(t, livestate.NewInMemoryStore())
}

func newHubFixtureWithStore(t *testing.T, store domain.StateStore) *hubFixture {
	t.Helper()
	synchronizer := livestate.NewSynchronizer(store, clockwork.NewFakeClockAt(commentTime))
	m := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	registry := NewRegistry()
	hub := NewHub(synchronizer, registry, NewBroadcaster(registry, m), clockwork.NewRealClock(), m)

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), conn)
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Stop(ctx)
		srv.Close()
	})

	return &hubFixture{
		hub:          hub,
		synchronizer: synchronizer,
		metrics:      m,
		url:          "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (f *hubFixture) dial(t *testing.T) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// join dials and consumes the bootstrap likes/comments pair plus the viewers broadcast.
func (f *hubFixture) join(t *testing.T, wantViewers int64) *ws.Conn {
	t.Helper()
	conn := f.dial(t)
	assert.Equal(t, domain.MessageTypeLikes, readMessage(t, conn).Type)
	assert.Equal(t, domain.MessageTypeComments, readMessage(t, conn).Type)
	expectCount(t, conn, domain.MessageTypeViewers, wantViewers)
	return conn
}

func (f *hubFixture) waitForViewerCount(t *testing.T, expected int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		n, err := f.synchronizer.ViewerCount(context.Background())
		return err == nil && n == expected
	}, 2*time.Second, 5*time.Millisecond, "viewer count never reached %d", expected)
}

type serverMessage struct {
	Type     string           `json:"type"`
	Count    int64            `json:"count"`
	Comments []domain.Comment `json:"comments"`
	Comment  domain.Comment   `json:"comment"`
}

func readMessage(t *testing.T, conn *ws.Conn) serverMessage {
	t.Helper()
	var msg serverMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func expectCount(t *testing.T, conn *ws.Conn, msgType string, count int64) {
	t.Helper()
	msg := readMessage(t, conn)
	assert.Equal(t, msgType, msg.Type)
	assert.Equal(t, count, msg.Count)
}

func sendJSON(t *testing.T, conn *ws.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func TestHub_TwoViewerScenario(t *testing.T) {
	f := newHubFixture(t)

	a := f.join(t, 1)

	b := f.dial(t)
	assert.Equal(t, domain.MessageTypeLikes, readMessage(t, b).Type)
	assert.Equal(t, domain.MessageTypeComments, readMessage(t, b).Type)
	expectCount(t, b, domain.MessageTypeViewers, 2)
	expectCount(t, a, domain.MessageTypeViewers, 2)

	sendJSON(t, a, map[string]string{"action": "like"})
	expectCount(t, a, domain.MessageTypeLikes, 1)
	expectCount(t, b, domain.MessageTypeLikes, 1)

	sendJSON(t, a, map[string]string{"action": "comment", "username": "bob", "message": "hi"})
	want := domain.Comment{Username: "bob", Message: "hi", Timestamp: commentTime.UnixMilli()}
	for _, conn := range []*ws.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, domain.MessageTypeNewComment, msg.Type)
		assert.Equal(t, want, msg.Comment)
	}

	require.NoError(t, b.Close())
	expectCount(t, a, domain.MessageTypeViewers, 1)
	f.waitForViewerCount(t, 1)
}

func TestHub_BootstrapReflectsStateAtJoin(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()
	for range 3 {
		_, err := f.synchronizer.Like(ctx)
		require.NoError(t, err)
	}
	_, err := f.synchronizer.PostComment(ctx, "ann", "first")
	require.NoError(t, err)
	_, err = f.synchronizer.PostComment(ctx, "", "second")
	require.NoError(t, err)

	conn := f.dial(t)

	likes := readMessage(t, conn)
	assert.Equal(t, domain.MessageTypeLikes, likes.Type)
	assert.Equal(t, int64(3), likes.Count)

	comments := readMessage(t, conn)
	assert.Equal(t, domain.MessageTypeComments, comments.Type)
	require.Len(t, comments.Comments, 2)
	assert.Equal(t, "second", comments.Comments[0].Message)
	assert.Equal(t, domain.DefaultUsername, comments.Comments[0].Username)
	assert.Equal(t, "first", comments.Comments[1].Message)

	expectCount(t, conn, domain.MessageTypeViewers, 1)
}

func TestHub_SequentialJoinsSeeRunningCount(t *testing.T) {
	f := newHubFixture(t)
	const n = 8

	conns := make([]*ws.Conn, 0, n)
	for i := range n {
		conns = append(conns, f.join(t, int64(i+1)))
	}

	for i, conn := range conns {
		for want := int64(i + 2); want <= n; want++ {
			expectCount(t, conn, domain.MessageTypeViewers, want)
		}
	}
	f.waitForViewerCount(t, n)
	assert.Equal(t, n, f.hub.ClientCount())
}

func TestHub_ConcurrentJoinsAndLeaves(t *testing.T) {
	f := newHubFixture(t)
	const n = 20

	conns := make([]*ws.Conn, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := ws.DefaultDialer.Dial(f.url, nil)
			if assert.NoError(t, err) {
				conns[i] = conn
			}
		}()
	}
	wg.Wait()
	f.waitForViewerCount(t, n)

	// Viewer broadcasts must arrive in store order on every connection.
	for _, conn := range conns {
		last := int64(0)
		for last < n {
			msg := readMessage(t, conn)
			if msg.Type != domain.MessageTypeViewers {
				continue
			}
			assert.Greater(t, msg.Count, last)
			last = msg.Count
		}
	}

	const leaving = 5
	for _, conn := range conns[:leaving] {
		require.NoError(t, conn.Close())
	}
	f.waitForViewerCount(t, n-leaving)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == n-leaving }, time.Second, 5*time.Millisecond)

	for _, conn := range conns[leaving:] {
		conn.Close()
	}
	f.waitForViewerCount(t, 0)
}

func TestHub_IgnoresMalformedMessages(t *testing.T) {
	f := newHubFixture(t)
	conn := f.join(t, 1)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("not json")))
	sendJSON(t, conn, map[string]string{"action": "dance"})
	require.NoError(t, conn.WriteMessage(ws.BinaryMessage, []byte{0x01}))
	sendJSON(t, conn, map[string]string{"action": "comment", "message": "   "})
	sendJSON(t, conn, map[string]string{"action": "dislike"})

	expectCount(t, conn, domain.MessageTypeLikes, -1)
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.InvalidMessages))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.InboundMessages.WithLabelValues("comment")))

	snap, err := f.synchronizer.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.RecentComments)
}

func TestHub_OversizedFrameClosesConnection(t *testing.T) {
	f := newHubFixture(t)
	conn := f.join(t, 1)

	huge := fmt.Sprintf(`{"action":"comment","message":%q}`, strings.Repeat("x", maxMessageSize))
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(huge)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	f.waitForViewerCount(t, 0)
}

// faultyStore fails the next N calls of an operation.
type faultyStore struct {
	domain.StateStore
	mu       sync.Mutex
	failures map[string]int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{StateStore: livestate.NewInMemoryStore(), failures: map[string]int{}}
}

func (s *faultyStore) failNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = n
}

func (s *faultyStore) fault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[op] == 0 {
		return nil
	}
	s.failures[op]--
	return errors.New("redis down")
}

func (s *faultyStore) Incr(ctx context.Context, key string) (int64, error) {
	if err := s.fault("incr"); err != nil {
		return 0, err
	}
	return s.StateStore.Incr(ctx, key)
}

func (s *faultyStore) Range(ctx context.Context, list string, start, stop int64) ([]string, error) {
	if err := s.fault("range"); err != nil {
		return nil, err
	}
	return s.StateStore.Range(ctx, list, start, stop)
}

func TestHub_SnapshotFailureKeepsConnection(t *testing.T) {
	store := newFaultyStore()
	store.failNext("range", 1)
	f := newHubFixtureWithStore(t, store)

	conn := f.dial(t)

	// No bootstrap could be read; registration and later traffic still work.
	expectCount(t, conn, domain.MessageTypeViewers, 1)
	sendJSON(t, conn, map[string]string{"action": "like"})
	expectCount(t, conn, domain.MessageTypeLikes, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.BootstrapFailures))
}

func TestHub_FailedRegistrationIsNotUndoneOnClose(t *testing.T) {
	store := newFaultyStore()
	store.failNext("incr", 1)
	f := newHubFixtureWithStore(t, store)

	conn := f.dial(t)
	assert.Equal(t, domain.MessageTypeLikes, readMessage(t, conn).Type)
	assert.Equal(t, domain.MessageTypeComments, readMessage(t, conn).Type)

	// The viewer broadcast is skipped, so the next message is the like result.
	sendJSON(t, conn, map[string]string{"action": "like"})
	expectCount(t, conn, domain.MessageTypeLikes, 1)

	require.NoError(t, conn.Close())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.hub.Stop(ctx))

	n, err := f.synchronizer.ViewerCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestHub_StopClosesClientsAndRejectsNewOnes(t *testing.T) {
	f := newHubFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)
	expectCount(t, a, domain.MessageTypeViewers, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.hub.Stop(ctx))

	for _, conn := range []*ws.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		assert.True(t, ws.IsCloseError(err, ws.CloseGoingAway), "got %v", err)
	}
	f.waitForViewerCount(t, 0)

	late := f.dial(t)
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := late.ReadMessage()
	assert.True(t, ws.IsCloseError(err, ws.CloseGoingAway), "got %v", err)
}
