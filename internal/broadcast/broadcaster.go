package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pscheid92/livepulse/internal/adapter/metrics"
	"github.com/pscheid92/livepulse/internal/domain"
)

// Broadcaster serializes server messages and fans them out to every registered client.
type Broadcaster struct {
	registry *Registry
	metrics  *metrics.WebSocketMetrics
}

func NewBroadcaster(registry *Registry, m *metrics.WebSocketMetrics) *Broadcaster {
	return &Broadcaster{registry: registry, metrics: m}
}

func (b *Broadcaster) BroadcastViewers(ctx context.Context, count int64) {
	b.broadcast(ctx, domain.MessageTypeViewers, domain.ViewersMessage(count))
}

func (b *Broadcaster) BroadcastLikes(ctx context.Context, count int64) {
	b.broadcast(ctx, domain.MessageTypeLikes, domain.LikesMessage(count))
}

func (b *Broadcaster) BroadcastComment(ctx context.Context, comment domain.Comment) {
	b.broadcast(ctx, domain.MessageTypeNewComment, domain.NewCommentMessage(comment))
}

// Send enqueues msg for a single client without touching the registry.
func (b *Broadcaster) Send(ctx context.Context, c *Client, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := c.Send(data); err != nil {
		slog.DebugContext(ctx, "Direct send failed", "client_id", c.ID(), "error", err)
		return err
	}
	return nil
}

func (b *Broadcaster) broadcast(ctx context.Context, msgType string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal broadcast", "type", msgType, "error", err)
		return
	}

	evicted := b.registry.ForEach(func(c *Client) error {
		return c.Send(data)
	})
	b.metrics.MessagesPublished.WithLabelValues(msgType).Inc()

	if len(evicted) == 0 {
		return
	}
	for _, c := range evicted {
		slog.WarnContext(ctx, "Evicting client after failed send", "client_id", c.ID(), "type", msgType, "error", domain.ErrSendFailure)
		b.metrics.SlowClientsEvicted.Inc()
		c.stop()
	}
	b.metrics.ActiveConnections.Set(float64(b.registry.Len()))
}
