package livestate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepulse/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	ViewerCountKey = "viewer_count"
	LikeCountKey   = "like_count"
	CommentLogKey  = "comments"
)

var _ domain.Synchronizer = (*Synchronizer)(nil)

type Synchronizer struct {
	store       domain.StateStore
	clock       clockwork.Clock
	viewerReads singleflight.Group
}

func NewSynchronizer(store domain.StateStore, clock clockwork.Clock) *Synchronizer {
	return &Synchronizer{store: store, clock: clock}
}

func (s *Synchronizer) RegisterViewer(ctx context.Context) (int64, error) {
	return s.counter(ctx, "incr", ViewerCountKey, s.store.Incr)
}

// UnregisterViewer decrements the viewer count. The result may go negative if
// increments and decrements become unpaired; callers decide whether to call it.
func (s *Synchronizer) UnregisterViewer(ctx context.Context) (int64, error) {
	return s.counter(ctx, "decr", ViewerCountKey, s.store.Decr)
}

func (s *Synchronizer) Like(ctx context.Context) (int64, error) {
	return s.counter(ctx, "incr", LikeCountKey, s.store.Incr)
}

// Dislike decrements the like count unconditionally; the tally may go negative.
func (s *Synchronizer) Dislike(ctx context.Context) (int64, error) {
	return s.counter(ctx, "decr", LikeCountKey, s.store.Decr)
}

func (s *Synchronizer) counter(ctx context.Context, op, key string, apply func(context.Context, string) (int64, error)) (int64, error) {
	value, err := apply(ctx, key)
	if err != nil {
		return 0, &domain.StoreError{Op: op + " " + key, Err: err}
	}
	return value, nil
}

// PostComment validates, timestamps and stores a comment at the head of the log,
// trimming the log to domain.CommentLogCap entries.
func (s *Synchronizer) PostComment(ctx context.Context, username, message string) (domain.Comment, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.Comment{}, fmt.Errorf("%w: comment message is empty", domain.ErrInvalidInput)
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username = domain.DefaultUsername
	}

	comment := domain.Comment{
		Username:  username,
		Message:   message,
		Timestamp: s.clock.Now().UnixMilli(),
	}

	data, err := json.Marshal(comment)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("failed to marshal comment: %w", err)
	}

	if err := s.store.PushCapped(ctx, CommentLogKey, string(data), domain.CommentLogCap); err != nil {
		return domain.Comment{}, &domain.StoreError{Op: "push " + CommentLogKey, Err: err}
	}

	return comment, nil
}

// Snapshot reads the current like count and the recent comments, newest first.
// Log entries that cannot be decoded are skipped.
func (s *Synchronizer) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	likes, err := s.store.Get(ctx, LikeCountKey)
	if err != nil {
		return domain.Snapshot{}, &domain.StoreError{Op: "get " + LikeCountKey, Err: err}
	}

	raw, err := s.store.Range(ctx, CommentLogKey, 0, domain.CommentLogCap-1)
	if err != nil {
		return domain.Snapshot{}, &domain.StoreError{Op: "range " + CommentLogKey, Err: err}
	}

	comments := make([]domain.Comment, 0, len(raw))
	for i, entry := range raw {
		var c domain.Comment
		if err := json.Unmarshal([]byte(entry), &c); err != nil {
			slog.WarnContext(ctx, "Skipping undecodable comment log entry", "index", i, "error", err)
			continue
		}
		comments = append(comments, c)
	}

	return domain.Snapshot{LikeCount: likes, RecentComments: comments}, nil
}

// ViewerCount reads the current viewer count. Concurrent callers share one store round trip.
func (s *Synchronizer) ViewerCount(ctx context.Context) (int64, error) {
	v, err, _ := s.viewerReads.Do(ViewerCountKey, func() (any, error) {
		return s.store.Get(ctx, ViewerCountKey)
	})
	if err != nil {
		return 0, &domain.StoreError{Op: "get " + ViewerCountKey, Err: err}
	}
	return v.(int64), nil
}

// ResetCounters zeroes the viewer and like counters. The comment log is left untouched.
func (s *Synchronizer) ResetCounters(ctx context.Context) error {
	for _, key := range []string{ViewerCountKey, LikeCountKey} {
		if err := s.store.Set(ctx, key, 0); err != nil {
			return &domain.StoreError{Op: "set " + key, Err: err}
		}
	}
	return nil
}
