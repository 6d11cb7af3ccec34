package domain

import "time"

const (
	// CommentLogCap is the maximum number of comments kept in the log (indices 0..80).
	CommentLogCap = 81

	DefaultUsername = "Unknown"
)

// Comment is a single chat comment. Comments are immutable once stored.
type Comment struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Time returns the comment timestamp as a time.Time.
func (c Comment) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// Snapshot is the state a newly joined connection is bootstrapped with.
// RecentComments is ordered newest first.
type Snapshot struct {
	LikeCount      int64
	RecentComments []Comment
}
