package domain

// Outbound message types.
const (
	MessageTypeViewers    = "viewers"
	MessageTypeLikes      = "likes"
	MessageTypeComments   = "comments"
	MessageTypeNewComment = "new_comment"
)

// Inbound actions.
const (
	ActionComment = "comment"
	ActionLike    = "like"
	ActionDislike = "dislike"
)

// CountMessage carries a counter value ("viewers" or "likes").
type CountMessage struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// CommentListMessage is the bootstrap comment list, newest first.
type CommentListMessage struct {
	Type     string    `json:"type"`
	Comments []Comment `json:"comments"`
}

// CommentMessage announces a newly stored comment.
type CommentMessage struct {
	Type    string  `json:"type"`
	Comment Comment `json:"comment"`
}

// ClientMessage is a client to server frame.
type ClientMessage struct {
	Action   string `json:"action"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

func ViewersMessage(count int64) CountMessage {
	return CountMessage{Type: MessageTypeViewers, Count: count}
}

func LikesMessage(count int64) CountMessage {
	return CountMessage{Type: MessageTypeLikes, Count: count}
}

// CommentsMessage builds the bootstrap list. A nil slice is sent as an empty array.
func CommentsMessage(comments []Comment) CommentListMessage {
	if comments == nil {
		comments = []Comment{}
	}
	return CommentListMessage{Type: MessageTypeComments, Comments: comments}
}

func NewCommentMessage(c Comment) CommentMessage {
	return CommentMessage{Type: MessageTypeNewComment, Comment: c}
}
