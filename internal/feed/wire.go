package feed

import "fmt"

// Mode selects how many actors a simulation evaluates.
type Mode string

const (
	// ModeSingle evaluates one actor and yields exactly one non-batch outcome.
	ModeSingle Mode = "single"
	// ModeAll evaluates every configured actor and yields a Batch.
	ModeAll Mode = "all"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSingle || m == ModeAll
}

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode %q: must be %q or %q", s, ModeSingle, ModeAll)
	}
	return m, nil
}

// DeleteCommentRequest addresses a comment by position and, when known,
// by identifier. A backend that receives both rejects the request if they
// disagree.
type DeleteCommentRequest struct {
	PostID    string `json:"postId"`
	Index     int    `json:"index"`
	CommentID string `json:"comment_id,omitempty"`
}

// OwnerReplyResult is the canonical comment collection returned by an
// owner auto-reply cycle.
type OwnerReplyResult struct {
	Comments     []Comment `json:"comments"`
	RepliedCount int       `json:"replied_count"`
}

// BotReplyResult is a backend-authored comment on a post.
type BotReplyResult struct {
	CommentID string `json:"comment_id"`
	Bot       string `json:"bot"`
	Reply     string `json:"reply"`
}
