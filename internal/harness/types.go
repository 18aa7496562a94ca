package harness

import (
	"github.com/roach88/feedsim/internal/engine"
	"github.com/roach88/feedsim/internal/feed"
)

// CaseOK is the case of a step whose operation returned no error.
const CaseOK = "ok"

// StepRecord is one executed flow step in the trace.
type StepRecord struct {
	Step   int                    `json:"step"`
	Op     string                 `json:"op"`
	Args   map[string]interface{} `json:"args,omitempty"`
	Case   string                 `json:"case"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"-"`
}

// PostSnapshot is the engine's local view of one post, without volatile
// fields such as timestamps.
type PostSnapshot struct {
	ID            string            `json:"id"`
	Bot           string            `json:"bot"`
	Text          string            `json:"text"`
	Likes         int               `json:"likes"`
	Dislikes      int               `json:"dislikes"`
	Reactions     map[string]int    `json:"reactions"`
	UserReactions map[string]string `json:"user_reactions"`
	Comments      []CommentSnapshot `json:"comments"`
	CommentState  string            `json:"comment_state"`
}

// CommentSnapshot is one comment of a PostSnapshot.
type CommentSnapshot struct {
	ID      string       `json:"id,omitempty"`
	Bot     string       `json:"bot"`
	Text    string       `json:"text"`
	Local   bool         `json:"local,omitempty"`
	Replies []feed.Reply `json:"replies,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success: every expect clause and
	// assertion matched.
	Pass bool `json:"pass"`

	// Trace contains the executed flow steps in order.
	Trace []StepRecord `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Feed is the engine's final local feed.
	Feed []PostSnapshot `json:"feed"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepRecord{},
		Errors: []string{},
		Feed:   []PostSnapshot{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace.
func (r *Result) AddStep(rec StepRecord) {
	rec.Step = len(r.Trace) + 1
	r.Trace = append(r.Trace, rec)
}

func snapshotPost(p feed.Post, state engine.CommentState) PostSnapshot {
	s := PostSnapshot{
		ID:            p.ID,
		Bot:           p.Bot,
		Text:          p.Text,
		Likes:         p.Likes,
		Dislikes:      p.Dislikes,
		Reactions:     map[string]int{},
		UserReactions: map[string]string{},
		Comments:      make([]CommentSnapshot, 0, len(p.Comments)),
		CommentState:  string(state),
	}
	for k, v := range p.Reactions {
		s.Reactions[k] = v
	}
	for k, v := range p.UserReactions {
		s.UserReactions[k] = v
	}
	for _, c := range p.Comments {
		cs := CommentSnapshot{ID: c.ID, Bot: c.Bot, Text: c.Text, Local: c.Local}
		if len(c.Replies) > 0 {
			cs.Replies = append([]feed.Reply(nil), c.Replies...)
		}
		s.Comments = append(s.Comments, cs)
	}
	return s
}
