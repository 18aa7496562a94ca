package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/feedsim/internal/engine"
	"github.com/roach88/feedsim/internal/feed"
)

// postView is one post as printed by the CLI.
type postView struct {
	feed.Post
	CommentState engine.CommentState `json:"comment_state,omitempty"`
}

func newPostView(eng *engine.Engine, p feed.Post) postView {
	state, _ := eng.CommentState(p.ID)
	return postView{Post: p, CommentState: state}
}

func (v postView) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%s  %s  👍%d 👎%d", v.ID, v.Bot, v.Likes, v.Dislikes)
	for _, emoji := range v.SortedReactions() {
		fmt.Fprintf(w, "  %s×%d", emoji, v.Reactions[emoji])
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", v.Text)
	if v.Image != "" {
		fmt.Fprintf(w, "  [image %s]\n", v.Image)
	}
	for i, c := range v.Comments {
		id := c.ID
		if c.Local {
			id = "local"
		}
		fmt.Fprintf(w, "  [%d] %s (%s): %s\n", i, c.Bot, id, c.Text)
		for _, r := range c.Replies {
			fmt.Fprintf(w, "      ↳ %s: %s\n", r.Bot, r.Text)
		}
	}
}

type feedView []postView

func (v feedView) WriteText(w io.Writer) {
	if len(v) == 0 {
		fmt.Fprintln(w, "Feed is empty.")
		return
	}
	for i, p := range v {
		if i > 0 {
			fmt.Fprintln(w)
		}
		p.WriteText(w)
	}
}

type personasView []feed.Persona

func (v personasView) WriteText(w io.Writer) {
	for _, p := range v {
		fmt.Fprintf(w, "%-8s %s", p.Name, p.Model)
		if p.Profile != nil && len(p.Profile.Interests) > 0 {
			fmt.Fprintf(w, "  (%s)", strings.Join(p.Profile.Interests, ", "))
		}
		fmt.Fprintln(w)
	}
}

type transitionView struct {
	PostID string `json:"post_id"`
	feed.ReactionTransition
}

func (v transitionView) WriteText(w io.Writer) {
	switch {
	case v.Removed():
		fmt.Fprintf(w, "%s removed %s from %s\n", v.Actor, v.Previous, v.PostID)
	case v.Previous != "":
		fmt.Fprintf(w, "%s changed %s to %s on %s\n", v.Actor, v.Previous, v.Current, v.PostID)
	default:
		fmt.Fprintf(w, "%s reacted %s on %s\n", v.Actor, v.Current, v.PostID)
	}
}

type commentView struct {
	PostID string `json:"post_id"`
	feed.Comment
	Local bool `json:"local,omitempty"`
}

func (v commentView) WriteText(w io.Writer) {
	if v.Local {
		fmt.Fprintf(w, "local comment by %s on %s (not sent)\n", v.Bot, v.PostID)
		return
	}
	fmt.Fprintf(w, "comment %s by %s on %s: %s\n", v.ID, v.Bot, v.PostID, v.Text)
}

type replyView struct {
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id"`
	feed.Reply
}

func (v replyView) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%s replied to %s on %s: %s\n", v.Bot, v.CommentID, v.PostID, v.Text)
}

type simulationView struct {
	PostID    string          `json:"post_id"`
	Mode      feed.Mode       `json:"mode"`
	Kind      string          `json:"kind"`
	Outcome   json.RawMessage `json:"outcome"`
	Likes     int             `json:"likes"`
	Dislikes  int             `json:"dislikes"`
	Comments  []feed.Comment  `json:"comments"`
	Refetched bool            `json:"refetched"`
	Applied   string          `json:"applied"`
	Discarded string          `json:"discarded"`
}

func newSimulationView(r *engine.SimulationReport) (simulationView, error) {
	raw, err := feed.EncodeOutcome(r.Outcome)
	if err != nil {
		return simulationView{}, err
	}
	return simulationView{
		PostID:    r.PostID,
		Mode:      r.Mode,
		Kind:      string(r.Outcome.Kind()),
		Outcome:   raw,
		Likes:     r.Delta.Likes,
		Dislikes:  r.Delta.Dislikes,
		Comments:  r.Delta.Comments,
		Refetched: r.Refetched,
		Applied:   r.Applied.String(),
		Discarded: r.Discarded.String(),
	}, nil
}

func (v simulationView) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%s: %s (+%d likes, +%d dislikes, +%d comments)\n",
		v.PostID, v.Kind, v.Likes, v.Dislikes, len(v.Comments))
	for _, c := range v.Comments {
		fmt.Fprintf(w, "  %s: %s\n", c.Bot, c.Text)
	}
	if !v.Refetched {
		fmt.Fprintln(w, "  canonical refetch failed")
		return
	}
	fmt.Fprintf(w, "  reconciled: applied %s, discarded %s\n", v.Applied, v.Discarded)
}

type simulationsView []simulationView

func (v simulationsView) WriteText(w io.Writer) {
	for _, s := range v {
		s.WriteText(w)
	}
}

type autoReplyView struct {
	PostID       string         `json:"post_id"`
	RepliedCount int            `json:"replied_count"`
	Applied      bool           `json:"applied"`
	DroppedLocal int            `json:"dropped_local"`
	Comments     []feed.Comment `json:"comments"`
}

func (v autoReplyView) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%s: owner replied to %d comments\n", v.PostID, v.RepliedCount)
	if !v.Applied {
		fmt.Fprintln(w, "  response was stale and not applied")
	}
	if v.DroppedLocal > 0 {
		fmt.Fprintf(w, "  dropped %d local comments\n", v.DroppedLocal)
	}
}

type publicationView struct {
	Strategy string   `json:"strategy"`
	Post     postView `json:"post"`
}

func (v publicationView) WriteText(w io.Writer) {
	fmt.Fprintf(w, "published with strategy %s\n", v.Strategy)
	v.Post.WriteText(w)
}

type explanationView feed.Explanation

func (v explanationView) WriteText(w io.Writer) {
	fmt.Fprintf(w, "decision: %s\n", v.Decision)
	if v.Reason != "" {
		fmt.Fprintf(w, "reason: %s\n", v.Reason)
	}
	for _, t := range v.Tokens {
		fmt.Fprintf(w, "  %-16s %+.3f\n", t.Token, t.Weight)
	}
}

// messageView is a bare confirmation.
type messageView struct {
	Message string `json:"message"`
}

func (v messageView) WriteText(w io.Writer) {
	fmt.Fprintln(w, v.Message)
}
