package engine

import (
	"context"

	"github.com/roach88/feedsim/internal/feed"
)

// AutoReplyReport describes one owner auto-reply cycle.
type AutoReplyReport struct {
	PostID       string
	RepliedCount int
	Comments     []feed.Comment

	// Applied is false when a newer comment change made the response stale.
	Applied bool

	// DroppedLocal counts unconfirmed local comments lost to the replace.
	DroppedLocal int
}

// OwnerAutoReply lets the post owner reply to existing comments through
// the backend, then replaces the post's comment sequence wholesale with
// the canonical collection returned. Local comments are discarded.
//
// The replace is idempotent: applying the same response again leaves the
// same comments.
func (e *Engine) OwnerAutoReply(ctx context.Context, postID string) (*AutoReplyReport, error) {
	const op = "owner_auto_reply"

	if !e.posts.Has(postID) {
		return nil, notFound(op, postID, "post not in feed")
	}

	ctx, log := e.beginFlow(ctx, op, postID)
	tok := e.tokens.Issue(postID, SectionComments)

	res, err := e.backend.OwnerReply(ctx, postID)
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("owner auto-reply failed", "error", err)
		return nil, classify(op, postID, "owner reply", err)
	}

	comments := feed.CloneComments(res.Comments)
	for i, c := range comments {
		if !c.Identified() {
			return nil, malformed(op, postID, "canonical comment without identifier", nil)
		}
		comments[i].Text = feed.NormalizeText(c.Text)
	}

	report := &AutoReplyReport{
		PostID:       postID,
		RepliedCount: res.RepliedCount,
		Comments:     comments,
	}

	err = e.submit(ctx, op, postID, func() error {
		return e.posts.Update(postID, func(p *feed.Post) error {
			if !e.tokens.Current(postID, SectionComments, tok.Seq) {
				e.metrics.discard(SectionComments)
				return nil
			}
			report.DroppedLocal = p.ReplaceComments(comments)
			report.Applied = true
			return nil
		})
	})
	if err != nil {
		return report, storeErr(op, postID, err)
	}

	if report.DroppedLocal > 0 {
		e.metrics.droppedLocal.Add(float64(report.DroppedLocal))
	}
	if !report.Applied {
		log.Info("stale owner auto-reply discarded",
			"seq", tok.Seq,
			"latest", e.tokens.Latest(postID, SectionComments),
		)
	}

	log.Info("owner auto-reply reconciled",
		"comments", len(comments),
		"replied", res.RepliedCount,
		"applied", report.Applied,
		"dropped_local", report.DroppedLocal,
	)
	return report, nil
}
