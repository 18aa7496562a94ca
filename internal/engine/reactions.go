package engine

import (
	"context"
	"strings"

	"github.com/roach88/feedsim/internal/feed"
)

// Toggle applies an exclusive emoji reaction for actorID on a post.
//
// The transition is applied to the Post Store first, then confirmed with
// the backend. The local state is correct by construction and is never
// corrected from the confirmation; if the confirmation fails the change
// stays in place and the failure is returned. While the confirmation is
// in flight, canonical responses for the post's reactions are discarded.
func (e *Engine) Toggle(ctx context.Context, postID, actorID, emoji string) (feed.ReactionTransition, error) {
	const op = "toggle"

	actorID = strings.TrimSpace(actorID)
	emoji = feed.NormalizeEmoji(emoji)
	if actorID == "" || emoji == "" {
		return feed.ReactionTransition{}, invalidState(op, postID, "actor and emoji are required")
	}

	ctx, log := e.beginFlow(ctx, op, postID)

	hold := e.tokens.Hold(postID, SectionReactions)
	defer e.tokens.Release(hold)

	var tr feed.ReactionTransition
	err := e.submit(ctx, op, postID, func() error {
		return e.posts.Update(postID, func(p *feed.Post) error {
			tr = p.ToggleReaction(actorID, emoji)
			return nil
		})
	})
	if err != nil {
		return tr, storeErr(op, postID, err)
	}
	e.metrics.optimistic.WithLabelValues(op).Inc()
	log.Debug("reaction applied",
		"actor", actorID,
		"previous", tr.Previous,
		"current", tr.Current,
	)

	err = e.backend.React(ctx, postID, actorID, emoji)
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("reaction confirmation failed, keeping local state",
			"actor", actorID,
			"emoji", emoji,
			"error", err,
		)
		return tr, classify(op, postID, "confirm reaction", err)
	}

	return tr, nil
}
