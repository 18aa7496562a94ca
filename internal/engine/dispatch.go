package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/feedsim/internal/feed"
)

// SimulationReport describes what one simulation did to a post.
type SimulationReport struct {
	PostID  string
	Mode    feed.Mode
	Outcome feed.Outcome
	Delta   feed.Delta

	// Refetched is true once the canonical post was received.
	Refetched bool

	// Applied and Discarded name the sections of the canonical post that
	// replaced local state or were dropped as stale.
	Applied   Section
	Discarded Section
}

// Simulate asks the backend to evaluate persona interactions with a post.
//
// Outcome deltas are applied first (likes, dislikes, identified comments
// in backend order); then the canonical post is always refetched and
// replaces the local approximation, section by section, unless a newer
// token was issued for that section in the meantime.
//
// A failed refetch returns the report (Refetched=false) together with a
// NETWORK_FAILURE error; the deltas stay applied.
func (e *Engine) Simulate(ctx context.Context, postID string, mode feed.Mode) (*SimulationReport, error) {
	const op = "simulate"

	if !mode.Valid() {
		return nil, invalidState(op, postID, "mode must be single or all")
	}
	if !e.posts.Has(postID) {
		return nil, notFound(op, postID, "post not in feed")
	}

	ctx, log := e.beginFlow(ctx, op, postID)

	outcome, err := e.backend.SimulateInteraction(ctx, postID, mode)
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("simulation failed", "mode", mode, "error", err)
		return nil, classify(op, postID, "simulate interaction", err)
	}
	if outcome == nil {
		return nil, malformed(op, postID, "empty outcome", nil)
	}
	if isBatch := outcome.Kind() == feed.KindBatch; isBatch != (mode == feed.ModeAll) {
		log.Warn("outcome shape does not match mode",
			"mode", mode,
			"kind", outcome.Kind(),
		)
	}

	report := &SimulationReport{
		PostID:  postID,
		Mode:    mode,
		Outcome: outcome,
		Delta:   feed.Effects(outcome),
	}

	if err := e.applyDelta(ctx, op, postID, report.Delta); err != nil {
		return report, err
	}
	log.Debug("outcome applied",
		"kind", outcome.Kind(),
		"likes", report.Delta.Likes,
		"dislikes", report.Delta.Dislikes,
		"comments", len(report.Delta.Comments),
	)

	canonical, applied, discarded, err := e.refetch(ctx, op, postID, log)
	if err != nil {
		return report, err
	}
	report.Refetched = true
	report.Applied = applied
	report.Discarded = discarded

	log.Info("simulation reconciled",
		"mode", mode,
		"likes", canonical.Likes,
		"comments", len(canonical.Comments),
		"applied", applied,
		"discarded", discarded,
	)
	return report, nil
}

// applyDelta adds outcome effects to the post. Comments already present
// by identifier are skipped.
func (e *Engine) applyDelta(ctx context.Context, op, postID string, d feed.Delta) error {
	if d.Empty() {
		return nil
	}
	err := e.submit(ctx, op, postID, func() error {
		return e.posts.Update(postID, func(p *feed.Post) error {
			var touched Section
			if d.Likes != 0 || d.Dislikes != 0 {
				p.Likes += d.Likes
				p.Dislikes += d.Dislikes
				touched |= SectionReactions
			}
			for _, c := range d.Comments {
				if p.CommentIndex(c.ID) >= 0 {
					continue
				}
				p.Comments = append(p.Comments, c)
				touched |= SectionComments
			}
			if touched != 0 {
				e.tokens.Issue(postID, touched)
			}
			return nil
		})
	})
	return storeErr(op, postID, err)
}

// SimulateAll runs Simulate concurrently over every post in the feed.
// Reports are returned in feed order; failures are joined.
func (e *Engine) SimulateAll(ctx context.Context, mode feed.Mode) ([]*SimulationReport, error) {
	ids := e.posts.IDs()
	reports := make([]*SimulationReport, len(ids))
	errs := make([]error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], errs[i] = e.Simulate(ctx, id, mode)
		}()
	}
	wg.Wait()

	return reports, errors.Join(errs...)
}

// Refresh refetches one post and applies it under the token guard. A post
// not yet in the feed is added.
func (e *Engine) Refresh(ctx context.Context, postID string) (feed.Post, error) {
	const op = "refresh"

	ctx, log := e.beginFlow(ctx, op, postID)
	if _, _, _, err := e.refetch(ctx, op, postID, log); err != nil {
		return feed.Post{}, err
	}
	p, ok := e.posts.Get(postID)
	if !ok {
		return feed.Post{}, notFound(op, postID, "post removed while refreshing")
	}
	return p, nil
}

// refetch issues a token for both sections, fetches the canonical post and
// applies it.
func (e *Engine) refetch(ctx context.Context, op, postID string, log *slog.Logger) (feed.Post, Section, Section, error) {
	tok := e.tokens.Issue(postID, SectionAll)

	canonical, err := e.backend.GetPost(ctx, postID)
	e.metrics.request(op+"_refetch", err)
	if err != nil {
		log.Warn("canonical refetch failed", "error", err)
		return feed.Post{}, 0, 0, classify(op, postID, "refetch canonical post", err)
	}
	if canonical.ID == "" {
		canonical.ID = postID
	}
	e.prepareCanonical(&canonical, log)

	var applied, discarded Section
	err = e.submit(ctx, op, postID, func() error {
		applied, discarded = e.applyCanonical(canonical, tok.Seq, log)
		return nil
	})
	if err != nil {
		return canonical, applied, discarded, err
	}
	return canonical, applied, discarded, nil
}

// prepareCanonical normalizes a canonical post and repairs reaction
// counts that contradict the actor map.
func (e *Engine) prepareCanonical(p *feed.Post, log *slog.Logger) {
	p.Normalize()
	if err := p.CheckInvariants(); err != nil {
		log.Warn("canonical post violates invariants, rebuilding reaction counts",
			"post", p.ID,
			"error", err,
		)
		p.RepairReactions()
	}
}

// applyCanonical replaces each section of the stored post whose token is
// still current for seq. A post absent from the store is inserted when
// both sections are current.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) applyCanonical(canonical feed.Post, seq int64, log *slog.Logger) (applied, discarded Section) {
	id := canonical.ID
	reactionsCurrent := e.tokens.Current(id, SectionReactions, seq)
	commentsCurrent := e.tokens.Current(id, SectionComments, seq)

	err := e.posts.Update(id, func(p *feed.Post) error {
		if reactionsCurrent {
			p.ReplaceReactions(canonical)
			applied |= SectionReactions
		} else {
			discarded |= SectionReactions
		}
		if commentsCurrent {
			if dropped := p.ReplaceComments(canonical.Comments); dropped > 0 {
				e.metrics.droppedLocal.Add(float64(dropped))
				log.Info("canonical comments replaced local comments", "dropped", dropped)
			}
			applied |= SectionComments
		} else {
			discarded |= SectionComments
		}
		if applied != 0 {
			p.ReplaceMetadata(canonical)
		}
		return nil
	})
	if errors.Is(err, feed.ErrPostNotFound) {
		if reactionsCurrent && commentsCurrent {
			e.posts.Put(canonical)
			applied = SectionAll
		} else {
			discarded = SectionAll
		}
	}

	for _, s := range []Section{SectionReactions, SectionComments} {
		if discarded.Has(s) {
			e.metrics.discard(s)
			log.Info("stale canonical section discarded",
				"section", s,
				"seq", seq,
				"latest", e.tokens.Latest(id, s),
			)
		}
	}
	return applied, discarded
}
