package engine

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/roach88/feedsim/internal/feed"
)

var (
	errCommentGone   = errors.New("comment no longer present")
	errIndexOutRange = errors.New("comment index out of range")
)

// AddReply replies to an identified comment. The reply is appended only
// after the backend confirms it.
//
// Replying to a comment without an identifier fails with INVALID_STATE
// and issues no request.
func (e *Engine) AddReply(ctx context.Context, postID, commentID, actorID, text string) (feed.Reply, error) {
	const op = "add_reply"

	if commentID == "" {
		return feed.Reply{}, invalidState(op, postID, "comment has no identifier")
	}
	actorID = strings.TrimSpace(actorID)
	text = feed.NormalizeText(text)
	if actorID == "" || text == "" {
		return feed.Reply{}, invalidState(op, postID, "actor and text are required")
	}

	p, ok := e.posts.Get(postID)
	if !ok {
		return feed.Reply{}, notFound(op, postID, "post not in feed")
	}
	if p.CommentIndex(commentID) < 0 {
		return feed.Reply{}, notFound(op, postID, "comment "+commentID+" not in post")
	}

	ctx, log := e.beginFlow(ctx, op, postID)

	reply, err := e.backend.ReplyToComment(ctx, postID, commentID, actorID, text)
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("reply failed", "comment", commentID, "error", err)
		return feed.Reply{}, classify(op, postID, "create reply", err)
	}
	if reply.Bot == "" {
		reply.Bot = actorID
	}
	if reply.Text == "" {
		reply.Text = text
	}

	err = e.submit(ctx, op, postID, func() error {
		return e.posts.Update(postID, func(p *feed.Post) error {
			i := p.CommentIndex(commentID)
			if i < 0 {
				return errCommentGone
			}
			p.Comments[i].Replies = append(p.Comments[i].Replies, reply)
			e.tokens.Issue(postID, SectionComments)
			return nil
		})
	})
	switch {
	case errors.Is(err, errCommentGone), errors.Is(err, feed.ErrPostNotFound):
		log.Info("reply confirmed but comment is gone locally", "comment", commentID)
	case err != nil:
		return reply, err
	}

	return reply, nil
}

// DeleteComment deletes the comment currently at index.
//
// The index is resolved to the comment's identity when the operation is
// issued; the confirmation removes that comment wherever it is by then.
// A local comment is removed without contacting the backend. The request
// carries the position among backend-known comments together with the
// identifier, and a backend refusal of a mismatched pair surfaces as
// STALE_INDEX.
func (e *Engine) DeleteComment(ctx context.Context, postID string, index int) error {
	const op = "delete_comment"

	ctx, log := e.beginFlow(ctx, op, postID)

	var (
		target      feed.Comment
		serverIndex int
	)
	err := e.submit(ctx, op, postID, func() error {
		return e.posts.Update(postID, func(p *feed.Post) error {
			if index < 0 || index >= len(p.Comments) {
				return errIndexOutRange
			}
			target = p.Comments[index]
			serverIndex = p.ServerIndex(index)
			if target.Local {
				p.Comments = slices.Delete(p.Comments, index, index+1)
			}
			return nil
		})
	})
	switch {
	case errors.Is(err, errIndexOutRange):
		return invalidState(op, postID, "comment index out of range")
	case err != nil:
		return storeErr(op, postID, err)
	}

	if target.Local {
		log.Debug("local comment removed", "index", index)
		return nil
	}
	if !target.Identified() {
		return invalidState(op, postID, "comment has no identifier")
	}

	err = e.backend.DeleteComment(ctx, feed.DeleteCommentRequest{
		PostID:    postID,
		Index:     serverIndex,
		CommentID: target.ID,
	})
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("delete comment failed", "comment", target.ID, "index", serverIndex, "error", err)
		return classify(op, postID, "delete comment "+target.ID, err)
	}

	err = e.submit(ctx, op, postID, func() error {
		return e.posts.Update(postID, func(p *feed.Post) error {
			i := p.CommentIndex(target.ID)
			if i < 0 {
				return errCommentGone
			}
			p.Comments = slices.Delete(p.Comments, i, i+1)
			e.tokens.Issue(postID, SectionComments)
			return nil
		})
	})
	switch {
	case errors.Is(err, errCommentGone), errors.Is(err, feed.ErrPostNotFound):
		log.Debug("deleted comment already gone locally", "comment", target.ID)
	case err != nil:
		return err
	}

	log.Info("comment deleted", "comment", target.ID)
	return nil
}

// SubmitComment creates a comment through the backend and appends the
// identified comment once confirmed.
func (e *Engine) SubmitComment(ctx context.Context, postID, actorID, text string) (feed.Comment, error) {
	const op = "submit_comment"

	actorID = strings.TrimSpace(actorID)
	text = feed.NormalizeText(text)
	if actorID == "" || text == "" {
		return feed.Comment{}, invalidState(op, postID, "actor and text are required")
	}
	if !e.posts.Has(postID) {
		return feed.Comment{}, notFound(op, postID, "post not in feed")
	}

	ctx, log := e.beginFlow(ctx, op, postID)

	c, err := e.backend.CreateComment(ctx, postID, actorID, text)
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("create comment failed", "error", err)
		return feed.Comment{}, classify(op, postID, "create comment", err)
	}
	if !c.Identified() {
		return feed.Comment{}, malformed(op, postID, "backend returned a comment without identifier", nil)
	}
	c.Local = false
	if c.Replies == nil {
		c.Replies = []feed.Reply{}
	}

	if err := e.appendComment(ctx, op, postID, c); err != nil {
		return c, err
	}
	log.Info("comment created", "comment", c.ID)
	return c, nil
}

// AddLocalComment appends a comment to local state only. The comment is
// tagged Local, has no identifier, cannot receive replies, and is dropped
// by the next canonical comment replacement.
func (e *Engine) AddLocalComment(ctx context.Context, postID, actorID, text string) (feed.Comment, error) {
	const op = "add_local_comment"

	actorID = strings.TrimSpace(actorID)
	text = feed.NormalizeText(text)
	if actorID == "" || text == "" {
		return feed.Comment{}, invalidState(op, postID, "actor and text are required")
	}

	c := feed.Comment{Bot: actorID, Text: text, Replies: []feed.Reply{}, Local: true}
	err := e.submit(ctx, op, postID, func() error {
		return e.posts.Update(postID, func(p *feed.Post) error {
			p.Comments = append(p.Comments, c)
			return nil
		})
	})
	if err != nil {
		return feed.Comment{}, storeErr(op, postID, err)
	}
	e.metrics.optimistic.WithLabelValues(op).Inc()
	e.logger.Debug("local comment added", "op", op, "post", postID, "actor", actorID)
	return c, nil
}

// BotReply asks the backend for a persona-authored comment on the post and
// appends it once returned.
func (e *Engine) BotReply(ctx context.Context, postID, bot string) (feed.Comment, error) {
	const op = "bot_reply"

	bot = strings.TrimSpace(bot)
	if bot == "" {
		return feed.Comment{}, invalidState(op, postID, "bot is required")
	}
	if !e.posts.Has(postID) {
		return feed.Comment{}, notFound(op, postID, "post not in feed")
	}

	ctx, log := e.beginFlow(ctx, op, postID)

	res, err := e.backend.BotReply(ctx, postID, bot)
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("bot reply failed", "bot", bot, "error", err)
		return feed.Comment{}, classify(op, postID, "bot reply", err)
	}
	if res.CommentID == "" {
		return feed.Comment{}, malformed(op, postID, "bot reply without comment_id", nil)
	}
	if res.Bot == "" {
		res.Bot = bot
	}

	c := feed.Comment{ID: res.CommentID, Bot: res.Bot, Text: res.Reply, Replies: []feed.Reply{}}
	if err := e.appendComment(ctx, op, postID, c); err != nil {
		return c, err
	}
	return c, nil
}

// appendComment adds a confirmed comment unless one with the same
// identifier is already present.
func (e *Engine) appendComment(ctx context.Context, op, postID string, c feed.Comment) error {
	err := e.submit(ctx, op, postID, func() error {
		return e.posts.Update(postID, func(p *feed.Post) error {
			if p.CommentIndex(c.ID) >= 0 {
				return nil
			}
			p.Comments = append(p.Comments, c)
			e.tokens.Issue(postID, SectionComments)
			return nil
		})
	})
	if errors.Is(err, feed.ErrPostNotFound) {
		e.logger.Info("comment confirmed but post is gone locally", "op", op, "post", postID, "comment", c.ID)
		return nil
	}
	return err
}
