package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/roach88/feedsim/internal/engine"
	"github.com/roach88/feedsim/internal/feed"
)

var _ engine.Backend = (*Client)(nil)

// ListBots returns the persona roster.
func (c *Client) ListBots(ctx context.Context) ([]feed.Persona, error) {
	var bots []feed.Persona
	if _, err := c.do(ctx, http.MethodGet, "/bots", nil, nil, &bots); err != nil {
		return nil, err
	}
	return bots, nil
}

// ListPosts returns every post in feed order.
func (c *Client) ListPosts(ctx context.Context) ([]feed.Post, error) {
	var posts []feed.Post
	if _, err := c.do(ctx, http.MethodGet, "/posts", nil, nil, &posts); err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Normalize()
	}
	return posts, nil
}

// GetPost returns the canonical state of one post.
func (c *Client) GetPost(ctx context.Context, postID string) (feed.Post, error) {
	var p feed.Post
	if _, err := c.do(ctx, http.MethodGet, postPath(postID), nil, nil, &p); err != nil {
		return feed.Post{}, err
	}
	p.Normalize()
	return p, nil
}

// CreatePost publishes a post.
func (c *Client) CreatePost(ctx context.Context, np feed.NewPost) (feed.Post, error) {
	var p feed.Post
	if _, err := c.do(ctx, http.MethodPost, "/posts", nil, np, &p); err != nil {
		return feed.Post{}, err
	}
	p.Normalize()
	return p, nil
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	_, err := c.do(ctx, http.MethodDelete, postPath(postID), nil, nil, nil)
	return err
}

type reactRequest struct {
	Bot      string `json:"bot"`
	Reaction string `json:"reaction"`
}

// React toggles actorID's emoji reaction on a post.
func (c *Client) React(ctx context.Context, postID, actorID, emoji string) error {
	_, err := c.do(ctx, http.MethodPost, postPath(postID, "react"), nil, reactRequest{Bot: actorID, Reaction: emoji}, nil)
	return err
}

type textRequest struct {
	Bot  string `json:"bot"`
	Text string `json:"text"`
}

// CreateComment adds a top-level comment and returns it with its
// backend-assigned identifier.
func (c *Client) CreateComment(ctx context.Context, postID, actorID, text string) (feed.Comment, error) {
	var res struct {
		Comment feed.Comment `json:"comment"`
	}
	if _, err := c.do(ctx, http.MethodPost, postPath(postID, "comments"), nil, textRequest{Bot: actorID, Text: text}, &res); err != nil {
		return feed.Comment{}, err
	}
	if res.Comment.ID == "" {
		return feed.Comment{}, fmt.Errorf("create comment on %s: %w: missing comment id", postID, feed.ErrMalformedOutcome)
	}
	if res.Comment.Replies == nil {
		res.Comment.Replies = []feed.Reply{}
	}
	return res.Comment, nil
}

// DeleteComment removes the comment addressed by req.
func (c *Client) DeleteComment(ctx context.Context, req feed.DeleteCommentRequest) error {
	_, err := c.do(ctx, http.MethodDelete, "/comments", nil, req, nil)
	return err
}

// ReplyToComment adds a reply to an identified comment.
func (c *Client) ReplyToComment(ctx context.Context, postID, commentID, actorID, text string) (feed.Reply, error) {
	var res struct {
		Reply feed.Reply `json:"reply"`
	}
	path := postPath(postID, "comments", commentID, "reply")
	if _, err := c.do(ctx, http.MethodPost, path, nil, textRequest{Bot: actorID, Text: text}, &res); err != nil {
		return feed.Reply{}, err
	}
	return res.Reply, nil
}

// OwnerReply runs the owner auto-reply cycle and returns the canonical
// comment collection.
func (c *Client) OwnerReply(ctx context.Context, postID string) (feed.OwnerReplyResult, error) {
	var res feed.OwnerReplyResult
	if _, err := c.do(ctx, http.MethodPost, postPath(postID, "owner_reply"), nil, nil, &res); err != nil {
		return feed.OwnerReplyResult{}, err
	}
	if res.Comments == nil {
		res.Comments = []feed.Comment{}
	}
	return res, nil
}

// SimulateInteraction asks the backend to simulate persona interactions
// with a post.
func (c *Client) SimulateInteraction(ctx context.Context, postID string, mode feed.Mode) (feed.Outcome, error) {
	q := url.Values{"mode": {string(mode)}}
	data, err := c.do(ctx, http.MethodPost, postPath(postID, "simulate_interaction"), q, nil, nil)
	if err != nil {
		return nil, err
	}
	out, err := feed.DecodeOutcome(data)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", postID, err)
	}
	return out, nil
}

type botReplyRequest struct {
	Bot    string `json:"bot"`
	PostID string `json:"postId"`
}

// BotReply asks the backend to author a persona comment on a post.
func (c *Client) BotReply(ctx context.Context, postID, bot string) (feed.BotReplyResult, error) {
	var res feed.BotReplyResult
	if _, err := c.do(ctx, http.MethodPost, "/reply", nil, botReplyRequest{Bot: bot, PostID: postID}, &res); err != nil {
		return feed.BotReplyResult{}, err
	}
	if res.CommentID == "" {
		return feed.BotReplyResult{}, fmt.Errorf("bot reply on %s: %w: missing comment_id", postID, feed.ErrMalformedOutcome)
	}
	return res, nil
}

// Generate calls the generation service for bot.
func (c *Client) Generate(ctx context.Context, bot string, req feed.GenerateRequest) (feed.Generated, error) {
	var gen feed.Generated
	q := url.Values{"bot": {bot}}
	if _, err := c.do(ctx, http.MethodPost, "/ml/generate", q, req, &gen); err != nil {
		return feed.Generated{}, err
	}
	return gen, nil
}

type explainRequest struct {
	Bot  string `json:"bot"`
	Text string `json:"text"`
}

// Explain calls the explainability service.
func (c *Client) Explain(ctx context.Context, bot, text string) (feed.Explanation, error) {
	var exp feed.Explanation
	if _, err := c.do(ctx, http.MethodPost, "/ml/explain_text", nil, explainRequest{Bot: bot, Text: text}, &exp); err != nil {
		return feed.Explanation{}, err
	}
	return exp, nil
}
