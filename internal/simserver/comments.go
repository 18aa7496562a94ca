package simserver

import (
	"github.com/gofiber/fiber/v2"

	"github.com/roach88/feedsim/internal/feed"
)

type textRequest struct {
	Bot  string `json:"bot"`
	Text string `json:"text"`
}

func (r textRequest) normalized() (textRequest, error) {
	r.Text = feed.NormalizeText(r.Text)
	if r.Bot == "" || r.Text == "" {
		return r, fiber.NewError(fiber.StatusBadRequest, "bot and text are required")
	}
	return r, nil
}

func (s *Server) createComment(c *fiber.Ctx) error {
	var body textRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	body, err := body.normalized()
	if err != nil {
		return err
	}

	comment := feed.Comment{ID: s.ids.Generate(), Bot: body.Bot, Text: body.Text, Replies: []feed.Reply{}}
	if err := s.store.AddComment(c.UserContext(), c.Params("id"), comment); err != nil {
		return storeError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"comment": comment})
}

func (s *Server) deleteComment(c *fiber.Ctx) error {
	var body feed.DeleteCommentRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if body.PostID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "postId is required")
	}

	id, err := s.store.DeleteCommentAt(c.UserContext(), body.PostID, body.Index, body.CommentID)
	if err != nil {
		return storeError(err)
	}
	s.logger.Info("comment deleted", "post", body.PostID, "comment", id, "index", body.Index)
	return c.JSON(fiber.Map{"message": "comment deleted", "comment_id": id})
}

func (s *Server) replyToComment(c *fiber.Ctx) error {
	var body textRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	body, err := body.normalized()
	if err != nil {
		return err
	}

	reply := feed.Reply{Bot: body.Bot, Text: body.Text}
	if err := s.store.AddReply(c.UserContext(), c.Params("id"), c.Params("commentId"), reply); err != nil {
		return storeError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"reply": reply})
}

// ownerReply lets the post author reply once to every comment that has no
// reply from the author yet.
func (s *Server) ownerReply(c *fiber.Ctx) error {
	ctx := c.UserContext()
	postID := c.Params("id")

	p, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return storeError(err)
	}
	author, ok := s.persona(p.Bot)
	if !ok {
		author = feed.Persona{Name: p.Bot}
	}

	replied := 0
	for _, comment := range p.Comments {
		if comment.Bot == p.Bot || hasReplyFrom(comment, p.Bot) {
			continue
		}
		reply := feed.Reply{Bot: p.Bot, Text: s.writer.Reply(author, comment)}
		if err := s.store.AddReply(ctx, postID, comment.ID, reply); err != nil {
			return storeError(err)
		}
		replied++
	}

	comments, err := s.store.Comments(ctx, postID)
	if err != nil {
		return storeError(err)
	}
	s.logger.Info("owner replied", "post", postID, "replied", replied)
	return c.JSON(feed.OwnerReplyResult{Comments: comments, RepliedCount: replied})
}

func hasReplyFrom(c feed.Comment, bot string) bool {
	for _, r := range c.Replies {
		if r.Bot == bot {
			return true
		}
	}
	return false
}

type botReplyRequest struct {
	Bot    string `json:"bot"`
	PostID string `json:"postId"`
}

// botReply adds a persona-authored comment to a post.
func (s *Server) botReply(c *fiber.Ctx) error {
	var body botReplyRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if body.Bot == "" || body.PostID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "bot and postId are required")
	}
	persona, ok := s.persona(body.Bot)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "bot "+body.Bot+" not found")
	}

	ctx := c.UserContext()
	p, err := s.store.GetPost(ctx, body.PostID)
	if err != nil {
		return storeError(err)
	}

	comment := feed.Comment{
		ID:   s.ids.Generate(),
		Bot:  persona.Name,
		Text: s.writer.Comment(persona, p, len(p.Comments)),
	}
	if err := s.store.AddComment(ctx, p.ID, comment); err != nil {
		return storeError(err)
	}
	return c.JSON(feed.BotReplyResult{CommentID: comment.ID, Bot: comment.Bot, Reply: comment.Text})
}
