package simserver

import (
	"github.com/gofiber/fiber/v2"

	"github.com/roach88/feedsim/internal/feed"
)

func (s *Server) listBots(c *fiber.Ctx) error {
	return c.JSON(s.Personas())
}

func (s *Server) listPosts(c *fiber.Ctx) error {
	posts, err := s.store.ListPosts(c.UserContext())
	if err != nil {
		return err
	}
	s.metrics.posts.Set(float64(len(posts)))
	return c.JSON(posts)
}

func (s *Server) getPost(c *fiber.Ctx) error {
	p, err := s.store.GetPost(c.UserContext(), c.Params("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(p)
}

func (s *Server) createPost(c *fiber.Ctx) error {
	var body feed.NewPost
	if err := parseBody(c, &body); err != nil {
		return err
	}
	body.Text = feed.NormalizeText(body.Text)
	if body.Bot == "" || body.Text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "bot and text are required")
	}

	p := feed.Post{
		ID:        s.ids.Generate(),
		Bot:       body.Bot,
		Text:      body.Text,
		Image:     body.Image,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.CreatePost(c.UserContext(), p); err != nil {
		return err
	}
	created, err := s.store.GetPost(c.UserContext(), p.ID)
	if err != nil {
		return err
	}

	s.logger.Info("post created", "post", p.ID, "bot", p.Bot)
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (s *Server) deletePost(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.store.DeletePost(c.UserContext(), id); err != nil {
		return storeError(err)
	}
	s.logger.Info("post deleted", "post", id)
	return c.JSON(fiber.Map{"message": "post deleted"})
}

type reactRequest struct {
	Bot      string `json:"bot"`
	Reaction string `json:"reaction"`
}

func (s *Server) react(c *fiber.Ctx) error {
	var body reactRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	emoji := feed.NormalizeEmoji(body.Reaction)
	if body.Bot == "" || emoji == "" {
		return fiber.NewError(fiber.StatusBadRequest, "bot and reaction are required")
	}

	t, err := s.store.ToggleReaction(c.UserContext(), c.Params("id"), body.Bot, emoji)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(fiber.Map{"message": "reaction updated", "transition": t})
}
