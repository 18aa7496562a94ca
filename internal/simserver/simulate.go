package simserver

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/roach88/feedsim/internal/feed"
)

// simulate evaluates persona interactions with a post.
//
// single: personas (or only ?bot=) are tried in random order and the
// first non-pass decision is applied and returned; 422 if every persona
// passes. all: every persona decides in roster order and the non-pass
// outcomes are returned as a batch; 422 as well if there are none. The post author never interacts with
// their own post.
func (s *Server) simulate(c *fiber.Ctx) error {
	mode, err := feed.ParseMode(c.Query("mode", string(feed.ModeSingle)))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	postID := c.Params("id")
	p, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return storeError(err)
	}

	candidates := s.Personas()
	if mode == feed.ModeSingle {
		candidates = s.shuffled()
	}
	if bot := c.Query("bot"); bot != "" {
		persona, ok := s.persona(bot)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "bot "+bot+" not found")
		}
		candidates = []feed.Persona{persona}
	}

	round, err := s.store.NextRound(ctx, postID)
	if err != nil {
		return storeError(err)
	}

	var results []feed.Outcome
	for _, persona := range candidates {
		if persona.Name == p.Bot {
			continue
		}
		decision := s.decider.Decide(persona, p, round)
		s.metrics.simulations.WithLabelValues(string(mode), string(decision)).Inc()
		if decision == DecisionPass {
			continue
		}

		outcome, err := s.apply(ctx, persona, p, round, decision)
		if err != nil {
			return storeError(err)
		}
		results = append(results, outcome)
		if mode == feed.ModeSingle {
			break
		}
	}

	if len(results) == 0 {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "every persona passed")
	}
	var out feed.Outcome = results[0]
	if mode == feed.ModeAll {
		out = feed.Batch{Results: results}
	}

	body, err := feed.EncodeOutcome(out)
	if err != nil {
		return err
	}
	s.logger.Info("simulation",
		"post", postID,
		"mode", mode,
		"round", round,
		"kind", out.Kind(),
		"interactions", len(results),
	)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// apply persists one non-pass decision and returns its outcome.
func (s *Server) apply(ctx context.Context, persona feed.Persona, p feed.Post, round int, d Decision) (feed.Outcome, error) {
	comment := func() (feed.Commented, error) {
		c := feed.Commented{
			CommentID: s.ids.Generate(),
			Bot:       persona.Name,
			Text:      s.writer.Comment(persona, p, round),
		}
		err := s.store.AddComment(ctx, p.ID, feed.Comment{ID: c.CommentID, Bot: c.Bot, Text: c.Text})
		return c, err
	}

	switch d {
	case DecisionLike:
		return feed.Like{Bot: persona.Name}, s.store.AddSignals(ctx, p.ID, 1, 0)
	case DecisionDislike:
		return feed.Dislike{Bot: persona.Name}, s.store.AddSignals(ctx, p.ID, 0, 1)
	case DecisionComment:
		return comment()
	case DecisionBoth:
		if err := s.store.AddSignals(ctx, p.ID, 1, 0); err != nil {
			return nil, err
		}
		c, err := comment()
		return feed.Both{Signal: feed.SignalLike, Comment: c}, err
	case DecisionDislikeComment:
		if err := s.store.AddSignals(ctx, p.ID, 0, 1); err != nil {
			return nil, err
		}
		c, err := comment()
		return feed.DislikeComment{Comment: c}, err
	default:
		return nil, fmt.Errorf("unknown decision %q", d)
	}
}
