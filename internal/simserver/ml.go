package simserver

import (
	"fmt"
	"math"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/roach88/feedsim/internal/feed"
)

// generate stands in for the generation service. A strategy is chosen
// from the engagement observation; likes or comments of -1 are replaced
// by the persona's observed totals.
func (s *Server) generate(c *fiber.Ctx) error {
	name := c.Query("bot")
	persona, ok := s.persona(name)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("bot %q not found", name))
	}

	var req feed.GenerateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	likes, comments := req.Likes, req.Comments
	if likes < 0 || comments < 0 {
		observedLikes, observedComments, err := s.engagement(c, persona.Name)
		if err != nil {
			return err
		}
		if likes < 0 {
			likes = observedLikes
		}
		if comments < 0 {
			comments = observedComments
		}
	}

	strategy := chooseStrategy(persona.Name, likes, comments, req.Sentiment, req.Interaction)
	gen := feed.Generated{
		Content:  s.writer.Post(persona, strategy, req.Topic),
		Bot:      persona.Name,
		Strategy: strategy,
	}
	if req.GenerateImage {
		gen.Image = "/media/" + s.ids.Generate() + ".png"
	}

	s.logger.Info("content generated", "bot", persona.Name, "strategy", strategy, "likes", likes, "comments", comments)
	return c.JSON(gen)
}

// engagement sums likes and comments over the persona's posts.
func (s *Server) engagement(c *fiber.Ctx, bot string) (likes, comments int, err error) {
	posts, err := s.store.ListPosts(c.UserContext())
	if err != nil {
		return 0, 0, err
	}
	for _, p := range posts {
		if p.Bot == bot {
			likes += p.Likes
			comments += len(p.Comments)
		}
	}
	return likes, comments, nil
}

func chooseStrategy(bot string, likes, comments int, sentiment, interaction float64) string {
	h := stableHash(bot,
		fmt.Sprint(likes),
		fmt.Sprint(comments),
		fmt.Sprintf("%.2f", sentiment),
		fmt.Sprintf("%.2f", interaction),
	)
	return Strategies[h%uint32(len(Strategies))]
}

type explainRequest struct {
	Bot  string `json:"bot"`
	Text string `json:"text"`
}

// explain stands in for the explainability service: every token gets a
// stable weight in [-1, 1] for the persona, and the decision follows the
// weight sum.
func (s *Server) explain(c *fiber.Ctx) error {
	var body explainRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	persona, ok := s.persona(body.Bot)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("bot %q not found", body.Bot))
	}
	tokens := strings.Fields(body.Text)
	if len(tokens) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	}

	exp := feed.Explanation{Tokens: make([]feed.TokenWeight, 0, len(tokens))}
	var (
		sum       float64
		strongest feed.TokenWeight
	)
	for _, tok := range tokens {
		w := tokenWeight(persona.Name, tok)
		sum += w
		if math.Abs(w) > math.Abs(strongest.Weight) {
			strongest = feed.TokenWeight{Token: tok, Weight: w}
		}
		exp.Tokens = append(exp.Tokens, feed.TokenWeight{Token: tok, Weight: w})
	}

	switch {
	case sum > 0.5:
		exp.Decision = "BOTH"
	case sum > 0:
		exp.Decision = "LIKE"
	case sum > -0.5:
		exp.Decision = "COMMENT"
	default:
		exp.Decision = "IGNORE"
	}
	exp.Reason = fmt.Sprintf("%s reacts most strongly to %q (%+.3f)", persona.Name, strongest.Token, strongest.Weight)

	return c.JSON(exp)
}

// tokenWeight maps (persona, token) to a weight in [-1, 1] rounded to
// three decimals.
func tokenWeight(bot, token string) float64 {
	h := stableHash("explain", bot, strings.ToLower(token))
	w := float64(h%2001)/1000 - 1
	return math.Round(w*1000) / 1000
}
