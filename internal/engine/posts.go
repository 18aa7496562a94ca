package engine

import (
	"context"
	"strings"

	"github.com/roach88/feedsim/internal/feed"
)

// Generation parameters sent with every generate-and-publish request.
// Likes and comments of -1 let the service use observed engagement.
const (
	generateLikes       = -1
	generateComments    = -1
	generateSentiment   = 0.9
	generateInteraction = 0.8
)

// LoadFeed fetches every post and replaces the feed with it.
//
// Each post section is replaced only if it was not changed locally after
// the list request was issued. Posts missing from the listing are removed
// unless they were created locally after the request.
func (e *Engine) LoadFeed(ctx context.Context) ([]feed.Post, error) {
	const op = "load_feed"

	ctx, log := e.beginFlow(ctx, op, "")
	seq := e.tokens.Mark()

	posts, err := e.backend.ListPosts(ctx)
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("list posts failed", "error", err)
		return nil, classify(op, "", "list posts", err)
	}
	for i := range posts {
		e.prepareCanonical(&posts[i], log)
	}

	err = e.submit(ctx, op, "", func() error {
		merged := make([]feed.Post, 0, len(posts))
		seen := make(map[string]bool, len(posts))

		for _, canonical := range posts {
			seen[canonical.ID] = true
			e.applyCanonical(canonical, seq, log)
			if p, ok := e.posts.Get(canonical.ID); ok {
				merged = append(merged, p)
			}
		}
		for _, local := range e.posts.List() {
			if seen[local.ID] {
				continue
			}
			if e.tokens.Current(local.ID, SectionReactions, seq) && e.tokens.Current(local.ID, SectionComments, seq) {
				log.Debug("post absent from listing, removing", "post", local.ID)
				continue
			}
			merged = append(merged, local)
		}

		e.posts.Reset(merged)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("feed loaded", "posts", e.posts.Len())
	return e.posts.List(), nil
}

// CreatePost publishes a post and adds it to the feed once confirmed.
func (e *Engine) CreatePost(ctx context.Context, np feed.NewPost) (feed.Post, error) {
	const op = "create_post"

	np.Bot = strings.TrimSpace(np.Bot)
	np.Text = feed.NormalizeText(np.Text)
	if np.Bot == "" || np.Text == "" {
		return feed.Post{}, invalidState(op, "", "bot and text are required")
	}

	ctx, log := e.beginFlow(ctx, op, "")

	p, err := e.backend.CreatePost(ctx, np)
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("create post failed", "bot", np.Bot, "error", err)
		return feed.Post{}, classify(op, "", "create post", err)
	}
	if p.ID == "" {
		return feed.Post{}, malformed(op, "", "created post without identifier", nil)
	}
	e.prepareCanonical(&p, log)

	err = e.submit(ctx, op, p.ID, func() error {
		e.posts.Put(p)
		e.tokens.Issue(p.ID, SectionAll)
		return nil
	})
	if err != nil {
		return p, err
	}

	log.Info("post created", "post", p.ID, "bot", p.Bot)
	return p, nil
}

// DeletePost deletes a post through the backend and removes it locally
// once confirmed.
func (e *Engine) DeletePost(ctx context.Context, postID string) error {
	const op = "delete_post"

	ctx, log := e.beginFlow(ctx, op, postID)

	err := e.backend.DeletePost(ctx, postID)
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("delete post failed", "error", err)
		return classify(op, postID, "delete post", err)
	}

	return e.submit(ctx, op, postID, func() error {
		if !e.posts.Remove(postID) {
			log.Debug("deleted post was not in feed")
		}
		// Tombstone: in-flight canonical responses must not resurrect it.
		e.tokens.Issue(postID, SectionAll)
		return nil
	})
}

// GenerateOptions selects what GenerateAndPublish asks for.
type GenerateOptions struct {
	// Bot is the authoring persona; a random configured persona if empty.
	Bot           string
	Topic         string
	GenerateImage bool
}

// Publication is the result of GenerateAndPublish.
type Publication struct {
	Generated feed.Generated
	Post      feed.Post
}

// GenerateAndPublish generates a post for a persona and publishes it.
func (e *Engine) GenerateAndPublish(ctx context.Context, opts GenerateOptions) (*Publication, error) {
	const op = "generate_and_publish"

	ctx, log := e.beginFlow(ctx, op, "")

	bot := strings.TrimSpace(opts.Bot)
	if bot == "" {
		bots, err := e.Bots(ctx)
		if err != nil {
			return nil, err
		}
		if len(bots) == 0 {
			return nil, invalidState(op, "", "no personas configured")
		}
		bot = bots[e.intN(len(bots))].Name
	}

	gen, err := e.backend.Generate(ctx, bot, feed.GenerateRequest{
		Likes:         generateLikes,
		Comments:      generateComments,
		Sentiment:     generateSentiment,
		Interaction:   generateInteraction,
		Topic:         strings.TrimSpace(opts.Topic),
		GenerateImage: opts.GenerateImage,
	})
	e.metrics.request(op, err)
	if err != nil {
		log.Warn("generation failed", "bot", bot, "error", err)
		return nil, classify(op, "", "generate content", err)
	}
	if strings.TrimSpace(gen.Content) == "" {
		return nil, malformed(op, "", "generation returned no content", nil)
	}
	if gen.Bot == "" {
		gen.Bot = bot
	}

	p, err := e.CreatePost(ctx, feed.NewPost{Bot: gen.Bot, Text: gen.Content, Image: gen.Image})
	if err != nil {
		return nil, err
	}

	log.Info("generated post published", "post", p.ID, "bot", gen.Bot, "strategy", gen.Strategy)
	return &Publication{Generated: gen, Post: p}, nil
}

// Bots returns the configured personas.
func (e *Engine) Bots(ctx context.Context) ([]feed.Persona, error) {
	const op = "bots"

	bots, err := e.backend.ListBots(ctx)
	e.metrics.request(op, err)
	if err != nil {
		return nil, classify(op, "", "list bots", err)
	}
	return bots, nil
}

// Explain passes text to the explainability service for a persona. The
// result is returned untouched.
func (e *Engine) Explain(ctx context.Context, bot, text string) (feed.Explanation, error) {
	const op = "explain"

	bot = strings.TrimSpace(bot)
	if bot == "" || strings.TrimSpace(text) == "" {
		return feed.Explanation{}, invalidState(op, "", "bot and text are required")
	}

	ctx, _ = e.beginFlow(ctx, op, "")
	exp, err := e.backend.Explain(ctx, bot, text)
	e.metrics.request(op, err)
	if err != nil {
		return feed.Explanation{}, classify(op, "", "explain text", err)
	}
	return exp, nil
}
