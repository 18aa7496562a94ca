package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/roach88/feedsim/internal/feed"
)

// StatusError is a backend rejection carrying an HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d %s", e.Code, http.StatusText(e.Code))
}

// StatusCode returns the HTTP status.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Call records one request received by FakeBackend.
type Call struct {
	Method string
	PostID string
	Args   []string
}

// FakeBackend is an in-memory backend with server-side semantics, used to
// drive the engine in tests.
//
// Failures and delays are injected per method name ("GetPost",
// "React", ...): FailNext makes the next call return an error, Block
// makes the next call wait for a release after it has computed its
// response, which models a slow network.
type FakeBackend struct {
	mu       sync.Mutex
	posts    map[string]*feed.Post
	order    []string
	bots     []feed.Persona
	ids      *SequentialGenerator
	outcomes map[string][]feed.Outcome
	fail     map[string]error
	gates    map[string]chan struct{}
	calls    []Call
}

// NewFakeBackend creates a backend holding the given canonical posts.
func NewFakeBackend(posts ...feed.Post) *FakeBackend {
	f := &FakeBackend{
		posts:    make(map[string]*feed.Post),
		ids:      NewSequentialGenerator("srv"),
		outcomes: make(map[string][]feed.Outcome),
		fail:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
	}
	for _, p := range posts {
		f.SetServerPost(p)
	}
	return f
}

// SetBots sets the persona roster.
func (f *FakeBackend) SetBots(bots ...feed.Persona) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bots = bots
}

// SetServerPost stores or replaces a canonical post.
func (f *FakeBackend) SetServerPost(p feed.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p.Normalize()
	cp := p.Clone()
	if _, ok := f.posts[p.ID]; !ok {
		f.order = append(f.order, p.ID)
	}
	f.posts[p.ID] = &cp
}

// ServerPost returns a copy of the canonical post.
func (f *FakeBackend) ServerPost(id string) (feed.Post, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return feed.Post{}, false
	}
	return p.Clone(), true
}

// QueueOutcome queues the outcome returned by the next simulation of postID.
func (f *FakeBackend) QueueOutcome(postID string, o feed.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[postID] = append(f.outcomes[postID], o)
}

// FailNext makes the next call of method return err.
func (f *FakeBackend) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

// Block makes the next call of method wait until release is called.
func (f *FakeBackend) Block(method string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[method] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Calls returns the recorded calls of method, or all calls if method is "".
func (f *FakeBackend) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// begin records the call and returns any injected failure and gate.
// Must be called with f.mu held.
func (f *FakeBackend) begin(method, postID string, args ...string) (chan struct{}, error) {
	f.calls = append(f.calls, Call{Method: method, PostID: postID, Args: args})

	err := f.fail[method]
	delete(f.fail, method)
	gate := f.gates[method]
	delete(f.gates, method)
	return gate, err
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeBackend) post(id string) (*feed.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, &StatusError{Code: http.StatusNotFound}
	}
	return p, nil
}

// ListBots implements engine.Backend.
func (f *FakeBackend) ListBots(ctx context.Context) ([]feed.Persona, error) {
	f.mu.Lock()
	gate, err := f.begin("ListBots", "")
	bots := append([]feed.Persona{}, f.bots...)
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return bots, wait(ctx, gate)
}

// ListPosts implements engine.Backend.
func (f *FakeBackend) ListPosts(ctx context.Context) ([]feed.Post, error) {
	f.mu.Lock()
	gate, err := f.begin("ListPosts", "")
	posts := make([]feed.Post, 0, len(f.order))
	for _, id := range f.order {
		posts = append(posts, f.posts[id].Clone())
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return posts, wait(ctx, gate)
}

// GetPost implements engine.Backend. The response is captured before
// any Block gate is awaited.
func (f *FakeBackend) GetPost(ctx context.Context, postID string) (feed.Post, error) {
	f.mu.Lock()
	gate, err := f.begin("GetPost", postID)
	var snapshot feed.Post
	if err == nil {
		var p *feed.Post
		p, err = f.post(postID)
		if err == nil {
			snapshot = p.Clone()
		}
	}
	f.mu.Unlock()

	if werr := wait(ctx, gate); werr != nil {
		return feed.Post{}, werr
	}
	return snapshot, err
}

// CreatePost implements engine.Backend.
func (f *FakeBackend) CreatePost(ctx context.Context, np feed.NewPost) (feed.Post, error) {
	f.mu.Lock()
	gate, err := f.begin("CreatePost", "", np.Bot, np.Text)
	var p feed.Post
	if err == nil {
		p = feed.Post{ID: f.ids.Generate(), Bot: np.Bot, Text: np.Text, Image: np.Image, Timestamp: Epoch}
		p.Normalize()
		cp := p.Clone()
		f.posts[p.ID] = &cp
		f.order = append(f.order, p.ID)
	}
	f.mu.Unlock()

	if err != nil {
		return feed.Post{}, err
	}
	return p, wait(ctx, gate)
}

// DeletePost implements engine.Backend.
func (f *FakeBackend) DeletePost(ctx context.Context, postID string) error {
	f.mu.Lock()
	gate, err := f.begin("DeletePost", postID)
	if err == nil {
		_, err = f.post(postID)
	}
	if err == nil {
		delete(f.posts, postID)
		for i, id := range f.order {
			if id == postID {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return wait(ctx, gate)
}

// React implements engine.Backend with the same exclusive toggle as the
// engine. A blocked call applies the toggle only once released.
func (f *FakeBackend) React(ctx context.Context, postID, actorID, emoji string) error {
	f.mu.Lock()
	gate, err := f.begin("React", postID, actorID, emoji)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if err := wait(ctx, gate); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.post(postID)
	if err != nil {
		return err
	}
	p.ToggleReaction(actorID, feed.NormalizeEmoji(emoji))
	return nil
}

// CreateComment implements engine.Backend.
func (f *FakeBackend) CreateComment(ctx context.Context, postID, actorID, text string) (feed.Comment, error) {
	f.mu.Lock()
	gate, err := f.begin("CreateComment", postID, actorID, text)
	var c feed.Comment
	if err == nil {
		var p *feed.Post
		if p, err = f.post(postID); err == nil {
			c = feed.Comment{ID: f.ids.Generate(), Bot: actorID, Text: text, Replies: []feed.Reply{}}
			p.Comments = append(p.Comments, c)
		}
	}
	f.mu.Unlock()

	if err != nil {
		return feed.Comment{}, err
	}
	return c, wait(ctx, gate)
}

// DeleteComment implements engine.Backend. A comment_id that does not
// match the comment at index is refused with 409.
func (f *FakeBackend) DeleteComment(ctx context.Context, req feed.DeleteCommentRequest) error {
	f.mu.Lock()
	gate, err := f.begin("DeleteComment", req.PostID, fmt.Sprint(req.Index), req.CommentID)
	if err == nil {
		var p *feed.Post
		if p, err = f.post(req.PostID); err == nil {
			switch {
			case req.Index < 0 || req.Index >= len(p.Comments):
				err = &StatusError{Code: http.StatusNotFound}
			case req.CommentID != "" && p.Comments[req.Index].ID != req.CommentID:
				err = &StatusError{Code: http.StatusConflict}
			default:
				p.Comments = append(p.Comments[:req.Index], p.Comments[req.Index+1:]...)
			}
		}
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return wait(ctx, gate)
}

// ReplyToComment implements engine.Backend.
func (f *FakeBackend) ReplyToComment(ctx context.Context, postID, commentID, actorID, text string) (feed.Reply, error) {
	f.mu.Lock()
	gate, err := f.begin("ReplyToComment", postID, commentID, actorID, text)
	r := feed.Reply{Bot: actorID, Text: text}
	if err == nil {
		var p *feed.Post
		if p, err = f.post(postID); err == nil {
			if i := p.CommentIndex(commentID); i >= 0 {
				p.Comments[i].Replies = append(p.Comments[i].Replies, r)
			} else {
				err = &StatusError{Code: http.StatusNotFound}
			}
		}
	}
	f.mu.Unlock()

	if err != nil {
		return feed.Reply{}, err
	}
	return r, wait(ctx, gate)
}

// OwnerReply implements engine.Backend: the post author replies once to
// every comment by someone else that has no author reply yet.
func (f *FakeBackend) OwnerReply(ctx context.Context, postID string) (feed.OwnerReplyResult, error) {
	f.mu.Lock()
	gate, err := f.begin("OwnerReply", postID)
	var res feed.OwnerReplyResult
	if err == nil {
		var p *feed.Post
		if p, err = f.post(postID); err == nil {
			for i, c := range p.Comments {
				if c.Bot == p.Bot || hasReplyFrom(c, p.Bot) {
					continue
				}
				p.Comments[i].Replies = append(p.Comments[i].Replies, feed.Reply{
					Bot:  p.Bot,
					Text: "Thanks, " + c.Bot + "!",
				})
				res.RepliedCount++
			}
			res.Comments = feed.CloneComments(p.Comments)
		}
	}
	f.mu.Unlock()

	if werr := wait(ctx, gate); werr != nil {
		return feed.OwnerReplyResult{}, werr
	}
	return res, err
}

func hasReplyFrom(c feed.Comment, bot string) bool {
	for _, r := range c.Replies {
		if r.Bot == bot {
			return true
		}
	}
	return false
}

// SimulateInteraction implements engine.Backend. Queued outcomes are
// returned in order and applied to the canonical post; without a queued
// outcome single mode yields a like from "sim" and all mode an empty batch.
func (f *FakeBackend) SimulateInteraction(ctx context.Context, postID string, mode feed.Mode) (feed.Outcome, error) {
	f.mu.Lock()
	gate, err := f.begin("SimulateInteraction", postID, string(mode))
	var o feed.Outcome
	if err == nil {
		var p *feed.Post
		if p, err = f.post(postID); err == nil {
			if queued := f.outcomes[postID]; len(queued) > 0 {
				o = queued[0]
				f.outcomes[postID] = queued[1:]
			} else if mode == feed.ModeAll {
				o = feed.Batch{}
			} else {
				o = feed.Like{Bot: "sim"}
			}
			d := feed.Effects(o)
			p.Likes += d.Likes
			p.Dislikes += d.Dislikes
			p.Comments = append(p.Comments, d.Comments...)
		}
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return o, wait(ctx, gate)
}

// BotReply implements engine.Backend.
func (f *FakeBackend) BotReply(ctx context.Context, postID, bot string) (feed.BotReplyResult, error) {
	f.mu.Lock()
	gate, err := f.begin("BotReply", postID, bot)
	var res feed.BotReplyResult
	if err == nil {
		var p *feed.Post
		if p, err = f.post(postID); err == nil {
			res = feed.BotReplyResult{CommentID: f.ids.Generate(), Bot: bot, Reply: bot + " has thoughts"}
			p.Comments = append(p.Comments, feed.Comment{ID: res.CommentID, Bot: bot, Text: res.Reply, Replies: []feed.Reply{}})
		}
	}
	f.mu.Unlock()

	if err != nil {
		return feed.BotReplyResult{}, err
	}
	return res, wait(ctx, gate)
}

// Generate implements engine.Backend.
func (f *FakeBackend) Generate(ctx context.Context, bot string, req feed.GenerateRequest) (feed.Generated, error) {
	f.mu.Lock()
	gate, err := f.begin("Generate", "", bot, req.Topic)
	f.mu.Unlock()

	if err != nil {
		return feed.Generated{}, err
	}
	gen := feed.Generated{Content: bot + " writes about " + req.Topic, Bot: bot, Strategy: "Friendly-Tech"}
	if req.GenerateImage {
		gen.Image = "/media/" + bot + ".png"
	}
	return gen, wait(ctx, gate)
}

// Explain implements engine.Backend.
func (f *FakeBackend) Explain(ctx context.Context, bot, text string) (feed.Explanation, error) {
	f.mu.Lock()
	gate, err := f.begin("Explain", "", bot, text)
	f.mu.Unlock()

	if err != nil {
		return feed.Explanation{}, err
	}
	return feed.Explanation{
		Decision: "LIKE",
		Reason:   bot + " likes it",
		Tokens:   []feed.TokenWeight{{Token: text, Weight: 1}},
	}, wait(ctx, gate)
}
