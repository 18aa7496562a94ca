package engine

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/feedsim/internal/feed"
)

// Backend is the remote service the engine reconciles against.
// Implemented by backend.Client (HTTP) and testutil.FakeBackend (tests).
//
// Errors carrying an HTTP status should implement StatusCode() int so the
// engine can tell a rejection from a request that never completed.
type Backend interface {
	ListBots(ctx context.Context) ([]feed.Persona, error)
	ListPosts(ctx context.Context) ([]feed.Post, error)
	GetPost(ctx context.Context, postID string) (feed.Post, error)
	CreatePost(ctx context.Context, p feed.NewPost) (feed.Post, error)
	DeletePost(ctx context.Context, postID string) error
	React(ctx context.Context, postID, actorID, emoji string) error
	CreateComment(ctx context.Context, postID, actorID, text string) (feed.Comment, error)
	DeleteComment(ctx context.Context, req feed.DeleteCommentRequest) error
	ReplyToComment(ctx context.Context, postID, commentID, actorID, text string) (feed.Reply, error)
	OwnerReply(ctx context.Context, postID string) (feed.OwnerReplyResult, error)
	SimulateInteraction(ctx context.Context, postID string, mode feed.Mode) (feed.Outcome, error)
	BotReply(ctx context.Context, postID, bot string) (feed.BotReplyResult, error)
	Generate(ctx context.Context, bot string, req feed.GenerateRequest) (feed.Generated, error)
	Explain(ctx context.Context, bot, text string) (feed.Explanation, error)
}

// Engine is the single-writer reconciliation loop over a feed.Store.
//
// Thread-safety model:
//   - public operations: safe from any goroutine; each blocks only its caller
//   - Run(): must be called from exactly one goroutine
//   - Posts(), Post(), CommentState(): safe from any goroutine
//
// Operations submit their store mutations to Run(), so Run must be
// running for them to complete.
type Engine struct {
	backend Backend
	posts   *feed.Store
	clock   *Clock
	tokens  *tokenTable
	queue   *eventQueue
	flowGen FlowTokenGenerator
	logger  *slog.Logger
	metrics *metrics

	registerer prometheus.Registerer

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithFlowGenerator sets the generator for per-operation flow tokens.
// Default: UUIDv7Generator.
func WithFlowGenerator(g FlowTokenGenerator) Option {
	return func(e *Engine) {
		e.flowGen = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRegisterer registers the engine's metrics with reg.
// Default: a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithRand sets the random source used to pick a persona when none is
// given. Default: the global math/rand/v2 source.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		e.rand = r
	}
}

// WithClock sets the logical clock backing per-post tokens.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine reconciling against backend.
func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		posts:   feed.NewStore(),
		clock:   NewClock(),
		queue:   newEventQueue(),
		flowGen: UUIDv7Generator{},
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.registerer == nil {
		e.registerer = prometheus.NewRegistry()
	}
	e.metrics = newMetrics(e.registerer)
	e.tokens = newTokenTable(e.clock)

	return e
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// On apply failure the error is returned to the submitting operation and
// logged; processing continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	defer e.rejectPending()

	for {
		ev, ok := e.queue.TryDequeue()
		if ok {
			e.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed.
			if e.queue.Len() == 0 && e.stopped() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue, which causes Run() to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

// process applies one event.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) process(ev event) {
	err := ev.apply()
	if err != nil {
		e.logger.Debug("apply failed",
			"op", ev.op,
			"post", ev.postID,
			"error", err,
		)
	}
	ev.done <- err
}

func (e *Engine) rejectPending() {
	for _, ev := range e.queue.Drain() {
		ev.done <- ErrStopped
	}
}

// submit runs apply inside the Run loop and waits for it.
//
// If ctx ends first the caller stops waiting but the event still runs.
func (e *Engine) submit(ctx context.Context, op, postID string, apply func() error) error {
	done := make(chan error, 1)
	if !e.queue.Enqueue(event{op: op, postID: postID, apply: apply, done: done}) {
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewFlow generates a new flow token.
func (e *Engine) NewFlow() string {
	return e.flowGen.Generate()
}

// beginFlow returns ctx carrying a flow token, reusing one already present.
func (e *Engine) beginFlow(ctx context.Context, op, postID string) (context.Context, *slog.Logger) {
	flow := FlowFromContext(ctx)
	if flow == "" {
		flow = e.NewFlow()
		ctx = ContextWithFlow(ctx, flow)
	}
	log := e.logger.With("op", op, "flow", flow)
	if postID != "" {
		log = log.With("post", postID)
	}
	return ctx, log
}

// Posts returns copies of all posts in feed order.
func (e *Engine) Posts() []feed.Post {
	return e.posts.List()
}

// Post returns a copy of one post.
func (e *Engine) Post(postID string) (feed.Post, bool) {
	return e.posts.Get(postID)
}

// CommentState reports whether a post holds unconfirmed local comments.
type CommentState string

const (
	CommentsClean CommentState = "clean"
	CommentsDirty CommentState = "dirty"
)

// CommentState returns the comment-subsystem state of a post.
func (e *Engine) CommentState(postID string) (CommentState, bool) {
	p, ok := e.posts.Get(postID)
	if !ok {
		return "", false
	}
	if p.LocalComments() > 0 {
		return CommentsDirty, true
	}
	return CommentsClean, true
}

// Registerer returns the registerer holding the engine's metrics.
func (e *Engine) Registerer() prometheus.Registerer {
	return e.registerer
}

func (e *Engine) intN(n int) int {
	if e.rand == nil {
		return rand.IntN(n)
	}
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.rand.IntN(n)
}
