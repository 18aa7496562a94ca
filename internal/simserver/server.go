package simserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/feedsim/internal/feed"
	"github.com/roach88/feedsim/internal/store"
)

// IDGenerator allocates post and comment identifiers.
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Server is the reference backend: every route the engine consumes,
// served from a SQLite store.
type Server struct {
	store    *store.Store
	personas []feed.Persona
	decider  Decider
	writer   Writer
	ids      IDGenerator
	now      func() time.Time
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *serverMetrics
	app      *fiber.App

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option configures a Server.
type Option func(*Server)

// WithPersonas sets the persona roster. The default is the built-in roster.
func WithPersonas(personas []feed.Persona) Option {
	return func(s *Server) { s.personas = personas }
}

// WithDecider sets the interaction decider. The default is HashDecider.
func WithDecider(d Decider) Option {
	return func(s *Server) { s.decider = d }
}

// WithWriter sets the text writer. The default is CannedWriter.
func WithWriter(w Writer) Option {
	return func(s *Server) { s.writer = w }
}

// WithIDGenerator sets the identifier generator. The default is UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Server) { s.ids = g }
}

// WithClock sets the timestamp source for new posts.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry sets the prometheus registry served at /metrics.
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithRand sets the source used to order personas in single-mode
// simulation.
func WithRand(r *rand.Rand) Option {
	return func(s *Server) { s.rand = r }
}

// New creates a server over st.
func New(st *store.Store, opts ...Option) (*Server, error) {
	s := &Server{
		store:   st,
		decider: HashDecider{},
		writer:  CannedWriter{},
		ids:     uuidGenerator{},
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.personas == nil {
		personas, err := LoadPersonas("")
		if err != nil {
			return nil, fmt.Errorf("load default personas: %w", err)
		}
		s.personas = personas
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	m, err := newServerMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	s.metrics = m

	s.app = fiber.New(fiber.Config{
		AppName:               "feedsim",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s, nil
}

// App returns the fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Personas returns the roster.
func (s *Server) Personas() []feed.Persona {
	return append([]feed.Persona(nil), s.personas...)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listen(addr) }()

	s.logger.Info("server listening", "addr", addr, "personas", len(s.personas))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-errCh
	}
}

func (s *Server) routes() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.observe)

	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": "feedsim"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	s.app.Get("/bots", s.listBots)

	s.app.Get("/posts", s.listPosts)
	s.app.Post("/posts", s.createPost)
	s.app.Get("/posts/:id", s.getPost)
	s.app.Delete("/posts/:id", s.deletePost)
	s.app.Post("/posts/:id/react", s.react)
	s.app.Post("/posts/:id/comments", s.createComment)
	s.app.Post("/posts/:id/comments/:commentId/reply", s.replyToComment)
	s.app.Post("/posts/:id/owner_reply", s.ownerReply)
	s.app.Post("/posts/:id/simulate_interaction", s.simulate)

	s.app.Delete("/comments", s.deleteComment)
	s.app.Post("/reply", s.botReply)

	s.app.Post("/ml/generate", s.generate)
	s.app.Post("/ml/explain_text", s.explain)
}

// observe logs and counts every request.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if err != nil {
		status = fiber.StatusInternalServerError
	}

	route := c.Route().Path
	s.metrics.requests.WithLabelValues(c.Method(), route, fmt.Sprint(status)).Inc()
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
		"duration", time.Since(start),
	)
	return err
}

// handleError renders every error as {"error": message}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// storeError maps store errors onto HTTP errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrStale):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

// parseBody decodes a JSON body, rejecting malformed input with 400. An
// empty body leaves v unchanged.
func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	return nil
}

// persona finds a roster entry by name, ignoring case.
func (s *Server) persona(name string) (feed.Persona, bool) {
	for _, p := range s.personas {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return feed.Persona{}, false
}

func (s *Server) shuffled() []feed.Persona {
	out := s.Personas()
	s.randMu.Lock()
	s.rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	s.randMu.Unlock()
	return out
}
