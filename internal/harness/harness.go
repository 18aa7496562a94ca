package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/roach88/feedsim/internal/backend"
	"github.com/roach88/feedsim/internal/engine"
	"github.com/roach88/feedsim/internal/feed"
	"github.com/roach88/feedsim/internal/simserver"
	"github.com/roach88/feedsim/internal/store"
	"github.com/roach88/feedsim/internal/testutil"
)

// stepTimeout bounds one flow step.
const stepTimeout = 10 * time.Second

// Harness is the test execution environment of one scenario: a fresh
// in-memory backend, a client wired to it in process, and an engine.
type Harness struct {
	store  *store.Store
	client *backend.Client
	engine *engine.Engine
	logger *slog.Logger
}

// Option configures a harness run.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger routes engine, client and server logs to l. Logs are
// discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against its own in-memory database with
// deterministic identifiers, clock and random source, so results are
// reproducible.
//
// Execution flow:
// 1. Start a fresh backend, client and engine
// 2. Apply setup steps to the backend
// 3. Load the feed into the engine
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	h, err := newHarness(scenario.Server, cfg.logger)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.engine.Run(ctx)
	}()
	defer func() {
		h.engine.Stop()
		<-done
	}()

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if _, err := h.engine.LoadFeed(ctx); err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}

	result := NewResult()
	h.executeFlow(ctx, scenario.Flow, result)

	actx := &AssertionContext{Ctx: ctx, Engine: h.engine, Backend: h.client}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	for _, p := range h.engine.Posts() {
		state, _ := h.engine.CommentState(p.ID)
		result.Feed = append(result.Feed, snapshotPost(p, state))
	}
	return result, nil
}

func newHarness(setup ServerSetup, logger *slog.Logger) (*Harness, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	personas, err := selectPersonas(setup.Personas)
	if err != nil {
		st.Close()
		return nil, err
	}

	clock := testutil.NewDeterministicClock()
	opts := []simserver.Option{
		simserver.WithPersonas(personas),
		simserver.WithWriter(scriptedWriter{comments: setup.Comments}),
		simserver.WithIDGenerator(testutil.NewSequentialGenerator("id")),
		simserver.WithClock(clock.Now),
		simserver.WithRand(rand.New(rand.NewPCG(1, 2))),
		simserver.WithLogger(logger),
	}
	if d := setup.Decider; d != nil {
		fixed := simserver.FixedDecider{
			Default:   simserver.Decision(d.Default),
			ByPersona: make(map[string]simserver.Decision, len(d.ByPersona)),
		}
		for name, dec := range d.ByPersona {
			fixed.ByPersona[name] = simserver.Decision(dec)
		}
		opts = append(opts, simserver.WithDecider(fixed))
	}

	srv, err := simserver.New(st, opts...)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to start backend: %w", err)
	}

	client, err := backend.New("http://feedsim.harness",
		backend.WithTransport(srv.Transport()),
		backend.WithLogger(logger),
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	eng := engine.New(client,
		engine.WithFlowGenerator(testutil.NewSequentialGenerator("flow")),
		engine.WithLogger(logger),
		engine.WithRand(rand.New(rand.NewPCG(3, 4))),
	)

	return &Harness{store: st, client: client, engine: eng, logger: logger}, nil
}

// selectPersonas returns the built-in roster restricted to names.
func selectPersonas(names []string) ([]feed.Persona, error) {
	roster, err := simserver.LoadPersonas("")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return roster, nil
	}

	byName := make(map[string]feed.Persona, len(roster))
	for _, p := range roster {
		byName[p.Name] = p
	}
	out := make([]feed.Persona, 0, len(names))
	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("server.personas: unknown persona %q", name)
		}
		out = append(out, p)
	}
	return out, nil
}

// executeSetup applies the setup steps to the backend in order.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep) error {
	for i, step := range setup {
		if err := setupActions[step.Action](ctx, h.client, step.Args); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Action, err)
		}
	}
	return nil
}

// executeFlow runs each flow step, records it and checks its expect clause.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		res, err := operations[step.Invoke](stepCtx, h.engine, step.Args)
		cancel()

		rec := StepRecord{Op: step.Invoke, Args: step.Args, Case: caseOf(err), Result: res}
		if err != nil {
			rec.Error = err.Error()
			h.logger.Debug("step failed", "step", i, "op", step.Invoke, "error", err)
		}
		result.AddStep(rec)

		if step.Expect == nil {
			continue
		}
		if step.Expect.Case != rec.Case {
			msg := fmt.Sprintf("flow[%d] %s: expected case %q, got %q", i, step.Invoke, step.Expect.Case, rec.Case)
			if rec.Error != "" {
				msg += ": " + rec.Error
			}
			result.AddError(msg)
			continue
		}
		for _, key := range sortedKeys(step.Expect.Result) {
			want := step.Expect.Result[key]
			got, ok := res[key]
			if !ok || !valuesEqual(got, want) {
				result.AddError(fmt.Sprintf("flow[%d] %s: result %q = %v, want %v", i, step.Invoke, key, got, want))
			}
		}
	}
}

// caseOf names the outcome of an operation.
func caseOf(err error) string {
	if err == nil {
		return CaseOK
	}
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}

// scriptedWriter writes the scenario's fixed comment texts and falls back
// to the canned replies and posts.
type scriptedWriter struct {
	simserver.CannedWriter
	comments map[string]string
}

func (w scriptedWriter) Comment(p feed.Persona, _ feed.Post, _ int) string {
	if text, ok := w.comments[p.Name]; ok {
		return text
	}
	return p.Name + " was here"
}
