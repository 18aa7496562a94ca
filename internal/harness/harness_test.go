package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsim/internal/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func clarasPost() []ActionStep {
	return []ActionStep{
		{Action: "create_post", Args: map[string]interface{}{"bot": "Clara", "text": "hello"}},
	}
}

func TestRun_RecordsSteps(t *testing.T) {
	scenario := &Scenario{
		Name:   "records_steps",
		Server: ServerSetup{Personas: []string{"Clara", "Tom"}},
		Setup:  clarasPost(),
		Flow: []FlowStep{
			{Invoke: "load_feed", Args: map[string]interface{}{}},
			{Invoke: "toggle", Args: map[string]interface{}{"post": "id-1", "actor": "Tom", "emoji": "👍"}},
		},
		Assertions: []Assertion{{Type: AssertTraceCount, Op: "toggle", Count: 1}},
	}

	result, err := Run(scenario, WithLogger(discardLogger()))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, 1, result.Trace[0].Step)
	assert.Equal(t, map[string]interface{}{"posts": 1}, result.Trace[0].Result)
	assert.Equal(t, 2, result.Trace[1].Step)
	assert.Equal(t, CaseOK, result.Trace[1].Case)
	assert.Equal(t, false, result.Trace[1].Result["removed"])

	require.Len(t, result.Feed, 1)
	assert.Equal(t, map[string]int{"👍": 1}, result.Feed[0].Reactions)
	assert.Equal(t, "clean", result.Feed[0].CommentState)
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:   "expect_mismatch",
		Server: ServerSetup{Personas: []string{"Clara", "Tom"}},
		Setup:  clarasPost(),
		Flow: []FlowStep{
			{
				Invoke: "toggle",
				Args:   map[string]interface{}{"post": "id-1", "actor": "Tom", "emoji": "👍"},
				Expect: &ExpectClause{Case: CaseOK, Result: map[string]interface{}{"removed": true}},
			},
			{
				Invoke: "refresh",
				Args:   map[string]interface{}{"post": "id-7"},
				Expect: &ExpectClause{Case: CaseOK},
			},
		},
		Assertions: []Assertion{{Type: AssertTraceContains, Op: "toggle"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `flow[0] toggle: result "removed" = false, want true`)
	assert.Contains(t, result.Errors[1], `flow[1] refresh: expected case "ok", got "NOT_FOUND"`)
}

func TestRun_ErrorCases(t *testing.T) {
	scenario := &Scenario{
		Name: "error_cases",
		Server: ServerSetup{
			Personas: []string{"Clara", "Tom"},
			Decider:  &DeciderSetup{Default: "pass"},
		},
		Setup: clarasPost(),
		Flow: []FlowStep{
			{
				Invoke: "simulate",
				Args:   map[string]interface{}{"post": "id-1"},
				Expect: &ExpectClause{Case: string(engine.ErrCodeRejected)},
			},
			{
				Invoke: "simulate",
				Args:   map[string]interface{}{"post": "id-1", "mode": "all"},
				Expect: &ExpectClause{Case: string(engine.ErrCodeRejected)},
			},
			{
				Invoke: "simulate",
				Args:   map[string]interface{}{"post": "id-1", "mode": "sometimes"},
				Expect: &ExpectClause{Case: string(engine.ErrCodeInvalidState)},
			},
			{
				Invoke: "simulate",
				Args:   map[string]interface{}{"post": "id-9"},
				Expect: &ExpectClause{Case: string(engine.ErrCodeNotFound)},
			},
			{
				Invoke: "bot_reply",
				Args:   map[string]interface{}{"post": "id-1", "bot": "Nobody"},
				Expect: &ExpectClause{Case: string(engine.ErrCodeNotFound)},
			},
			{
				Invoke: "delete_comment",
				Args:   map[string]interface{}{"post": "id-1"},
				Expect: &ExpectClause{Case: "ERROR"},
			},
		},
		Assertions: []Assertion{{Type: AssertTraceCount, Op: "simulate", Count: 4}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Nil(t, result.Trace[0].Result)
}

func TestRun_PostLifecycle(t *testing.T) {
	scenario := &Scenario{
		Name:   "post_lifecycle",
		Server: ServerSetup{Personas: []string{"Clara", "Tom", "Luna"}},
		Flow: []FlowStep{
			{
				Invoke: "create_post",
				Args:   map[string]interface{}{"bot": "Tom", "text": "  first post  "},
				Expect: &ExpectClause{Case: CaseOK, Result: map[string]interface{}{"id": "id-1"}},
			},
			{
				Invoke: "generate_and_publish",
				Args:   map[string]interface{}{"bot": "Luna", "topic": "stars"},
				Expect: &ExpectClause{Case: CaseOK, Result: map[string]interface{}{"id": "id-2", "bot": "Luna"}},
			},
			{
				Invoke: "delete_post",
				Args:   map[string]interface{}{"post": "id-1"},
				Expect: &ExpectClause{Case: CaseOK},
			},
			{
				Invoke: "bots",
				Args:   map[string]interface{}{},
				Expect: &ExpectClause{Case: CaseOK, Result: map[string]interface{}{"count": 3}},
			},
			{
				Invoke: "explain",
				Args:   map[string]interface{}{"bot": "Luna", "text": "the stars tonight"},
				Expect: &ExpectClause{Case: CaseOK},
			},
			{
				Invoke: "load_feed",
				Args:   map[string]interface{}{},
				Expect: &ExpectClause{Case: CaseOK, Result: map[string]interface{}{"posts": 1}},
			},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Post: "id-1", Source: SourceServer, Expect: map[string]interface{}{"exists": false}},
			{Type: AssertFinalState, Post: "id-1", Expect: map[string]interface{}{"exists": false}},
			{Type: AssertFinalState, Post: "id-2", Expect: map[string]interface{}{"bot": "Luna"}},
			{Type: AssertTraceOrder, Ops: []string{"create_post", "delete_post", "load_feed"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Feed, 1)
	assert.Equal(t, "id-2", result.Feed[0].ID)
	assert.NotEmpty(t, result.Trace[1].Result["strategy"])
}

func TestRun_SimulateAll(t *testing.T) {
	scenario := &Scenario{
		Name: "simulate_all",
		Server: ServerSetup{
			Personas: []string{"Clara", "Tom"},
			Decider:  &DeciderSetup{Default: "pass", ByPersona: map[string]string{"Tom": "like", "Clara": "dislike"}},
		},
		Setup: []ActionStep{
			{Action: "create_post", Args: map[string]interface{}{"bot": "Clara", "text": "one"}},
			{Action: "create_post", Args: map[string]interface{}{"bot": "Tom", "text": "two"}},
		},
		Flow: []FlowStep{
			{
				Invoke: "simulate_all",
				Args:   map[string]interface{}{"mode": "all"},
				Expect: &ExpectClause{Case: CaseOK, Result: map[string]interface{}{"reports": 2}},
			},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Post: "id-1", Expect: map[string]interface{}{"likes": 1, "dislikes": 0}},
			{Type: AssertFinalState, Post: "id-2", Expect: map[string]interface{}{"likes": 0, "dislikes": 1}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SetupFailure(t *testing.T) {
	scenario := &Scenario{
		Name:  "setup_failure",
		Setup: []ActionStep{{Action: "react", Args: map[string]interface{}{"post": "id-404", "bot": "Tom", "emoji": "👍"}}},
		Flow:  []FlowStep{{Invoke: "bots", Args: map[string]interface{}{}}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0 (react)")
}

func TestRun_UnknownPersona(t *testing.T) {
	scenario := &Scenario{
		Name:   "unknown_persona",
		Server: ServerSetup{Personas: []string{"Clara", "Zed"}},
		Flow:   []FlowStep{{Invoke: "bots", Args: map[string]interface{}{}}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown persona "Zed"`)
}

func TestRun_FreshBackendPerRun(t *testing.T) {
	scenario := &Scenario{
		Name:   "fresh_backend",
		Server: ServerSetup{Personas: []string{"Clara"}},
		Flow: []FlowStep{{
			Invoke: "create_post",
			Args:   map[string]interface{}{"bot": "Clara", "text": "again"},
			Expect: &ExpectClause{Case: CaseOK, Result: map[string]interface{}{"id": "id-1"}},
		}},
	}

	for range 2 {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "errors: %v", result.Errors)
		assert.Len(t, result.Feed, 1)
	}
}

func TestCaseOf(t *testing.T) {
	assert.Equal(t, CaseOK, caseOf(nil))
	assert.Equal(t, "ERROR", caseOf(errors.New("boom")))

	err := fmt.Errorf("step: %w", &engine.Error{Code: engine.ErrCodeStaleIndex, Op: "delete_comment"})
	assert.Equal(t, string(engine.ErrCodeStaleIndex), caseOf(err))
}

func TestArgs(t *testing.T) {
	a := args{"s": "x", "n": 3, "f": float64(4), "q": "5", "bad": "five", "b": true, "u": []int{1}}

	assert.Equal(t, "x", a.str("s"))
	assert.Equal(t, "3", a.str("n"))
	assert.Empty(t, a.str("missing"))

	for key, want := range map[string]int{"n": 3, "f": 4, "q": 5} {
		got, err := a.int(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}
	for _, key := range []string{"bad", "missing", "u"} {
		_, err := a.int(key)
		assert.Error(t, err, key)
	}

	assert.True(t, a.bool("b"))
	assert.False(t, a.bool("s"))
	assert.Equal(t, "single", string(a.mode()))
	assert.Equal(t, "all", string(args{"mode": "all"}.mode()))
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("nope")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"nope"}, r.Errors)
}
