package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/roach88/feedsim/internal/engine"
	"github.com/roach88/feedsim/internal/feed"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []StepRecord // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, step := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", step.Step, step.Op, step.Args, step.Case)
		}
	}
	return buf.String()
}

// assertTraceContains checks that a step with the op (and, when given,
// case and args) is in the trace.
func assertTraceContains(trace []StepRecord, assertion Assertion) error {
	for _, step := range trace {
		if step.Op != assertion.Op {
			continue
		}
		if assertion.Case != "" && step.Case != assertion.Case {
			continue
		}
		if matchArgs(step.Args, assertion.Args) {
			return nil
		}
	}

	expected := fmt.Sprintf("op %s with args %v", assertion.Op, assertion.Args)
	if assertion.Case != "" {
		expected += " and case " + assertion.Case
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops appear in the specified order.
// Ops don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []StepRecord, assertion Assertion) error {
	pos := 0
	for _, want := range assertion.Ops {
		found := false
		for pos < len(trace) {
			pos++
			if trace[pos-1].Op == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual:   fmt.Sprintf("no %s after step %d", want, pos),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the op appears exactly Count times.
func assertTraceCount(trace []StepRecord, assertion Assertion) error {
	count := 0
	for _, step := range trace {
		if step.Op == assertion.Op {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks a post's final state with subset semantics.
//
// Fields available to expect: exists, bot, text, likes, dislikes,
// reactions, user_reactions, comment_count, comment_ids, comment_bots,
// local_comments and, for the engine source only, comment_state.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	source := assertion.Source
	if source == "" {
		source = SourceEngine
	}

	var (
		p     feed.Post
		found bool
		state string
	)
	switch source {
	case SourceEngine:
		if actx.Engine == nil {
			return fmt.Errorf("final_state requires an engine")
		}
		p, found = actx.Engine.Post(assertion.Post)
		if found {
			cs, _ := actx.Engine.CommentState(assertion.Post)
			state = string(cs)
		}
	case SourceServer:
		if actx.Backend == nil {
			return fmt.Errorf("final_state requires a backend")
		}
		var err error
		p, err = actx.Backend.GetPost(actx.Ctx, assertion.Post)
		switch {
		case err == nil:
			found = true
		case isNotFound(err):
		default:
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("canonical post %s", assertion.Post),
				Actual:   fmt.Sprintf("fetch error: %v", err),
			}
		}
	}

	actual := postFields(p, found, state)
	for _, key := range sortedKeys(assertion.Expect) {
		want := assertion.Expect[key]
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not available for %s post %s", key, source, assertion.Post),
			}
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s post %s field %q = %v", source, assertion.Post, key, want),
				Actual:   fmt.Sprintf("field %q = %v", key, got),
			}
		}
	}
	return nil
}

// postFields flattens a post into the fields final_state can check.
func postFields(p feed.Post, found bool, state string) map[string]interface{} {
	if !found {
		return map[string]interface{}{"exists": false}
	}

	ids := make([]string, 0, len(p.Comments))
	bots := make([]string, 0, len(p.Comments))
	local := 0
	for _, c := range p.Comments {
		ids = append(ids, c.ID)
		bots = append(bots, c.Bot)
		if c.Local {
			local++
		}
	}
	fields := map[string]interface{}{
		"exists":         true,
		"bot":            p.Bot,
		"text":           p.Text,
		"likes":          p.Likes,
		"dislikes":       p.Dislikes,
		"reactions":      p.Reactions,
		"user_reactions": p.UserReactions,
		"comment_count":  len(p.Comments),
		"comment_ids":    ids,
		"comment_bots":   bots,
		"local_comments": local,
	}
	if state != "" {
		fields["comment_state"] = state
	}
	return fields
}

// statusCoder is satisfied by backend errors carrying an HTTP status.
type statusCoder interface {
	StatusCode() int
}

func isNotFound(err error) bool {
	var sc statusCoder
	return errors.As(err, &sc) && sc.StatusCode() == http.StatusNotFound
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual, expected map[string]interface{}) bool {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values after normalizing both through JSON,
// so YAML ints, Go ints and typed maps or slices compare by content.
func valuesEqual(actual, expected interface{}) bool {
	a, errA := normalize(actual)
	e, errE := normalize(expected)
	if errA != nil || errE != nil {
		return reflect.DeepEqual(actual, expected)
	}
	return reflect.DeepEqual(a, e)
}

func normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx     context.Context
	Engine  *engine.Engine
	Backend engine.Backend
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides the engine and backend for final_state.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires an assertion context", i)
			} else {
				err = assertFinalState(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			failures = append(failures, err.Error())
		}
	}

	return failures
}
