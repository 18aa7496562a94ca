package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/feedsim/internal/simserver"
)

// Scenario defines an end-to-end reconciliation scenario: server-side
// seed data, a flow of engine operations, and assertions over the
// resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Server configures the in-process reference backend.
	Server ServerSetup `yaml:"server,omitempty"`

	// Setup seeds the backend directly, before the engine loads the feed.
	// Setup steps must succeed.
	Setup []ActionStep `yaml:"setup,omitempty"`

	// Flow contains the engine operations under test.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// ServerSetup configures the reference backend of a scenario.
type ServerSetup struct {
	// Personas restricts the roster to these names, in this order.
	Personas []string `yaml:"personas,omitempty"`

	// Decider fixes simulation decisions. Without it the default
	// hash decider is used.
	Decider *DeciderSetup `yaml:"decider,omitempty"`

	// Comments maps persona names to the text of every comment they
	// write. Unlisted personas write "<name> was here".
	Comments map[string]string `yaml:"comments,omitempty"`
}

// DeciderSetup mirrors simserver.FixedDecider.
type DeciderSetup struct {
	Default   string            `yaml:"default,omitempty"`
	ByPersona map[string]string `yaml:"by_persona,omitempty"`
}

// ActionStep is one backend seed action.
type ActionStep struct {
	// Action is one of create_post, comment, reply, react.
	Action string `yaml:"action"`

	Args map[string]interface{} `yaml:"args"`
}

// FlowStep invokes one engine operation.
type FlowStep struct {
	// Invoke is the operation name (toggle, simulate, owner_auto_reply, ...).
	Invoke string `yaml:"invoke"`

	Args map[string]interface{} `yaml:"args"`

	// Expect specifies the expected outcome. If nil, any outcome is
	// accepted and recorded.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected step behavior.
type ExpectClause struct {
	// Case is "ok" or an engine error code such as NOT_FOUND.
	Case string `yaml:"case"`

	// Result is a subset match against the step result.
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a step with op (and optional case, args) exists
	// - "trace_order": ops appear in order
	// - "trace_count": op appears exactly Count times
	// - "final_state": a post's state matches Expect
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Case narrows trace_contains to steps with this outcome.
	Case string `yaml:"case,omitempty"`

	// Args are matched as a subset (trace_contains).
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Post is the post identifier (final_state).
	Post string `yaml:"post,omitempty"`

	// Source selects the engine's local view or the backend's canonical
	// post (final_state). Default engine.
	Source string `yaml:"source,omitempty"`

	// Expect contains expected field values (final_state), subset match.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	Count int `yaml:"count,omitempty"`

	Ops []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// State sources for final_state.
const (
	SourceEngine = "engine"
	SourceServer = "server"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if d := s.Server.Decider; d != nil {
		if d.Default != "" && !validDecision(d.Default) {
			return fmt.Errorf("server.decider.default: unknown decision %q", d.Default)
		}
		for _, name := range sortedKeys(d.ByPersona) {
			if !validDecision(d.ByPersona[name]) {
				return fmt.Errorf("server.decider.by_persona[%s]: unknown decision %q", name, d.ByPersona[name])
			}
		}
	}

	for i, step := range s.Setup {
		if _, ok := setupActions[step.Action]; !ok {
			return fmt.Errorf("setup[%d]: unknown action %q", i, step.Action)
		}
		if step.Args == nil {
			return fmt.Errorf("setup[%d]: args is required", i)
		}
	}

	for i, step := range s.Flow {
		if _, ok := operations[step.Invoke]; !ok {
			return fmt.Errorf("flow[%d]: unknown operation %q", i, step.Invoke)
		}
		if step.Args == nil {
			return fmt.Errorf("flow[%d]: args is required (use empty map if no args)", i)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Post == "" {
			return fmt.Errorf("assertions[%d]: post is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		if a.Source != "" && a.Source != SourceEngine && a.Source != SourceServer {
			return fmt.Errorf("assertions[%d]: source must be %q or %q", index, SourceEngine, SourceServer)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

var decisions = []simserver.Decision{
	simserver.DecisionPass,
	simserver.DecisionLike,
	simserver.DecisionDislike,
	simserver.DecisionComment,
	simserver.DecisionBoth,
	simserver.DecisionDislikeComment,
}

func validDecision(s string) bool {
	return slices.Contains(decisions, simserver.Decision(s))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
