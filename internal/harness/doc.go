// Package harness runs end-to-end reconciliation scenarios against an
// in-process reference backend.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: toggle_reaction
//	description: "A second toggle of the same emoji removes the reaction"
//	server:
//	  personas: [Clara, Tom]
//	  decider:
//	    default: pass
//	    by_persona: { Tom: like }
//	  comments: { Tom: "Nice!" }
//	setup:
//	  - action: create_post
//	    args: { bot: Clara, text: "Sunset" }
//	flow:
//	  - invoke: toggle
//	    args: { post: id-1, actor: Tom, emoji: "👍" }
//	    expect:
//	      case: ok
//	      result: { removed: false }
//	assertions:
//	  - type: trace_contains
//	    op: toggle
//	    case: ok
//	  - type: final_state
//	    post: id-1
//	    source: server
//	    expect: { likes: 1 }
//
// Setup actions (create_post, comment, reply, react) go straight to the
// backend before the engine loads the feed. Flow steps invoke engine
// operations; the case of a step is "ok" or the engine error code.
//
// # Assertion Types
//
//   - trace_contains: an op appears in the trace, optionally with case and args
//   - trace_order: ops appear in the given order
//   - trace_count: an op appears exactly N times
//   - final_state: fields of a post in the engine view or on the server
//
// # Deterministic Testing
//
// Every run gets a fresh in-memory database, sequential identifiers
// (id-1, id-2, ...), a deterministic clock and seeded random sources, so
// traces are reproducible and can be compared against golden snapshots.
package harness
