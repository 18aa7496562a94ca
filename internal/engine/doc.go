// Package engine implements the feedsim interaction-state reconciliation
// engine.
//
// The engine keeps an in-memory feed (feed.Store) consistent with a
// remote backend while operations apply optimistic local changes, wait on
// network confirmation, and receive simulation outcomes of different
// shapes.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every Post Store mutation runs inside Run(), one at a time. Public
// operations issue their backend requests from the caller's goroutine and
// submit small apply closures to the loop, so a slow request suspends only
// the operation that issued it. Operations on different posts proceed
// concurrently; operations on the same post are ordered by the loop.
//
// Per-Post Tokens:
// Every request whose response replaces state (canonical refetch, owner
// auto-reply, feed load) is stamped with a sequence number from the
// logical Clock, per post and per section (reactions, comments). Local
// changes stamp the section they touch. A replacing response is applied
// for a section only if nothing newer was stamped on that section after
// the request was issued; otherwise that section of the response is
// discarded. Responses are never cancelled, only guarded.
//
// Operations:
//   - Toggle: exclusive emoji reaction, optimistic, confirmed afterwards
//     without rollback on failure
//   - AddReply, SubmitComment, BotReply: applied after confirmation
//   - AddLocalComment: local-only, tagged so canonical replaces drop it
//   - DeleteComment: resolved to a comment identity at issue time and
//     removed by identity on confirmation
//   - Simulate: apply outcome deltas, then always refetch the canonical post
//   - OwnerAutoReply: authoritative replacement of a post's comments
//
// ERRORS:
// Failures are reported to the caller as *Error with a Code; nothing is
// fatal and optimistic state is never compensated automatically.
package engine
