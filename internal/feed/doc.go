// Package feed defines the simulated social feed data model.
//
// A Post carries two independently reconciled sections:
//
// Reactions: the exclusive emoji choice of each actor (UserReactions) and
// the derived per-emoji counts (Reactions), plus the Likes/Dislikes
// counters fed by simulation outcomes.
//
// Comments: the ordered top-level comments, each with an ordered list of
// replies. Only comments with a backend-assigned ID can receive replies.
//
// INVARIANTS (enforced by ToggleReaction, checked by CheckInvariants):
//   - sum(Reactions) == len(UserReactions)
//   - Reactions never holds a zero or negative count
//   - an unidentified comment has no replies
//
// Store holds the ordered posts. It is safe for concurrent readers but is
// meant to have a single writer (the engine loop).
package feed
