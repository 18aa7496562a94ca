// Package store provides SQLite-backed persistence for the feedsim
// reference backend.
//
// Tables:
//   - posts: post body, like and dislike counters, simulation rounds
//   - reactions: one row per (post, actor), the actor's current emoji
//   - comments: identified comments in insertion order
//   - replies: replies in insertion order, deleted with their comment
//
// # Ordering
//
// Every list is ordered by the seq column (AUTOINCREMENT), never by
// timestamps, so a comment's positional index is its rank by seq within
// the post.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Cascading deletes of reactions, comments, replies
package store
