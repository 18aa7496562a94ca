package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/feedsim/internal/feed"
)

// ToggleReaction applies the exclusive per-actor toggle in one
// transaction: the actor's row is removed when it already holds emoji,
// repointed when it holds another emoji, and inserted otherwise.
func (s *Store) ToggleReaction(ctx context.Context, postID, actor, emoji string) (feed.ReactionTransition, error) {
	t := feed.ReactionTransition{Actor: actor}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE id = ?`, postID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("post %s: %w", postID, ErrNotFound)
		}

		var prev string
		err := tx.QueryRowContext(ctx, `
			SELECT emoji FROM reactions WHERE post_id = ? AND actor = ?
		`, postID, actor).Scan(&prev)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO reactions (post_id, actor, emoji) VALUES (?, ?, ?)
			`, postID, actor, emoji)
			t.Current = emoji
			return err
		case err != nil:
			return err
		}

		t.Previous = prev
		if prev == emoji {
			_, err = tx.ExecContext(ctx, `
				DELETE FROM reactions WHERE post_id = ? AND actor = ?
			`, postID, actor)
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE reactions SET emoji = ? WHERE post_id = ? AND actor = ?
		`, emoji, postID, actor)
		t.Current = emoji
		return err
	})
	if err != nil {
		return feed.ReactionTransition{}, fmt.Errorf("toggle reaction: %w", err)
	}
	return t, nil
}
