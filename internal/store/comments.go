package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/feedsim/internal/feed"
)

// AddComment appends an identified comment to a post.
func (s *Store) AddComment(ctx context.Context, postID string, c feed.Comment) error {
	if c.ID == "" {
		return errors.New("add comment: missing identifier")
	}
	ok, err := s.HasPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	if !ok {
		return fmt.Errorf("add comment to %s: %w", postID, ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, bot, text) VALUES (?, ?, ?, ?)
	`, c.ID, postID, c.Bot, c.Text)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

// Comments returns the post's comments with their replies, in order.
func (s *Store) Comments(ctx context.Context, postID string) ([]feed.Comment, error) {
	p, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return p.Comments, nil
}

// DeleteCommentAt deletes the comment at index among the post's comments
// and returns its identifier. If expectedID is set and the comment at
// index has a different identifier, nothing is deleted and ErrStale is
// returned.
func (s *Store) DeleteCommentAt(ctx context.Context, postID string, index int, expectedID string) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("delete comment %d: %w", index, ErrNotFound)
	}

	var id string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM comments
			WHERE post_id = ?
			ORDER BY seq ASC
			LIMIT 1 OFFSET ?
		`, postID, index).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("comment %d of %s: %w", index, postID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if expectedID != "" && id != expectedID {
			return fmt.Errorf("comment %d of %s is %s, not %s: %w", index, postID, id, expectedID, ErrStale)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("delete comment: %w", err)
	}
	return id, nil
}

// AddReply appends a reply to an identified comment of the post.
func (s *Store) AddReply(ctx context.Context, postID, commentID string, r feed.Reply) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM comments WHERE id = ? AND post_id = ?
		`, commentID, postID).Scan(&n)
		if err != nil {
			return fmt.Errorf("add reply: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("add reply to %s/%s: %w", postID, commentID, ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO replies (comment_id, bot, text) VALUES (?, ?, ?)
		`, commentID, r.Bot, r.Text)
		if err != nil {
			return fmt.Errorf("add reply: %w", err)
		}
		return nil
	})
}
