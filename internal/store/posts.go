package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/feedsim/internal/feed"
)

// CreatePost inserts a post. The post must carry its identifier and
// timestamp; reactions and comments are ignored.
func (s *Store) CreatePost(ctx context.Context, p feed.Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, bot, text, image, likes, dislikes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.Bot,
		p.Text,
		p.Image,
		p.Likes,
		p.Dislikes,
		p.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// DeletePost removes a post with its reactions, comments and replies.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete post: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete post %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetPost returns the full canonical post.
func (s *Store) GetPost(ctx context.Context, id string) (feed.Post, error) {
	posts, err := s.loadPosts(ctx, id)
	if err != nil {
		return feed.Post{}, err
	}
	if len(posts) == 0 {
		return feed.Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	return posts[0], nil
}

// ListPosts returns every post in creation order.
//
// Returns an empty slice (not nil) if there are no posts.
func (s *Store) ListPosts(ctx context.Context) ([]feed.Post, error) {
	return s.loadPosts(ctx, "")
}

// HasPost reports whether the post exists.
func (s *Store) HasPost(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check post: %w", err)
	}
	return n > 0, nil
}

// AddSignals adds to a post's like and dislike counters.
func (s *Store) AddSignals(ctx context.Context, postID string, likes, dislikes int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET likes = likes + ?, dislikes = dislikes + ?
		WHERE id = ?
	`, likes, dislikes, postID)
	if err != nil {
		return fmt.Errorf("add signals: %w", err)
	}
	return requireRow(res, "add signals", postID)
}

// NextRound increments and returns the post's simulation round.
func (s *Store) NextRound(ctx context.Context, postID string) (int, error) {
	var round int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE posts SET rounds = rounds + 1 WHERE id = ?`, postID)
		if err != nil {
			return err
		}
		if err := requireRow(res, "next round", postID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT rounds FROM posts WHERE id = ?`, postID).Scan(&round)
	})
	if err != nil {
		return 0, fmt.Errorf("next round: %w", err)
	}
	return round, nil
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

// loadPosts reads posts (all if id is empty) and attaches reactions,
// comments and replies. Each query's rows are drained before the next
// is issued: the store holds a single connection.
func (s *Store) loadPosts(ctx context.Context, id string) ([]feed.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot, text, image, likes, dislikes, created_at
		FROM posts
		WHERE ? = '' OR id = ?
		ORDER BY seq ASC
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}

	posts := []feed.Post{}
	index := make(map[string]int)
	for rows.Next() {
		var (
			p       feed.Post
			created string
		)
		if err := rows.Scan(&p.ID, &p.Bot, &p.Text, &p.Image, &p.Likes, &p.Dislikes, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if p.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("post %s: parse created_at: %w", p.ID, err)
		}
		p.Normalize()
		index[p.ID] = len(posts)
		posts = append(posts, p)
	}
	if err := closeRows(rows, "iterate posts"); err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return posts, nil
	}

	if err := s.attachReactions(ctx, id, posts, index); err != nil {
		return nil, err
	}
	if err := s.attachComments(ctx, id, posts, index); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Store) attachReactions(ctx context.Context, id string, posts []feed.Post, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, actor, emoji FROM reactions
		WHERE ? = '' OR post_id = ?
		ORDER BY post_id, actor
	`, id, id)
	if err != nil {
		return fmt.Errorf("query reactions: %w", err)
	}
	for rows.Next() {
		var postID, actor, emoji string
		if err := rows.Scan(&postID, &actor, &emoji); err != nil {
			rows.Close()
			return fmt.Errorf("scan reaction: %w", err)
		}
		i, ok := index[postID]
		if !ok {
			continue
		}
		posts[i].UserReactions[actor] = emoji
		posts[i].Reactions[emoji]++
	}
	return closeRows(rows, "iterate reactions")
}

func (s *Store) attachComments(ctx context.Context, id string, posts []feed.Post, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, bot, text FROM comments
		WHERE ? = '' OR post_id = ?
		ORDER BY seq ASC
	`, id, id)
	if err != nil {
		return fmt.Errorf("query comments: %w", err)
	}

	type ref struct{ post, comment int }
	byID := make(map[string]ref)
	for rows.Next() {
		var c feed.Comment
		var postID string
		if err := rows.Scan(&c.ID, &postID, &c.Bot, &c.Text); err != nil {
			rows.Close()
			return fmt.Errorf("scan comment: %w", err)
		}
		i, ok := index[postID]
		if !ok {
			continue
		}
		c.Replies = []feed.Reply{}
		byID[c.ID] = ref{post: i, comment: len(posts[i].Comments)}
		posts[i].Comments = append(posts[i].Comments, c)
	}
	if err := closeRows(rows, "iterate comments"); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT r.comment_id, r.bot, r.text
		FROM replies r
		JOIN comments c ON c.id = r.comment_id
		WHERE ? = '' OR c.post_id = ?
		ORDER BY r.seq ASC
	`, id, id)
	if err != nil {
		return fmt.Errorf("query replies: %w", err)
	}
	for rows.Next() {
		var commentID string
		var r feed.Reply
		if err := rows.Scan(&commentID, &r.Bot, &r.Text); err != nil {
			rows.Close()
			return fmt.Errorf("scan reply: %w", err)
		}
		at, ok := byID[commentID]
		if !ok {
			continue
		}
		c := &posts[at.post].Comments[at.comment]
		c.Replies = append(c.Replies, r)
	}
	return closeRows(rows, "iterate replies")
}

func closeRows(rows *sql.Rows, what string) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
