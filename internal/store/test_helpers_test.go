package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/feedsim/internal/feed"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// createTestPost inserts a post with minimal required fields.
func createTestPost(t *testing.T, s *Store, id, bot string) feed.Post {
	t.Helper()
	p := feed.Post{ID: id, Bot: bot, Text: "post " + id, Timestamp: testTime}
	if err := s.CreatePost(context.Background(), p); err != nil {
		t.Fatalf("CreatePost(%s) failed: %v", id, err)
	}
	return p
}

// createTestComments appends comments with the given ids to a post.
func createTestComments(t *testing.T, s *Store, postID string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		c := feed.Comment{ID: id, Bot: "bot-" + id, Text: "comment " + id}
		if err := s.AddComment(context.Background(), postID, c); err != nil {
			t.Fatalf("AddComment(%s) failed: %v", id, err)
		}
	}
}
