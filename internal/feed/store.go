package feed

import (
	"errors"
	"sync"
)

// ErrPostNotFound is returned when a post ID is not in the store.
var ErrPostNotFound = errors.New("post not found")

// Store is the ordered in-memory collection of posts.
//
// Reads return deep copies and are safe from any goroutine. Writes are
// expected to come from a single goroutine; the lock only protects readers.
type Store struct {
	mu    sync.RWMutex
	posts []*Post
	index map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Get returns a copy of the post with the given ID.
func (s *Store) Get(id string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Post{}, false
	}
	return s.posts[i].Clone(), true
}

// Has reports whether the post exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// List returns copies of all posts in feed order.
func (s *Store) List() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Post, len(s.posts))
	for i, p := range s.posts {
		out[i] = p.Clone()
	}
	return out
}

// IDs returns the post IDs in feed order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.posts))
	for i, p := range s.posts {
		ids[i] = p.ID
	}
	return ids
}

// Len returns the number of posts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// Update runs fn against the stored post under the write lock.
// Returns ErrPostNotFound if the post is absent, otherwise fn's error.
func (s *Store) Update(id string, fn func(*Post) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return ErrPostNotFound
	}
	return fn(s.posts[i])
}

// Put appends a post, or replaces it in place if the ID already exists.
func (s *Store) Put(p Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := p.Clone()
	if i, ok := s.index[p.ID]; ok {
		s.posts[i] = &cp
		return
	}
	s.index[p.ID] = len(s.posts)
	s.posts = append(s.posts, &cp)
}

// Remove deletes a post. Returns false if it was not present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.posts = append(s.posts[:i], s.posts[i+1:]...)
	s.reindex()
	return true
}

// Reset replaces the whole collection, keeping the given order.
// Later duplicates of an ID are ignored.
func (s *Store) Reset(posts []Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = make([]*Post, 0, len(posts))
	s.index = make(map[string]int, len(posts))
	for _, p := range posts {
		if _, dup := s.index[p.ID]; dup {
			continue
		}
		cp := p.Clone()
		s.index[p.ID] = len(s.posts)
		s.posts = append(s.posts, &cp)
	}
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.posts))
	for i, p := range s.posts {
		s.index[p.ID] = i
	}
}
