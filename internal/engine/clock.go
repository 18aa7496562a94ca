package engine

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Clock is a monotonic logical clock. Every token the engine issues takes
// a strictly increasing sequence number from it.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Section is a bit set naming the independently reconciled parts of a post.
type Section uint8

const (
	SectionReactions Section = 1 << iota
	SectionComments

	SectionAll = SectionReactions | SectionComments
)

// Has reports whether s includes every bit of other.
func (s Section) Has(other Section) bool {
	return s&other == other
}

func (s Section) String() string {
	var parts []string
	if s.Has(SectionReactions) {
		parts = append(parts, "reactions")
	}
	if s.Has(SectionComments) {
		parts = append(parts, "comments")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Token identifies one issued request or local change.
type Token struct {
	PostID   string
	Seq      int64
	Sections Section
}

type sectionKey struct {
	postID  string
	section Section
}

// tokenTable records the latest sequence issued per (post, section) and
// the confirmations still in flight for it.
//
// Issue, Hold and Release are called from caller goroutines when a request
// is sent or confirmed and from the Run loop when local state changes;
// Current is called from the Run loop when a replacing response arrives.
type tokenTable struct {
	clock   *Clock
	mu      sync.Mutex
	latest  map[sectionKey]int64
	pending map[sectionKey]int
}

func newTokenTable(clock *Clock) *tokenTable {
	return &tokenTable{
		clock:   clock,
		latest:  make(map[sectionKey]int64),
		pending: make(map[sectionKey]int),
	}
}

// Issue stamps the given sections of a post with a new sequence number.
func (t *tokenTable) Issue(postID string, sections Section) Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq := t.clock.Next()
	for _, s := range []Section{SectionReactions, SectionComments} {
		if sections.Has(s) {
			t.latest[sectionKey{postID, s}] = seq
		}
	}
	return Token{PostID: postID, Seq: seq, Sections: sections}
}

// Hold stamps the sections like Issue and marks a confirmation in flight
// for them. Until the matching Release, no replacing response is current
// for those sections: the backend may not have applied the change yet.
func (t *tokenTable) Hold(postID string, sections Section) Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq := t.clock.Next()
	for _, s := range []Section{SectionReactions, SectionComments} {
		if sections.Has(s) {
			key := sectionKey{postID, s}
			t.latest[key] = seq
			t.pending[key]++
		}
	}
	return Token{PostID: postID, Seq: seq, Sections: sections}
}

// Release ends a confirmation started by Hold and stamps the sections
// again, so responses issued while it was in flight stay stale.
func (t *tokenTable) Release(tok Token) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq := t.clock.Next()
	for _, s := range []Section{SectionReactions, SectionComments} {
		if !tok.Sections.Has(s) {
			continue
		}
		key := sectionKey{tok.PostID, s}
		t.latest[key] = seq
		if t.pending[key]--; t.pending[key] <= 0 {
			delete(t.pending, key)
		}
	}
}

// Mark returns a fresh sequence number without stamping any section. Used
// by requests that cover posts not known in advance (feed load).
func (t *tokenTable) Mark() int64 {
	return t.clock.Next()
}

// Current reports whether nothing newer than seq was issued for the
// post section and no confirmation is in flight for it.
func (t *tokenTable) Current(postID string, section Section, seq int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := sectionKey{postID, section}
	return t.pending[key] == 0 && t.latest[key] <= seq
}

// Latest returns the latest sequence issued for the post section.
func (t *tokenTable) Latest(postID string, section Section) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[sectionKey{postID, section}]
}
