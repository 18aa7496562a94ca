package feed

import (
	"fmt"
	"sort"
)

// ReactionTransition describes the effect of a single toggle.
// Previous and Current are empty when the actor held no reaction.
type ReactionTransition struct {
	Actor    string `json:"actor"`
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current,omitempty"`
}

// Removed reports whether the toggle cleared the actor's reaction.
func (t ReactionTransition) Removed() bool {
	return t.Current == ""
}

// ToggleReaction applies the exclusive per-actor reaction transition:
//   - same emoji held: remove it
//   - different emoji held: move the actor to emoji
//   - nothing held: add emoji
//
// Counts are adjusted incrementally; a count reaching zero deletes its
// entry. The emoji must already be normalized.
func (p *Post) ToggleReaction(actor, emoji string) ReactionTransition {
	if p.Reactions == nil {
		p.Reactions = make(map[string]int)
	}
	if p.UserReactions == nil {
		p.UserReactions = make(map[string]string)
	}

	t := ReactionTransition{Actor: actor}
	prev, held := p.UserReactions[actor]
	if held {
		t.Previous = prev
		p.decrement(prev)
		delete(p.UserReactions, actor)
		if prev == emoji {
			return t
		}
	}

	p.Reactions[emoji]++
	p.UserReactions[actor] = emoji
	t.Current = emoji
	return t
}

func (p *Post) decrement(emoji string) {
	n := p.Reactions[emoji]
	if n <= 1 {
		delete(p.Reactions, emoji)
		return
	}
	p.Reactions[emoji] = n - 1
}

// CheckInvariants verifies the reaction and comment invariants of the post.
func (p *Post) CheckInvariants() error {
	total := 0
	for emoji, n := range p.Reactions {
		if n <= 0 {
			return fmt.Errorf("post %s: reaction %q has count %d", p.ID, emoji, n)
		}
		total += n
	}
	if total != len(p.UserReactions) {
		return fmt.Errorf("post %s: reaction counts sum to %d but %d actors hold a reaction",
			p.ID, total, len(p.UserReactions))
	}
	held := make(map[string]int, len(p.Reactions))
	for _, emoji := range p.UserReactions {
		held[emoji]++
	}
	for emoji, n := range p.Reactions {
		if held[emoji] != n {
			return fmt.Errorf("post %s: reaction %q counted %d but held by %d actors",
				p.ID, emoji, n, held[emoji])
		}
	}
	for i, c := range p.Comments {
		if !c.Identified() && len(c.Replies) > 0 {
			return fmt.Errorf("post %s: unidentified comment %d has %d replies", p.ID, i, len(c.Replies))
		}
	}
	return nil
}

// RepairReactions rebuilds Reactions from UserReactions. Used only when a
// canonical post arrives in violation of the reaction invariants.
func (p *Post) RepairReactions() {
	p.Reactions = make(map[string]int, len(p.UserReactions))
	for _, emoji := range p.UserReactions {
		p.Reactions[emoji]++
	}
}

// SortedReactions returns the emoji keys in lexical order.
func (p *Post) SortedReactions() []string {
	keys := make([]string, 0, len(p.Reactions))
	for k := range p.Reactions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
