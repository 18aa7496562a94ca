package simserver

import (
	"fmt"
	"hash/fnv"

	"github.com/roach88/feedsim/internal/feed"
)

// Decision is what a persona does with a post.
type Decision string

const (
	DecisionPass           Decision = "pass"
	DecisionLike           Decision = "like"
	DecisionDislike        Decision = "dislike"
	DecisionComment        Decision = "comment"
	DecisionBoth           Decision = "both"
	DecisionDislikeComment Decision = "dislike_comment"
)

// Decider chooses a persona's interaction with a post in a given
// simulation round.
type Decider interface {
	Decide(p feed.Persona, post feed.Post, round int) Decision
}

// HashDecider derives decisions from a stable hash of persona, post and
// round, so a replayed round always reaches the same decision.
type HashDecider struct{}

// Bucket boundaries out of 100.
var decisionBuckets = []struct {
	upTo     uint32
	decision Decision
}{
	{40, DecisionPass},
	{65, DecisionLike},
	{75, DecisionDislike},
	{85, DecisionComment},
	{95, DecisionBoth},
	{100, DecisionDislikeComment},
}

// Decide implements Decider.
func (HashDecider) Decide(p feed.Persona, post feed.Post, round int) Decision {
	b := stableHash(p.Name, post.ID, fmt.Sprint(round)) % 100
	for _, bucket := range decisionBuckets {
		if b < bucket.upTo {
			return bucket.decision
		}
	}
	return DecisionPass
}

// FixedDecider returns the same decision for every persona, or the
// per-persona override when one is set. Used by scenarios and tests.
type FixedDecider struct {
	Default   Decision
	ByPersona map[string]Decision
}

// Decide implements Decider.
func (d FixedDecider) Decide(p feed.Persona, _ feed.Post, _ int) Decision {
	if dec, ok := d.ByPersona[p.Name]; ok {
		return dec
	}
	if d.Default == "" {
		return DecisionPass
	}
	return d.Default
}

// stableHash is FNV-1a over the parts joined by NUL.
func stableHash(parts ...string) uint32 {
	h := fnv.New32a()
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(part))
	}
	return h.Sum32()
}
