package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postWith(reactions map[string]int, users map[string]string) *Post {
	p := &Post{ID: "p1", Reactions: reactions, UserReactions: users}
	p.Normalize()
	return p
}

func TestToggleReaction_RemovesSameEmoji(t *testing.T) {
	p := postWith(map[string]int{"👍": 1}, map[string]string{"A": "👍"})

	tr := p.ToggleReaction("A", "👍")

	assert.Equal(t, "👍", tr.Previous)
	assert.True(t, tr.Removed())
	assert.Empty(t, p.Reactions)
	assert.Empty(t, p.UserReactions)
}

func TestToggleReaction_SwitchesEmoji(t *testing.T) {
	p := postWith(map[string]int{"👍": 1}, map[string]string{"A": "👍"})

	tr := p.ToggleReaction("A", "❤️")

	assert.Equal(t, "👍", tr.Previous)
	assert.Equal(t, "❤️", tr.Current)
	assert.Equal(t, map[string]int{"❤️": 1}, p.Reactions)
	assert.Equal(t, map[string]string{"A": "❤️"}, p.UserReactions)
}

func TestToggleReaction_SwitchKeepsOtherHolders(t *testing.T) {
	p := postWith(
		map[string]int{"👍": 2, "❤️": 1},
		map[string]string{"A": "👍", "B": "👍", "C": "❤️"},
	)

	p.ToggleReaction("A", "❤️")

	assert.Equal(t, map[string]int{"👍": 1, "❤️": 2}, p.Reactions)
	assert.Equal(t, "❤️", p.UserReactions["A"])
	require.NoError(t, p.CheckInvariants())
}

func TestToggleReaction_AddsWhenNoneHeld(t *testing.T) {
	p := postWith(nil, nil)

	tr := p.ToggleReaction("A", "🔥")

	assert.Empty(t, tr.Previous)
	assert.Equal(t, "🔥", tr.Current)
	assert.Equal(t, map[string]int{"🔥": 1}, p.Reactions)
	assert.Equal(t, map[string]string{"A": "🔥"}, p.UserReactions)
}

func TestToggleReaction_TwiceRestoresState(t *testing.T) {
	tests := []struct {
		name      string
		reactions map[string]int
		users     map[string]string
		actor     string
		emoji     string
	}{
		{"empty post", nil, nil, "A", "👍"},
		{"actor holds same", map[string]int{"👍": 1}, map[string]string{"A": "👍"}, "A", "👍"},
		{"actor holds other", map[string]int{"😂": 1, "👍": 1}, map[string]string{"A": "😂", "B": "👍"}, "A", "👍"},
		{"others hold emoji", map[string]int{"👍": 2}, map[string]string{"B": "👍", "C": "👍"}, "A", "👍"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := postWith(tt.reactions, tt.users)
			before := p.Clone()

			p.ToggleReaction(tt.actor, tt.emoji)
			p.ToggleReaction(tt.actor, tt.emoji)

			if before.UserReactions[tt.actor] == tt.emoji || before.UserReactions[tt.actor] == "" {
				assert.Equal(t, before.Reactions, p.Reactions)
				assert.Equal(t, before.UserReactions, p.UserReactions)
			} else {
				// An actor moving away from another emoji ends with none held.
				_, held := p.UserReactions[tt.actor]
				assert.False(t, held)
			}
			require.NoError(t, p.CheckInvariants())
		})
	}
}

func TestToggleReaction_CountsNeverNegative(t *testing.T) {
	p := postWith(nil, nil)
	actors := []string{"A", "B", "C"}
	emojis := []string{"👍", "❤️", "😂", "👍", "👍", "❤️"}

	for i := 0; i < 60; i++ {
		p.ToggleReaction(actors[i%len(actors)], emojis[(i*7)%len(emojis)])
		for emoji, n := range p.Reactions {
			require.Greater(t, n, 0, "emoji %s", emoji)
		}
		require.NoError(t, p.CheckInvariants())
	}
}

func TestNormalizeEmoji_CombinesForms(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	assert.Equal(t, composed, NormalizeEmoji(" "+decomposed+" "))

	p := postWith(map[string]int{decomposed: 1, composed: 1}, map[string]string{"A": decomposed, "B": composed})
	assert.Equal(t, map[string]int{composed: 2}, p.Reactions)
	require.NoError(t, p.CheckInvariants())
}

func TestCheckInvariants(t *testing.T) {
	tests := []struct {
		name    string
		post    Post
		wantErr string
	}{
		{
			name: "consistent",
			post: Post{ID: "p", Reactions: map[string]int{"👍": 1}, UserReactions: map[string]string{"A": "👍"}},
		},
		{
			name:    "sum mismatch",
			post:    Post{ID: "p", Reactions: map[string]int{"👍": 2}, UserReactions: map[string]string{"A": "👍"}},
			wantErr: "sum to 2",
		},
		{
			name:    "zero count",
			post:    Post{ID: "p", Reactions: map[string]int{"👍": 0}},
			wantErr: "has count 0",
		},
		{
			name:    "wrong holder",
			post:    Post{ID: "p", Reactions: map[string]int{"👍": 1}, UserReactions: map[string]string{"A": "❤️"}},
			wantErr: "held by 0",
		},
		{
			name:    "replies on unidentified comment",
			post:    Post{ID: "p", Comments: []Comment{{Bot: "A", Text: "x", Replies: []Reply{{Bot: "B", Text: "y"}}}}},
			wantErr: "unidentified comment 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.post.CheckInvariants()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRepairReactions(t *testing.T) {
	p := Post{ID: "p", Reactions: map[string]int{"👍": 5}, UserReactions: map[string]string{"A": "👍", "B": "❤️"}}

	p.RepairReactions()

	assert.Equal(t, map[string]int{"👍": 1, "❤️": 1}, p.Reactions)
	assert.NoError(t, p.CheckInvariants())
}
