package feed

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Post is a feed entry authored by a persona or a human actor.
type Post struct {
	ID            string            `json:"id"`
	Bot           string            `json:"bot"`
	Text          string            `json:"text"`
	Image         string            `json:"image,omitempty"`
	Likes         int               `json:"likes"`
	Dislikes      int               `json:"dislikes"`
	Reactions     map[string]int    `json:"reactions"`
	UserReactions map[string]string `json:"user_reactions"`
	Comments      []Comment         `json:"comments"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Comment is a top-level comment on a post.
//
// ID is empty only for comments the backend has not confirmed. Local marks
// comments created by the local-only path; it is never serialized, so a
// canonical post from the backend never contains a local comment.
type Comment struct {
	ID      string  `json:"id,omitempty"`
	Bot     string  `json:"bot"`
	Text    string  `json:"text"`
	Replies []Reply `json:"replies"`
	Local   bool    `json:"-"`
}

// Identified reports whether the backend has assigned this comment an ID.
func (c Comment) Identified() bool {
	return c.ID != ""
}

// Reply is a response attached to an identified comment.
type Reply struct {
	Bot  string `json:"bot"`
	Text string `json:"text"`
}

// Persona describes a configured synthetic actor.
type Persona struct {
	Name            string   `json:"name"`
	Model           string   `json:"model"`
	Profile         *Profile `json:"profile,omitempty"`
	PoliticalStance *Stance  `json:"political_stance,omitempty"`
	BeliefAnchor    string   `json:"belief_anchor,omitempty"`
}

// Profile is the descriptive part of a persona.
type Profile struct {
	Age               int      `json:"age,omitempty"`
	Traits            []string `json:"traits,omitempty"`
	Interests         []string `json:"interests,omitempty"`
	EmotionalBaseline string   `json:"emotional_baseline,omitempty"`
	LanguageStyle     string   `json:"language_style,omitempty"`
}

// Stance places a persona on three axes in [-1, 1].
type Stance struct {
	Economic         float64 `json:"economic"`
	Social           float64 `json:"social"`
	Authority        float64 `json:"authority"`
	OpinionIntensity string  `json:"opinion_intensity,omitempty"`
}

// NewPost is the payload of a post-creation request.
type NewPost struct {
	Bot   string `json:"bot"`
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// Generated is the output of the external generation service.
type Generated struct {
	Content  string `json:"generated_content"`
	Bot      string `json:"bot"`
	Image    string `json:"image,omitempty"`
	Strategy string `json:"strategy_used"`
}

// GenerateRequest is the body of a generation request. Likes and Comments
// of -1 ask the service to use the persona's observed engagement.
type GenerateRequest struct {
	Likes         int     `json:"likes"`
	Comments      int     `json:"comments"`
	Sentiment     float64 `json:"sentiment"`
	Interaction   float64 `json:"interaction"`
	Topic         string  `json:"topic,omitempty"`
	GenerateImage bool    `json:"generate_image,omitempty"`
}

// TokenWeight is one (token, weight) pair of a text explanation.
type TokenWeight struct {
	Token  string
	Weight float64
}

// Explanation is the output of the external explainability service.
// The values are passed through untouched.
type Explanation struct {
	Decision string        `json:"own_decision"`
	Reason   string        `json:"own_reason"`
	Tokens   []TokenWeight `json:"lime_explanation"`
}

// Clone returns a deep copy of the post.
func (p Post) Clone() Post {
	out := p
	out.Reactions = make(map[string]int, len(p.Reactions))
	for k, v := range p.Reactions {
		out.Reactions[k] = v
	}
	out.UserReactions = make(map[string]string, len(p.UserReactions))
	for k, v := range p.UserReactions {
		out.UserReactions[k] = v
	}
	out.Comments = CloneComments(p.Comments)
	return out
}

// CloneComments deep-copies a comment sequence. A nil input yields an
// empty, non-nil slice.
func CloneComments(in []Comment) []Comment {
	out := make([]Comment, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Replies = append([]Reply{}, c.Replies...)
	}
	return out
}

// Normalize fills nil maps and slices and NFC-normalizes emoji keys, so a
// decoded post is ready to be stored.
func (p *Post) Normalize() {
	reactions := make(map[string]int, len(p.Reactions))
	for emoji, n := range p.Reactions {
		reactions[NormalizeEmoji(emoji)] += n
	}
	p.Reactions = reactions

	users := make(map[string]string, len(p.UserReactions))
	for actor, emoji := range p.UserReactions {
		users[actor] = NormalizeEmoji(emoji)
	}
	p.UserReactions = users

	if p.Comments == nil {
		p.Comments = []Comment{}
	}
	for i := range p.Comments {
		if p.Comments[i].Replies == nil {
			p.Comments[i].Replies = []Reply{}
		}
	}
}

// NormalizeEmoji returns the NFC form of an emoji with surrounding
// whitespace removed.
func NormalizeEmoji(emoji string) string {
	return norm.NFC.String(strings.TrimSpace(emoji))
}

// NormalizeText returns the NFC form of user-entered text with surrounding
// whitespace removed.
func NormalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
