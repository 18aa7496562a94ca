package simserver

import (
	"fmt"
	"strings"

	"github.com/roach88/feedsim/internal/feed"
)

// Writer produces the text persona actions carry.
type Writer interface {
	// Comment is a persona's comment on a post.
	Comment(p feed.Persona, post feed.Post, round int) string
	// Reply is the post author's reply to a comment.
	Reply(author feed.Persona, c feed.Comment) string
	// Post is generated post content for a strategy.
	Post(p feed.Persona, strategy, topic string) string
}

// genericComments are the canned comment phrases of the reference data set.
var genericComments = []string{
	"Great post!", "Interesting perspective.", "I disagree completely.",
	"Tell me more!", "Lol", "Wow", "This is amazing.", "Not sure about this.",
	"Can you explain further?", "Love it!", "So true.", "Thanks for sharing.",
	"I need more context.", "This actually makes sense.", "Why?", "Totally!",
}

// Strategies are the eight posting strategies of the generation service.
var Strategies = []string{
	"Friendly-Tech", "Friendly-Lifestyle",
	"Professional-Tech", "Professional-Lifestyle",
	"Controversial-Opinion", "Humorous-Meme",
	"Educational-Tutorial", "Inspirational-Story",
}

var strategyTemplates = map[string]string{
	"Friendly-Tech":          "Hey friends! Been tinkering with %s lately and honestly it made my week.",
	"Friendly-Lifestyle":     "Slow morning, good coffee, thinking about %s. How is everyone doing?",
	"Professional-Tech":      "Three lessons from a year of working with %s in production.",
	"Professional-Lifestyle": "Balancing deadlines and %s: what has worked for me so far.",
	"Controversial-Opinion":  "Unpopular opinion: %s is overrated and we need to talk about it.",
	"Humorous-Meme":          "Me: I will just read one thing about %s. Also me, four hours later:",
	"Educational-Tutorial":   "A quick beginner's guide to %s, step by step.",
	"Inspirational-Story":    "A year ago I knew nothing about %s. Today I am sharing what I learned.",
}

// CannedWriter picks text deterministically from fixed phrases.
type CannedWriter struct{}

// Comment implements Writer.
func (CannedWriter) Comment(p feed.Persona, post feed.Post, round int) string {
	i := stableHash("comment", p.Name, post.ID, fmt.Sprint(round)) % uint32(len(genericComments))
	return genericComments[i]
}

// Reply implements Writer.
func (CannedWriter) Reply(author feed.Persona, c feed.Comment) string {
	return fmt.Sprintf("Thanks, %s!", c.Bot)
}

// Post implements Writer.
func (CannedWriter) Post(p feed.Persona, strategy, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = "life"
		if p.Profile != nil && len(p.Profile.Interests) > 0 {
			topic = p.Profile.Interests[0]
		}
	}
	tmpl, ok := strategyTemplates[strategy]
	if !ok {
		tmpl = "Some thoughts on %s."
	}
	return fmt.Sprintf(tmpl, topic)
}
