package feed

// ReplaceReactions overwrites the reaction section (counts, actor map,
// likes and dislikes) with the canonical post's values.
func (p *Post) ReplaceReactions(canonical Post) {
	c := canonical.Clone()
	p.Likes = c.Likes
	p.Dislikes = c.Dislikes
	p.Reactions = c.Reactions
	p.UserReactions = c.UserReactions
}

// ReplaceComments overwrites the comment section wholesale and returns
// the number of local comments it discarded.
func (p *Post) ReplaceComments(comments []Comment) int {
	dropped := p.LocalComments()
	p.Comments = CloneComments(comments)
	for i := range p.Comments {
		p.Comments[i].Local = false
	}
	return dropped
}

// ReplaceMetadata overwrites author, body, image and timestamp.
func (p *Post) ReplaceMetadata(canonical Post) {
	p.Bot = canonical.Bot
	p.Text = canonical.Text
	p.Image = canonical.Image
	p.Timestamp = canonical.Timestamp
}

// LocalComments counts comments created by the local-only path.
func (p *Post) LocalComments() int {
	n := 0
	for _, c := range p.Comments {
		if c.Local {
			n++
		}
	}
	return n
}

// CommentIndex returns the position of the comment with the given ID,
// or -1.
func (p *Post) CommentIndex(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range p.Comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// ServerIndex returns the position of comment i among the comments the
// backend knows about, skipping local ones.
func (p *Post) ServerIndex(i int) int {
	n := 0
	for j := 0; j < i && j < len(p.Comments); j++ {
		if !p.Comments[j].Local {
			n++
		}
	}
	return n
}
