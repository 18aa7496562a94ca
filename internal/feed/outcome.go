package feed

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedOutcome is wrapped by every outcome decoding failure.
var ErrMalformedOutcome = errors.New("malformed outcome")

// OutcomeKind is the wire tag of an outcome envelope.
type OutcomeKind string

const (
	KindLike           OutcomeKind = "like"
	KindDislike        OutcomeKind = "dislike"
	KindComment        OutcomeKind = "comment"
	KindBoth           OutcomeKind = "both"
	KindDislikeComment OutcomeKind = "dislike_comment"
	KindBatch          OutcomeKind = "batch"
)

// Signal is the like/dislike half of a Both outcome.
type Signal string

const (
	SignalLike    Signal = "like"
	SignalDislike Signal = "dislike"
)

// Outcome is a sealed interface over the simulation result variants.
// Only Like, Dislike, Commented, Both, DislikeComment and Batch implement it.
type Outcome interface {
	Kind() OutcomeKind
	outcome()
}

// Like is a single positive signal.
type Like struct {
	Bot string
}

// Dislike is a single negative signal, counted apart from emoji reactions.
type Dislike struct {
	Bot string
}

// Commented is a new backend-identified comment.
type Commented struct {
	CommentID string
	Bot       string
	Text      string
}

// Both is a like or dislike plus a comment from the same actor.
type Both struct {
	Signal  Signal
	Comment Commented
}

// DislikeComment is a dislike plus a comment from the same actor.
type DislikeComment struct {
	Comment Commented
}

// Batch holds the ordered per-actor outcomes of an all-actors run.
// Results never contain another Batch.
type Batch struct {
	Results []Outcome
}

func (Like) Kind() OutcomeKind           { return KindLike }
func (Dislike) Kind() OutcomeKind        { return KindDislike }
func (Commented) Kind() OutcomeKind      { return KindComment }
func (Both) Kind() OutcomeKind           { return KindBoth }
func (DislikeComment) Kind() OutcomeKind { return KindDislikeComment }
func (Batch) Kind() OutcomeKind          { return KindBatch }

func (Like) outcome()           {}
func (Dislike) outcome()        {}
func (Commented) outcome()      {}
func (Both) outcome()           {}
func (DislikeComment) outcome() {}
func (Batch) outcome()          {}

// wireOutcome is the JSON envelope shared by every variant.
type wireOutcome struct {
	Type      string            `json:"type"`
	Bot       string            `json:"bot,omitempty"`
	CommentID string            `json:"comment_id,omitempty"`
	Comment   string            `json:"comment,omitempty"`
	Signal    string            `json:"signal,omitempty"`
	Results   []json.RawMessage `json:"results,omitempty"`
}

// DecodeOutcome parses an outcome envelope. Unknown tags, comment variants
// without a comment_id and nested batches are rejected.
func DecodeOutcome(data []byte) (Outcome, error) {
	return decodeOutcome(data, true)
}

func decodeOutcome(data []byte, allowBatch bool) (Outcome, error) {
	var w wireOutcome
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutcome, err)
	}

	switch OutcomeKind(w.Type) {
	case KindLike:
		return Like{Bot: w.Bot}, nil
	case KindDislike:
		return Dislike{Bot: w.Bot}, nil
	case KindComment:
		c, err := w.commented()
		if err != nil {
			return nil, err
		}
		return c, nil
	case KindBoth:
		c, err := w.commented()
		if err != nil {
			return nil, err
		}
		signal := Signal(w.Signal)
		switch signal {
		case "":
			signal = SignalLike
		case SignalLike, SignalDislike:
		default:
			return nil, fmt.Errorf("%w: unknown signal %q", ErrMalformedOutcome, w.Signal)
		}
		return Both{Signal: signal, Comment: c}, nil
	case KindDislikeComment:
		c, err := w.commented()
		if err != nil {
			return nil, err
		}
		return DislikeComment{Comment: c}, nil
	case KindBatch:
		if !allowBatch {
			return nil, fmt.Errorf("%w: nested batch", ErrMalformedOutcome)
		}
		b := Batch{Results: make([]Outcome, 0, len(w.Results))}
		for i, raw := range w.Results {
			o, err := decodeOutcome(raw, false)
			if err != nil {
				return nil, fmt.Errorf("results[%d]: %w", i, err)
			}
			b.Results = append(b.Results, o)
		}
		return b, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedOutcome)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedOutcome, w.Type)
	}
}

func (w wireOutcome) commented() (Commented, error) {
	if w.CommentID == "" {
		return Commented{}, fmt.Errorf("%w: %s outcome without comment_id", ErrMalformedOutcome, w.Type)
	}
	return Commented{CommentID: w.CommentID, Bot: w.Bot, Text: w.Comment}, nil
}

// EncodeOutcome renders an outcome in its wire envelope.
func EncodeOutcome(o Outcome) ([]byte, error) {
	w, err := toWire(o)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func toWire(o Outcome) (wireOutcome, error) {
	switch v := o.(type) {
	case Like:
		return wireOutcome{Type: string(KindLike), Bot: v.Bot}, nil
	case Dislike:
		return wireOutcome{Type: string(KindDislike), Bot: v.Bot}, nil
	case Commented:
		return commentWire(KindComment, v), nil
	case Both:
		w := commentWire(KindBoth, v.Comment)
		w.Signal = string(v.Signal)
		return w, nil
	case DislikeComment:
		return commentWire(KindDislikeComment, v.Comment), nil
	case Batch:
		w := wireOutcome{Type: string(KindBatch), Results: make([]json.RawMessage, 0, len(v.Results))}
		for i, r := range v.Results {
			if _, nested := r.(Batch); nested {
				return wireOutcome{}, fmt.Errorf("results[%d]: %w: nested batch", i, ErrMalformedOutcome)
			}
			data, err := EncodeOutcome(r)
			if err != nil {
				return wireOutcome{}, err
			}
			w.Results = append(w.Results, data)
		}
		return w, nil
	default:
		return wireOutcome{}, fmt.Errorf("%w: unsupported outcome %T", ErrMalformedOutcome, o)
	}
}

func commentWire(kind OutcomeKind, c Commented) wireOutcome {
	return wireOutcome{Type: string(kind), Bot: c.Bot, CommentID: c.CommentID, Comment: c.Text}
}

// Delta is the flattened effect of an outcome on a post.
type Delta struct {
	Likes    int       `json:"likes"`
	Dislikes int       `json:"dislikes"`
	Comments []Comment `json:"comments"`
}

// Effects flattens an outcome into counter increments and the identified
// comments to append, preserving backend order.
func Effects(o Outcome) Delta {
	d := Delta{Comments: []Comment{}}
	d.add(o)
	return d
}

func (d *Delta) add(o Outcome) {
	switch v := o.(type) {
	case Like:
		d.Likes++
	case Dislike:
		d.Dislikes++
	case Commented:
		d.appendComment(v)
	case Both:
		if v.Signal == SignalDislike {
			d.Dislikes++
		} else {
			d.Likes++
		}
		d.appendComment(v.Comment)
	case DislikeComment:
		d.Dislikes++
		d.appendComment(v.Comment)
	case Batch:
		for _, r := range v.Results {
			d.add(r)
		}
	}
}

func (d *Delta) appendComment(c Commented) {
	d.Comments = append(d.Comments, Comment{
		ID:      c.CommentID,
		Bot:     c.Bot,
		Text:    c.Text,
		Replies: []Reply{},
	})
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return d.Likes == 0 && d.Dislikes == 0 && len(d.Comments) == 0
}
