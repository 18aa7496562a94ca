package harness

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/feedsim/internal/engine"
	"github.com/roach88/feedsim/internal/feed"
)

// args is the loosely typed argument map of a YAML step.
type args map[string]interface{}

func (a args) str(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (a args) int(key string) (int, error) {
	switch v := a[key].(type) {
	case nil:
		return 0, fmt.Errorf("missing argument %q", key)
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("argument %q: unsupported type %T", key, v)
	}
}

func (a args) bool(key string) bool {
	v, _ := a[key].(bool)
	return v
}

func (a args) mode() feed.Mode {
	if m := a.str("mode"); m != "" {
		return feed.Mode(m)
	}
	return feed.ModeSingle
}

// operation runs one engine call and summarizes its result.
type operation func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error)

var operations = map[string]operation{
	"load_feed": func(ctx context.Context, eng *engine.Engine, _ args) (map[string]interface{}, error) {
		posts, err := eng.LoadFeed(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"posts": len(posts)}, nil
	},

	"refresh": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		p, err := eng.Refresh(ctx, a.str("post"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"likes": p.Likes, "comments": len(p.Comments)}, nil
	},

	"create_post": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		p, err := eng.CreatePost(ctx, feed.NewPost{Bot: a.str("bot"), Text: a.str("text"), Image: a.str("image")})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": p.ID}, nil
	},

	"delete_post": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		return nil, eng.DeletePost(ctx, a.str("post"))
	},

	"toggle": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		t, err := eng.Toggle(ctx, a.str("post"), a.str("actor"), a.str("emoji"))
		if err != nil {
			return nil, err
		}
		res := map[string]interface{}{"removed": t.Removed()}
		if t.Previous != "" {
			res["previous"] = t.Previous
		}
		if t.Current != "" {
			res["current"] = t.Current
		}
		return res, nil
	},

	"submit_comment": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		c, err := eng.SubmitComment(ctx, a.str("post"), a.str("actor"), a.str("text"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": c.ID}, nil
	},

	"add_local_comment": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		c, err := eng.AddLocalComment(ctx, a.str("post"), a.str("actor"), a.str("text"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"local": c.Local}, nil
	},

	"add_reply": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		r, err := eng.AddReply(ctx, a.str("post"), a.str("comment"), a.str("actor"), a.str("text"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"bot": r.Bot, "text": r.Text}, nil
	},

	"delete_comment": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		index, err := a.int("index")
		if err != nil {
			return nil, err
		}
		return nil, eng.DeleteComment(ctx, a.str("post"), index)
	},

	"bot_reply": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		c, err := eng.BotReply(ctx, a.str("post"), a.str("bot"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": c.ID, "bot": c.Bot, "text": c.Text}, nil
	},

	"simulate": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		r, err := eng.Simulate(ctx, a.str("post"), a.mode())
		if r == nil {
			return nil, err
		}
		res := map[string]interface{}{
			"kind":      string(r.Outcome.Kind()),
			"likes":     r.Delta.Likes,
			"dislikes":  r.Delta.Dislikes,
			"comments":  len(r.Delta.Comments),
			"refetched": r.Refetched,
			"applied":   r.Applied.String(),
			"discarded": r.Discarded.String(),
		}
		return res, err
	},

	"simulate_all": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		reports, err := eng.SimulateAll(ctx, a.mode())
		n := 0
		for _, r := range reports {
			if r != nil {
				n++
			}
		}
		return map[string]interface{}{"reports": n}, err
	},

	"owner_auto_reply": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		r, err := eng.OwnerAutoReply(ctx, a.str("post"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"replied":       r.RepliedCount,
			"applied":       r.Applied,
			"dropped_local": r.DroppedLocal,
			"comments":      len(r.Comments),
		}, nil
	},

	"generate_and_publish": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		pub, err := eng.GenerateAndPublish(ctx, engine.GenerateOptions{
			Bot:           a.str("bot"),
			Topic:         a.str("topic"),
			GenerateImage: a.bool("image"),
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"id":       pub.Post.ID,
			"bot":      pub.Post.Bot,
			"strategy": pub.Generated.Strategy,
		}, nil
	},

	"explain": func(ctx context.Context, eng *engine.Engine, a args) (map[string]interface{}, error) {
		exp, err := eng.Explain(ctx, a.str("bot"), a.str("text"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"decision": exp.Decision, "tokens": len(exp.Tokens)}, nil
	},

	"bots": func(ctx context.Context, eng *engine.Engine, _ args) (map[string]interface{}, error) {
		bots, err := eng.Bots(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"count": len(bots)}, nil
	},
}

// seedAction applies one setup step directly to the backend.
type seedAction func(ctx context.Context, b engine.Backend, a args) error

var setupActions = map[string]seedAction{
	"create_post": func(ctx context.Context, b engine.Backend, a args) error {
		_, err := b.CreatePost(ctx, feed.NewPost{Bot: a.str("bot"), Text: a.str("text"), Image: a.str("image")})
		return err
	},
	"comment": func(ctx context.Context, b engine.Backend, a args) error {
		_, err := b.CreateComment(ctx, a.str("post"), a.str("bot"), a.str("text"))
		return err
	},
	"reply": func(ctx context.Context, b engine.Backend, a args) error {
		_, err := b.ReplyToComment(ctx, a.str("post"), a.str("comment"), a.str("bot"), a.str("text"))
		return err
	},
	"react": func(ctx context.Context, b engine.Backend, a args) error {
		return b.React(ctx, a.str("post"), a.str("bot"), a.str("emoji"))
	},
}
