package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsim/internal/engine"
	"github.com/roach88/feedsim/internal/feed"
)

// NewReactCommand creates the react command.
func NewReactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "react <post-id> <actor> <emoji>",
		Short: "Toggle an emoji reaction",
		Long: `Toggle an exclusive emoji reaction of an actor on a post.

Reacting with the emoji already held removes it; a different emoji
replaces it.

Example:
  feedsim react 0190f7a2-... Tom 👍`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "react", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				t, err := eng.Toggle(ctx, args[0], args[1], args[2])
				if err != nil {
					return nil, err
				}
				return transitionView{PostID: args[0], ReactionTransition: t}, nil
			})
		},
	}
}

// NewCommentCommand creates the comment command.
func NewCommentCommand(rootOpts *RootOptions) *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "comment <post-id> <actor> <text>",
		Short: "Comment on a post",
		Long: `Create a comment through the backend.

With --local the comment is only added to the local view: it gets no
identifier, cannot be replied to and is dropped by the next canonical
refresh of the post's comments.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "comment", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				add := eng.SubmitComment
				if local {
					add = eng.AddLocalComment
				}
				c, err := add(ctx, args[0], args[1], args[2])
				if err != nil {
					return nil, err
				}
				return commentView{PostID: args[0], Comment: c, Local: c.Local}, nil
			})
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "add the comment locally without contacting the backend")
	return cmd
}

// NewReplyCommand creates the reply command.
func NewReplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "reply <post-id> <comment-id> <actor> <text>",
		Short:         "Reply to a comment",
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "reply", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				r, err := eng.AddReply(ctx, args[0], args[1], args[2], args[3])
				if err != nil {
					return nil, err
				}
				return replyView{PostID: args[0], CommentID: args[1], Reply: r}, nil
			})
		},
	}
}

// NewDeleteCommentCommand creates the delete-comment command.
func NewDeleteCommentCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-comment <post-id> <index>",
		Short: "Delete the comment at a position",
		Long: `Delete the comment currently shown at index (0-based) on a post.

The backend refuses the delete with STALE_INDEX when the comment at that
position changed in the meantime.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid index", err)
			}
			return rootOpts.run(cmd, "delete comment", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				if err := eng.DeleteComment(ctx, args[0], index); err != nil {
					return nil, err
				}
				return messageView{Message: fmt.Sprintf("comment %d deleted from %s", index, args[0])}, nil
			})
		},
	}
}

// NewBotReplyCommand creates the bot-reply command.
func NewBotReplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "bot-reply <post-id> <bot>",
		Short:         "Have a persona comment on a post",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "bot reply", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				c, err := eng.BotReply(ctx, args[0], args[1])
				if err != nil {
					return nil, err
				}
				return commentView{PostID: args[0], Comment: c}, nil
			})
		},
	}
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "simulate [post-id]",
		Short: "Simulate persona interactions",
		Long: `Ask the backend to simulate persona interactions with a post, apply the
outcome and reconcile with the canonical post.

--mode single applies the first persona that does not pass; --mode all
applies every persona's decision. Without a post id every post in the
feed is simulated concurrently.

Examples:
  feedsim simulate 0190f7a2-...
  feedsim simulate --mode all`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := feed.ParseMode(mode)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid mode", err)
			}
			return rootOpts.run(cmd, "simulate", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				if len(args) == 1 {
					r, err := eng.Simulate(ctx, args[0], m)
					if err != nil {
						return nil, err
					}
					v, err := newSimulationView(r)
					return v, err
				}

				reports, err := eng.SimulateAll(ctx, m)
				views := make(simulationsView, 0, len(reports))
				for _, r := range reports {
					if r == nil {
						continue
					}
					v, verr := newSimulationView(r)
					if verr != nil {
						return nil, verr
					}
					views = append(views, v)
				}
				if err != nil {
					rootOpts.log().Warn("some simulations failed", "error", err)
				}
				return views, nil
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(feed.ModeSingle), "simulation mode (single|all)")
	return cmd
}

// NewOwnerReplyCommand creates the owner-reply command.
func NewOwnerReplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "owner-reply <post-id>",
		Short: "Let the post author reply to its comments",
		Long: `Let the post author reply once to every comment without an author
reply, then replace the local comments with the returned collection.
Local comments are discarded.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "owner reply", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				r, err := eng.OwnerAutoReply(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return autoReplyView{
					PostID:       r.PostID,
					RepliedCount: r.RepliedCount,
					Applied:      r.Applied,
					DroppedLocal: r.DroppedLocal,
					Comments:     r.Comments,
				}, nil
			})
		},
	}
}
