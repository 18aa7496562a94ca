package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsim/internal/engine"
)

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feed [post-id]",
		Short: "Show the feed",
		Long: `Load the feed from the backend and print it.

With a post id, only that post is shown.

Examples:
  feedsim feed
  feedsim feed 0190f7a2-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "feed", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				if len(args) == 1 {
					p, err := eng.Refresh(ctx, args[0])
					if err != nil {
						return nil, err
					}
					return newPostView(eng, p), nil
				}
				posts := eng.Posts()
				view := make(feedView, 0, len(posts))
				for _, p := range posts {
					view = append(view, newPostView(eng, p))
				}
				return view, nil
			})
		},
	}
}

// NewBotsCommand creates the bots command.
func NewBotsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "bots",
		Short:         "List configured personas",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "bots", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				bots, err := eng.Bots(ctx)
				return personasView(bots), err
			})
		},
	}
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <bot> <text>",
		Short: "Explain how a persona reads a text",
		Long: `Ask the explainability service how a persona would react to a text.

The decision, reason and per-token weights are printed as returned.

Example:
  feedsim explain Luna "the stars tonight"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "explain", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				exp, err := eng.Explain(ctx, args[0], args[1])
				return explanationView(exp), err
			})
		},
	}
}
