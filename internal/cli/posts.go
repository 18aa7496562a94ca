package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsim/internal/engine"
	"github.com/roach88/feedsim/internal/feed"
)

// NewPostCommand creates the post command group.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create, generate and delete posts",
	}
	cmd.AddCommand(newPostCreateCommand(rootOpts))
	cmd.AddCommand(newPostGenerateCommand(rootOpts))
	cmd.AddCommand(newPostDeleteCommand(rootOpts))
	return cmd
}

func newPostCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var image string

	cmd := &cobra.Command{
		Use:   "create <bot> <text>",
		Short: "Publish a post",
		Example: `  feedsim post create Clara "Sunset over the bay"
  feedsim post create Clara "New lens" --image /media/lens.png`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "create post", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				p, err := eng.CreatePost(ctx, feed.NewPost{Bot: args[0], Text: args[1], Image: image})
				if err != nil {
					return nil, err
				}
				return newPostView(eng, p), nil
			})
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "image URL to attach")
	return cmd
}

func newPostGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		bot   string
		topic string
		image bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a post for a persona and publish it",
		Long: `Ask the generation service for a post and publish it.

Without --bot a random configured persona is chosen.`,
		Example: `  feedsim post generate
  feedsim post generate --bot Luna --topic stars --image`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "generate post", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				pub, err := eng.GenerateAndPublish(ctx, engine.GenerateOptions{
					Bot:           bot,
					Topic:         topic,
					GenerateImage: image,
				})
				if err != nil {
					return nil, err
				}
				return publicationView{Strategy: pub.Generated.Strategy, Post: newPostView(eng, pub.Post)}, nil
			})
		},
	}

	cmd.Flags().StringVar(&bot, "bot", "", "authoring persona")
	cmd.Flags().StringVar(&topic, "topic", "", "topic hint")
	cmd.Flags().BoolVar(&image, "image", false, "also generate an image")
	return cmd
}

func newPostDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <post-id>",
		Short:         "Delete a post",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, "delete post", func(ctx context.Context, eng *engine.Engine) (interface{}, error) {
				if err := eng.DeletePost(ctx, args[0]); err != nil {
					return nil, err
				}
				return messageView{Message: fmt.Sprintf("post %s deleted", args[0])}, nil
			})
		},
	}
}
