package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsim/internal/backend"
	"github.com/roach88/feedsim/internal/engine"
)

// newClient builds the backend client from the loaded configuration.
func (o *RootOptions) newClient() (*backend.Client, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}

	opts := []backend.Option{
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithRate(cfg.Backend.RatePerSecond, cfg.Backend.Burst),
		backend.WithLogger(o.log()),
	}
	if o.Transport != nil {
		opts = append(opts, backend.WithTransport(o.Transport))
	}

	client, err := backend.New(cfg.Backend.URL, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid backend URL", err)
	}
	return client, nil
}

// newEngine builds an engine over the configured backend.
func (o *RootOptions) newEngine() (*engine.Engine, error) {
	client, err := o.newClient()
	if err != nil {
		return nil, err
	}

	flowGen := o.FlowGenerator
	if flowGen == nil {
		flowGen = engine.UUIDv7Generator{}
	}
	return engine.New(client,
		engine.WithFlowGenerator(flowGen),
		engine.WithLogger(o.log()),
	), nil
}

// session runs fn against a started engine that has loaded the feed.
// The engine loop is stopped when fn returns.
func (o *RootOptions) session(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) error {
	eng, err := o.newEngine()
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	defer func() {
		eng.Stop()
		<-done
	}()

	out := o.formatter(cmd)
	posts, err := eng.LoadFeed(ctx)
	if err != nil {
		return out.Fail("failed to load feed", err)
	}
	out.VerboseLog("loaded %d posts from %s", len(posts), o.cfg.Backend.URL)
	return fn(ctx, eng)
}

// run executes one engine operation and prints its result.
func (o *RootOptions) run(cmd *cobra.Command, what string, op func(ctx context.Context, eng *engine.Engine) (interface{}, error)) error {
	out := o.formatter(cmd)
	return o.session(cmd, func(ctx context.Context, eng *engine.Engine) error {
		res, err := op(ctx, eng)
		if err != nil {
			return out.Fail(fmt.Sprintf("%s failed", what), err)
		}
		return out.Success(res)
	})
}
