package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsim/internal/simserver"
	"github.com/roach88/feedsim/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
	Personas string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reference feed backend",
		Long: `Start the reference feed backend.

Posts, reactions, comments and replies are kept in a SQLite database
(created if it doesn't exist). Personas come from a CUE roster file or
the built-in roster. Flags override the server section of the config.

Example:
  feedsim serve --addr :8000 --db ./feedsim.db
  feedsim serve --personas ./personas.cue --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Personas, "personas", "", "CUE persona roster (default built-in)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	addr := firstNonEmpty(opts.Addr, cfg.Server.Addr)
	dbPath := firstNonEmpty(opts.Database, cfg.Server.Database)
	rosterPath := firstNonEmpty(opts.Personas, cfg.Server.Personas)
	log := opts.log()

	personas, err := simserver.LoadPersonas(rosterPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load personas", err)
	}

	log.Info("opening database", "path", dbPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	srv, err := simserver.New(st,
		simserver.WithPersonas(personas),
		simserver.WithLogger(log),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start server", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	if err := srv.Serve(ctx, addr); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	log.Info("server stopped gracefully")
	return nil
}

// signalContext returns the command context, cancelled on SIGINT or
// SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
