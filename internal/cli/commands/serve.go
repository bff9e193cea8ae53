package commands

import (
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/defsdb/internal/server"
	"github.com/spf13/cobra"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr  string
	Watch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		Long: `Start a read-only HTTP server answering resolve, lookup and method
queries against the snapshot, plus the saved indexes of the index store.

With --watch the snapshot is reloaded whenever the file changes and
clients subscribed to /events are notified.`,
		Example: `  # Serve on the configured address
  defsdb serve

  # Serve on another address and reload on change
  defsdb serve --addr :9000 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Reload the snapshot when it changes")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := cmdCtx.Cfg

	// CLI flags override config file
	addr := cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	srv := server.NewServer(server.Config{
		DB:              cmdCtx.DB,
		SnapshotPath:    cfg.Snapshot,
		Store:           store,
		Addr:            addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Watch:           opts.Watch,
		Logger:          cmdCtx.Logger,
	})

	cmdCtx.Renderer.Printf("Serving %s on http://%s\n", cfg.Snapshot, addr)
	cmdCtx.Renderer.Muted("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
