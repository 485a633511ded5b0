package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docsearch/internal/config"
	"github.com/Aman-CERP/docsearch/internal/docstore"
	"github.com/Aman-CERP/docsearch/internal/logging"
	"github.com/Aman-CERP/docsearch/internal/mcp"
	"github.com/Aman-CERP/docsearch/internal/watcher"
	"github.com/Aman-CERP/docsearch/pkg/version"
)

type serveOptions struct {
	transport string
	addr      string
	watch     bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the Model Context Protocol server exposing index_documents,
search_documents, get_stats and clear_index.

The stdio transport reads one JSON-RPC message per line from stdin and
writes responses to stdout; diagnostics go to the log file only. The http
transport serves the streamable HTTP endpoint at /mcp.`,
		Example: `  # stdio, for MCP clients that spawn the server
  docsearch serve

  # streamable HTTP on a local port, reindexing on file changes
  docsearch serve --transport http --addr 127.0.0.1:8765 --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport: stdio or http (default from server.transport)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address for the http transport (default from server.addr)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reindex changed documents while serving")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts serveOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	transport := cfg.Server.Transport
	if opts.transport != "" {
		transport = opts.transport
	}
	addr := cfg.Server.Addr
	if opts.addr != "" {
		addr = opts.addr
	}
	watch := opts.watch || cfg.Watch.Enabled

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	cleanup, err := logging.SetupServer(logCfg, transport)
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("docsearch serve starting",
		slog.String("version", version.Version),
		slog.String("transport", transport),
		slog.String("addr", addr),
		slog.Bool("watch", watch),
		slog.String("backend", cfg.Storage.Backend))

	// stdout belongs to JSON-RPC on stdio, so SQL logs go to stderr only
	// for http.
	var sqlLog io.Writer
	if cfg.Storage.DebugSQL && transport != mcp.TransportStdio {
		sqlLog = cmd.ErrOrStderr()
	}
	a, err := openApp(ctx, cfg, sqlLog)
	if err != nil {
		slog.Error("failed to open document store", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = a.docs.Close() }()

	srv, err := mcp.NewServer(a.docs, mcp.Options{
		Logger:         slog.Default(),
		SessionTimeout: cfg.Server.SessionTimeout.Std(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return srv.Serve(gctx, transport, addr)
	})
	if watch {
		if err := startWatch(gctx, g, cfg, a); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
	}
	return g.Wait()
}

// startWatch runs an initial incremental pass and then reindexes on
// document changes until ctx ends.
func startWatch(ctx context.Context, g *errgroup.Group, cfg *config.Config, a *app) error {
	w, err := watcher.New(watcher.Options{
		Debounce: cfg.Watch.Debounce.Std(),
		Filter:   a.registry.Supported,
	})
	if err != nil {
		return err
	}

	g.Go(func() error {
		return ignoreCanceled(w.Start(ctx, a.docs.Root()))
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err, ok := <-w.Errors():
				if !ok {
					return nil
				}
				slog.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	})
	g.Go(func() error {
		if _, err := os.Stat(a.docs.Root()); err == nil {
			if _, err := a.docs.IndexDocuments(ctx, docstore.IndexOptions{}); err != nil && ctx.Err() == nil {
				slog.Warn("initial index pass failed", slog.String("error", err.Error()))
			}
		}
		return ignoreCanceled(watcher.NewReindexer(a.docs).Run(ctx, w.Events()))
	})
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
