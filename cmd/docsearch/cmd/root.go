// Package cmd implements the docsearch CLI.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/logging"
	"github.com/Aman-CERP/docsearch/pkg/version"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	debug     bool
	configDir string

	loggingCleanup func()
}

// NewRootCmd creates the docsearch root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "docsearch",
		Short: "Semantic search over PDF and DOCX documents",
		Long: `docsearch indexes PDF and DOCX files into a vector index and answers
natural-language queries over them, from the command line or as a Model
Context Protocol server.

Configuration is read from ~/.config/docsearch/config.yaml, the project's
.docsearch.yaml or .docsearch.toml, a .env file and DOCSEARCH_* variables.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.startLogging(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			opts.stopLogging()
			return nil
		},
	}
	cmd.SetVersionTemplate("docsearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to "+logging.DefaultLogDir())
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "Project directory holding .docsearch.yaml and .env")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newClearCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs a file logger for CLI commands. serve installs its
// own logger because stdio must keep stderr quiet.
func (o *rootOptions) startLogging(cmd *cobra.Command) error {
	if cmd.Name() == "serve" || cmd.Name() == "version" {
		return nil
	}
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	// One-shot commands flush once in cleanup.
	cfg.SyncEachWrite = false
	if o.debug {
		cfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		// Logging is best effort for one-shot commands.
		return nil
	}
	slog.SetDefault(logger)
	o.loggingCleanup = cleanup
	return nil
}

func (o *rootOptions) stopLogging() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprint(root.ErrOrStderr(), docerrors.FormatForCLI(err))
	}
	return err
}
