package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjlanasa/aspace-sync/config"
	"github.com/fjlanasa/aspace-sync/graphs"
	"github.com/spf13/cobra"
)

const DefaultConfigPath = "./config/configs/default.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	// KeepLogger leaves the default slog logger untouched, for callers that
	// installed their own.
	KeepLogger bool
}

// NewRootCommand creates the aspace-sync command tree.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}
	cmd := &cobra.Command{
		Use:   "aspace-sync",
		Short: "Keep a local store in step with ArchivesSpace",
		Long: `aspace-sync mirrors records from an ArchivesSpace backend into local
entity sinks. "update" pulls records modified since the last run and
"purge" removes local copies of records deleted remotely.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.KeepLogger {
				return nil
			}
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", DefaultConfigPath, "path to the YAML config (CONFIG_PATH overrides)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	return cmd
}

// resolveConfigPath applies the precedence CONFIG_PATH > --config > default.
func resolveConfigPath(opts *RootOptions) string {
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	if opts.ConfigPath != "" {
		return opts.ConfigPath
	}
	return DefaultConfigPath
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := resolveConfigPath(opts)
	cfg, err := config.ReadConfig(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read config "+path, err)
	}
	return cfg, nil
}

// openGraph builds the graph for cfg. The returned context is cancelled on
// SIGINT or SIGTERM; call the returned func to release everything.
func openGraph(cmd *cobra.Command, opts *RootOptions, cfg *config.Config, serve bool) (context.Context, *graphs.Graph, func(), error) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)

	eventLevel := slog.LevelDebug
	if opts.Verbose {
		eventLevel = slog.LevelInfo
	}
	graph, err := graphs.NewGraph(ctx, cfg, graphs.WithEventServer(serve), graphs.WithEventLogLevel(eventLevel))
	if err != nil {
		stop()
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to build sync graph", err)
	}
	release := func() {
		if err := graph.Close(); err != nil {
			slog.Error("error closing sync graph", "error", err)
		}
		stop()
	}
	return ctx, graph, release, nil
}
