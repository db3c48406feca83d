package cli

import (
	"errors"

	"github.com/fjlanasa/aspace-sync/syncer"
	"github.com/spf13/cobra"
)

var (
	errNegativePage     = errors.New("--first-page must not be negative")
	errNegativeMaxPages = errors.New("--max-pages must not be negative")
)

type PurgeOptions struct {
	*RootOptions
	MaxPages  int
	FirstPage int
}

func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove local copies of records deleted in ArchivesSpace",
		Long: `Walk the delete feed from the page after the last purged page and remove
the local entity of every tombstone that was synchronized.

Example:
  aspace-sync purge
  aspace-sync purge --first-page 3 --max-pages 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.FirstPage < 0 {
				return WrapExitError(ExitCommandError, "invalid purge options", errNegativePage)
			}
			if opts.MaxPages < 0 {
				return WrapExitError(ExitCommandError, "invalid purge options", errNegativeMaxPages)
			}
			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}
			purgeOpts := syncer.PurgeOptions{MaxPages: cfg.Run.MaxPages, FirstPage: opts.FirstPage}
			if cmd.Flags().Changed("max-pages") {
				purgeOpts.MaxPages = opts.MaxPages
			}

			ctx, graph, release, err := openGraph(cmd, opts.RootOptions, cfg, true)
			if err != nil {
				return err
			}
			defer release()

			summary, err := graph.Syncer().Purge(ctx, purgeOpts)
			return report(cmd, summary, err)
		},
	}

	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "process at most this many pages (0: all, default from config)")
	cmd.Flags().IntVar(&opts.FirstPage, "first-page", 0, "start at this delete-feed page instead of resuming")
	return cmd
}
