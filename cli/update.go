package cli

import (
	"errors"
	"strings"

	"github.com/fjlanasa/aspace-sync/syncer"
	"github.com/fjlanasa/aspace-sync/watermark"
	"github.com/spf13/cobra"
)

type UpdateOptions struct {
	*RootOptions
	MaxPages   int
	UpdateTime string
}

func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update [type]",
		Short: "Pull records modified since the last update run",
		Long: `Pull records modified since the update watermark and hand them to the
configured pipelines. With a type argument only that record type is
fetched and the watermark is left untouched.

Supported types: ` + strings.Join(syncer.SupportedTypes, ", ") + `

Example:
  aspace-sync update
  aspace-sync update resource --max-pages 10
  aspace-sync update --update-time 2024-01-10T00:00:00Z`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.MaxPages < 0 {
				return WrapExitError(ExitCommandError, "invalid update options", errNegativeMaxPages)
			}
			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}
			updateOpts := syncer.UpdateOptions{MaxPages: cfg.Run.MaxPages, UpdateTime: opts.UpdateTime}
			if cmd.Flags().Changed("max-pages") {
				updateOpts.MaxPages = opts.MaxPages
			}
			if len(args) == 1 {
				updateOpts.ItemType = args[0]
			}

			ctx, graph, release, err := openGraph(cmd, opts.RootOptions, cfg, true)
			if err != nil {
				return err
			}
			defer release()

			summary, err := graph.Syncer().Update(ctx, updateOpts)
			if errors.Is(err, syncer.ErrUnsupportedItemType) || errors.Is(err, watermark.ErrUnrecognizedTimestamp) {
				return WrapExitError(ExitCommandError, "invalid update options", err)
			}
			return report(cmd, summary, err)
		},
	}

	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "process at most this many pages (0: all, default from config)")
	cmd.Flags().StringVar(&opts.UpdateTime, "update-time", "", "start from this ISO 8601 timestamp instead of the watermark")
	return cmd
}
