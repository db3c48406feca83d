package cli

import (
	"fmt"
	"io"

	"github.com/fjlanasa/aspace-sync/syncer"
	"github.com/fjlanasa/aspace-sync/watermark"
	"github.com/spf13/cobra"
)

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show both watermarks and whether a run is in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			ctx, graph, release, err := openGraph(cmd, rootOpts, cfg, false)
			if err != nil {
				return err
			}
			defer release()

			st, err := graph.Syncer().Status(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read sync state", err)
			}
			return writeStatus(cmd.OutOrStdout(), st)
		},
	}
}

func writeStatus(w io.Writer, st syncer.Status) error {
	updateSource := "stored"
	if !st.UpdateStored {
		updateSource = "default"
	}
	purge := "none"
	if st.PurgeStored {
		purge = fmt.Sprintf("page %d", st.PurgePage)
	}
	_, err := fmt.Fprintf(w, "Update watermark: %s (%s)\nPurge watermark: %s\nUpdate running: %s\nPurge running: %s\n",
		watermark.FormatTimestamp(st.UpdateWatermark), updateSource, purge, yesNo(st.UpdateLocked), yesNo(st.PurgeLocked))
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// report prints the run summary. A run that stopped on a page exits with
// ExitFailure.
func report(cmd *cobra.Command, summary *syncer.Summary, err error) error {
	if summary == nil {
		if err == nil {
			return nil
		}
		return WrapExitError(ExitFailure, "sync run did not start", err)
	}
	if _, werr := summary.WriteTo(cmd.OutOrStdout()); werr != nil {
		return werr
	}
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s run failed", summary.Kind), err)
	}
	return nil
}
