package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/rewind/capture"
	"github.com/hazyhaar/rewind/capture/event"
)

func extractCmd() *cobra.Command {
	var d time.Duration
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Print the replay window of a record file",
		Long: `Read records (a JSON array or line-delimited JSON, "-" or no
argument for stdin) and print the records needed to replay the last
--duration as a JSON array. The default duration is capture.replay_duration
from --config. Records without any full snapshot print an empty array.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("duration") {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				d = cfg.Capture.ReplayDuration
			}
			var r io.Reader = os.Stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			recs, err := event.NewDecoder(r).All()
			if err != nil {
				return err
			}
			window := capture.ExtractWindow(recs, d)
			if window == nil {
				window = []event.Record{}
			}
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(window); err != nil {
				return err
			}
			if len(window) == 0 && len(recs) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d records, none usable: %v\n", len(recs), capture.ErrNoAnchor)
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d records (last %s)\n", len(window), len(recs), d)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&d, "duration", "d", 0, "replay window (default capture.replay_duration)")
	return cmd
}
