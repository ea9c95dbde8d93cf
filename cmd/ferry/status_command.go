package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ferry/internal/pipeline"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var remote bool
	var batchSize int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show candidate, completed and pending counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, _, err := ctx.logger("")
			if err != nil {
				return err
			}
			// Without --remote the destination is never contacted.
			deps, err := pipeline.Build(cmd.Context(), cfg, !remote, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			status, err := pipeline.Inspect(cmd.Context(), cfg, deps, pipeline.Options{BatchSize: batchSize})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			pretty := isTerminal(out)
			fmt.Fprint(out, renderPairs([][2]string{
				{"source", cfg.Source.URL},
				{"candidates", strconv.Itoa(status.Candidates)},
				{"completed", strconv.Itoa(status.Completed)},
				{"pending", strconv.Itoa(status.Pending)},
				{"partial_listing", yesNo(status.PartialListing)},
				{"remote_scan", status.RemoteScan},
			}, pretty))

			if len(status.Next) > 0 {
				rows := make([][]string, 0, len(status.Next))
				for i, item := range status.Next {
					rows = append(rows, []string{strconv.Itoa(i + 1), item.ID, item.Kind.String(), item.Title})
				}
				fmt.Fprintln(out, "\nNext batch:")
				fmt.Fprint(out, renderTable([]string{"#", "ID", "Kind", "Title"}, rows, []columnAlignment{alignRight}))
			}

			last, err := pipeline.ReadReport(cfg.ReportPath())
			switch {
			case err == nil:
				fmt.Fprintf(out, "\nLast run %s (%s ago): %d succeeded, %d failed, quota stop: %s\n",
					last.RunID, time.Since(last.FinishedAt).Truncate(time.Second), last.Succeeded, last.Failed, yesNo(last.AbortedForQuota))
			case !errors.Is(err, fs.ErrNotExist):
				fmt.Fprintf(out, "\nLast run report unreadable: %v\n", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Also scan the destination for published markers")
	cmd.Flags().IntVarP(&batchSize, "batch", "b", 0, "Batch size used to preview the next batch")
	return cmd
}
