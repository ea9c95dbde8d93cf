package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ferry/internal/config"
	"ferry/internal/pipeline"
)

var errRunFailures = errors.New("run finished with failed items")

func newRunCommand(ctx *commandContext) *cobra.Command {
	var batchSize int
	var order string
	var visibility string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch of pending items",
		Long: `Enumerate the source catalog, reconcile completed items with the
destination and process up to --batch pending items: acquire, transform,
rewrite, publish and commit each one in turn.

The command exits non-zero when any item failed or the catalog could not be
listed. Running out of upload quota stops the batch early and is not a
failure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if order != "" && order != config.OrderOldest && order != config.OrderNewest {
				return fmt.Errorf("--order must be %q or %q", config.OrderOldest, config.OrderNewest)
			}
			if visibility != "" && !config.ValidVisibility(visibility) {
				return fmt.Errorf("--visibility %q is not public, unlisted or private", visibility)
			}

			runID := uuid.NewString()
			logger, runLog, err := ctx.logger(runID)
			if err != nil {
				return err
			}

			deps, err := pipeline.Build(cmd.Context(), cfg, dryRun, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			summary, err := pipeline.Run(cmd.Context(), cfg, deps, pipeline.Options{
				RunID:      runID,
				BatchSize:  batchSize,
				Order:      order,
				Visibility: visibility,
				DryRun:     dryRun,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderSummary(summary, isTerminal(out)))
			if runLog != "" {
				fmt.Fprintf(out, "Run log: %s\n", runLog)
			}
			if summary.HasFailures() {
				return errRunFailures
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch", "b", 0, "Items to process (default from config)")
	cmd.Flags().StringVar(&order, "order", "", "Processing order: oldest or newest (default from config)")
	cmd.Flags().StringVar(&visibility, "visibility", "", "Published visibility: public, unlisted or private")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Acquire and transform but skip publishing and commits")
	return cmd
}

func renderSummary(s pipeline.Summary, pretty bool) string {
	pairs := [][2]string{
		{"run_id", s.RunID},
		{"candidates", strconv.Itoa(s.Candidates)},
		{"completed", strconv.Itoa(s.Completed)},
		{"succeeded", strconv.Itoa(s.Succeeded)},
		{"failed", strconv.Itoa(s.Failed)},
		{"pending", strconv.Itoa(s.Pending)},
		{"aborted_for_quota", yesNo(s.AbortedForQuota)},
		{"partial_listing", yesNo(s.PartialListing)},
	}
	if s.Skipped > 0 {
		pairs = append(pairs, [2]string{"skipped", strconv.Itoa(s.Skipped)})
	}
	if s.Healed > 0 {
		pairs = append(pairs, [2]string{"healed", strconv.Itoa(s.Healed)})
	}
	if s.ListingFailed {
		pairs = append(pairs, [2]string{"listing_failed", "yes"})
	}
	if s.Canceled {
		pairs = append(pairs, [2]string{"canceled", "yes"})
	}
	if s.DryRun {
		pairs = append(pairs, [2]string{"dry_run", "yes"})
	}
	text := renderPairs(pairs, pretty)
	if failed := failedItems(s); failed != "" {
		text += failed
	}
	return text
}

func failedItems(s pipeline.Summary) string {
	var b strings.Builder
	for _, line := range s.FailureLines() {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return ""
	}
	return "Failures:\n" + b.String()
}
