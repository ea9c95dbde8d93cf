package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ferry/internal/staging"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var list bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale staging files left by interrupted runs",
		Long: `Remove files in the raw and output staging directories older than
batch.stale_sweep_minutes. Use --all to remove everything regardless of age,
or --list to only show what is staged.

Do not sweep with --all while a run is in progress.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			area := staging.New(cfg.RawDir(), cfg.OutDir())
			out := cmd.OutOrStdout()

			if list {
				entries, err := area.List()
				if err != nil {
					return fmt.Errorf("list staging: %w", err)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "Staging is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{e.Name, formatAge(time.Since(e.ModTime)), humanize.IBytes(uint64(e.Size))})
				}
				fmt.Fprint(out, renderTable([]string{"File", "Age", "Size"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
				return nil
			}

			logger, _, err := ctx.logger("")
			if err != nil {
				return err
			}
			age := cfg.Batch.StaleSweepAge()
			if all {
				age = 0
			}
			result := area.Sweep(cmd.Context(), age, logger)
			fmt.Fprintf(out, "Removed %d staged file(s)\n", len(result.Removed))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  failed: %s: %v\n", e.Path, e.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d staged file(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every staged file regardless of age")
	cmd.Flags().BoolVar(&list, "list", false, "List staged files without removing anything")
	return cmd
}

func formatAge(d time.Duration) string {
	d = d.Truncate(time.Minute)
	switch {
	case d < time.Minute:
		return "<1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
