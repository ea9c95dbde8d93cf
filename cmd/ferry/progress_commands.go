package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ferry/internal/pipeline"
	"ferry/internal/progress"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Merge published markers from the destination into the local ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, _, err := ctx.logger("")
			if err != nil {
				return err
			}
			deps, err := pipeline.Build(cmd.Context(), cfg, false, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			if deps.Scanner == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Publishing is disabled (provider %q); nothing to scan\n", cfg.Publish.Provider)
			}
			_, report, err := progress.NewReconciler(deps.Store, deps.Scanner, logger).ReconcileCompleted(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderPairs([][2]string{
				{"local", strconv.Itoa(report.Local)},
				{"remote", strconv.Itoa(report.Remote)},
				{"scanned", strconv.Itoa(report.Scanned)},
				{"union", strconv.Itoa(report.Union)},
				{"healed", strconv.Itoa(len(report.Healed))},
				{"scan_failed", yesNo(report.ScanFailed)},
			}, isTerminal(out)))
			if len(report.Healed) > 0 {
				fmt.Fprintf(out, "Healed: %s\n", strings.Join(report.Healed, ", "))
			}
			if report.ScanFailed {
				return fmt.Errorf("remote scan failed: %s", report.ScanError)
			}
			return nil
		},
	}
}

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or edit the completion ledger",
	}
	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerAddCommand(ctx))
	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List completed item ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := progress.Open(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "Ledger is empty")
				return nil
			}
			if !isTerminal(out) {
				for _, r := range records {
					fmt.Fprintln(out, r.ItemID)
				}
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				committed := ""
				if !r.CommittedAt.IsZero() {
					committed = r.CommittedAt.Local().Format(time.DateTime)
				}
				rows = append(rows, []string{r.ItemID, string(r.Source), committed})
			}
			fmt.Fprint(out, renderTable([]string{"Item", "Source", "Committed"}, rows, nil))
			fmt.Fprintf(out, "%d completed\n", len(records))
			return nil
		},
	}
}

func newLedgerAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <id>...",
		Short: "Mark item ids as completed so runs skip them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := progress.Open(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			ids := make([]string, 0, len(args))
			for _, arg := range args {
				if id := strings.TrimSpace(arg); id != "" {
					ids = append(ids, id)
				}
			}
			if err := store.CommitMany(cmd.Context(), ids, progress.SourceLocalLedger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d item(s) completed\n", len(ids))
			return nil
		},
	}
}
