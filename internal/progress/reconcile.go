package progress

import (
	"context"
	"fmt"
	"log/slog"

	"ferry/internal/logging"
)

// Scanner lists the descriptions of everything already published.
type Scanner interface {
	ScanDescriptions(ctx context.Context) ([]string, error)
}

// Report summarizes one reconciliation.
type Report struct {
	Local  int
	Remote int
	Union  int
	// Scanned counts remote descriptions examined.
	Scanned    int
	Healed     []string
	ScanFailed bool
	ScanError  string
	HealFailed bool
}

// Reconciler merges the local store with markers found remotely.
type Reconciler struct {
	Store   Store
	Scanner Scanner
	Logger  *slog.Logger
}

// NewReconciler builds a Reconciler. A nil scanner reconciles local state only.
func NewReconciler(store Store, scanner Scanner, logger *slog.Logger) *Reconciler {
	return &Reconciler{Store: store, Scanner: scanner, Logger: logging.NewComponentLogger(logger, "progress")}
}

// ReconcileCompleted returns local ∪ remote and appends remote-only ids to
// the store. A failed remote scan degrades to the local set; only a local
// read failure is returned as an error.
func (r *Reconciler) ReconcileCompleted(ctx context.Context) (Set, Report, error) {
	local, err := r.Store.Load(ctx)
	if err != nil {
		return nil, Report{}, fmt.Errorf("load local progress: %w", err)
	}
	report := Report{Local: len(local), Union: len(local)}
	if r.Scanner == nil {
		return local, report, nil
	}

	descriptions, err := r.Scanner.ScanDescriptions(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, report, ctx.Err()
		}
		report.ScanFailed = true
		report.ScanError = err.Error()
		logging.WarnWithContext(r.Logger, "remote scan failed; using local progress only", "reconcile_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check publish credentials and API quota"),
			logging.String(logging.FieldImpact, "items published but not committed locally may be re-published"),
		)
		return local, report, nil
	}

	remote := make(Set)
	for _, desc := range descriptions {
		for _, id := range ExtractMarkers(desc) {
			remote.Add(id)
		}
	}
	report.Scanned = len(descriptions)
	report.Remote = len(remote)

	union := local.Union(remote)
	report.Union = len(union)
	healed := remote.Minus(local)
	if len(healed) > 0 {
		if err := r.Store.CommitMany(ctx, healed, SourceRemoteReconciled); err != nil {
			report.HealFailed = true
			logging.WarnWithContext(r.Logger, "failed to record remote-only ids", "reconcile_heal_failed",
				logging.Int("ids", len(healed)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ledger path permissions"),
				logging.String(logging.FieldImpact, "ids stay known through the remote scan only"),
			)
		} else {
			report.Healed = healed
		}
	}

	r.Logger.Info("progress reconciled",
		logging.Int("local", report.Local),
		logging.Int("remote", report.Remote),
		logging.Int("healed", len(report.Healed)),
		logging.Int("scanned", report.Scanned),
		logging.String(logging.FieldEventType, "reconcile_complete"),
	)
	return union, report, nil
}
