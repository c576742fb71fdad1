package main

import (
	"context"
	"flag"
	"log"

	"gigflow/bootstrap"
	"gigflow/config"
	"gigflow/reconcile"
)

func main() {
	flMode := flag.String("mode", "analyze", "analyze reports only; apply writes repairs and removals")
	flJob := flag.String("job", "all", "which job to run: drift, orphans, or all")
	flag.Parse()

	mode := reconcile.ModeAnalyze
	switch *flMode {
	case "analyze":
	case "apply":
		mode = reconcile.ModeApply
	default:
		log.Fatalf("unknown mode %q", *flMode)
	}
	if *flJob != "drift" && *flJob != "orphans" && *flJob != "all" {
		log.Fatalf("unknown job %q", *flJob)
	}

	ctx := context.Background()
	cfg := config.Load()

	logger, err := bootstrap.Logger()
	if err != nil {
		log.Fatalf("bootstrap logger: %v", err)
	}
	defer logger.Sync()

	ds, closeStore, err := bootstrap.Store(ctx, cfg)
	if err != nil {
		logger.Fatalw("bootstrap store", "err", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	scanner := reconcile.NewScanner(ds, logger).WithPageSize(cfg.Reconcile.PageSize)

	if *flJob == "drift" || *flJob == "all" {
		report, err := scanner.RepairDrift(ctx, mode)
		if err != nil {
			logger.Fatalw("drift repair failed", "err", err, "partial", report)
		}
		logger.Infow("drift repair", "mode", *flMode, "scanned", report.Scanned,
			"drifted", report.Drifted, "repaired", report.Repaired,
			"failed", report.Failed, "issues", report.Issues)
	}
	if *flJob == "orphans" || *flJob == "all" {
		report, err := scanner.SweepOrphans(ctx, mode)
		if err != nil {
			logger.Fatalw("orphan sweep failed", "err", err, "partial", report)
		}
		logger.Infow("orphan sweep", "mode", *flMode, "scanned", report.Scanned,
			"orphans", report.Orphans, "removed", report.Removed,
			"collections", report.PerCollection)
	}
}
