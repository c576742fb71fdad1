// Package reconcile hosts the out-of-band batch jobs that close the gap left
// by non-atomic multi-collection writes: drift repair over the user
// collection and orphan removal across dependent collections. Both jobs are
// resumable by page, tolerate individual-document failures, and are safe to
// run repeatedly and concurrently with live traffic.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gigflow/collections"
	"gigflow/schema"
	"gigflow/store"
)

const retryBase = 200 * time.Millisecond

// Mode selects between reporting and writing.
type Mode int

const (
	// ModeAnalyze reports what would change without writing.
	ModeAnalyze Mode = iota
	// ModeApply writes repairs and removals.
	ModeApply
)

// Scanner runs the reconciliation jobs.
type Scanner struct {
	ds         store.DocumentStore
	log        *zap.SugaredLogger
	pageSize   int
	batchLimit int
}

// NewScanner wires a scanner. A nil logger is replaced with a nop.
func NewScanner(ds store.DocumentStore, log *zap.SugaredLogger) *Scanner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scanner{ds: ds, log: log, pageSize: 200, batchLimit: store.MaxBatchOps}
}

// WithPageSize overrides the scan page size, for tests.
func (s *Scanner) WithPageSize(n int) *Scanner {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// WithBatchLimit overrides the per-commit operation bound, for tests.
func (s *Scanner) WithBatchLimit(n int) *Scanner {
	if n > 0 {
		s.batchLimit = n
	}
	return s
}

// DriftReport summarizes one RepairDrift run.
type DriftReport struct {
	Scanned  int
	Drifted  int
	Repaired int
	Failed   int
	Issues   map[schema.Issue]int
}

// RepairDrift pages through the user collection, classifies each record with
// the schema analyzer, and in apply mode rewrites drifted records with their
// normalized form. The rewrite replaces the whole document so legacy fields
// drop out. Already-canonical records produce zero writes, which makes
// repeated runs free.
func (s *Scanner) RepairDrift(ctx context.Context, mode Mode) (DriftReport, error) {
	report := DriftReport{Issues: map[schema.Issue]int{}}
	w := store.NewChunkedWriter(s.ds, s.batchLimit)

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		docs, err := s.page(ctx, collections.Users, cursor)
		if err != nil {
			return report, fmt.Errorf("reconcile: scan users: %w", err)
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			report.Scanned++
			issues := schema.Analyze(doc.Data)
			if len(issues) == 0 {
				continue
			}
			report.Drifted++
			for _, issue := range issues {
				report.Issues[issue]++
			}
			if mode != ModeApply {
				continue
			}

			fixed, err := schema.Normalize(doc.Data, doc.ID)
			if err != nil {
				report.Failed++
				s.log.Warnw("record not repairable", "uid", doc.ID, "err", err)
				continue
			}
			if err := w.Set(ctx, collections.Users, doc.ID, fixed.Map(), false); err != nil {
				report.Failed++
				s.log.Warnw("repair write failed", "uid", doc.ID, "err", err)
				continue
			}
			report.Repaired++
		}

		cursor = docs[len(docs)-1].ID
		if len(docs) < s.pageSize {
			break
		}
	}

	if mode == ModeApply {
		if err := w.Flush(ctx); err != nil {
			return report, fmt.Errorf("reconcile: flush repairs: %w", err)
		}
	}
	s.log.Infow("drift repair finished", "scanned", report.Scanned,
		"drifted", report.Drifted, "repaired", report.Repaired)
	return report, nil
}

// HealRecord opportunistically repairs a single record on a read path.
// Returns whether a repair was written.
func (s *Scanner) HealRecord(ctx context.Context, userID string) (bool, error) {
	doc, err := s.ds.Get(ctx, collections.Users, userID)
	if err != nil {
		return false, fmt.Errorf("reconcile: load user %s: %w", userID, err)
	}
	if len(schema.Analyze(doc.Data)) == 0 {
		return false, nil
	}
	fixed, err := schema.Normalize(doc.Data, userID)
	if err != nil {
		return false, fmt.Errorf("reconcile: heal %s: %w", userID, err)
	}
	if err := s.ds.Set(ctx, collections.Users, userID, fixed.Map(), false); err != nil {
		return false, fmt.Errorf("reconcile: heal %s: %w", userID, err)
	}
	s.log.Infow("record healed on read", "uid", userID)
	return true, nil
}

func (s *Scanner) page(ctx context.Context, collection, cursor string) ([]store.Document, error) {
	var docs []store.Document
	err := store.Retry(ctx, store.DefaultAttempts, retryBase, func() error {
		var qerr error
		docs, qerr = s.ds.Query(ctx, store.Query{
			Collection: collection,
			Limit:      s.pageSize,
			StartAfter: cursor,
		})
		return qerr
	})
	return docs, err
}
