package reconcile

import (
	"context"
	"fmt"

	"gigflow/collections"
	"gigflow/store"
)

// OrphanReport summarizes one SweepOrphans run.
type OrphanReport struct {
	Scanned       int
	Orphans       int
	Removed       int
	PerCollection map[string]int
}

// SweepOrphans scans every dependent collection and, in apply mode, removes
// documents whose owning user no longer exists. A document is an orphan when
// any of its user references points at a missing user record: a two-party
// record dies with either party, matching the cascade deletion edges.
func (s *Scanner) SweepOrphans(ctx context.Context, mode Mode) (OrphanReport, error) {
	report := OrphanReport{PerCollection: map[string]int{}}

	known, err := s.userIDs(ctx)
	if err != nil {
		return report, err
	}

	w := store.NewChunkedWriter(s.ds, s.batchLimit)
	for collection, fields := range ownerFields() {
		cursor := ""
		for {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			docs, err := s.page(ctx, collection, cursor)
			if err != nil {
				return report, fmt.Errorf("reconcile: scan %s: %w", collection, err)
			}
			if len(docs) == 0 {
				break
			}

			for _, doc := range docs {
				report.Scanned++
				if !isOrphan(doc.Data, fields, known) {
					continue
				}
				report.Orphans++
				report.PerCollection[collection]++
				if mode != ModeApply {
					continue
				}
				if err := w.Delete(ctx, collection, doc.ID); err != nil {
					s.log.Warnw("orphan delete failed", "collection", collection, "id", doc.ID, "err", err)
					continue
				}
				report.Removed++
			}

			cursor = docs[len(docs)-1].ID
			if len(docs) < s.pageSize {
				break
			}
		}
	}

	if mode == ModeApply {
		if err := w.Flush(ctx); err != nil {
			return report, fmt.Errorf("reconcile: flush removals: %w", err)
		}
	}
	s.log.Infow("orphan sweep finished", "scanned", report.Scanned,
		"orphans", report.Orphans, "removed", report.Removed)
	return report, nil
}

// userIDs loads the full set of live user record ids, paged.
func (s *Scanner) userIDs(ctx context.Context) (map[string]bool, error) {
	known := map[string]bool{}
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := s.page(ctx, collections.Users, cursor)
		if err != nil {
			return nil, fmt.Errorf("reconcile: load user ids: %w", err)
		}
		if len(docs) == 0 {
			return known, nil
		}
		for _, doc := range docs {
			known[doc.ID] = true
		}
		cursor = docs[len(docs)-1].ID
		if len(docs) < s.pageSize {
			return known, nil
		}
	}
}

// ownerFields folds the cascade edges into a field list per collection and
// adds the role profiles, which are keyed by user id directly.
func ownerFields() map[string][]string {
	out := map[string][]string{
		collections.ClientProfiles:     {"uid"},
		collections.FreelancerProfiles: {"uid"},
	}
	for _, target := range collections.CascadeTargets() {
		out[target.Collection] = append(out[target.Collection], target.Field)
	}
	return out
}

func isOrphan(data map[string]any, fields []string, known map[string]bool) bool {
	for _, field := range fields {
		owner, ok := data[field].(string)
		if !ok || owner == "" {
			continue
		}
		if !known[owner] {
			return true
		}
	}
	return false
}
