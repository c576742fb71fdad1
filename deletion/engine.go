// Package deletion removes every trace of a user across the media store, the
// dependent record collections, and finally the identity provider. Phases run
// leaf-first so an interrupted run can always be resumed by calling DeleteUser
// again: deleting already-deleted data is a no-op, and the authenticatable
// identity is only removed once nothing else references it.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gigflow/collections"
	"gigflow/identity"
	"gigflow/media"
	"gigflow/store"
)

const retryBase = 200 * time.Millisecond

// Deleted names one removed document.
type Deleted struct {
	Collection string
	ID         string
}

// StepError records a non-fatal failure. The operation carries on past these.
type StepError struct {
	Op   string
	Code store.Code
	Err  string
}

// Report is the outcome of one DeleteUser run. A second run over the same id
// reports the repeated work under AlreadySatisfied instead of Errors.
type Report struct {
	UserID           string
	Deleted          []Deleted
	AlreadySatisfied []string
	Errors           []StepError
}

// Engine performs cascading user deletion. Safe for concurrent use across
// distinct users.
type Engine struct {
	ds      store.DocumentStore
	ids     identity.Provider
	assets  media.Storage
	log     *zap.SugaredLogger
	workers int
}

// NewEngine wires the deletion engine. A nil logger is replaced with a nop.
func NewEngine(ds store.DocumentStore, ids identity.Provider, assets media.Storage, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{ds: ds, ids: ids, assets: assets, log: log, workers: 4}
}

// WithWorkers bounds the media fan-out concurrency.
func (e *Engine) WithWorkers(n int) *Engine {
	if n > 0 {
		e.workers = n
	}
	return e
}

// DeleteUser removes the user's assets, dependent documents, profiles, user
// record, and identity, in that order. Partial failures are accumulated into
// the report; the only fatal outcome is a failed identity deletion, since an
// orphaned authenticatable identity is the one state the engine must never
// silently accept. identity.ErrRequiresRecentLogin is surfaced unwrapped in
// the chain so callers can prompt for re-authentication instead of retrying.
func (e *Engine) DeleteUser(ctx context.Context, userID string) (Report, error) {
	report := Report{UserID: userID}

	userDoc, err := e.ds.Get(ctx, collections.Users, userID)
	userExists := err == nil
	if err != nil && !store.IsNotFound(err) {
		report.record("load user record", err)
	}

	e.deleteAssets(ctx, userID, userDoc.Data, &report)
	e.deleteDependents(ctx, userID, userExists, &report)

	for _, c := range []string{collections.ClientProfiles, collections.FreelancerProfiles, collections.Users} {
		err := store.Retry(ctx, store.DefaultAttempts, retryBase, func() error {
			return e.ds.Delete(ctx, c, userID)
		})
		if err != nil {
			e.classify(ctx, "delete "+c+"/"+userID, err, userExists, &report)
			continue
		}
		report.Deleted = append(report.Deleted, Deleted{Collection: c, ID: userID})
	}

	// Identity goes last and is the only fatal phase.
	switch err := e.ids.Delete(ctx, userID); {
	case err == nil:
		report.Deleted = append(report.Deleted, Deleted{Collection: "identity", ID: userID})
	case errors.Is(err, identity.ErrNotFound):
		report.AlreadySatisfied = append(report.AlreadySatisfied, "delete identity "+userID)
	case errors.Is(err, identity.ErrRequiresRecentLogin):
		return report, fmt.Errorf("deletion: identity %s: %w", userID, err)
	default:
		return report, fmt.Errorf("deletion: identity %s: %w", userID, err)
	}

	e.log.Infow("user deleted", "uid", userID,
		"deleted", len(report.Deleted), "errors", len(report.Errors))
	return report, nil
}

// deleteAssets removes external media referenced by the user and freelancer
// documents. Asset ids are stored alongside the URLs by the upload layer.
func (e *Engine) deleteAssets(ctx context.Context, userID string, userData map[string]any, report *Report) {
	var assetIDs []string
	if id := stringAt(userData, "photoAssetId"); id != "" {
		assetIDs = append(assetIDs, id)
	}
	if doc, err := e.ds.Get(ctx, collections.FreelancerProfiles, userID); err == nil {
		assetIDs = append(assetIDs, stringsAt(doc.Data, "portfolioAssetIds")...)
	}
	if len(assetIDs) == 0 {
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, assetID := range assetIDs {
		g.Go(func() error {
			err := e.assets.DeleteAsset(gctx, assetID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Deleted = append(report.Deleted, Deleted{Collection: "media", ID: assetID})
			case errors.Is(err, media.ErrAssetNotFound):
				report.AlreadySatisfied = append(report.AlreadySatisfied, "delete asset "+assetID)
			default:
				report.record("delete asset "+assetID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// deleteDependents queries and batch-deletes every document referencing the
// user through a cascade edge.
func (e *Engine) deleteDependents(ctx context.Context, userID string, userExists bool, report *Report) {
	for _, target := range collections.CascadeTargets() {
		var docs []store.Document
		err := store.Retry(ctx, store.DefaultAttempts, retryBase, func() error {
			var qerr error
			docs, qerr = e.ds.Query(ctx, store.Query{
				Collection: target.Collection,
				Filters:    []store.Filter{{Field: target.Field, Op: store.OpEqual, Value: userID}},
			})
			return qerr
		})
		if err != nil {
			e.classify(ctx, fmt.Sprintf("query %s by %s", target.Collection, target.Field), err, userExists, report)
			continue
		}

		w := store.NewChunkedWriter(e.ds, store.MaxBatchOps)
		for _, doc := range docs {
			if err := w.Delete(ctx, target.Collection, doc.ID); err != nil {
				report.record("batch delete "+target.Collection, err)
			}
		}
		if err := w.Flush(ctx); err != nil {
			report.record("flush "+target.Collection, err)
			continue
		}
		for _, doc := range docs {
			report.Deleted = append(report.Deleted, Deleted{Collection: target.Collection, ID: doc.ID})
		}
	}
}

// classify sorts a phase error into the report. A permission-denied result is
// treated as already satisfied only when the user record is confirmed gone;
// when the record still exists the denial is a genuine misconfiguration and
// is reported instead of masked.
func (e *Engine) classify(ctx context.Context, op string, err error, userExists bool, report *Report) {
	if store.IsPermissionDenied(err) && !userExists {
		report.AlreadySatisfied = append(report.AlreadySatisfied, op)
		return
	}
	report.record(op, err)
	e.log.Warnw("deletion step failed", "op", op, "err", err)
}

func (r *Report) record(op string, err error) {
	r.Errors = append(r.Errors, StepError{Op: op, Code: store.CodeOf(err), Err: err.Error()})
}

func stringAt(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func stringsAt(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
