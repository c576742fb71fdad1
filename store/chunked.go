package store

import "context"

// ChunkedWriter streams writes through bounded batches, committing and
// starting a fresh batch whenever the per-batch operation ceiling is hit.
// It is the write path for batch jobs that touch more documents than one
// commit may carry. Not safe for concurrent use.
type ChunkedWriter struct {
	ds        DocumentStore
	limit     int
	batch     Batch
	committed int
}

// NewChunkedWriter returns a writer flushing every limit operations. A limit
// outside (0, MaxBatchOps] collapses to MaxBatchOps.
func NewChunkedWriter(ds DocumentStore, limit int) *ChunkedWriter {
	if limit <= 0 || limit > MaxBatchOps {
		limit = MaxBatchOps
	}
	return &ChunkedWriter{ds: ds, limit: limit, batch: ds.Batch()}
}

func (w *ChunkedWriter) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	w.batch.Set(collection, id, data, merge)
	return w.maybeFlush(ctx)
}

func (w *ChunkedWriter) Update(ctx context.Context, collection, id string, data map[string]any) error {
	w.batch.Update(collection, id, data)
	return w.maybeFlush(ctx)
}

func (w *ChunkedWriter) Delete(ctx context.Context, collection, id string) error {
	w.batch.Delete(collection, id)
	return w.maybeFlush(ctx)
}

// Committed reports how many operations have been committed so far.
func (w *ChunkedWriter) Committed() int { return w.committed }

// Flush commits any buffered operations.
func (w *ChunkedWriter) Flush(ctx context.Context) error {
	n := w.batch.Len()
	if n == 0 {
		return nil
	}
	if err := w.batch.Commit(ctx); err != nil {
		return err
	}
	w.committed += n
	w.batch = w.ds.Batch()
	return nil
}

func (w *ChunkedWriter) maybeFlush(ctx context.Context) error {
	if w.batch.Len() < w.limit {
		return nil
	}
	return w.Flush(ctx)
}
