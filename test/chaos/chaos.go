// Package chaos wraps a document store with seeded random transient
// failures, forcing the retry and compensation paths of every service.
package chaos

import (
	"context"
	"math/rand"
	"sync"

	"gigflow/store"
)

// Flaky fails a fraction of operations with a transient store error. The
// failure sequence is deterministic for a given seed.
type Flaky struct {
	inner store.DocumentStore
	rate  float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFlaky wraps inner. rate is the per-operation failure probability.
func NewFlaky(inner store.DocumentStore, rate float64, seed int64) *Flaky {
	return &Flaky{inner: inner, rate: rate, rng: rand.New(rand.NewSource(seed))}
}

func (f *Flaky) trip(op string) error {
	f.mu.Lock()
	hit := f.rng.Float64() < f.rate
	f.mu.Unlock()
	if hit {
		return store.Errorf(store.CodeUnavailable, op, nil)
	}
	return nil
}

func (f *Flaky) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := f.trip("get " + collection); err != nil {
		return store.Document{}, err
	}
	return f.inner.Get(ctx, collection, id)
}

func (f *Flaky) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := f.trip("query " + q.Collection); err != nil {
		return nil, err
	}
	return f.inner.Query(ctx, q)
}

func (f *Flaky) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if err := f.trip("set " + collection); err != nil {
		return err
	}
	return f.inner.Set(ctx, collection, id, data, merge)
}

func (f *Flaky) Update(ctx context.Context, collection, id string, data map[string]any) error {
	if err := f.trip("update " + collection); err != nil {
		return err
	}
	return f.inner.Update(ctx, collection, id, data)
}

func (f *Flaky) Delete(ctx context.Context, collection, id string) error {
	if err := f.trip("delete " + collection); err != nil {
		return err
	}
	return f.inner.Delete(ctx, collection, id)
}

func (f *Flaky) Batch() store.Batch {
	return &flakyBatch{f: f, inner: f.inner.Batch()}
}

type flakyBatch struct {
	f     *Flaky
	inner store.Batch
}

func (b *flakyBatch) Set(collection, id string, data map[string]any, merge bool) {
	b.inner.Set(collection, id, data, merge)
}

func (b *flakyBatch) Update(collection, id string, data map[string]any) {
	b.inner.Update(collection, id, data)
}

func (b *flakyBatch) Delete(collection, id string) { b.inner.Delete(collection, id) }

func (b *flakyBatch) Len() int { return b.inner.Len() }

func (b *flakyBatch) Commit(ctx context.Context) error {
	if err := b.f.trip("batch commit"); err != nil {
		return err
	}
	return b.inner.Commit(ctx)
}
