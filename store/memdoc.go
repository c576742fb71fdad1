package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory DocumentStore. It backs the test suites and local
// development runs, and mimics the managed store where it matters: merge
// semantics, silent deletes of missing documents, per-batch atomicity with
// the operation ceiling, and optional rejection of unindexed compound
// queries.
type MemStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any

	// Hook, when set, runs before every operation and may veto it with an
	// error. Used by tests to inject classified failures at exact steps.
	Hook func(op, collection, id string) error

	// RejectCompoundQueries makes multi-filter queries fail with
	// CodeFailedPrecondition, the way a store missing a composite index
	// would.
	RejectCompoundQueries bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{collections: map[string]map[string]map[string]any{}}
}

func (m *MemStore) hook(op, collection, id string) error {
	if m.Hook == nil {
		return nil
	}
	return m.Hook(op, collection, id)
}

func (m *MemStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := m.hook("get", collection, id); err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.collections[collection][id]
	if !ok {
		return Document{}, Errorf(CodeNotFound, "get "+collection+"/"+id, nil)
	}
	return Document{ID: id, Data: copyData(data)}, nil
}

func (m *MemStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := m.hook("query", q.Collection, ""); err != nil {
		return nil, err
	}
	if m.RejectCompoundQueries && len(q.Filters) > 1 {
		return nil, Errorf(CodeFailedPrecondition, "query "+q.Collection,
			fmt.Errorf("no composite index for %d filters", len(q.Filters)))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []Document
	for id, data := range m.collections[q.Collection] {
		if q.StartAfter != "" && id <= q.StartAfter {
			continue
		}
		match := true
		for _, f := range q.Filters {
			if f.Op != OpEqual {
				return nil, Errorf(CodeFailedPrecondition, "query "+q.Collection,
					fmt.Errorf("unsupported operator %q", f.Op))
			}
			if !looseEqual(data[f.Field], f.Value) {
				match = false
				break
			}
		}
		if match {
			docs = append(docs, Document{ID: id, Data: copyData(data)})
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		less := docs[i].ID < docs[j].ID
		if q.OrderBy != "" {
			less = compareValues(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy]) < 0
		}
		if q.Desc {
			return !less
		}
		return less
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func (m *MemStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if err := m.hook("set", collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applySet(collection, id, data, merge)
	return nil
}

func (m *MemStore) Update(ctx context.Context, collection, id string, data map[string]any) error {
	if err := m.hook("update", collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return Errorf(CodeNotFound, "update "+collection+"/"+id, nil)
	}
	m.applySet(collection, id, data, true)
	return nil
}

func (m *MemStore) Delete(ctx context.Context, collection, id string) error {
	if err := m.hook("delete", collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

func (m *MemStore) Batch() Batch {
	return &memBatch{store: m}
}

// Count reports how many documents a collection holds.
func (m *MemStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func (m *MemStore) applySet(collection, id string, data map[string]any, merge bool) {
	docs, ok := m.collections[collection]
	if !ok {
		docs = map[string]map[string]any{}
		m.collections[collection] = docs
	}
	if merge {
		existing, ok := docs[id]
		if !ok {
			existing = map[string]any{}
			docs[id] = existing
		}
		for k, v := range copyData(data) {
			existing[k] = v
		}
		return
	}
	docs[id] = copyData(data)
}

type memOpKind int

const (
	memOpSet memOpKind = iota
	memOpMergeSet
	memOpUpdate
	memOpDelete
)

type memOp struct {
	kind       memOpKind
	collection string
	id         string
	data       map[string]any
}

type memBatch struct {
	store *MemStore
	ops   []memOp
}

func (b *memBatch) Set(collection, id string, data map[string]any, merge bool) {
	kind := memOpSet
	if merge {
		kind = memOpMergeSet
	}
	b.ops = append(b.ops, memOp{kind, collection, id, copyData(data)})
}

func (b *memBatch) Update(collection, id string, data map[string]any) {
	b.ops = append(b.ops, memOp{memOpUpdate, collection, id, copyData(data)})
}

func (b *memBatch) Delete(collection, id string) {
	b.ops = append(b.ops, memOp{memOpDelete, collection, id, nil})
}

func (b *memBatch) Len() int { return len(b.ops) }

// Commit applies all buffered operations under one lock. Either every
// operation lands or none do.
func (b *memBatch) Commit(ctx context.Context) error {
	if len(b.ops) > MaxBatchOps {
		return Errorf(CodeFailedPrecondition, "batch commit",
			fmt.Errorf("%d operations exceed ceiling of %d", len(b.ops), MaxBatchOps))
	}
	if err := b.store.hook("commit", "", ""); err != nil {
		return err
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	for _, op := range b.ops {
		if op.kind == memOpUpdate {
			if _, ok := b.store.collections[op.collection][op.id]; !ok {
				return Errorf(CodeNotFound, "batch update "+op.collection+"/"+op.id, nil)
			}
		}
	}
	for _, op := range b.ops {
		switch op.kind {
		case memOpSet:
			b.store.applySet(op.collection, op.id, op.data, false)
		case memOpMergeSet, memOpUpdate:
			b.store.applySet(op.collection, op.id, op.data, true)
		case memOpDelete:
			delete(b.store.collections[op.collection], op.id)
		}
	}
	b.ops = nil
	return nil
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return copyData(vv)
	case []string:
		out := make([]string, len(vv))
		copy(out, vv)
		return out
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	if at, aok := a.(time.Time); aok {
		bt, bok := b.(time.Time)
		return bok && at.Equal(bt)
	}
	return a == b
}

func compareValues(a, b any) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Compare(bt)
		}
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
