// Package firedoc adapts a Cloud Firestore project to the document-store
// boundary. Firestore's failure surface is folded into the store error codes,
// with the missing-composite-index rejection kept distinguishable so callers
// can degrade compound queries.
package firedoc

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gigflow/store"
)

// Store is a Firestore-backed DocumentStore.
type Store struct {
	client *firestore.Client
}

// New connects to the given project. credentialsFile may be empty, in which
// case application default credentials apply.
func New(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firedoc: connect %s: %w", projectID, err)
	}
	return &Store{client: client}, nil
}

// Wrap adapts an existing client, mainly for the emulator in tests.
func Wrap(client *firestore.Client) *Store { return &Store{client: client} }

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return store.Document{}, classify("get "+collection+"/"+id, err)
	}
	return store.Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	switch {
	case q.OrderBy != "":
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	case q.StartAfter != "":
		// id paging requires an explicit id ordering
		fq = fq.OrderBy(firestore.DocumentID, firestore.Asc)
	}
	if q.StartAfter != "" {
		fq = fq.StartAfter(q.StartAfter)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}

	var docs []store.Document
	it := fq.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return docs, nil
		}
		if err != nil {
			return nil, classify("query "+q.Collection, err)
		}
		docs = append(docs, store.Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	ref := s.client.Collection(collection).Doc(id)
	var err error
	if merge {
		_, err = ref.Set(ctx, data, firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, data)
	}
	if err != nil {
		return classify("set "+collection+"/"+id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, data map[string]any) error {
	updates := make([]firestore.Update, 0, len(data))
	for field, value := range data {
		updates = append(updates, firestore.Update{Path: field, Value: value})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		return classify("update "+collection+"/"+id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return classify("delete "+collection+"/"+id, err)
	}
	return nil
}

func (s *Store) Batch() store.Batch {
	return &batch{client: s.client, wb: s.client.Batch()}
}

type batch struct {
	client *firestore.Client
	wb     *firestore.WriteBatch
	n      int
}

func (b *batch) Set(collection, id string, data map[string]any, merge bool) {
	ref := b.client.Collection(collection).Doc(id)
	if merge {
		b.wb.Set(ref, data, firestore.MergeAll)
	} else {
		b.wb.Set(ref, data)
	}
	b.n++
}

func (b *batch) Update(collection, id string, data map[string]any) {
	updates := make([]firestore.Update, 0, len(data))
	for field, value := range data {
		updates = append(updates, firestore.Update{Path: field, Value: value})
	}
	b.wb.Update(b.client.Collection(collection).Doc(id), updates)
	b.n++
}

func (b *batch) Delete(collection, id string) {
	b.wb.Delete(b.client.Collection(collection).Doc(id))
	b.n++
}

func (b *batch) Len() int { return b.n }

func (b *batch) Commit(ctx context.Context) error {
	if b.n > store.MaxBatchOps {
		return store.Errorf(store.CodeFailedPrecondition, "batch commit",
			fmt.Errorf("%d ops exceed the %d op ceiling", b.n, store.MaxBatchOps))
	}
	if _, err := b.wb.Commit(ctx); err != nil {
		return classify("batch commit", err)
	}
	return nil
}

// classify maps a Firestore RPC failure onto the boundary's error codes.
func classify(op string, err error) error {
	code := store.CodeUnknown
	switch status.Code(err) {
	case codes.NotFound:
		code = store.CodeNotFound
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		code = store.CodeUnavailable
	case codes.DeadlineExceeded:
		code = store.CodeDeadlineExceeded
	case codes.PermissionDenied, codes.Unauthenticated:
		code = store.CodePermissionDenied
	case codes.FailedPrecondition:
		code = store.CodeFailedPrecondition
	}
	return store.Errorf(code, op, err)
}
