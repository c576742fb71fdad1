// Package pgdoc backs the document-store boundary with PostgreSQL, holding
// every collection in a single JSONB table. Equality filters compile to
// containment predicates, so compound queries never need a composite index
// and the fallback path in callers stays dormant on this backend.
package pgdoc

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gigflow/store"
)

// Store is a PostgreSQL-backed DocumentStore.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Pool exposes the underlying pool for test seeding.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// EnsureSchema creates the documents table when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
        CREATE TABLE IF NOT EXISTS documents (
            collection text NOT NULL,
            id text NOT NULL,
            data jsonb NOT NULL DEFAULT '{}'::jsonb,
            PRIMARY KEY (collection, id)
        );
        CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING gin (data jsonb_path_ops);
    `
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return classify("ensure schema", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	var data map[string]any
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Document{}, store.Errorf(store.CodeNotFound, "get "+collection+"/"+id, err)
	}
	if err != nil {
		return store.Document{}, classify("get "+collection+"/"+id, err)
	}
	return store.Document{ID: id, Data: data}, nil
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	sql := `SELECT id, data FROM documents WHERE collection = $1`
	args := []any{q.Collection}

	if len(q.Filters) > 0 {
		contained := map[string]any{}
		for _, f := range q.Filters {
			contained[f.Field] = f.Value
		}
		args = append(args, contained)
		sql += fmt.Sprintf(" AND data @> $%d", len(args))
	}
	if q.StartAfter != "" {
		args = append(args, q.StartAfter)
		sql += fmt.Sprintf(" AND id > $%d", len(args))
	}
	switch {
	case q.OrderBy != "":
		args = append(args, q.OrderBy)
		sql += fmt.Sprintf(" ORDER BY data->>$%d", len(args))
		if q.Desc {
			sql += " DESC"
		}
	default:
		sql += " ORDER BY id"
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("query "+q.Collection, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var doc store.Document
		if err := rows.Scan(&doc.ID, &doc.Data); err != nil {
			return nil, classify("query "+q.Collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query "+q.Collection, err)
	}
	return docs, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if _, err := s.pool.Exec(ctx, setSQL(merge), collection, id, data); err != nil {
		return classify("set "+collection+"/"+id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, data map[string]any) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET data = data || $3 WHERE collection = $1 AND id = $2`,
		collection, id, data)
	if err != nil {
		return classify("update "+collection+"/"+id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.Errorf(store.CodeNotFound, "update "+collection+"/"+id, nil)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id); err != nil {
		return classify("delete "+collection+"/"+id, err)
	}
	return nil
}

func (s *Store) Batch() store.Batch { return &batch{pool: s.pool} }

type op struct {
	kind       string
	collection string
	id         string
	data       map[string]any
	merge      bool
}

// batch commits its operations inside one transaction.
type batch struct {
	pool *pgxpool.Pool
	ops  []op
}

func (b *batch) Set(collection, id string, data map[string]any, merge bool) {
	b.ops = append(b.ops, op{kind: "set", collection: collection, id: id, data: data, merge: merge})
}

func (b *batch) Update(collection, id string, data map[string]any) {
	b.ops = append(b.ops, op{kind: "update", collection: collection, id: id, data: data})
}

func (b *batch) Delete(collection, id string) {
	b.ops = append(b.ops, op{kind: "delete", collection: collection, id: id})
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit(ctx context.Context) error {
	if len(b.ops) > store.MaxBatchOps {
		return store.Errorf(store.CodeFailedPrecondition, "batch commit",
			fmt.Errorf("%d ops exceed the %d op ceiling", len(b.ops), store.MaxBatchOps))
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return classify("batch begin", err)
	}
	defer tx.Rollback(ctx)

	for _, o := range b.ops {
		switch o.kind {
		case "set":
			_, err = tx.Exec(ctx, setSQL(o.merge), o.collection, o.id, o.data)
		case "update":
			var tag pgconn.CommandTag
			tag, err = tx.Exec(ctx,
				`UPDATE documents SET data = data || $3 WHERE collection = $1 AND id = $2`,
				o.collection, o.id, o.data)
			if err == nil && tag.RowsAffected() == 0 {
				err = store.Errorf(store.CodeNotFound, "batch update "+o.collection+"/"+o.id, nil)
			}
		case "delete":
			_, err = tx.Exec(ctx,
				`DELETE FROM documents WHERE collection = $1 AND id = $2`,
				o.collection, o.id)
		}
		if err != nil {
			var se *store.Error
			if errors.As(err, &se) {
				return err
			}
			return classify("batch "+o.kind+" "+o.collection+"/"+o.id, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("batch commit", err)
	}
	return nil
}

func setSQL(merge bool) string {
	if merge {
		return `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
                ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data`
	}
	return `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
            ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`
}

// classify maps pg failures onto the boundary's error codes. Connection-class
// failures count as transient.
func classify(opName string, err error) error {
	code := store.CodeUnknown
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = store.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = store.CodeDeadlineExceeded
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == "42501":
				code = store.CodePermissionDenied
			case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
				code = store.CodeUnavailable
			case pgErr.Code == "40001" || pgErr.Code == "40P01":
				code = store.CodeUnavailable
			}
		} else if pgconn.SafeToRetry(err) {
			code = store.CodeUnavailable
		}
	}
	return store.Errorf(code, opName, err)
}
