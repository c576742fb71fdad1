// Package store defines the document-store boundary the lifecycle engine is
// written against. The store guarantees atomicity only within a single batch
// commit; there are no cross-collection transactions, server-side joins, or
// store-side locks. Backends live in store/firedoc and store/pgdoc, with an
// in-memory implementation in this package for tests and local runs.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies a store failure. It mirrors the error surface of a managed
// document store closely enough that every backend can map onto it.
type Code int

const (
	CodeUnknown Code = iota
	CodeUnavailable
	CodeDeadlineExceeded
	CodePermissionDenied
	CodeNotFound
	// CodeFailedPrecondition signals a query the backend refuses to serve,
	// typically a compound filter without a supporting index.
	CodeFailedPrecondition
)

func (c Code) String() string {
	switch c {
	case CodeUnavailable:
		return "unavailable"
	case CodeDeadlineExceeded:
		return "deadline-exceeded"
	case CodePermissionDenied:
		return "permission-denied"
	case CodeNotFound:
		return "not-found"
	case CodeFailedPrecondition:
		return "failed-precondition"
	default:
		return "unknown"
	}
}

// Error is the classified failure every backend returns.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified store error.
func Errorf(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the classification from err, CodeUnknown when unclassified.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// IsTransient reports whether err is worth retrying: the store was
// unreachable or the deadline expired mid-flight.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeDeadlineExceeded:
		return true
	}
	return false
}

// IsNotFound reports a missing document.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsPermissionDenied reports a store-side permission rejection.
func IsPermissionDenied(err error) bool { return CodeOf(err) == CodePermissionDenied }

// IsIndexMissing reports the missing-composite-index rejection that makes a
// compound query fallback-eligible.
func IsIndexMissing(err error) bool { return CodeOf(err) == CodeFailedPrecondition }

// Op is a query filter operator. Backends only have to support equality; the
// engine never issues range filters.
type Op string

const OpEqual Op = "=="

// Filter constrains one field of a query.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query describes a single-collection read. StartAfter pages by document id
// and implies ordering by id when OrderBy is empty.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
	StartAfter string
}

// Document is a stored record.
type Document struct {
	ID   string
	Data map[string]any
}

// MaxBatchOps is the store's per-batch operation ceiling. A Batch past the
// ceiling fails at Commit; callers that stream writes use ChunkedWriter.
const MaxBatchOps = 500

// Batch accumulates writes that commit atomically in one call.
type Batch interface {
	Set(collection, id string, data map[string]any, merge bool)
	Update(collection, id string, data map[string]any)
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

// DocumentStore is the boundary contract. Set with merge=false replaces the
// document; merge=true merges top-level fields and creates the document when
// absent. Update patches top-level fields and fails with CodeNotFound when
// the document does not exist. Delete of a missing document is a no-op.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	Update(ctx context.Context, collection, id string, data map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Batch() Batch
}
