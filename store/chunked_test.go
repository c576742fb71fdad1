package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestChunkedWriter_FlushesAtLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	w := NewChunkedWriter(m, 10)

	for i := 0; i < 25; i++ {
		if err := w.Set(ctx, "notifications", fmt.Sprintf("n%d", i), map[string]any{"i": i}, false); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	if w.Committed() != 20 {
		t.Fatalf("expected 20 committed before flush, got %d", w.Committed())
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if w.Committed() != 25 {
		t.Fatalf("expected 25 committed, got %d", w.Committed())
	}
	if m.Count("notifications") != 25 {
		t.Fatalf("expected 25 documents, got %d", m.Count("notifications"))
	}
}

func TestChunkedWriter_EmptyFlushIsNoop(t *testing.T) {
	w := NewChunkedWriter(NewMemStore(), 0)
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("empty flush: %v", err)
	}
}

func TestRetry_TransientOnly(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return Errorf(CodeUnavailable, "query users", nil)
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after 3 calls, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return Errorf(CodePermissionDenied, "delete users/u1", nil)
	})
	if !IsPermissionDenied(err) || calls != 1 {
		t.Fatalf("non-transient error must not be retried: err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry(ctx, 2, time.Millisecond, func() error {
		calls++
		return Errorf(CodeDeadlineExceeded, "get users/u1", nil)
	})
	if !IsTransient(err) || calls != 2 {
		t.Fatalf("expected bounded retries, got err=%v calls=%d", err, calls)
	}
}
