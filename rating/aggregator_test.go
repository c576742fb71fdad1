package rating

import (
	"context"
	"fmt"
	"testing"

	"gigflow/collections"
	"gigflow/store"
)

func seedListing(t *testing.T, ds *store.MemStore, id, owner string, active bool, scores ...int) {
	t.Helper()
	ctx := context.Background()
	err := ds.Set(ctx, collections.Listings, id, map[string]any{
		"freelancerId": owner,
		"active":       active,
	}, false)
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	for i, score := range scores {
		err := ds.Set(ctx, collections.Reviews, fmt.Sprintf("%s-r%d", id, i), map[string]any{
			"listingId": id,
			"authorId":  "reviewer",
			"rating":    score,
		}, false)
		if err != nil {
			t.Fatalf("seed review: %v", err)
		}
	}
}

func TestComputeRating_WeightedAverage(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	a := NewAggregator(ds, nil)

	seedListing(t, ds, "l1", "u1", true, 5, 5, 4)
	seedListing(t, ds, "l2", "u1", true, 3, 3)

	got, err := a.ComputeRating(ctx, "u1")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got.Average != 4.0 || got.Count != 5 {
		t.Fatalf("expected {4.0 5}, got %+v", got)
	}
}

func TestComputeRating_ZeroCases(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	a := NewAggregator(ds, nil)

	got, err := a.ComputeRating(ctx, "nobody")
	if err != nil || got != (Summary{}) {
		t.Fatalf("no listings: got %+v, %v", got, err)
	}

	seedListing(t, ds, "l1", "u1", true)
	got, err = a.ComputeRating(ctx, "u1")
	if err != nil || got != (Summary{}) {
		t.Fatalf("no reviews: got %+v, %v", got, err)
	}
}

func TestComputeRating_SkipsInactiveAndForeignListings(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	a := NewAggregator(ds, nil)

	seedListing(t, ds, "l1", "u1", true, 5)
	seedListing(t, ds, "l2", "u1", false, 1, 1, 1)
	seedListing(t, ds, "l3", "u2", true, 2)

	got, err := a.ComputeRating(ctx, "u1")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got.Average != 5.0 || got.Count != 1 {
		t.Fatalf("inactive or foreign listings leaked in: %+v", got)
	}
}

func TestComputeRating_IndexFallbackMatchesCompound(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	a := NewAggregator(ds, nil)

	seedListing(t, ds, "l1", "u1", true, 5, 5, 4)
	seedListing(t, ds, "l2", "u1", true, 3, 3)
	seedListing(t, ds, "l3", "u1", false, 1)
	seedListing(t, ds, "l4", "u2", true, 2)

	direct, err := a.ComputeRating(ctx, "u1")
	if err != nil {
		t.Fatalf("compound path: %v", err)
	}

	ds.RejectCompoundQueries = true
	degraded, err := a.ComputeRating(ctx, "u1")
	if err != nil {
		t.Fatalf("fallback path: %v", err)
	}
	if degraded != direct {
		t.Fatalf("fallback diverged from compound: %+v vs %+v", degraded, direct)
	}
	if degraded.Average != 4.0 || degraded.Count != 5 {
		t.Fatalf("expected {4.0 5}, got %+v", degraded)
	}
}

func TestComputeRating_NonIndexErrorPropagates(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	a := NewAggregator(ds, nil)
	seedListing(t, ds, "l1", "u1", true, 5)
	ds.Hook = func(op, collection, id string) error {
		if op == "query" && collection == collections.Listings {
			return store.Errorf(store.CodePermissionDenied, "query listings", nil)
		}
		return nil
	}

	if _, err := a.ComputeRating(ctx, "u1"); !store.IsPermissionDenied(err) {
		t.Fatalf("expected permission error passthrough, got %v", err)
	}
}

func TestComputeRating_WriteBack(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()

	seedListing(t, ds, "l1", "u1", true, 4, 5)
	if err := ds.Set(ctx, collections.FreelancerProfiles, "u1", map[string]any{"uid": "u1"}, false); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	if _, err := NewAggregator(ds, nil).ComputeRating(ctx, "u1"); err != nil {
		t.Fatalf("compute: %v", err)
	}
	doc, _ := ds.Get(ctx, collections.FreelancerProfiles, "u1")
	if _, ok := doc.Data["rating"]; ok {
		t.Fatal("write-back must be off by default")
	}

	if _, err := NewAggregator(ds, nil).WithWriteBack(true).ComputeRating(ctx, "u1"); err != nil {
		t.Fatalf("compute: %v", err)
	}
	doc, _ = ds.Get(ctx, collections.FreelancerProfiles, "u1")
	if doc.Data["rating"] != 4.5 || doc.Data["reviewCount"] != 2 {
		t.Fatalf("cache not written: %v", doc.Data)
	}
	if doc.Data["uid"] != "u1" {
		t.Fatal("cache write must merge, not replace")
	}
}
