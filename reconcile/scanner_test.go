package reconcile

import (
	"context"
	"fmt"
	"testing"

	"gigflow/collections"
	"gigflow/schema"
	"gigflow/store"
)

func seedClean(t *testing.T, ds *store.MemStore, uid string) {
	t.Helper()
	u, err := schema.Normalize(map[string]any{
		"uid":      uid,
		"email":    uid + "@example.com",
		"username": uid,
		"roles":    []string{"client"},
	}, uid)
	if err != nil {
		t.Fatalf("normalize seed: %v", err)
	}
	if err := ds.Set(context.Background(), collections.Users, uid, u.Map(), false); err != nil {
		t.Fatalf("seed %s: %v", uid, err)
	}
}

func seedDrifted(t *testing.T, ds *store.MemStore, uid string) {
	t.Helper()
	err := ds.Set(context.Background(), collections.Users, uid, map[string]any{
		"uid":          uid,
		"email":        "  " + uid + "@Example.COM",
		"username":     uid,
		"fullName":     "Legacy Name",
		"roles":        "freelancer",
		"profilePhoto": "data:image/png;base64,AAAA",
	}, false)
	if err != nil {
		t.Fatalf("seed %s: %v", uid, err)
	}
}

func TestRepairDrift_AnalyzeThenApply(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	s := NewScanner(ds, nil).WithPageSize(2)

	for i := 0; i < 3; i++ {
		seedClean(t, ds, fmt.Sprintf("clean-%d", i))
	}
	seedDrifted(t, ds, "drift-a")
	seedDrifted(t, ds, "drift-b")

	report, err := s.RepairDrift(ctx, ModeAnalyze)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Scanned != 5 || report.Drifted != 2 || report.Repaired != 0 {
		t.Fatalf("analyze counts wrong: %+v", report)
	}
	if report.Issues[schema.IssueLegacyFields] != 2 {
		t.Fatalf("legacy field issue not counted: %v", report.Issues)
	}
	doc, _ := ds.Get(ctx, collections.Users, "drift-a")
	if _, ok := doc.Data["fullName"]; !ok {
		t.Fatal("analyze mode must not write")
	}

	report, err = s.RepairDrift(ctx, ModeApply)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Repaired != 2 || report.Failed != 0 {
		t.Fatalf("apply counts wrong: %+v", report)
	}

	doc, _ = ds.Get(ctx, collections.Users, "drift-a")
	if _, ok := doc.Data["fullName"]; ok {
		t.Fatal("legacy field must be dropped by the full rewrite")
	}
	if doc.Data["email"] != "drift-a@example.com" {
		t.Fatalf("email not canonicalized: %v", doc.Data["email"])
	}
	if doc.Data["displayName"] != "Legacy Name" {
		t.Fatalf("legacy name not carried over: %v", doc.Data["displayName"])
	}
	if doc.Data["profilePhoto"] != schema.DefaultAvatarURL {
		t.Fatalf("embedded photo not replaced: %v", doc.Data["profilePhoto"])
	}
	if len(schema.Analyze(doc.Data)) != 0 {
		t.Fatalf("repaired record still drifted: %v", schema.Analyze(doc.Data))
	}

	// a repaired collection produces zero further writes
	report, err = s.RepairDrift(ctx, ModeApply)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if report.Drifted != 0 || report.Repaired != 0 {
		t.Fatalf("second pass must be a no-op: %+v", report)
	}
}

func TestRepairDrift_SkipsUnrepairable(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	s := NewScanner(ds, nil)

	// no email anywhere means normalization cannot produce a valid record
	if err := ds.Set(ctx, collections.Users, "broken", map[string]any{"username": "broken"}, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	seedDrifted(t, ds, "drift-a")

	report, err := s.RepairDrift(ctx, ModeApply)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Failed != 1 || report.Repaired != 1 {
		t.Fatalf("expected one failure and one repair: %+v", report)
	}
}

func TestRepairDrift_Cancellation(t *testing.T) {
	ds := store.NewMemStore()
	seedDrifted(t, ds, "drift-a")
	s := NewScanner(ds, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.RepairDrift(ctx, ModeApply); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSweepOrphans(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	s := NewScanner(ds, nil).WithPageSize(2)

	seedClean(t, ds, "alive")
	must := func(err error) {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(ds.Set(ctx, collections.Listings, "l1", map[string]any{"freelancerId": "alive"}, false))
	must(ds.Set(ctx, collections.Listings, "l2", map[string]any{"freelancerId": "ghost"}, false))
	must(ds.Set(ctx, collections.Orders, "o1", map[string]any{"buyerId": "alive", "sellerId": "ghost"}, false))
	must(ds.Set(ctx, collections.ClientProfiles, "alive", map[string]any{"uid": "alive"}, false))
	must(ds.Set(ctx, collections.ClientProfiles, "ghost", map[string]any{"uid": "ghost"}, false))

	report, err := s.SweepOrphans(ctx, ModeAnalyze)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Orphans != 3 || report.Removed != 0 {
		t.Fatalf("analyze counts wrong: %+v", report)
	}
	if _, err := ds.Get(ctx, collections.Listings, "l2"); err != nil {
		t.Fatal("analyze mode must not delete")
	}

	report, err = s.SweepOrphans(ctx, ModeApply)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Removed != 3 {
		t.Fatalf("expected 3 removals: %+v", report)
	}
	if report.PerCollection[collections.Orders] != 1 {
		t.Fatalf("two-party record with a dead party must be swept: %v", report.PerCollection)
	}

	if _, err := ds.Get(ctx, collections.Listings, "l1"); err != nil {
		t.Fatal("owned document must survive the sweep")
	}
	if _, err := ds.Get(ctx, collections.ClientProfiles, "alive"); err != nil {
		t.Fatal("live profile must survive the sweep")
	}
	for _, gone := range []struct{ c, id string }{
		{collections.Listings, "l2"},
		{collections.Orders, "o1"},
		{collections.ClientProfiles, "ghost"},
	} {
		if _, err := ds.Get(ctx, gone.c, gone.id); !store.IsNotFound(err) {
			t.Fatalf("%s/%s survived the sweep", gone.c, gone.id)
		}
	}

	report, err = s.SweepOrphans(ctx, ModeApply)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if report.Orphans != 0 {
		t.Fatalf("second pass must find nothing: %+v", report)
	}
}

func TestHealRecord(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	s := NewScanner(ds, nil)

	seedClean(t, ds, "clean")
	seedDrifted(t, ds, "drift")

	healed, err := s.HealRecord(ctx, "clean")
	if err != nil || healed {
		t.Fatalf("clean record: healed=%v err=%v", healed, err)
	}

	healed, err = s.HealRecord(ctx, "drift")
	if err != nil || !healed {
		t.Fatalf("drifted record: healed=%v err=%v", healed, err)
	}
	doc, _ := ds.Get(ctx, collections.Users, "drift")
	if len(schema.Analyze(doc.Data)) != 0 {
		t.Fatalf("record still drifted after heal: %v", doc.Data)
	}

	if _, err := s.HealRecord(ctx, "ghost"); !store.IsNotFound(err) {
		t.Fatalf("expected not-found passthrough, got %v", err)
	}
}
