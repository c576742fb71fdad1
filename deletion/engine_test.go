package deletion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"gigflow/collections"
	"gigflow/identity"
	"gigflow/media"
	"gigflow/store"
)

type harness struct {
	engine *Engine
	ds     *store.MemStore
	ids    *identity.LocalProvider
	assets *media.MemStorage
}

func newHarness() *harness {
	ds := store.NewMemStore()
	ids := identity.NewLocalProvider("test-secret")
	assets := media.NewMemStorage()
	return &harness{
		engine: NewEngine(ds, ids, assets, nil).WithWorkers(2),
		ds:     ds,
		ids:    ids,
		assets: assets,
	}
}

// seedUser creates an identity plus a document in every dependent collection,
// with a second user's data interleaved to prove deletion stays scoped.
func (h *harness) seedUser(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()

	ident, err := h.ids.Create(ctx, email, "supersafe")
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	uid := ident.UID

	h.assets.PutAsset("avatar-" + uid)
	h.assets.PutAsset("portfolio-" + uid)

	must := func(err error) {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(h.ds.Set(ctx, collections.Users, uid, map[string]any{
		"uid": uid, "email": email, "roles": []string{"client", "freelancer"},
		"photoAssetId": "avatar-" + uid,
	}, false))
	must(h.ds.Set(ctx, collections.ClientProfiles, uid, map[string]any{"uid": uid}, false))
	must(h.ds.Set(ctx, collections.FreelancerProfiles, uid, map[string]any{
		"uid": uid, "portfolioAssetIds": []string{"portfolio-" + uid},
	}, false))

	for _, target := range collections.CascadeTargets() {
		id := uuid.NewString()
		must(h.ds.Set(ctx, target.Collection, id, map[string]any{target.Field: uid}, false))
	}
	return uid
}

func (h *harness) countReferences(t *testing.T, uid string) int {
	t.Helper()
	ctx := context.Background()
	total := 0
	for _, target := range collections.CascadeTargets() {
		docs, err := h.ds.Query(ctx, store.Query{
			Collection: target.Collection,
			Filters:    []store.Filter{{Field: target.Field, Op: store.OpEqual, Value: uid}},
		})
		if err != nil {
			t.Fatalf("query %s: %v", target.Collection, err)
		}
		total += len(docs)
	}
	return total
}

func TestDeleteUser_Converges(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	uid := h.seedUser(t, "jane@example.com")
	other := h.seedUser(t, "john@example.com")

	report, err := h.engine.DeleteUser(ctx, uid)
	if err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", report.Errors)
	}

	if n := h.countReferences(t, uid); n != 0 {
		t.Fatalf("%d dependent documents still reference %s", n, uid)
	}
	for _, c := range []string{collections.Users, collections.ClientProfiles, collections.FreelancerProfiles} {
		if _, err := h.ds.Get(ctx, c, uid); !store.IsNotFound(err) {
			t.Fatalf("%s/%s survived deletion", c, uid)
		}
	}
	if _, ok := h.ids.Lookup(uid); ok {
		t.Fatal("identity survived deletion")
	}
	if h.assets.Has("avatar-" + uid) || h.assets.Has("portfolio-" + uid) {
		t.Fatal("media assets survived deletion")
	}

	// the other user's universe is untouched
	if n := h.countReferences(t, other); n != len(collections.CascadeTargets()) {
		t.Fatalf("deletion leaked into other user's data: %d docs left", n)
	}
	if _, ok := h.ids.Lookup(other); !ok {
		t.Fatal("other user's identity deleted")
	}
}

func TestDeleteUser_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	uid := h.seedUser(t, "jane@example.com")

	if _, err := h.engine.DeleteUser(ctx, uid); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	report, err := h.engine.DeleteUser(ctx, uid)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("second run must not report errors, got %+v", report.Errors)
	}
	found := false
	for _, op := range report.AlreadySatisfied {
		if strings.Contains(op, "identity") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected identity already-satisfied entry, got %v", report.AlreadySatisfied)
	}
}

func TestDeleteUser_MediaFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	uid := h.seedUser(t, "jane@example.com")
	h.assets.ErrDelete = errors.New("bucket unreachable")

	report, err := h.engine.DeleteUser(ctx, uid)
	if err != nil {
		t.Fatalf("media failure must not fail deletion: %v", err)
	}
	if len(report.Errors) == 0 {
		t.Fatal("expected recorded media errors")
	}
	if _, ok := h.ids.Lookup(uid); ok {
		t.Fatal("identity should be gone despite media errors")
	}
}

func TestDeleteUser_FatalIdentityFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	uid := h.seedUser(t, "jane@example.com")
	h.ids.ErrDelete = identity.ErrRequiresRecentLogin

	report, err := h.engine.DeleteUser(ctx, uid)
	if !errors.Is(err, identity.ErrRequiresRecentLogin) {
		t.Fatalf("expected ErrRequiresRecentLogin, got %v", err)
	}
	if len(report.Deleted) == 0 {
		t.Fatal("report should still describe the work done before the fatal step")
	}

	// records are gone, so re-running after re-auth only has the identity left
	h.ids.ErrDelete = nil
	if _, err := h.engine.DeleteUser(ctx, uid); err != nil {
		t.Fatalf("resumed deletion failed: %v", err)
	}
	if _, ok := h.ids.Lookup(uid); ok {
		t.Fatal("identity survived resumed deletion")
	}
}

func TestDeleteUser_PermissionDeniedClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("user still exists", func(t *testing.T) {
		h := newHarness()
		uid := h.seedUser(t, "jane@example.com")
		h.ds.Hook = func(op, collection, id string) error {
			if op == "query" && collection == collections.Listings {
				return store.Errorf(store.CodePermissionDenied, "query listings", nil)
			}
			return nil
		}

		report, err := h.engine.DeleteUser(ctx, uid)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		found := false
		for _, se := range report.Errors {
			if se.Code == store.CodePermissionDenied {
				found = true
			}
		}
		if !found {
			t.Fatalf("permission denial with a live user record must be reported, got %+v", report)
		}
	})

	t.Run("user already gone", func(t *testing.T) {
		h := newHarness()
		h.ds.Hook = func(op, collection, id string) error {
			if op == "query" && collection == collections.Listings {
				return store.Errorf(store.CodePermissionDenied, "query listings", nil)
			}
			return nil
		}

		report, err := h.engine.DeleteUser(ctx, fmt.Sprintf("ghost-%s", uuid.NewString()))
		if err == nil {
			// no identity exists either; that's the already-satisfied path
			for _, se := range report.Errors {
				if se.Code == store.CodePermissionDenied {
					t.Fatalf("denial on missing user must classify as satisfied: %+v", report.Errors)
				}
			}
			return
		}
		t.Fatalf("delete of missing user must not be fatal: %v", err)
	})
}
