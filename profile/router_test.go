package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"gigflow/collections"
	"gigflow/schema"
	"gigflow/store"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func seedUser(t *testing.T, ds *store.MemStore, uid string, roles []string) {
	t.Helper()
	ctx := context.Background()
	err := ds.Set(ctx, collections.Users, uid, map[string]any{
		"uid":          uid,
		"email":        uid + "@example.com",
		"username":     uid,
		"displayName":  uid,
		"roles":        roles,
		"activeRole":   roles[0],
		"profilePhoto": schema.DefaultAvatarURL,
	}, false)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := ds.Set(ctx, collections.ClientProfiles, uid, map[string]any{"uid": uid, "bio": ""}, false); err != nil {
		t.Fatalf("seed client profile: %v", err)
	}
}

func TestApplyUpdate_RoutesByOwnership(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	r := NewRouter(ds, nil).WithClock(fixedClock)
	seedUser(t, ds, "u1", []string{"client", "freelancer"})

	err := r.ApplyUpdate(ctx, "u1", map[string]any{
		"displayName":    "Jane D.",
		"bio":            "I build things",
		"hourlyRate":     75.0,
		"unclaimedField": "dropped",
	})
	if err != nil {
		t.Fatalf("apply update: %v", err)
	}

	user, _ := ds.Get(ctx, collections.Users, "u1")
	if user.Data["displayName"] != "Jane D." {
		t.Fatalf("user field not routed: %v", user.Data)
	}
	if _, ok := user.Data["bio"]; ok {
		t.Fatal("client field leaked into user record")
	}
	if _, ok := user.Data["unclaimedField"]; ok {
		t.Fatal("unowned field must be dropped")
	}
	if user.Data["updatedAt"] != fixedClock() {
		t.Fatalf("updatedAt not stamped: %v", user.Data["updatedAt"])
	}

	client, _ := ds.Get(ctx, collections.ClientProfiles, "u1")
	if client.Data["bio"] != "I build things" {
		t.Fatalf("client field not routed: %v", client.Data)
	}

	fl, err := ds.Get(ctx, collections.FreelancerProfiles, "u1")
	if err != nil {
		t.Fatalf("freelancer profile should be created by merge-write: %v", err)
	}
	if fl.Data["hourlyRate"] != 75.0 || fl.Data["uid"] != "u1" {
		t.Fatalf("freelancer merge-write wrong: %v", fl.Data)
	}
}

func TestApplyUpdate_PhotoNeverEmpty(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	r := NewRouter(ds, nil).WithClock(fixedClock)
	seedUser(t, ds, "u1", []string{"client"})

	for _, junk := range []any{"", "null", "undefined", nil} {
		if err := r.ApplyUpdate(ctx, "u1", map[string]any{"profilePhoto": junk}); err != nil {
			t.Fatalf("apply update(%v): %v", junk, err)
		}
		user, _ := ds.Get(ctx, collections.Users, "u1")
		if user.Data["profilePhoto"] != schema.DefaultAvatarURL {
			t.Fatalf("photo %v: expected sentinel, got %v", junk, user.Data["profilePhoto"])
		}
	}

	if err := r.ApplyUpdate(ctx, "u1", map[string]any{"profilePhoto": "https://cdn.example.com/x.png"}); err != nil {
		t.Fatalf("apply update: %v", err)
	}
	user, _ := ds.Get(ctx, collections.Users, "u1")
	if user.Data["profilePhoto"] != "https://cdn.example.com/x.png" {
		t.Fatalf("valid photo rejected: %v", user.Data["profilePhoto"])
	}
}

func TestApplyUpdate_FreelancerFieldsDroppedForClients(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	r := NewRouter(ds, nil).WithClock(fixedClock)
	seedUser(t, ds, "u1", []string{"client"})

	if err := r.ApplyUpdate(ctx, "u1", map[string]any{"skills": []string{"go"}}); err != nil {
		t.Fatalf("apply update: %v", err)
	}
	if ds.Count(collections.FreelancerProfiles) != 0 {
		t.Fatal("freelancer profile must not be created for a non-freelancer")
	}
}

func TestApplyUpdate_ActiveRoleMustBeHeld(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	r := NewRouter(ds, nil).WithClock(fixedClock)
	seedUser(t, ds, "u1", []string{"client"})

	if err := r.ApplyUpdate(ctx, "u1", map[string]any{"activeRole": "freelancer"}); !errors.Is(err, ErrRoleNotHeld) {
		t.Fatalf("expected ErrRoleNotHeld, got %v", err)
	}
	if err := r.ApplyUpdate(ctx, "u1", map[string]any{"activeRole": " CLIENT "}); err != nil {
		t.Fatalf("held role rejected: %v", err)
	}
	user, _ := ds.Get(ctx, collections.Users, "u1")
	if user.Data["activeRole"] != "client" {
		t.Fatalf("active role not normalized: %v", user.Data["activeRole"])
	}
}

func TestApplyUpdate_UnknownUser(t *testing.T) {
	r := NewRouter(store.NewMemStore(), nil)
	err := r.ApplyUpdate(context.Background(), "ghost", map[string]any{"displayName": "x"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMergedView_Precedence(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	r := NewRouter(ds, nil)
	seedUser(t, ds, "u1", []string{"client", "freelancer"})

	// overlapping uid field everywhere plus distinct fields per collection
	_ = ds.Set(ctx, collections.ClientProfiles, "u1", map[string]any{"bio": "client bio", "updatedAt": "client"}, true)
	_ = ds.Set(ctx, collections.FreelancerProfiles, "u1", map[string]any{"uid": "u1", "rating": 4.5, "updatedAt": "freelancer"}, false)
	_ = ds.Set(ctx, collections.Users, "u1", map[string]any{"updatedAt": "user"}, true)

	view, err := r.MergedView(ctx, "u1")
	if err != nil {
		t.Fatalf("merged view: %v", err)
	}
	if view["bio"] != "client bio" || view["rating"] != 4.5 {
		t.Fatalf("profile fields missing from view: %v", view)
	}
	if view["updatedAt"] != "user" {
		t.Fatalf("user record must win on overlap, got %v", view["updatedAt"])
	}
}

func TestMergedView_ToleratesMissingProfiles(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemStore()
	r := NewRouter(ds, nil)
	seedUser(t, ds, "u1", []string{"client"})
	_ = ds.Delete(ctx, collections.ClientProfiles, "u1")

	view, err := r.MergedView(ctx, "u1")
	if err != nil {
		t.Fatalf("merged view: %v", err)
	}
	if view["uid"] != "u1" {
		t.Fatalf("expected user record fields, got %v", view)
	}

	if _, err := r.MergedView(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
