// Package profile routes field-level updates to the collections that own
// them and owns the read-time merge of a user's split records. Ownership is
// a static table per collection; a field no table claims is silently dropped
// so stale clients cannot leak junk across collections.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gigflow/collections"
	"gigflow/schema"
	"gigflow/store"
)

// ErrUserNotFound signals the target user record does not exist.
var ErrUserNotFound = errors.New("profile: user not found")

// ErrRoleNotHeld signals an active-role switch to a role the user lacks.
var ErrRoleNotHeld = errors.New("profile: active role not held")

const retryBase = 200 * time.Millisecond

// Field-ownership tables. Adding a field here is the only way an update can
// reach the corresponding collection.
var (
	userFields = map[string]bool{
		"displayName":  true,
		"username":     true,
		"profilePhoto": true,
		"phoneNumber":  true,
		"dateOfBirth":  true,
		"gender":       true,
		"location":     true,
		"activeRole":   true,
		"isOnline":     true,
	}
	clientFields = map[string]bool{
		"bio":             true,
		"marketingEmails": true,
	}
	freelancerFields = map[string]bool{
		"skills":          true,
		"experienceLevel": true,
		"hourlyRate":      true,
		"availability":    true,
	}
)

// Router applies partial profile updates. Safe for concurrent use.
type Router struct {
	ds  store.DocumentStore
	log *zap.SugaredLogger
	now func() time.Time
}

// NewRouter wires the router. A nil logger is replaced with a nop.
func NewRouter(ds store.DocumentStore, log *zap.SugaredLogger) *Router {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Router{ds: ds, log: log, now: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// ApplyUpdate buckets patch by field ownership and issues one partial write
// per non-empty bucket. Writes to distinct collections are not atomic with
// each other; a crash in between leaves a reconciliation-correctable partial
// update, never a structurally invalid document.
func (r *Router) ApplyUpdate(ctx context.Context, userID string, patch map[string]any) error {
	userDoc, err := r.ds.Get(ctx, collections.Users, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("profile: load user %s: %w", userID, err)
	}

	userPatch := map[string]any{}
	clientPatch := map[string]any{}
	freelancerPatch := map[string]any{}

	for key, value := range patch {
		switch {
		case userFields[key]:
			userPatch[key] = value
		case clientFields[key]:
			clientPatch[key] = value
		case freelancerFields[key]:
			freelancerPatch[key] = value
		default:
			// Unknown fields are dropped for forward compatibility.
			r.log.Debugw("dropping unowned field", "uid", userID, "field", key)
		}
	}

	if v, ok := userPatch["profilePhoto"]; ok {
		s, _ := v.(string)
		// An update can never clear the photo; junk collapses to the sentinel.
		userPatch["profilePhoto"] = schema.SanitizePhotoURL(s)
	}
	if v, ok := userPatch["username"]; ok {
		s, _ := v.(string)
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return &schema.ValidationError{Field: "username"}
		}
		userPatch["username"] = s
	}
	if v, ok := userPatch["activeRole"]; ok {
		role, _ := v.(string)
		role = strings.ToLower(strings.TrimSpace(role))
		if !holdsRole(userDoc.Data, role) {
			return fmt.Errorf("%w: user %s, role %q", ErrRoleNotHeld, userID, role)
		}
		userPatch["activeRole"] = role
	}

	now := r.now().UTC()
	if len(userPatch) > 0 {
		userPatch["updatedAt"] = now
		if err := r.update(ctx, collections.Users, userID, userPatch); err != nil {
			return err
		}
	}
	if len(clientPatch) > 0 {
		clientPatch["updatedAt"] = now
		if err := r.update(ctx, collections.ClientProfiles, userID, clientPatch); err != nil {
			return err
		}
	}
	if len(freelancerPatch) > 0 {
		if !holdsRole(userDoc.Data, string(schema.RoleFreelancer)) {
			r.log.Debugw("dropping freelancer fields for non-freelancer", "uid", userID)
			return nil
		}
		// Merge-write: the profile may not exist yet for a user who just
		// upgraded roles, so create-if-absent instead of a bare update.
		freelancerPatch["uid"] = userID
		freelancerPatch["updatedAt"] = now
		err := store.Retry(ctx, store.DefaultAttempts, retryBase, func() error {
			return r.ds.Set(ctx, collections.FreelancerProfiles, userID, freelancerPatch, true)
		})
		if err != nil {
			return fmt.Errorf("profile: merge %s/%s: %w", collections.FreelancerProfiles, userID, err)
		}
	}
	return nil
}

func (r *Router) update(ctx context.Context, collection, id string, patch map[string]any) error {
	err := store.Retry(ctx, store.DefaultAttempts, retryBase, func() error {
		return r.ds.Update(ctx, collection, id, patch)
	})
	if err != nil {
		return fmt.Errorf("profile: update %s/%s: %w", collection, id, err)
	}
	return nil
}

func holdsRole(data map[string]any, role string) bool {
	switch roles := data["roles"].(type) {
	case []string:
		for _, r := range roles {
			if r == role {
				return true
			}
		}
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok && s == role {
				return true
			}
		}
	}
	return false
}
