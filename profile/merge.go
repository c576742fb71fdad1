package profile

import (
	"context"
	"fmt"

	"gigflow/collections"
	"gigflow/store"
)

// MergedView reads the user record and its role profiles and merges them into
// one flat view. Precedence on overlapping fields, lowest to highest: client
// profile, freelancer profile, user record. Missing profiles are tolerated;
// a missing user record is not.
func (r *Router) MergedView(ctx context.Context, userID string) (map[string]any, error) {
	userDoc, err := r.ds.Get(ctx, collections.Users, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("profile: load user %s: %w", userID, err)
	}

	view := map[string]any{}
	for _, c := range []string{collections.ClientProfiles, collections.FreelancerProfiles} {
		doc, err := r.ds.Get(ctx, c, userID)
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("profile: load %s/%s: %w", c, userID, err)
		}
		for k, v := range doc.Data {
			view[k] = v
		}
	}
	for k, v := range userDoc.Data {
		view[k] = v
	}
	return view, nil
}
