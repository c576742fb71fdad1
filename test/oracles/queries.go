// Package oracles holds the cross-collection consistency checks the stress
// run is judged by. Each oracle scans the quiesced store and returns a
// description of the first violation it finds.
package oracles

import (
	"context"
	"fmt"

	"gigflow/collections"
	"gigflow/schema"
	"gigflow/store"
)

type Oracle struct {
	Name  string
	Check func(ctx context.Context, ds store.DocumentStore) (string, error)
}

func All() []Oracle {
	return []Oracle{
		{Name: "O1_user_records_canonical", Check: userRecordsCanonical},
		{Name: "O2_client_profile_for_every_user", Check: clientProfileExists},
		{Name: "O3_freelancer_profile_iff_role", Check: freelancerProfileIffRole},
		{Name: "O4_no_dangling_owner_refs", Check: noDanglingOwners},
		{Name: "O5_no_profile_without_user", Check: noProfileWithoutUser},
	}
}

// Run executes all oracles and returns the first failure, or an empty name
// when every check passes.
func Run(ctx context.Context, ds store.DocumentStore) (string, string, error) {
	for _, o := range All() {
		detail, err := o.Check(ctx, ds)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if detail != "" {
			return o.Name, detail, nil
		}
	}
	return "", "", nil
}

func userRecordsCanonical(ctx context.Context, ds store.DocumentStore) (string, error) {
	users, err := ds.Query(ctx, store.Query{Collection: collections.Users})
	if err != nil {
		return "", err
	}
	for _, doc := range users {
		if issues := schema.Analyze(doc.Data); len(issues) != 0 {
			return fmt.Sprintf("user %s has issues %v", doc.ID, issues), nil
		}
	}
	return "", nil
}

func clientProfileExists(ctx context.Context, ds store.DocumentStore) (string, error) {
	users, err := ds.Query(ctx, store.Query{Collection: collections.Users})
	if err != nil {
		return "", err
	}
	for _, doc := range users {
		if _, err := ds.Get(ctx, collections.ClientProfiles, doc.ID); store.IsNotFound(err) {
			return fmt.Sprintf("user %s has no client profile", doc.ID), nil
		} else if err != nil {
			return "", err
		}
	}
	return "", nil
}

func freelancerProfileIffRole(ctx context.Context, ds store.DocumentStore) (string, error) {
	users, err := ds.Query(ctx, store.Query{Collection: collections.Users})
	if err != nil {
		return "", err
	}
	for _, doc := range users {
		isFreelancer, _ := doc.Data["isFreelancer"].(bool)
		_, err := ds.Get(ctx, collections.FreelancerProfiles, doc.ID)
		switch {
		case isFreelancer && store.IsNotFound(err):
			return fmt.Sprintf("freelancer %s has no freelancer profile", doc.ID), nil
		case !isFreelancer && err == nil:
			return fmt.Sprintf("non-freelancer %s has a freelancer profile", doc.ID), nil
		case err != nil && !store.IsNotFound(err):
			return "", err
		}
	}
	return "", nil
}

func noDanglingOwners(ctx context.Context, ds store.DocumentStore) (string, error) {
	known, err := liveUsers(ctx, ds)
	if err != nil {
		return "", err
	}
	for _, target := range collections.CascadeTargets() {
		docs, err := ds.Query(ctx, store.Query{Collection: target.Collection})
		if err != nil {
			return "", err
		}
		for _, doc := range docs {
			owner, ok := doc.Data[target.Field].(string)
			if !ok || owner == "" {
				continue
			}
			if !known[owner] {
				return fmt.Sprintf("%s/%s references deleted user %s via %s",
					target.Collection, doc.ID, owner, target.Field), nil
			}
		}
	}
	return "", nil
}

func noProfileWithoutUser(ctx context.Context, ds store.DocumentStore) (string, error) {
	known, err := liveUsers(ctx, ds)
	if err != nil {
		return "", err
	}
	for _, c := range []string{collections.ClientProfiles, collections.FreelancerProfiles} {
		docs, err := ds.Query(ctx, store.Query{Collection: c})
		if err != nil {
			return "", err
		}
		for _, doc := range docs {
			if !known[doc.ID] {
				return fmt.Sprintf("%s/%s has no user record", c, doc.ID), nil
			}
		}
	}
	return "", nil
}

func liveUsers(ctx context.Context, ds store.DocumentStore) (map[string]bool, error) {
	users, err := ds.Query(ctx, store.Query{Collection: collections.Users})
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(users))
	for _, doc := range users {
		known[doc.ID] = true
	}
	return known, nil
}
