// Package actors drives the lifecycle services with randomized concurrent
// traffic. Actors treat individual operation failures as survivable; the
// consistency oracles are the arbiter of correctness.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gigflow/collections"
	"gigflow/deletion"
	"gigflow/profile"
	"gigflow/rating"
	"gigflow/registration"
	"gigflow/schema"
	"gigflow/store"
)

// Registry tracks the users the actors have created so they can target each
// other's work. Deleters claim a user exclusively before removing it.
type Registry struct {
	mu   sync.Mutex
	uids []string
	seq  int
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Add(uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uids = append(r.uids, uid)
}

// Pick returns a random live user, or empty when none exist.
func (r *Registry) Pick(rng *rand.Rand) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.uids) == 0 {
		return ""
	}
	return r.uids[rng.Intn(len(r.uids))]
}

// Claim removes and returns a random user so no other actor targets it again.
func (r *Registry) Claim(rng *rand.Rand) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.uids) == 0 {
		return ""
	}
	i := rng.Intn(len(r.uids))
	uid := r.uids[i]
	r.uids[i] = r.uids[len(r.uids)-1]
	r.uids = r.uids[:len(r.uids)-1]
	return uid
}

func (r *Registry) next() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uids)
}

// Registrar creates accounts with randomized role mixes and occasionally
// dirty inputs, which registration must normalize or roll back.
func Registrar(ctx context.Context, svc *registration.Service, reg *Registry, rng *rand.Rand, stop <-chan struct{}) error {
	roleMixes := [][]string{
		{"client"},
		{"freelancer"},
		{"client", "freelancer"},
		{"FREELANCER", "freelancer"},
		nil,
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		n := reg.next()
		in := registration.Input{
			Email:    fmt.Sprintf("  Actor%d@Example.com ", n),
			Password: "stress-pass",
			Username: fmt.Sprintf("actor%d", n),
			Roles:    roleMixes[rng.Intn(len(roleMixes))],
		}
		if rng.Intn(4) == 0 {
			in.FullName = fmt.Sprintf("Actor Number %d", n)
		} else {
			in.DisplayName = fmt.Sprintf("Actor %d", n)
		}
		if rng.Intn(5) == 0 {
			in.ProfilePhoto = "undefined"
		}

		user, err := svc.Register(ctx, in)
		if err == nil {
			reg.Add(user.UID)
		}
		sleep(rng, 10, 30)
	}
}

// Updater applies randomized field-routed patches to live users.
func Updater(ctx context.Context, router *profile.Router, reg *Registry, rng *rand.Rand, stop <-chan struct{}) error {
	patches := []map[string]any{
		{"displayName": "Updated Name"},
		{"bio": "updated bio", "location": "Berlin"},
		{"skills": []string{"go", "sql"}, "hourlyRate": 60.0},
		{"profilePhoto": ""},
		{"profilePhoto": "https://cdn.example.com/p.png"},
		{"activeRole": "freelancer"},
		{"unknownField": "noise"},
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		uid := reg.Pick(rng)
		if uid != "" {
			err := router.ApplyUpdate(ctx, uid, patches[rng.Intn(len(patches))])
			if err != nil && !survivable(err) {
				return fmt.Errorf("updater %s: %w", uid, err)
			}
		}
		sleep(rng, 10, 40)
	}
}

// Reviewer seeds listings and reviews for live freelancers and recomputes
// their ratings.
func Reviewer(ctx context.Context, ds store.DocumentStore, agg *rating.Aggregator, reg *Registry, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		uid := reg.Pick(rng)
		if uid != "" {
			listingID := fmt.Sprintf("listing-%s-%d", uid, rng.Intn(3))
			_ = ds.Set(ctx, collections.Listings, listingID, map[string]any{
				"freelancerId": uid,
				"active":       true,
			}, true)
			_ = ds.Set(ctx, collections.Reviews, fmt.Sprintf("review-%d-%d", reg.next(), rng.Int()), map[string]any{
				"listingId": listingID,
				"authorId":  uid,
				"rating":    1 + rng.Intn(5),
			}, false)

			if _, err := agg.ComputeRating(ctx, uid); err != nil && !survivable(err) {
				return fmt.Errorf("reviewer %s: %w", uid, err)
			}
		}
		sleep(rng, 20, 50)
	}
}

// Deleter claims users and runs the full cascade on them.
func Deleter(ctx context.Context, engine *deletion.Engine, reg *Registry, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if uid := reg.Claim(rng); uid != "" {
			// a run with recorded step errors is resumed by running again
			for attempt := 0; attempt < 5; attempt++ {
				report, err := engine.DeleteUser(ctx, uid)
				if err != nil && !survivable(err) {
					return fmt.Errorf("deleter %s: %w", uid, err)
				}
				if err == nil && len(report.Errors) == 0 {
					break
				}
				sleep(rng, 20, 30)
			}
		}
		sleep(rng, 50, 100)
	}
}

// survivable reports whether an actor should shrug the error off: transient
// store trouble, a concurrently deleted target, or rejected input.
func survivable(err error) bool {
	if store.CodeOf(err) != store.CodeUnknown {
		return true
	}
	if errors.Is(err, profile.ErrUserNotFound) || errors.Is(err, profile.ErrRoleNotHeld) {
		return true
	}
	_, ok := schema.AsValidationError(err)
	return ok
}

func sleep(rng *rand.Rand, base, jitter int) {
	time.Sleep(time.Duration(base+rng.Intn(jitter)) * time.Millisecond)
}
