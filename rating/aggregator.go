// Package rating derives a freelancer's aggregate score by walking the
// listing fan-out and folding per-listing review averages into one weighted
// figure. The derived value is recomputable from source data at any time; the
// cached copy on the freelancer profile is a convenience, never the truth.
package rating

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"gigflow/collections"
	"gigflow/store"
)

const retryBase = 200 * time.Millisecond

// Summary is an aggregate over one or more review sets.
type Summary struct {
	Average float64
	Count   int
}

// Aggregator computes ratings over the listings and reviews collections.
type Aggregator struct {
	ds        store.DocumentStore
	log       *zap.SugaredLogger
	writeBack bool
}

// NewAggregator wires an aggregator. A nil logger is replaced with a nop.
func NewAggregator(ds store.DocumentStore, log *zap.SugaredLogger) *Aggregator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Aggregator{ds: ds, log: log}
}

// WithWriteBack enables caching the computed summary onto the freelancer
// profile after each computation. Off by default.
func (a *Aggregator) WithWriteBack(on bool) *Aggregator {
	a.writeBack = on
	return a
}

// ComputeRating returns the weighted average rating across all reviews of the
// user's active listings, rounded to one decimal. A user with no listings or
// no reviews gets a zero summary, never a NaN.
func (a *Aggregator) ComputeRating(ctx context.Context, userID string) (Summary, error) {
	listings, err := a.activeListings(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	var weighted float64
	total := 0
	for _, listing := range listings {
		per, err := a.listingSummary(ctx, listing.ID)
		if err != nil {
			return Summary{}, err
		}
		if per.Count == 0 {
			continue
		}
		weighted += per.Average * float64(per.Count)
		total += per.Count
	}
	if total == 0 {
		return Summary{}, nil
	}

	summary := Summary{
		Average: math.Round(weighted/float64(total)*10) / 10,
		Count:   total,
	}
	if a.writeBack {
		a.cache(ctx, userID, summary)
	}
	return summary, nil
}

// activeListings fetches the user's active listings. The compound filter is
// tried first; when the backend rejects it for want of a composite index, the
// two single-field queries are merged with duplicate-id suppression and the
// missing half of each predicate is applied client-side.
func (a *Aggregator) activeListings(ctx context.Context, userID string) ([]store.Document, error) {
	owned := store.Filter{Field: "freelancerId", Op: store.OpEqual, Value: userID}
	active := store.Filter{Field: "active", Op: store.OpEqual, Value: true}

	docs, err := a.query(ctx, store.Query{
		Collection: collections.Listings,
		Filters:    []store.Filter{owned, active},
	})
	if err == nil {
		return docs, nil
	}
	if !store.IsIndexMissing(err) {
		return nil, fmt.Errorf("rating: list listings for %s: %w", userID, err)
	}
	a.log.Debugw("compound listing query rejected, degrading", "uid", userID)

	byOwner, err := a.query(ctx, store.Query{
		Collection: collections.Listings,
		Filters:    []store.Filter{owned},
	})
	if err != nil {
		return nil, fmt.Errorf("rating: list listings by owner for %s: %w", userID, err)
	}
	byActive, err := a.query(ctx, store.Query{
		Collection: collections.Listings,
		Filters:    []store.Filter{active},
	})
	if err != nil {
		return nil, fmt.Errorf("rating: list active listings for %s: %w", userID, err)
	}

	seen := map[string]bool{}
	var merged []store.Document
	for _, doc := range append(byOwner, byActive...) {
		if seen[doc.ID] {
			continue
		}
		seen[doc.ID] = true
		if isActive(doc.Data) && ownerOf(doc.Data) == userID {
			merged = append(merged, doc)
		}
	}
	return merged, nil
}

// listingSummary averages the reviews of one listing.
func (a *Aggregator) listingSummary(ctx context.Context, listingID string) (Summary, error) {
	reviews, err := a.query(ctx, store.Query{
		Collection: collections.Reviews,
		Filters:    []store.Filter{{Field: "listingId", Op: store.OpEqual, Value: listingID}},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("rating: reviews for listing %s: %w", listingID, err)
	}

	sum := 0.0
	n := 0
	for _, review := range reviews {
		score, ok := ratingOf(review.Data)
		if !ok {
			continue
		}
		sum += score
		n++
	}
	if n == 0 {
		return Summary{}, nil
	}
	return Summary{Average: sum / float64(n), Count: n}, nil
}

// cache writes the summary onto the freelancer profile, best effort.
func (a *Aggregator) cache(ctx context.Context, userID string, s Summary) {
	err := a.ds.Set(ctx, collections.FreelancerProfiles, userID, map[string]any{
		"rating":      s.Average,
		"reviewCount": s.Count,
	}, true)
	if err != nil {
		a.log.Warnw("rating cache write failed", "uid", userID, "err", err)
	}
}

func (a *Aggregator) query(ctx context.Context, q store.Query) ([]store.Document, error) {
	var docs []store.Document
	err := store.Retry(ctx, store.DefaultAttempts, retryBase, func() error {
		var qerr error
		docs, qerr = a.ds.Query(ctx, q)
		return qerr
	})
	return docs, err
}

func isActive(data map[string]any) bool {
	b, _ := data["active"].(bool)
	return b
}

func ownerOf(data map[string]any) string {
	s, _ := data["freelancerId"].(string)
	return s
}

// ratingOf reads a review score, accepting the numeric types a document
// backend may hand back.
func ratingOf(data map[string]any) (float64, bool) {
	switch v := data["rating"].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
