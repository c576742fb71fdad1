// Package collections is the single registry of document collection names and
// the foreign-key edges that tie dependent records to their owning user.
package collections

// Collection names as they appear in the document store.
const (
	Users              = "users"
	ClientProfiles     = "clientProfiles"
	FreelancerProfiles = "freelancerProfiles"
	Listings           = "listings"
	Reviews            = "reviews"
	Orders             = "orders"
	Messages           = "messages"
	Favorites          = "favorites"
	Notifications      = "notifications"
	Reports            = "reports"
)

// OwnerRef names a collection field holding a user id. A collection appears
// once per user-bearing field, so two-party records (orders, messages,
// reports) contribute two entries.
type OwnerRef struct {
	Collection string
	Field      string
}

// CascadeTargets lists every (collection, owner field) pair that must be
// cleared when a user is deleted, and that the orphan sweep checks. Order
// matters for deletion: leaf content first, profiles and the user record are
// handled separately afterwards.
func CascadeTargets() []OwnerRef {
	return []OwnerRef{
		{Listings, "freelancerId"},
		{Orders, "buyerId"},
		{Orders, "sellerId"},
		{Reviews, "authorId"},
		{Messages, "senderId"},
		{Messages, "recipientId"},
		{Favorites, "userId"},
		{Notifications, "userId"},
		{Reports, "reporterId"},
		{Reports, "reportedId"},
	}
}

// All returns every collection holding user-owned data, user record included.
func All() []string {
	return []string{
		Users, ClientProfiles, FreelancerProfiles, Listings, Reviews,
		Orders, Messages, Favorites, Notifications, Reports,
	}
}
