// Package schema normalizes raw user attribute bags into the canonical user
// record shape and classifies drift in stored records. It performs no I/O;
// every downstream lifecycle component is specified and tested against it.
package schema

import (
	"errors"
	"time"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

// DefaultAvatarURL is the sentinel profile photo. Canonical records never
// carry an empty photo, so absent or junk values collapse to this URL.
const DefaultAvatarURL = "https://storage.googleapis.com/gigflow-public/avatars/default.png"

// CanonicalUser is the canonical per-user document. Field names in the
// firestore tags are the wire format shared by every store backend.
type CanonicalUser struct {
	UID           string    `firestore:"uid"`
	Email         string    `firestore:"email"`
	Username      string    `firestore:"username"`
	DisplayName   string    `firestore:"displayName"`
	Roles         []string  `firestore:"roles"`
	ActiveRole    string    `firestore:"activeRole"`
	IsFreelancer  bool      `firestore:"isFreelancer"`
	ProfilePhoto  string    `firestore:"profilePhoto"`
	PhoneNumber   string    `firestore:"phoneNumber"`
	DateOfBirth   string    `firestore:"dateOfBirth"`
	Gender        string    `firestore:"gender"`
	Location      string    `firestore:"location"`
	IsActive      bool      `firestore:"isActive"`
	EmailVerified bool      `firestore:"emailVerified"`
	IsOnline      bool      `firestore:"isOnline"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// ValidationError reports a required field that is empty after normalization.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "schema: missing required field " + e.Field
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// HasRole reports whether the canonical role set contains r.
func (u CanonicalUser) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == string(r) {
			return true
		}
	}
	return false
}

// Map renders the record as store data. Feeding the result back through
// Normalize with the same uid yields an identical record.
func (u CanonicalUser) Map() map[string]any {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return map[string]any{
		"uid":           u.UID,
		"email":         u.Email,
		"username":      u.Username,
		"displayName":   u.DisplayName,
		"roles":         roles,
		"activeRole":    u.ActiveRole,
		"isFreelancer":  u.IsFreelancer,
		"profilePhoto":  u.ProfilePhoto,
		"phoneNumber":   u.PhoneNumber,
		"dateOfBirth":   u.DateOfBirth,
		"gender":        u.Gender,
		"location":      u.Location,
		"isActive":      u.IsActive,
		"emailVerified": u.EmailVerified,
		"isOnline":      u.IsOnline,
		"createdAt":     u.CreatedAt,
		"updatedAt":     u.UpdatedAt,
	}
}
