package schema

import (
	"strings"
	"time"
)

// Legacy field names still found in old records, mapped to their canonical
// replacements by Normalize and flagged by Analyze.
const (
	legacyFullNameField = "fullName"
	legacyBirthField    = "birthDate"
	legacyCityField     = "city"
)

// Normalize converts a raw attribute bag into the canonical user record keyed
// by identityID. It is pure and deterministic: timestamps are carried over
// from raw when present and otherwise left zero for the caller to stamp.
func Normalize(raw map[string]any, identityID string) (CanonicalUser, error) {
	u := CanonicalUser{
		UID:      strings.TrimSpace(identityID),
		Email:    strings.ToLower(strings.TrimSpace(stringField(raw, "email"))),
		Username: strings.ToLower(strings.TrimSpace(stringField(raw, "username"))),
	}

	u.DisplayName = strings.TrimSpace(stringField(raw, "displayName"))
	if u.DisplayName == "" {
		u.DisplayName = strings.TrimSpace(stringField(raw, legacyFullNameField))
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Username
	}

	u.Roles = normalizeRoles(raw["roles"])
	u.IsFreelancer = containsRole(u.Roles, RoleFreelancer)

	u.ActiveRole = strings.ToLower(strings.TrimSpace(stringField(raw, "activeRole")))
	if !containsRole(u.Roles, Role(u.ActiveRole)) {
		u.ActiveRole = u.Roles[0]
	}

	u.ProfilePhoto = SanitizePhotoURL(stringField(raw, "profilePhoto"))
	u.PhoneNumber = strings.TrimSpace(stringField(raw, "phoneNumber"))
	u.Gender = strings.TrimSpace(stringField(raw, "gender"))

	u.DateOfBirth = strings.TrimSpace(stringField(raw, "dateOfBirth"))
	if u.DateOfBirth == "" {
		u.DateOfBirth = strings.TrimSpace(stringField(raw, legacyBirthField))
	}
	u.Location = strings.TrimSpace(stringField(raw, "location"))
	if u.Location == "" {
		u.Location = strings.TrimSpace(stringField(raw, legacyCityField))
	}

	u.IsActive = boolField(raw, "isActive", true)
	u.EmailVerified = boolField(raw, "emailVerified", false)
	u.IsOnline = boolField(raw, "isOnline", false)
	u.CreatedAt = timeField(raw, "createdAt")
	u.UpdatedAt = timeField(raw, "updatedAt")

	switch {
	case u.UID == "":
		return CanonicalUser{}, &ValidationError{Field: "uid"}
	case u.Email == "":
		return CanonicalUser{}, &ValidationError{Field: "email"}
	case u.Username == "":
		return CanonicalUser{}, &ValidationError{Field: "username"}
	case u.DisplayName == "":
		return CanonicalUser{}, &ValidationError{Field: "displayName"}
	}

	return u, nil
}

// ValidPhotoURL reports whether s is usable as a profile photo value. Empty
// strings, the literal "null"/"undefined" a lossy client serializer produces,
// and base64 data URIs embedded in the record all fail the predicate.
func ValidPhotoURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	switch strings.ToLower(s) {
	case "null", "undefined":
		return false
	}
	return !strings.HasPrefix(s, "data:")
}

// SanitizePhotoURL returns s when it is a valid photo value and the sentinel
// default otherwise. Canonical records never carry an empty photo.
func SanitizePhotoURL(s string) string {
	if ValidPhotoURL(s) {
		return strings.TrimSpace(s)
	}
	return DefaultAvatarURL
}

func normalizeRoles(v any) []string {
	var parsed []string
	switch vv := v.(type) {
	case []string:
		parsed = vv
	case []any:
		for _, e := range vv {
			if s, ok := e.(string); ok {
				parsed = append(parsed, s)
			}
		}
	case string:
		parsed = []string{vv}
	}

	seen := map[string]bool{}
	var roles []string
	for _, r := range parsed {
		r = strings.ToLower(strings.TrimSpace(r))
		if !knownRole(Role(r)) || seen[r] {
			continue
		}
		seen[r] = true
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		roles = []string{string(RoleClient)}
	}
	return roles
}

func knownRole(r Role) bool {
	switch r {
	case RoleClient, RoleFreelancer, RoleAdmin:
		return true
	}
	return false
}

func containsRole(roles []string, r Role) bool {
	for _, have := range roles {
		if have == string(r) {
			return true
		}
	}
	return false
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

func boolField(raw map[string]any, key string, def bool) bool {
	if b, ok := raw[key].(bool); ok {
		return b
	}
	return def
}

func timeField(raw map[string]any, key string) time.Time {
	switch v := raw[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
