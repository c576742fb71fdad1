package schema

import "strings"

// Issue tags one class of schema drift in a stored user record. The
// reconciliation scanner reports counts per tag and repairs records through
// Normalize, so every tag here must be cleared by a Normalize round trip.
type Issue string

const (
	IssueMissingUID       Issue = "missing-uid"
	IssueMalformedRoles   Issue = "malformed-roles"
	IssueRoleFlagMismatch Issue = "role-flag-mismatch"
	IssueBadActiveRole    Issue = "bad-active-role"
	IssueLegacyFields     Issue = "legacy-fields"
	IssueInvalidPhoto     Issue = "invalid-photo"
	IssueEmbeddedPhoto    Issue = "embedded-photo-data"
	IssueMissingDisplay   Issue = "missing-display-name"
	IssueRawEmail         Issue = "unnormalized-email"
	IssueMissingCreatedAt Issue = "missing-created-at"
)

// Analyze classifies drift in a stored raw record. A record that Normalize
// already produced yields no issues; Analyze over clean data is a no-op by
// construction, which keeps repeated reconciliation runs write-free.
func Analyze(raw map[string]any) []Issue {
	var issues []Issue

	if strings.TrimSpace(stringField(raw, "uid")) == "" {
		issues = append(issues, IssueMissingUID)
	}

	roles, wellFormed := storedRoles(raw["roles"])
	if !wellFormed {
		issues = append(issues, IssueMalformedRoles)
	}

	flag, hasFlag := raw["isFreelancer"].(bool)
	if !hasFlag || flag != containsRole(roles, RoleFreelancer) {
		issues = append(issues, IssueRoleFlagMismatch)
	}

	if active := stringField(raw, "activeRole"); !containsRole(roles, Role(active)) {
		issues = append(issues, IssueBadActiveRole)
	}

	if _, ok := raw[legacyFullNameField]; ok {
		issues = append(issues, IssueLegacyFields)
	} else if _, ok := raw[legacyBirthField]; ok {
		issues = append(issues, IssueLegacyFields)
	} else if _, ok := raw[legacyCityField]; ok {
		issues = append(issues, IssueLegacyFields)
	}

	if photo := stringField(raw, "profilePhoto"); strings.HasPrefix(strings.TrimSpace(photo), "data:") {
		issues = append(issues, IssueEmbeddedPhoto)
	} else if !ValidPhotoURL(photo) {
		issues = append(issues, IssueInvalidPhoto)
	}

	if strings.TrimSpace(stringField(raw, "displayName")) == "" {
		issues = append(issues, IssueMissingDisplay)
	}

	if email := stringField(raw, "email"); email != strings.ToLower(strings.TrimSpace(email)) {
		issues = append(issues, IssueRawEmail)
	}

	if _, ok := raw["createdAt"]; !ok {
		issues = append(issues, IssueMissingCreatedAt)
	}

	return issues
}

// storedRoles parses the stored roles value leniently. wellFormed is false
// whenever Normalize would rewrite the value: wrong container type, unknown
// or duplicated entries, or an empty set.
func storedRoles(v any) (roles []string, wellFormed bool) {
	var parsed []string
	switch vv := v.(type) {
	case []string:
		parsed = vv
	case []any:
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return normalizeRoles(v), false
			}
			parsed = append(parsed, s)
		}
	default:
		return normalizeRoles(v), false
	}

	seen := map[string]bool{}
	for _, r := range parsed {
		if r != strings.ToLower(strings.TrimSpace(r)) || !knownRole(Role(r)) || seen[r] {
			return normalizeRoles(v), false
		}
		seen[r] = true
	}
	if len(parsed) == 0 {
		return normalizeRoles(v), false
	}
	return parsed, true
}
