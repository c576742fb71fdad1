// Package registration orchestrates account creation across the identity
// provider and the record collections. The store offers no cross-collection
// transaction, so the sequence is a saga: any failure after the identity
// exists triggers compensation that removes everything the attempt wrote,
// identity last.
package registration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gigflow/collections"
	"gigflow/identity"
	"gigflow/schema"
	"gigflow/store"
)

const retryBase = 200 * time.Millisecond

// Input is the raw registration payload. Legacy aliases (FullName) are
// carried through so schema normalization owns the fallback rules.
type Input struct {
	Email        string
	Password     string
	Username     string
	DisplayName  string
	FullName     string
	Roles        []string
	ProfilePhoto string
	PhoneNumber  string
	DateOfBirth  string
	Gender       string
	Location     string
}

func (in Input) attributes() map[string]any {
	return map[string]any{
		"email":        in.Email,
		"username":     in.Username,
		"displayName":  in.DisplayName,
		"fullName":     in.FullName,
		"roles":        in.Roles,
		"profilePhoto": in.ProfilePhoto,
		"phoneNumber":  in.PhoneNumber,
		"dateOfBirth":  in.DateOfBirth,
		"gender":       in.Gender,
		"location":     in.Location,
	}
}

// Service creates accounts. Safe for concurrent use.
type Service struct {
	ids identity.Provider
	ds  store.DocumentStore
	log *zap.SugaredLogger
	now func() time.Time
}

// NewService wires the orchestrator. A nil logger is replaced with a nop.
func NewService(ids identity.Provider, ds store.DocumentStore, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{ids: ids, ds: ds, log: log, now: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register runs the registration saga. On error the attempt is fully rolled
// back: no identity, user record, or profile document survives. Retrying with
// the same email then behaves as a fresh registration; the provider's
// duplicate-email rejection is the natural dedupe.
func (s *Service) Register(ctx context.Context, in Input) (schema.CanonicalUser, error) {
	ident, err := s.ids.Create(ctx, in.Email, in.Password)
	if err != nil {
		return schema.CanonicalUser{}, fmt.Errorf("registration: create identity: %w", err)
	}

	user, err := schema.Normalize(in.attributes(), ident.UID)
	if err != nil {
		return schema.CanonicalUser{}, s.rollback(ctx, ident.UID, err)
	}
	now := s.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.EmailVerified = ident.EmailVerified

	if err := s.write(ctx, collections.Users, user.UID, user.Map()); err != nil {
		return schema.CanonicalUser{}, s.rollback(ctx, ident.UID, err)
	}
	if err := s.write(ctx, collections.ClientProfiles, user.UID, clientProfileDoc(user.UID, now)); err != nil {
		return schema.CanonicalUser{}, s.rollback(ctx, ident.UID, err)
	}
	if user.IsFreelancer {
		// A user record claiming the freelancer role without its profile is
		// role-inconsistent partial state, so this write compensates too.
		if err := s.write(ctx, collections.FreelancerProfiles, user.UID, freelancerProfileDoc(user.UID, now)); err != nil {
			return schema.CanonicalUser{}, s.rollback(ctx, ident.UID, err)
		}
	}

	// Provider decoration and the verification notice are best-effort: the
	// records are consistent with or without them.
	if err := s.ids.SetDisplayName(ctx, user.UID, user.DisplayName); err != nil {
		s.log.Warnw("set display name failed", "uid", user.UID, "err", err)
	}
	ident.Email = user.Email
	if err := s.ids.SendVerificationNotice(ctx, ident); err != nil {
		s.log.Warnw("verification notice failed", "uid", user.UID, "err", err)
	}

	s.log.Infow("user registered", "uid", user.UID, "freelancer", user.IsFreelancer)
	return user, nil
}

func (s *Service) write(ctx context.Context, collection, id string, data map[string]any) error {
	err := store.Retry(ctx, store.DefaultAttempts, retryBase, func() error {
		return s.ds.Set(ctx, collection, id, data, false)
	})
	if err != nil {
		return fmt.Errorf("registration: write %s/%s: %w", collection, id, err)
	}
	return nil
}

// rollback removes every record the attempt may have written, then the
// identity itself. The identity goes last so a failed rollback can be retried
// by re-running deletion; an orphaned authenticatable identity is the one
// state never left behind silently.
func (s *Service) rollback(ctx context.Context, uid string, cause error) error {
	for _, c := range []string{collections.FreelancerProfiles, collections.ClientProfiles, collections.Users} {
		err := store.Retry(ctx, store.DefaultAttempts, retryBase, func() error {
			return s.ds.Delete(ctx, c, uid)
		})
		if err != nil {
			s.log.Errorw("rollback record delete failed", "collection", c, "uid", uid, "err", err)
		}
	}
	if err := s.ids.Delete(ctx, uid); err != nil {
		s.log.Errorw("rollback identity delete failed", "uid", uid, "err", err)
		return fmt.Errorf("registration: rollback identity %s after %v: %w", uid, cause, err)
	}
	s.log.Infow("registration rolled back", "uid", uid, "cause", cause)
	return cause
}

func clientProfileDoc(uid string, now time.Time) map[string]any {
	return map[string]any{
		"uid":             uid,
		"bio":             "",
		"marketingEmails": false,
		"createdAt":       now,
		"updatedAt":       now,
	}
}

func freelancerProfileDoc(uid string, now time.Time) map[string]any {
	return map[string]any{
		"uid":               uid,
		"skills":            []string{},
		"experienceLevel":   "",
		"hourlyRate":        0.0,
		"availability":      "",
		"rating":            0.0,
		"reviewCount":       0,
		"portfolioAssetIds": []string{},
		"createdAt":         now,
		"updatedAt":         now,
	}
}
