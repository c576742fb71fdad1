package identity

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"google.golang.org/api/option"
)

// FirebaseProvider implements Provider against the Firebase Admin SDK.
type FirebaseProvider struct {
	client *auth.Client

	// SendLink delivers a verification link to the address. When nil the
	// notice is dropped, which is acceptable for a best-effort step.
	SendLink func(ctx context.Context, email, link string) error
}

// NewFirebaseProvider builds a provider for the given project. credentialsFile
// may be empty to use ambient application-default credentials.
func NewFirebaseProvider(ctx context.Context, projectID, credentialsFile string) (*FirebaseProvider, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("identity: init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: init auth client: %w", err)
	}
	return &FirebaseProvider{client: client}, nil
}

func (p *FirebaseProvider) Create(ctx context.Context, email, password string) (Identity, error) {
	params := (&auth.UserToCreate{}).Email(email).Password(password)
	rec, err := p.client.CreateUser(ctx, params)
	if err != nil {
		return Identity{}, classifyFirebase("create user", err)
	}
	return fromUserRecord(rec), nil
}

func (p *FirebaseProvider) Delete(ctx context.Context, uid string) error {
	if err := p.client.DeleteUser(ctx, uid); err != nil {
		return classifyFirebase("delete user", err)
	}
	return nil
}

func (p *FirebaseProvider) SetDisplayName(ctx context.Context, uid, displayName string) error {
	params := (&auth.UserToUpdate{}).DisplayName(displayName)
	if _, err := p.client.UpdateUser(ctx, uid, params); err != nil {
		return classifyFirebase("update display name", err)
	}
	return nil
}

func (p *FirebaseProvider) SendVerificationNotice(ctx context.Context, ident Identity) error {
	link, err := p.client.EmailVerificationLink(ctx, ident.Email)
	if err != nil {
		return classifyFirebase("verification link", err)
	}
	if p.SendLink == nil {
		return nil
	}
	return p.SendLink(ctx, ident.Email, link)
}

func fromUserRecord(rec *auth.UserRecord) Identity {
	return Identity{
		UID:           rec.UID,
		Email:         rec.Email,
		DisplayName:   rec.DisplayName,
		EmailVerified: rec.EmailVerified,
		Disabled:      rec.Disabled,
	}
}

func classifyFirebase(op string, err error) error {
	switch {
	case auth.IsUserNotFound(err):
		return fmt.Errorf("identity: %s: %w", op, ErrNotFound)
	case auth.IsEmailAlreadyExists(err):
		return fmt.Errorf("identity: %s: %w", op, ErrEmailTaken)
	case strings.Contains(err.Error(), "CREDENTIAL_TOO_OLD"):
		return fmt.Errorf("identity: %s: %w", op, ErrRequiresRecentLogin)
	case strings.Contains(err.Error(), "USER_DISABLED"):
		return fmt.Errorf("identity: %s: %w", op, ErrDisabled)
	}
	return fmt.Errorf("identity: %s: %w", op, err)
}
