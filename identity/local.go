package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LocalProvider is an in-process Provider for development and tests. Secrets
// are bcrypt-hashed and sessions are plain HS256 JWTs, so a local stack
// behaves like the managed provider without network access. The Err* fields
// inject failures at exact lifecycle steps for saga tests.
type LocalProvider struct {
	mu      sync.Mutex
	byUID   map[string]*localAccount
	byEmail map[string]string
	notices map[string]int

	jwtSecret []byte
	now       func() time.Time

	ErrCreate       error
	ErrDelete       error
	ErrDisplayName  error
	ErrVerification error
}

type localAccount struct {
	ident Identity
	hash  []byte
}

// NewLocalProvider creates an empty provider signing sessions with jwtSecret.
func NewLocalProvider(jwtSecret string) *LocalProvider {
	return &LocalProvider{
		byUID:     map[string]*localAccount{},
		byEmail:   map[string]string{},
		notices:   map[string]int{},
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// WithClock overrides the token clock, for tests.
func (p *LocalProvider) WithClock(now func() time.Time) *LocalProvider {
	p.now = now
	return p
}

func (p *LocalProvider) Create(ctx context.Context, email, password string) (Identity, error) {
	if p.ErrCreate != nil {
		return Identity{}, p.ErrCreate
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return Identity{}, fmt.Errorf("identity: invalid email %q", email)
	}
	if len(password) < 8 {
		return Identity{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.byEmail[email]; taken {
		return Identity{}, ErrEmailTaken
	}

	ident := Identity{UID: uuid.NewString(), Email: email}
	p.byUID[ident.UID] = &localAccount{ident: ident, hash: hash}
	p.byEmail[email] = ident.UID
	return ident, nil
}

func (p *LocalProvider) Delete(ctx context.Context, uid string) error {
	if p.ErrDelete != nil {
		return p.ErrDelete
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	acc, ok := p.byUID[uid]
	if !ok {
		return ErrNotFound
	}
	delete(p.byEmail, acc.ident.Email)
	delete(p.byUID, uid)
	return nil
}

func (p *LocalProvider) SetDisplayName(ctx context.Context, uid, displayName string) error {
	if p.ErrDisplayName != nil {
		return p.ErrDisplayName
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	acc, ok := p.byUID[uid]
	if !ok {
		return ErrNotFound
	}
	acc.ident.DisplayName = displayName
	return nil
}

func (p *LocalProvider) SendVerificationNotice(ctx context.Context, ident Identity) error {
	if p.ErrVerification != nil {
		return p.ErrVerification
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byUID[ident.UID]; !ok {
		return ErrNotFound
	}
	p.notices[ident.UID]++
	return nil
}

// Authenticate verifies email+password and returns a signed session token.
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	uid, ok := p.byEmail[email]
	var acc *localAccount
	if ok {
		acc = p.byUID[uid]
	}
	p.mu.Unlock()
	if acc == nil {
		return "", ErrNotFound
	}
	if acc.ident.Disabled {
		return "", ErrDisabled
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return "", fmt.Errorf("identity: invalid credentials")
	}

	now := p.now()
	claims := jwt.MapClaims{
		"sub": acc.ident.UID,
		"iat": now.Unix(),
		"exp": now.Add(24 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("identity: sign session: %w", err)
	}
	return token, nil
}

// VerifySession validates a session token and returns the subject uid.
func (p *LocalProvider) VerifySession(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return p.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("identity: invalid session: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("identity: malformed claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("identity: session missing subject")
	}
	return sub, nil
}

// Lookup returns the identity for uid, for tests and admin tooling.
func (p *LocalProvider) Lookup(uid string) (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.byUID[uid]
	if !ok {
		return Identity{}, false
	}
	return acc.ident, true
}

// NoticeCount reports how many verification notices uid received.
func (p *LocalProvider) NoticeCount(uid string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notices[uid]
}
