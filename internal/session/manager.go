// Package session turns a resolved identity into a tamper-evident session
// reference and classifies each request as anonymous or authenticated.
//
// The reference is a signed JWT held in a server-side scs session; the
// client only ever sees the scs session cookie. Any bit flip in the token
// invalidates it, and destroying the scs session revokes it immediately.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/authsite/authsite/internal/store"
)

const tokenKey = "authToken"

// DefaultLifetime is how long an issued session stays valid.
const DefaultLifetime = 24 * time.Hour

// Projection is the minimal identity view a session carries. It never
// includes the password verifier.
type Projection struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// Manager issues, validates and revokes session references.
type Manager struct {
	Sessions *scs.SessionManager

	secret   []byte
	issuer   string
	lifetime time.Duration
}

// NewManager builds a manager around a fresh scs session store.
func NewManager(secret, issuer string, lifetime time.Duration) *Manager {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	sessions := scs.New()
	sessions.Lifetime = lifetime
	sessions.Cookie.HttpOnly = true

	return &Manager{
		Sessions: sessions,
		secret:   []byte(secret),
		issuer:   issuer,
		lifetime: lifetime,
	}
}

// Issue signs a token for the identity and stores it in the session. The scs
// token is renewed first so a pre-login session id cannot be replayed.
func (m *Manager) Issue(ctx context.Context, identity *store.Identity, name, picture string) error {
	if err := m.Sessions.RenewToken(ctx); err != nil {
		return fmt.Errorf("renewing session token: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": identity.ID,
		"iss": m.issuer,
		"iat": now.Unix(),
		"exp": now.Add(m.lifetime).Unix(),
	}
	if identity.Email != "" {
		claims["email"] = identity.Email
	}
	if name != "" {
		claims["name"] = name
	}
	if picture != "" {
		claims["picture"] = picture
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("signing session token: %w", err)
	}

	m.Sessions.Put(ctx, tokenKey, signed)
	return nil
}

// Current returns the authenticated identity projection for the request, or
// false when the request is anonymous. A missing, malformed, tampered or
// expired token is never an error; it just means anonymous.
func (m *Manager) Current(ctx context.Context) (Projection, bool) {
	signed := m.Sessions.GetString(ctx, tokenKey)
	if signed == "" {
		return Projection{}, false
	}

	token, err := jwt.Parse(signed, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Projection{}, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Projection{}, false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Projection{}, false
	}

	return Projection{
		ID:      sub,
		Email:   stringClaim(claims, "email"),
		Name:    stringClaim(claims, "name"),
		Picture: stringClaim(claims, "picture"),
	}, true
}

// Revoke destroys the session. Revoking an already-anonymous session is a
// no-op, not an error.
func (m *Manager) Revoke(ctx context.Context) error {
	if m.Sessions.GetString(ctx, tokenKey) == "" {
		return nil
	}
	if err := m.Sessions.Destroy(ctx); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	return nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
