package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/authsite/authsite/internal/oauth2"
	"github.com/authsite/authsite/internal/store"
)

// Resolver maps verified credentials or external profiles to one canonical
// identity. It is the only component that creates identity records.
type Resolver struct {
	Store    store.Store
	Verifier *Verifier
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{Store: s, Verifier: &Verifier{Store: s}}
}

// Register creates a local identity from an email and password. The create
// is a plain insert: a concurrent registration for the same email loses with
// store.ErrDuplicate rather than silently merging.
func (r *Resolver) Register(ctx context.Context, email, password string) (*store.Identity, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	identity := &store.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := r.Store.Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// ResolveLocal authenticates an email/password pair. Verification happens
// before any session is issued; failures propagate unchanged.
func (r *Resolver) ResolveLocal(ctx context.Context, email, password string) (*store.Identity, error) {
	return r.Verifier.Verify(ctx, email, password)
}

// ResolveExternal finds or creates the identity owning a provider subject
// id. Provider identities stay independent of email identities; no linking
// happens here.
func (r *Resolver) ResolveExternal(ctx context.Context, profile oauth2.Profile) (*store.Identity, error) {
	identity, _, err := r.Store.FindOrCreate(ctx, profile.Provider, profile.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("resolving %s subject: %w", profile.Provider, err)
	}
	return identity, nil
}
