package auth

import (
	"context"

	"github.com/authsite/authsite/internal/oauth2"
	"github.com/authsite/authsite/internal/store"
)

// Input carries the credentials for one authentication attempt. Local auth
// fills Email/Password; OAuth strategies fill Code.
type Input struct {
	Email    string
	Password string
	Code     string
}

// Resolved is the outcome of a successful authentication: the canonical
// identity plus the display fields the session projection carries. Display
// fields may be empty for local identities.
type Resolved struct {
	Identity *store.Identity
	Name     string
	Picture  string
}

// Strategy authenticates one kind of credential and resolves it to an
// identity. Variants: local password, Google OAuth, GitHub OAuth.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, in Input) (*Resolved, error)
}

// LocalStrategy authenticates email/password pairs.
type LocalStrategy struct {
	Resolver *Resolver
}

func (s *LocalStrategy) Name() string { return "local" }

func (s *LocalStrategy) Resolve(ctx context.Context, in Input) (*Resolved, error) {
	identity, err := s.Resolver.ResolveLocal(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	return &Resolved{Identity: identity}, nil
}

// OAuthStrategy exchanges an authorization code and find-or-creates the
// identity for the provider subject id.
type OAuthStrategy struct {
	Resolver  *Resolver
	Exchanger *oauth2.Exchanger
}

func (s *OAuthStrategy) Name() string { return s.Exchanger.Provider() }

func (s *OAuthStrategy) Resolve(ctx context.Context, in Input) (*Resolved, error) {
	profile, err := s.Exchanger.Exchange(ctx, in.Code)
	if err != nil {
		return nil, err
	}
	identity, err := s.Resolver.ResolveExternal(ctx, profile)
	if err != nil {
		return nil, err
	}
	return &Resolved{
		Identity: identity,
		Name:     profile.Name,
		Picture:  profile.Picture,
	}, nil
}
