package store

import (
	"context"
	"errors"
	"time"
)

// Provider names understood by the identity store. Each provider's subject
// id maps to at most one identity.
const (
	ProviderGoogle = "google"
	ProviderGithub = "github"
)

var (
	// ErrNotFound is returned when no identity matches a lookup.
	ErrNotFound = errors.New("identity not found")

	// ErrDuplicate is returned by Create when a uniqueness constraint
	// (email or provider subject id) is violated.
	ErrDuplicate = errors.New("identity already exists")

	// ErrUnknownProvider is returned for provider names other than the
	// constants above.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Identity is the canonical persisted user record. At least one of Email,
// GoogleID or GithubID is always set. PasswordHash is present iff the
// identity was created through local registration; it never leaves the
// store layer except to the credential verifier.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	GoogleID     string
	GithubID     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store persists identity records. It is the only shared mutable resource
// in the system; Create and FindOrCreate must be atomic per call.
type Store interface {
	// ByEmail returns the identity with the given email, or ErrNotFound.
	ByEmail(ctx context.Context, email string) (*Identity, error)

	// ByProvider returns the identity holding the given provider subject
	// id, or ErrNotFound.
	ByProvider(ctx context.Context, provider, subjectID string) (*Identity, error)

	// Create inserts a new identity. Returns ErrDuplicate if the email or
	// any provider subject id is already taken.
	Create(ctx context.Context, identity *Identity) error

	// FindOrCreate looks up the identity for a provider subject id,
	// creating it when absent. Concurrent calls with the same subject id
	// yield exactly one stored record; losers of the race observe the
	// winner's record. The bool reports whether a record was created.
	FindOrCreate(ctx context.Context, provider, subjectID string) (*Identity, bool, error)
}

// ValidProvider reports whether the store knows the provider name.
func ValidProvider(provider string) bool {
	return provider == ProviderGoogle || provider == ProviderGithub
}
