// Package mem provides an in-memory identity store. It backs tests and is
// the fallback backend when no database is configured.
package mem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/authsite/authsite/internal/store"
)

// Store keeps identities in process memory guarded by a single mutex, so
// every call is trivially atomic.
type Store struct {
	mu         sync.Mutex
	byID       map[string]*store.Identity
	byEmail    map[string]string
	byProvider map[string]string // "google:<sub>" / "github:<sub>" -> id
}

func New() *Store {
	return &Store{
		byID:       make(map[string]*store.Identity),
		byEmail:    make(map[string]string),
		byProvider: make(map[string]string),
	}
}

func providerKey(provider, subjectID string) string {
	return provider + ":" + subjectID
}

// clone guards callers against mutating the stored record.
func clone(identity *store.Identity) *store.Identity {
	out := *identity
	return &out
}

func (s *Store) ByEmail(ctx context.Context, email string) (*store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) ByProvider(ctx context.Context, provider, subjectID string) (*store.Identity, error) {
	if !store.ValidProvider(provider) {
		return nil, store.ErrUnknownProvider
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byProvider[providerKey(provider, subjectID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) Create(ctx context.Context, identity *store.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity.Email != "" {
		if _, taken := s.byEmail[identity.Email]; taken {
			return store.ErrDuplicate
		}
	}
	if identity.GoogleID != "" {
		if _, taken := s.byProvider[providerKey(store.ProviderGoogle, identity.GoogleID)]; taken {
			return store.ErrDuplicate
		}
	}
	if identity.GithubID != "" {
		if _, taken := s.byProvider[providerKey(store.ProviderGithub, identity.GithubID)]; taken {
			return store.ErrDuplicate
		}
	}

	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	s.index(clone(identity))
	return nil
}

func (s *Store) FindOrCreate(ctx context.Context, provider, subjectID string) (*store.Identity, bool, error) {
	if !store.ValidProvider(provider) {
		return nil, false, store.ErrUnknownProvider
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byProvider[providerKey(provider, subjectID)]; ok {
		return clone(s.byID[id]), false, nil
	}

	now := time.Now()
	identity := &store.Identity{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch provider {
	case store.ProviderGoogle:
		identity.GoogleID = subjectID
	case store.ProviderGithub:
		identity.GithubID = subjectID
	}

	s.index(identity)
	return clone(identity), true, nil
}

// index registers an identity under all of its lookup keys. Callers hold the
// mutex.
func (s *Store) index(identity *store.Identity) {
	s.byID[identity.ID] = identity
	if identity.Email != "" {
		s.byEmail[identity.Email] = identity.ID
	}
	if identity.GoogleID != "" {
		s.byProvider[providerKey(store.ProviderGoogle, identity.GoogleID)] = identity.ID
	}
	if identity.GithubID != "" {
		s.byProvider[providerKey(store.ProviderGithub, identity.GithubID)] = identity.ID
	}
}
