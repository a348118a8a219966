// Package gae implements the identity store on Google Cloud Datastore.
// Datastore has no unique indexes, so uniqueness is enforced the way
// username reservations usually are: a lookup entity whose key is the
// unique value, written in the same transaction as the identity itself.
package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/authsite/authsite/internal/store"
)

const (
	kindIdentity = "Identity"
	kindLookup   = "IdentityLookup"
)

// identityEntity is the Datastore entity for identities, keyed by id.
type identityEntity struct {
	Email        string    `datastore:"email"`
	PasswordHash string    `datastore:"password_hash,noindex"`
	GoogleID     string    `datastore:"google_id"`
	GithubID     string    `datastore:"github_id"`
	CreatedAt    time.Time `datastore:"created_at"`
	UpdatedAt    time.Time `datastore:"updated_at"`
}

// lookupEntity reserves a unique value ("email:<v>", "google:<v>",
// "github:<v>") and points at the owning identity.
type lookupEntity struct {
	IdentityID string `datastore:"identity_id"`
}

type Store struct {
	client    *datastore.Client
	namespace string
}

// New creates a Datastore-backed store. credentialsFile may be empty to use
// ambient credentials.
func New(ctx context.Context, projectID, namespace, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := datastore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating datastore client: %w", err)
	}
	return &Store{client: client, namespace: namespace}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func lookupName(field, value string) string {
	return field + ":" + value
}

func (s *Store) ByEmail(ctx context.Context, email string) (*store.Identity, error) {
	return s.byLookup(ctx, lookupName("email", email))
}

func (s *Store) ByProvider(ctx context.Context, provider, subjectID string) (*store.Identity, error) {
	if !store.ValidProvider(provider) {
		return nil, store.ErrUnknownProvider
	}
	return s.byLookup(ctx, lookupName(provider, subjectID))
}

func (s *Store) byLookup(ctx context.Context, name string) (*store.Identity, error) {
	var lookup lookupEntity
	err := s.client.Get(ctx, s.key(kindLookup, name), &lookup)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up identity key: %w", err)
	}
	return s.byID(ctx, lookup.IdentityID)
}

func (s *Store) byID(ctx context.Context, id string) (*store.Identity, error) {
	var entity identityEntity
	err := s.client.Get(ctx, s.key(kindIdentity, id), &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching identity: %w", err)
	}
	return entity.toIdentity(id), nil
}

func (e *identityEntity) toIdentity(id string) *store.Identity {
	return &store.Identity{
		ID:           id,
		Email:        e.Email,
		PasswordHash: e.PasswordHash,
		GoogleID:     e.GoogleID,
		GithubID:     e.GithubID,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// lookupNames returns every reservation key an identity occupies.
func lookupNames(identity *store.Identity) []string {
	var names []string
	if identity.Email != "" {
		names = append(names, lookupName("email", identity.Email))
	}
	if identity.GoogleID != "" {
		names = append(names, lookupName(store.ProviderGoogle, identity.GoogleID))
	}
	if identity.GithubID != "" {
		names = append(names, lookupName(store.ProviderGithub, identity.GithubID))
	}
	return names
}

func (s *Store) Create(ctx context.Context, identity *store.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing lookupEntity
		for _, name := range lookupNames(identity) {
			err := tx.Get(s.key(kindLookup, name), &existing)
			if err == nil {
				return store.ErrDuplicate
			}
			if !errors.Is(err, datastore.ErrNoSuchEntity) {
				return err
			}
		}

		entity := &identityEntity{
			Email:        identity.Email,
			PasswordHash: identity.PasswordHash,
			GoogleID:     identity.GoogleID,
			GithubID:     identity.GithubID,
			CreatedAt:    identity.CreatedAt,
			UpdatedAt:    identity.UpdatedAt,
		}
		if _, err := tx.Put(s.key(kindIdentity, identity.ID), entity); err != nil {
			return err
		}
		for _, name := range lookupNames(identity) {
			if _, err := tx.Put(s.key(kindLookup, name), &lookupEntity{IdentityID: identity.ID}); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("creating identity: %w", err)
	}
	return nil
}

func (s *Store) FindOrCreate(ctx context.Context, provider, subjectID string) (*store.Identity, bool, error) {
	if !store.ValidProvider(provider) {
		return nil, false, store.ErrUnknownProvider
	}

	var (
		out     *store.Identity
		created bool
	)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		out, created = nil, false

		lookupKey := s.key(kindLookup, lookupName(provider, subjectID))
		var lookup lookupEntity
		err := tx.Get(lookupKey, &lookup)
		if err == nil {
			var entity identityEntity
			if err := tx.Get(s.key(kindIdentity, lookup.IdentityID), &entity); err != nil {
				return err
			}
			out = entity.toIdentity(lookup.IdentityID)
			return nil
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}

		now := time.Now().UTC()
		identity := &store.Identity{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
		switch provider {
		case store.ProviderGoogle:
			identity.GoogleID = subjectID
		case store.ProviderGithub:
			identity.GithubID = subjectID
		}

		entity := &identityEntity{
			GoogleID:  identity.GoogleID,
			GithubID:  identity.GithubID,
			CreatedAt: identity.CreatedAt,
			UpdatedAt: identity.UpdatedAt,
		}
		if _, err := tx.Put(s.key(kindIdentity, identity.ID), entity); err != nil {
			return err
		}
		if _, err := tx.Put(lookupKey, &lookupEntity{IdentityID: identity.ID}); err != nil {
			return err
		}
		out, created = identity, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("find-or-create identity: %w", err)
	}
	return out, created, nil
}
