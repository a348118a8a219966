// Package mongo implements the identity store on MongoDB. Uniqueness is
// enforced by partial unique indexes and find-or-create rides on an upsert,
// so concurrent first-time logins for the same subject id converge on one
// document.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/authsite/authsite/internal/store"
)

const collectionName = "identities"

// identityDoc is the wire shape of an identity document. Optional fields are
// omitted entirely when empty so the partial unique indexes do not collide
// on missing values.
type identityDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email,omitempty"`
	PasswordHash string    `bson:"password_hash,omitempty"`
	GoogleID     string    `bson:"google_id,omitempty"`
	GithubID     string    `bson:"github_id,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d *identityDoc) toIdentity() *store.Identity {
	return &store.Identity{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		GoogleID:     d.GoogleID,
		GithubID:     d.GithubID,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// Store is a MongoDB-backed identity store.
type Store struct {
	coll *mongo.Collection
}

// New wraps a collection handle in the given database. EnsureIndexes must be
// called once before first use.
func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection(collectionName)}
}

// Connect dials the server, pings it and returns a ready store.
func Connect(ctx context.Context, uri, database string) (*Store, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	s := New(client.Database(database))
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, nil, err
	}
	return s, client, nil
}

// EnsureIndexes creates the partial unique indexes backing the uniqueness
// invariants on email and provider subject ids.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := make([]mongo.IndexModel, 0, 3)
	for _, field := range []string{"email", "google_id", "github_id"} {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: field, Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{
					{Key: field, Value: bson.D{{Key: "$exists", Value: true}}},
				}),
		})
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating identity indexes: %w", err)
	}
	return nil
}

func (s *Store) ByEmail(ctx context.Context, email string) (*store.Identity, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *Store) ByProvider(ctx context.Context, provider, subjectID string) (*store.Identity, error) {
	field, err := providerField(provider)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, bson.D{{Key: field, Value: subjectID}})
}

func (s *Store) findOne(ctx context.Context, filter bson.D) (*store.Identity, error) {
	var doc identityDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up identity: %w", err)
	}
	return doc.toIdentity(), nil
}

func (s *Store) Create(ctx context.Context, identity *store.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	_, err := s.coll.InsertOne(ctx, &identityDoc{
		ID:           identity.ID,
		Email:        identity.Email,
		PasswordHash: identity.PasswordHash,
		GoogleID:     identity.GoogleID,
		GithubID:     identity.GithubID,
		CreatedAt:    identity.CreatedAt,
		UpdatedAt:    identity.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting identity: %w", err)
	}
	return nil
}

func (s *Store) FindOrCreate(ctx context.Context, provider, subjectID string) (*store.Identity, bool, error) {
	field, err := providerField(provider)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	filter := bson.D{{Key: field, Value: subjectID}}
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "_id", Value: uuid.NewString()},
		{Key: "created_at", Value: now},
		{Key: "updated_at", Value: now},
	}}}

	res, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// Lost the upsert race against a concurrent first login; the
		// winner's document is now there to find.
		res = &mongo.UpdateResult{}
		err = nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("upserting identity: %w", err)
	}

	identity, err := s.findOne(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	return identity, res.UpsertedCount > 0, nil
}

func providerField(provider string) (string, error) {
	switch provider {
	case store.ProviderGoogle:
		return "google_id", nil
	case store.ProviderGithub:
		return "github_id", nil
	default:
		return "", store.ErrUnknownProvider
	}
}
