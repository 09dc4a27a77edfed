// Package mongo adapts a MongoDB database to the Lattice document
// store interface and owns the index migrations the collections rely
// on.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/latticehq/lattice/store"
)

// Compile-time interface check.
var _ store.Database = (*Store)(nil)

// Store wraps a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the MongoDB deployment at uri and returns a store
// over the named database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)

		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// NewWithDatabase wraps an existing database handle. The caller keeps
// ownership of the client lifecycle.
func NewWithDatabase(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Collection returns the named collection.
func (s *Store) Collection(name string) store.Collection {
	return &collection{col: s.db.Collection(name)}
}

// Ping verifies connectivity to the deployment.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}

	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client, when the store owns one.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}

	return s.client.Disconnect(ctx)
}

// Migrate creates the indexes the collections depend on. It is
// idempotent; existing identical indexes are left in place.
func (s *Store) Migrate(ctx context.Context) error {
	users := s.db.Collection("users")
	_, err := users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "auth_id", Value: 1}},
		},
		{
			Keys: bson.D{
				{Key: "first_name", Value: "text"},
				{Key: "last_name", Value: "text"},
				{Key: "email", Value: "text"},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: migrate users: %w", err)
	}

	memberships := s.db.Collection("memberships")
	_, err = memberships.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "role_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: migrate memberships: %w", err)
	}

	return nil
}

// collection adapts a MongoDB collection.
type collection struct {
	col *mongo.Collection
}

func (c *collection) FindOne(ctx context.Context, filter store.Document) (store.Document, error) {
	var doc store.Document
	err := c.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: find one: %w", err)
	}

	return doc, nil
}

func (c *collection) Find(ctx context.Context, filter store.Document, opts store.FindOptions) (store.Iterator, error) {
	fo := options.Find()
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	}
	if opts.Projection != nil {
		fo.SetProjection(opts.Projection)
	}

	cur, err := c.col.Find(ctx, filter, fo)
	if err != nil {
		return nil, fmt.Errorf("mongo: find: %w", err)
	}

	return &iterator{cur: cur}, nil
}

func (c *collection) Count(ctx context.Context, filter store.Document) (int64, error) {
	n, err := c.col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo: count: %w", err)
	}

	return n, nil
}

func (c *collection) ReplaceOne(ctx context.Context, filter, doc store.Document, upsert bool) error {
	_, err := c.col.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(upsert))
	if err != nil {
		return fmt.Errorf("mongo: replace one: %w", err)
	}

	return nil
}

func (c *collection) DeleteOne(ctx context.Context, filter store.Document) error {
	if _, err := c.col.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("mongo: delete one: %w", err)
	}

	return nil
}

// iterator adapts a MongoDB cursor.
type iterator struct {
	cur *mongo.Cursor
}

func (it *iterator) Next(ctx context.Context) bool {
	return it.cur.Next(ctx)
}

func (it *iterator) Current() (store.Document, error) {
	var doc store.Document
	if err := bson.Unmarshal(it.cur.Current, &doc); err != nil {
		return nil, fmt.Errorf("mongo: decode document: %w", err)
	}

	return doc, nil
}

func (it *iterator) Err() error {
	return it.cur.Err()
}

func (it *iterator) Close(ctx context.Context) error {
	return it.cur.Close(ctx)
}
