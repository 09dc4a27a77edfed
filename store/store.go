// Package store defines the document-store driver contract used by the
// entity layer. Implementations live in the mongo and memory
// subpackages; the entity layer treats them as a black-box
// CRUD-over-filter API with single-document atomicity.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Document is the generic, loosely-typed storage representation of a
// record.
type Document = bson.M

// FindOptions carries pagination, ordering, and projection for a
// multi-document read.
type FindOptions struct {
	Skip       int64
	Limit      int64
	Sort       bson.D
	Projection bson.M
}

// Database is a handle to a named set of collections.
type Database interface {
	// Collection returns the collection with the given name, creating
	// it lazily if the backend requires.
	Collection(name string) Collection
}

// Collection exposes the store's native single-document primitives.
// Each operation is atomic at the single-document level only.
type Collection interface {
	// FindOne returns the first document matching filter, or (nil, nil)
	// when nothing matches. Emptiness is a value, not an error.
	FindOne(ctx context.Context, filter Document) (Document, error)

	// Find returns an iterator over all documents matching filter,
	// honoring opts.
	Find(ctx context.Context, filter Document, opts FindOptions) (Iterator, error)

	// Count returns the number of documents matching filter without
	// materializing them.
	Count(ctx context.Context, filter Document) (int64, error)

	// ReplaceOne fully replaces the single document matching filter
	// with doc, inserting it when upsert is true and nothing matches.
	ReplaceOne(ctx context.Context, filter, doc Document, upsert bool) error

	// DeleteOne removes the single document matching filter. Removing
	// a missing document is not an error.
	DeleteOne(ctx context.Context, filter Document) error
}

// Iterator is a lazy, finite, single-pass cursor over raw documents.
type Iterator interface {
	// Next advances to the next document, reporting whether one is
	// available.
	Next(ctx context.Context) bool

	// Current returns the document at the cursor position.
	Current() (Document, error)

	// Err returns the terminal iteration error, if any.
	Err() error

	// Close releases the cursor.
	Close(ctx context.Context) error
}
