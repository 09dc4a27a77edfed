// Package entity implements the generic persistence layer shared by all
// Lattice record schemas: a typed mapping between records and store
// documents, a composable query builder, and upsert/delete operations
// with lifecycle hooks.
//
// A schema participates by implementing the small Entity capability
// set (identify, type-tag, collection name); the package supplies the
// rest generically. Stores and queries hold no long-lived state; all
// coordination is delegated to the underlying store's per-document
// atomicity.
package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/latticehq/lattice/id"
	"github.com/latticehq/lattice/store"
)

// Entity is the capability set a record schema must provide to
// participate in the generic persistence layer.
type Entity interface {
	// ObjectID returns the record's storage primary key.
	ObjectID() bson.ObjectID

	// ObjectType returns the record's schema tag.
	ObjectType() id.ObjectType

	// CollectionName returns the name of the collection the schema is
	// stored in.
	CollectionName() string
}

// Conditions is a typed, partial filter specification convertible to
// the generic filter representation. Absent fields impose no
// constraint.
type Conditions interface {
	Filter() store.Document
}

// Context carries the database handle entity operations execute
// against. It is a stateless façade; it owns no caches or locks.
type Context struct {
	db store.Database
}

// NewContext creates an entity context over the given database.
func NewContext(db store.Database) *Context {
	return &Context{db: db}
}

// Collection returns the named collection from the underlying database.
func (c *Context) Collection(name string) store.Collection {
	return c.db.Collection(name)
}

// GlobalID returns the type-tagged global identifier of a record.
func GlobalID(e Entity) id.GlobalID {
	return id.New(e.ObjectID(), e.ObjectType())
}

// Now returns the current UTC time at the store's native millisecond
// precision. Records stamp their timestamps with it so that values
// survive an encode/decode round trip unchanged.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// collectionFor returns the collection a schema type is stored in.
func collectionFor[T Entity](c *Context) store.Collection {
	var zero T

	return c.Collection(zero.CollectionName())
}
