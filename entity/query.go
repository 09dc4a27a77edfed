package entity

import (
	"context"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/latticehq/lattice/store"
)

// relevanceKey is the sort key carrying full-text relevance scores.
const relevanceKey = "score"

// FindOneQuery is a deferred single-result lookup for a schema type.
// Building it performs no I/O; only Load and Exists execute.
type FindOneQuery[T Entity] struct {
	filter store.Document
}

// FindOne builds a single-result query from a raw filter.
func FindOne[T Entity](filter store.Document) FindOneQuery[T] {
	if filter == nil {
		filter = store.Document{}
	}

	return FindOneQuery[T]{filter: filter}
}

// Find builds a single-result query keyed by primary id.
func Find[T Entity](objectID bson.ObjectID) FindOneQuery[T] {
	return FindOne[T](store.Document{fieldPrimaryKey: objectID})
}

// FindBy builds a single-result query from typed conditions.
func FindBy[T Entity](cond Conditions) FindOneQuery[T] {
	return FindOne[T](cond.Filter())
}

// Load executes the query and decodes the matching record. A missing
// record is (nil, nil), never an error.
func (q FindOneQuery[T]) Load(ctx context.Context, c *Context) (*T, error) {
	doc, err := collectionFor[T](c).FindOne(ctx, q.filter)
	if err != nil {
		return nil, fmt.Errorf("entity: find one: %w", err)
	}
	if doc == nil {
		return nil, nil
	}

	rec, err := Decode[T](doc)
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// Exists reports whether any record matches without materializing it.
func (q FindOneQuery[T]) Exists(ctx context.Context, c *Context) (bool, error) {
	n, err := collectionFor[T](c).Count(ctx, q.filter)
	if err != nil {
		return false, fmt.Errorf("entity: count: %w", err)
	}

	return n > 0, nil
}

// FindQuery is a deferred multi-result query for a schema type. The
// builder methods return modified copies, so a built query can be
// re-executed: re-running it re-issues the same logical filter.
type FindQuery[T Entity] struct {
	filter store.Document
	skip   int64
	take   int64
	sort   bson.D
}

// FindMany builds a multi-result query from a raw filter.
func FindMany[T Entity](filter store.Document) FindQuery[T] {
	if filter == nil {
		filter = store.Document{}
	}

	return FindQuery[T]{filter: filter}
}

// All builds a multi-result query matching every record of the schema.
func All[T Entity]() FindQuery[T] {
	return FindMany[T](nil)
}

// Filter builds a multi-result query from typed conditions.
func Filter[T Entity](cond Conditions) FindQuery[T] {
	return FindMany[T](cond.Filter())
}

// Skip sets the number of matching records to pass over.
func (q FindQuery[T]) Skip(n int64) FindQuery[T] {
	q.skip = n

	return q
}

// Take caps the number of records returned.
func (q FindQuery[T]) Take(n int64) FindQuery[T] {
	q.take = n

	return q
}

// Sort merges spec into the query's sort order. Later keys override
// earlier keys of the same name; otherwise they append in order.
func (q FindQuery[T]) Sort(spec ...bson.E) FindQuery[T] {
	merged := slices.Clone(q.sort)
	for _, e := range spec {
		if i := sortIndex(merged, e.Key); i >= 0 {
			merged[i] = e
		} else {
			merged = append(merged, e)
		}
	}
	q.sort = merged

	return q
}

// Find executes the filter and returns a lazy cursor of decoded
// records. Decode failures surface per item from Cursor.Record rather
// than aborting records already yielded.
func (q FindQuery[T]) Find(ctx context.Context, c *Context) (*Cursor[T], error) {
	it, err := collectionFor[T](c).Find(ctx, q.filter, q.options())
	if err != nil {
		return nil, fmt.Errorf("entity: find: %w", err)
	}

	return &Cursor[T]{it: it}, nil
}

// Load executes the query and collects every record. On a decode
// failure it returns the records decoded so far along with the error.
func (q FindQuery[T]) Load(ctx context.Context, c *Context) ([]T, error) {
	cur, err := q.Find(ctx, c)
	if err != nil {
		return nil, err
	}

	return cur.All(ctx)
}

// Count executes a count-only path for the filter.
func (q FindQuery[T]) Count(ctx context.Context, c *Context) (int64, error) {
	n, err := collectionFor[T](c).Count(ctx, q.filter)
	if err != nil {
		return 0, fmt.Errorf("entity: count: %w", err)
	}

	return n, nil
}

// Exists reports whether any record matches the filter.
func (q FindQuery[T]) Exists(ctx context.Context, c *Context) (bool, error) {
	n, err := q.Count(ctx, c)

	return n > 0, err
}

// options assembles the store-level find options. A filter containing
// a full-text clause gets a relevance sort key appended after the
// caller's sort, unless the caller already sorts by the relevance key.
func (q FindQuery[T]) options() store.FindOptions {
	opts := store.FindOptions{
		Skip:  q.skip,
		Limit: q.take,
		Sort:  q.sort,
	}

	if _, ok := q.filter["$text"]; ok && sortIndex(q.sort, relevanceKey) < 0 {
		meta := bson.M{"$meta": "textScore"}
		opts.Sort = append(slices.Clone(q.sort), bson.E{Key: relevanceKey, Value: meta})
		opts.Projection = bson.M{relevanceKey: meta}
	}

	return opts
}

// sortIndex returns the position of key in spec, or -1.
func sortIndex(spec bson.D, key string) int {
	return slices.IndexFunc(spec, func(e bson.E) bool { return e.Key == key })
}

// Cursor is a lazy, finite, single-pass sequence of decoded records.
type Cursor[T Entity] struct {
	it store.Iterator
}

// Next advances the cursor, reporting whether a record is available.
func (cur *Cursor[T]) Next(ctx context.Context) bool {
	return cur.it.Next(ctx)
}

// Record decodes the record at the cursor position. A decode failure
// is an item-level error; the cursor remains usable for later items.
func (cur *Cursor[T]) Record() (T, error) {
	doc, err := cur.it.Current()
	if err != nil {
		var zero T

		return zero, fmt.Errorf("entity: cursor: %w", err)
	}

	return Decode[T](doc)
}

// Err returns the terminal iteration error, if any.
func (cur *Cursor[T]) Err() error {
	return cur.it.Err()
}

// Close releases the cursor.
func (cur *Cursor[T]) Close(ctx context.Context) error {
	return cur.it.Close(ctx)
}

// All drains the cursor. On an item-level decode failure it returns
// the records decoded so far along with the error.
func (cur *Cursor[T]) All(ctx context.Context) ([]T, error) {
	defer cur.it.Close(ctx) //nolint:errcheck // read-only cursor

	var out []T
	for cur.Next(ctx) {
		rec, err := cur.Record()
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return out, fmt.Errorf("entity: cursor: %w", err)
	}

	return out, nil
}
